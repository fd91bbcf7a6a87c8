package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"docchat/internal/apperr"
	"docchat/internal/model"
	"docchat/internal/pkg/pdfextract"
	"docchat/internal/pkg/textnorm"
)

const defaultMaxPDFBytes = 15 << 20

type PDFExtractor struct {
	maxBytes int64
	parse    func([]byte) (string, int, error)
}

func NewPDFExtractor(maxBytes int64) *PDFExtractor {
	if maxBytes <= 0 {
		maxBytes = defaultMaxPDFBytes
	}
	return &PDFExtractor{
		maxBytes: maxBytes,
		parse:    pdfextract.ExtractText,
	}
}

func (e *PDFExtractor) Extract(src PDFSource) (*Result, error) {
	if int64(len(src.Data)) > e.maxBytes {
		return nil, apperr.Extraction(apperr.ErrUnsupportedFormat,
			fmt.Errorf("pdf is %d bytes, limit is %d", len(src.Data), e.maxBytes))
	}
	if !pdfextract.IsPDF(src.Data) {
		return nil, apperr.Extraction(apperr.ErrUnsupportedFormat, fmt.Errorf("%q is not a pdf", src.Name))
	}

	raw, pages, err := e.parse(src.Data)
	if err != nil {
		return nil, apperr.Extraction(apperr.ErrParse, err)
	}
	text := textnorm.Normalize(raw)
	if text == "" {
		return nil, apperr.Extraction(apperr.ErrEmptyContent, fmt.Errorf("%q has no extractable text", src.Name))
	}

	return &Result{
		Text:       text,
		Title:      titleFromFileName(src.Name),
		SourceKind: model.SourcePDF,
		SourceRef:  src.Name,
		Pages:      pages,
	}, nil
}

func titleFromFileName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" {
		return "Untitled PDF"
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}
