// Package extract turns a document source into normalised plain text.
//
// Every failure is an apperr.ExtractionError of exactly one kind:
// unsupported format, empty content, network error or parse error. Partial
// text is never returned.
package extract

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"docchat/internal/apperr"
	"docchat/internal/model"
)

// Source is a document to extract. The concrete types are PDFSource and
// URLSource.
type Source interface {
	Kind() string
	Ref() string
}

type PDFSource struct {
	Name string
	Data []byte
}

func (s PDFSource) Kind() string { return model.SourcePDF }
func (s PDFSource) Ref() string  { return s.Name }

type URLSource struct {
	URL string
}

func (s URLSource) Kind() string { return model.SourceURL }
func (s URLSource) Ref() string  { return s.URL }

type Result struct {
	Text       string
	Title      string
	SourceKind string
	SourceRef  string
	Pages      int
}

type Options struct {
	FetchTimeout time.Duration
	MaxPDFBytes  int64
	MaxBodyBytes int64
	UserAgent    string
	HTTPClient   *http.Client
}

// Adapter dispatches a Source to the extractor for its kind.
type Adapter struct {
	pdf *PDFExtractor
	url *URLExtractor
}

func NewAdapter(opts Options) *Adapter {
	pdf := NewPDFExtractor(opts.MaxPDFBytes)
	return &Adapter{
		pdf: pdf,
		url: NewURLExtractor(opts, pdf),
	}
}

func (a *Adapter) Extract(ctx context.Context, src Source) (*Result, error) {
	switch s := src.(type) {
	case PDFSource:
		return a.pdf.Extract(s)
	case *PDFSource:
		return a.pdf.Extract(*s)
	case URLSource:
		return a.url.Extract(ctx, s.URL)
	case *URLSource:
		return a.url.Extract(ctx, s.URL)
	case nil:
		return nil, apperr.Extraction(apperr.ErrUnsupportedFormat, fmt.Errorf("no source given"))
	default:
		return nil, apperr.Extraction(apperr.ErrUnsupportedFormat, fmt.Errorf("source kind %q", src.Kind()))
	}
}
