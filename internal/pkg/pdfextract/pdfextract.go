package pdfextract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// Magic is the header every PDF file starts with.
var Magic = []byte("%PDF-")

// ExtractText extracts plain text from the PDF in b and reports its page
// count. The parser panics on some malformed files; those panics come back as
// errors.
func ExtractText(b []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages = "", 0
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	if len(b) == 0 {
		return "", 0, nil
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", 0, err
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", 0, err
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", 0, err
	}
	return string(out), pdfReader.NumPage(), nil
}

// IsPDF reports whether b starts with the PDF header.
func IsPDF(b []byte) bool {
	return bytes.HasPrefix(b, Magic)
}
