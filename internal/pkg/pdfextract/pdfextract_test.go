package pdfextract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"docchat/internal/pkg/pdfextract/pdftest"
)

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF([]byte("%PDF-1.7\n...")))
	assert.False(t, IsPDF([]byte("<html>")))
	assert.False(t, IsPDF(nil))
}

func TestExtractTextEmpty(t *testing.T) {
	text, pages, err := ExtractText(nil)
	assert.NoError(t, err)
	assert.Empty(t, text)
	assert.Zero(t, pages)
}

func TestExtractTextGarbage(t *testing.T) {
	_, _, err := ExtractText([]byte("%PDF-1.4\nthis is not really a pdf"))
	assert.Error(t, err)
}

func TestExtractTextGeneratedPDF(t *testing.T) {
	b := pdftest.Build("First page text", "Second page\nhas two lines", "Third page")

	text, pages, err := ExtractText(b)
	assert.NoError(t, err)
	assert.Equal(t, 3, pages)
	assert.Contains(t, text, "First page text")
	assert.Contains(t, text, "has two lines")
	assert.Contains(t, text, "Third page")
}
