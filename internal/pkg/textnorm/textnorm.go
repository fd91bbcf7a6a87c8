// Package textnorm turns extractor output into the single plain-text form
// stored as a document's raw text.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	multiSpaces   = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// Normalize unifies line endings, drops control characters, collapses runs of
// horizontal whitespace and blank lines, and trims every line.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == unicode.ReplacementChar || unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = multiSpaces.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = multiNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
