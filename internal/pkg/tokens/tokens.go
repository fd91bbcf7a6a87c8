// Package tokens estimates language-model token counts from text length.
package tokens

import "unicode/utf8"

// RunesPerToken is the average rune count of one model token for mixed prose.
const RunesPerToken = 4

// Estimate returns an upper-rounded token estimate for s.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + RunesPerToken - 1) / RunesPerToken
}

// Runes converts a token budget into the rune count it can hold.
func Runes(budget int) int {
	if budget <= 0 {
		return 0
	}
	return budget * RunesPerToken
}

// Truncate cuts s so that Estimate(s) <= budget.
func Truncate(s string, budget int) string {
	limit := Runes(budget)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
