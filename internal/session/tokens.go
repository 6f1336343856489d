package session

import "unicode/utf8"

// Token estimation for context budget management. The heuristic is
// calibrated for common tokenizers (~4 characters per token).

// TokenCounter provides token counting functionality.
type TokenCounter struct {
	charsPerToken float64
}

// NewTokenCounter creates a new token counter with default calibration.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{
		charsPerToken: 4.0,
	}
}

// CountString estimates tokens in a string.
func (tc *TokenCounter) CountString(s string) int {
	if s == "" {
		return 0
	}
	// Rune count for proper unicode handling
	runeCount := utf8.RuneCountInString(s)
	return int(float64(runeCount) / tc.charsPerToken)
}

// CountMessage estimates tokens for one rendered message, including the
// role prefix overhead.
func (tc *TokenCounter) CountMessage(m Message) int {
	return tc.CountString(m.Content) + tc.CountString(m.Role) + 2
}
