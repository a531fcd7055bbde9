package grading

import "strings"

// Normalize converts a raw answer into its canonical comparable form: all
// whitespace removed (leading, trailing and internal) and lower-cased.
// Normalized equality is the sole basis for grading text answers.
func Normalize(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), ""))
}

// Equal reports whether two answers are the same under normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
