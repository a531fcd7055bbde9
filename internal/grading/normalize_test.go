package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCaseAndWhitespaceInsensitive(t *testing.T) {
	assert.Equal(t, Normalize(" Paris "), Normalize("PARIS"))
	assert.Equal(t, "newyork", Normalize("  New   York "))
	assert.Equal(t, "true", Normalize("True"))
}

func TestNormalizeReflexive(t *testing.T) {
	for _, s := range []string{"", "  ", "Paris", " a b\tc ", "ÅNGSTRÖM"} {
		assert.Equal(t, Normalize(s), Normalize(s))
	}
}

func TestNormalizeEmptyAndBlank(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize(" \t\n "))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("Pa ris", "paris"))
	assert.False(t, Equal("Paris", "London"))
}
