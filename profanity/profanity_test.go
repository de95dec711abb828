package profanity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	d := NewDetector([]string{"word", " ", "toast"})
	require.Equal(t, 2, d.Len())

	tests := []struct {
		name    string
		content string
		term    string
		kind    MatchKind
		match   bool
	}{
		{"exact", "that word again", "word", Exact, true},
		{"exact uppercase", "WORD!", "word", Exact, true},
		{"leet", "w0rd", "word", Obfuscated, true},
		{"separators", "w-o r_d", "word", Obfuscated, true},
		{"leet and separators", "he said t-0-@-5-7 today", "toast", Obfuscated, true},
		{"symbol at edge", "$tuff and 7oast", "toast", Obfuscated, true},
		{"accented", "wörd", "word", Exact, true},
		{"embedded", "wordsmith", "", "", false},
		{"embedded leet", "sw0rdfish", "", "", false},
		{"clean", "hello world", "", "", false},
		{"empty", "   ", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := d.Check(tt.content)
			assert.Equal(t, tt.match, ok)
			if tt.match {
				assert.Equal(t, tt.term, m.Term)
				assert.Equal(t, tt.kind, m.Kind)
				assert.Equal(t, CategoryRacialSlur, m.Category)
			}
		})
	}
}

func TestEmptyDetector(t *testing.T) {
	d := NewDetector(nil)
	_, ok := d.Check("anything at all")
	assert.False(t, ok)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cafe", Normalize("Café"))
}
