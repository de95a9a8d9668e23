package stringutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEllipsis(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLength int
		expected  string
	}{
		{"fits", "hello world", 20, "hello world"},
		{"truncated", "The quick brown fox jumps over the lazy dog", 16, "The quick bro..."},
		{"no room for marker", "abcdefg", 3, "abc"},
		{"multi line nmap stderr", "  Failed to open device\r\nQUITTING!\n", 40, "Failed to open device QUITTING!"},
		{"runes not bytes", "ÿÿÿÿÿÿ", 5, "ÿÿ..."},
		{"zero", "abc", 0, ""},
		{"negative", "abc", -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Ellipsis(tt.input, tt.maxLength))
		})
	}
}

func TestSingleLine(t *testing.T) {
	assert.Equal(t, "a b c", SingleLine(" a\n  b\r\n c "))
	assert.Equal(t, "", SingleLine("\n\n"))
}
