// Package tokens estimates how many model tokens a text occupies.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the tiktoken encoding used by Count.
const Encoding = "cl100k_base"

var (
	once     sync.Once
	encoding *tiktoken.Tiktoken
)

func load() *tiktoken.Tiktoken {
	once.Do(func() {
		if enc, err := tiktoken.GetEncoding(Encoding); err == nil {
			encoding = enc
		}
	})
	return encoding
}

// Count returns the cl100k_base token count of text. When the encoding
// cannot be loaded it returns Estimate instead.
func Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := load(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return Estimate(text)
}

// Estimate is max(runes/4, words), and at least 1 for non-blank text.
func Estimate(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	return max(estimate, 1)
}
