package generation

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Budget truncates prompt material to a token limit. A Budget with a nil
// encoder falls back to a rough four-characters-per-token estimate.
type Budget struct {
	enc *tiktoken.Tiktoken
}

var (
	budgetOnce sync.Once
	budgetEnc  *tiktoken.Tiktoken
	budgetErr  error
)

// NewBudget loads the o200k_base encoding. The encoding is cached process-wide.
func NewBudget() (*Budget, error) {
	budgetOnce.Do(func() {
		budgetEnc, budgetErr = tiktoken.GetEncoding("o200k_base")
	})
	if budgetErr != nil {
		return &Budget{}, fmt.Errorf("generation: load tokenizer: %w", budgetErr)
	}
	return &Budget{enc: budgetEnc}, nil
}

// Count returns the number of tokens in s.
func (b *Budget) Count(s string) int {
	if b == nil || b.enc == nil {
		return (len(s) + 3) / 4
	}
	return len(b.enc.Encode(s, nil, nil))
}

// Truncate returns the longest prefix of s that fits in limit tokens.
// limit <= 0 disables truncation.
func (b *Budget) Truncate(s string, limit int) string {
	if limit <= 0 || s == "" {
		return s
	}
	if b == nil || b.enc == nil {
		if max := limit * 4; len(s) > max {
			return truncateRunes(s, max)
		}
		return s
	}
	tokens := b.enc.Encode(s, nil, nil)
	if len(tokens) <= limit {
		return s
	}
	return b.enc.Decode(tokens[:limit])
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
