package oracle

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultPromptTokenBudget caps the candidate section of a match prompt.
const DefaultPromptTokenBudget = 12000

// minPartTokens is the smallest share any candidate is trimmed to.
const minPartTokens = 32

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	return enc, encErr
}

// Budget measures and trims prompt text in tokens. Without an encoding it
// approximates four bytes per token.
type Budget struct {
	limit int
	enc   *tiktoken.Tiktoken
}

// NewBudget creates a Budget of limit tokens. limit <= 0 uses
// DefaultPromptTokenBudget.
func NewBudget(limit int) *Budget {
	if limit <= 0 {
		limit = DefaultPromptTokenBudget
	}
	e, err := encoding()
	if err != nil {
		e = nil
	}
	return &Budget{limit: limit, enc: e}
}

// Limit returns the budget in tokens.
func (b *Budget) Limit() int { return b.limit }

// Count returns the token count of s.
func (b *Budget) Count(s string) int {
	if s == "" {
		return 0
	}
	if b.enc == nil {
		return (len(s) + 3) / 4
	}
	return len(b.enc.Encode(s, nil, nil))
}

// Truncate shortens s to at most max tokens, marking the cut with "...".
func (b *Budget) Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if b.enc == nil {
		if len(s) <= max*4 {
			return s
		}
		return s[:max*4] + "..."
	}
	tokens := b.enc.Encode(s, nil, nil)
	if len(tokens) <= max {
		return s
	}
	return b.enc.Decode(tokens[:max]) + "..."
}

// Fit trims parts so that fixed plus all parts stay within the budget.
// Parts are never dropped; when trimming is needed each gets an equal
// share of what remains, and at least minPartTokens.
func (b *Budget) Fit(fixed string, parts []string) []string {
	remaining := b.limit - b.Count(fixed)
	total := 0
	for _, p := range parts {
		total += b.Count(p)
	}
	if total <= remaining || len(parts) == 0 {
		return parts
	}

	share := remaining / len(parts)
	if share < minPartTokens {
		share = minPartTokens
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = b.Truncate(p, share)
	}
	return out
}
