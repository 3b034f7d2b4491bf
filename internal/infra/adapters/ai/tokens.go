package ai

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"concept-forge/internal/domain"
	"concept-forge/internal/infra/metrics"
)

// TokenCounter counts prompt tokens with the cl100k_base encoding. When the
// encoding cannot be loaded it falls back to a rune based estimate.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTokenCounter() *TokenCounter { return &TokenCounter{} }

func (c *TokenCounter) Count(text string) int {
	c.once.Do(func() {
		if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
			c.enc = enc
		}
	})
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// promptGuard rejects prompts over the configured budget and records the
// token count of the ones it lets through.
type promptGuard struct {
	counter   *TokenCounter
	maxTokens int
}

func (g promptGuard) check(provider, model, prompt string) error {
	if g.counter == nil {
		return nil
	}
	n := g.counter.Count(prompt)
	if g.maxTokens > 0 && n > g.maxTokens {
		metrics.PromptRejected(provider, model)
		return fmt.Errorf("%w: prompt has %d tokens, limit is %d", domain.ErrInvalidArgument, n, g.maxTokens)
	}
	metrics.AddPromptTokens(provider, model, n)
	return nil
}
