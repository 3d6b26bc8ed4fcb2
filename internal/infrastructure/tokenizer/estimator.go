// Package tokenizer estimates token counts for executions that report prompt and
// completion text instead of usage numbers.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jbctechsolutions/agentmon/internal/domain/provider"
)

// DefaultEncoding is the tiktoken encoding used for estimates. It is not Claude's
// tokenizer but tracks it closely enough for cost attribution.
const DefaultEncoding = "cl100k_base"

// Estimator counts tokens with tiktoken-go. The encoding is loaded on the first
// non-empty count; when it cannot be loaded every count uses SimpleEstimator.
type Estimator struct {
	load func() (*tiktoken.Tiktoken, error)
	mu   sync.Mutex
}

var _ provider.TokenEstimator = (*Estimator)(nil)

// New returns an estimator that loads the default encoding on first use.
// tiktoken-go may download the encoding, so nothing is fetched until a count needs it.
func New() *Estimator {
	return newLazy(func() (*tiktoken.Tiktoken, error) {
		return tiktoken.GetEncoding(DefaultEncoding)
	})
}

func newLazy(load func() (*tiktoken.Tiktoken, error)) *Estimator {
	return &Estimator{load: sync.OnceValues(load)}
}

// NewEstimator loads the default encoding now and fails if it is unavailable.
func NewEstimator() (*Estimator, error) {
	encoding, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, err
	}
	return newLazy(func() (*tiktoken.Tiktoken, error) { return encoding, nil }), nil
}

// CountTokens returns the token count for text. Safe for concurrent use.
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}

	encoding, err := e.load()
	if err != nil {
		return SimpleEstimator{}.CountTokens(text)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(encoding.Encode(text, nil, nil))
}

// SimpleEstimator approximates ~4 characters per token. It needs no encoding data.
type SimpleEstimator struct{}

var _ provider.TokenEstimator = SimpleEstimator{}

// CountTokens returns the character-based estimate.
func (SimpleEstimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateUsage counts prompt and completion tokens with est.
func EstimateUsage(est provider.TokenEstimator, prompt, completion string) (input, output int) {
	if est == nil {
		est = SimpleEstimator{}
	}
	return est.CountTokens(prompt), est.CountTokens(completion)
}
