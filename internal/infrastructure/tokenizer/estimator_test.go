package tokenizer

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
)

func TestSimpleEstimator_CountTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"four chars", "abcd", 1},
		{"five chars", "abcde", 2},
		{"sentence", "The quick brown fox jumps.", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SimpleEstimator{}.CountTokens(tt.text))
		})
	}
}

func TestEstimateUsage(t *testing.T) {
	in, out := EstimateUsage(SimpleEstimator{}, "abcdefgh", "abcd")
	assert.Equal(t, 2, in)
	assert.Equal(t, 1, out)

	in, out = EstimateUsage(nil, "", "")
	assert.Zero(t, in)
	assert.Zero(t, out)
}

func TestEstimator_LoadsOnFirstCount(t *testing.T) {
	var calls atomic.Int32
	est := newLazy(func() (*tiktoken.Tiktoken, error) {
		calls.Add(1)
		return nil, errors.New("encoding download failed")
	})

	assert.Zero(t, calls.Load())
	assert.Zero(t, est.CountTokens(""))
	assert.Zero(t, calls.Load())

	assert.Equal(t, 3, est.CountTokens("hello world"))
	assert.Equal(t, 1, est.CountTokens("abc"))
	assert.EqualValues(t, 1, calls.Load())
}

func TestEstimator_CountTokens(t *testing.T) {
	est, err := NewEstimator()
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}

	tests := []struct {
		name      string
		text      string
		minTokens int
		maxTokens int
	}{
		{"empty string", "", 0, 0},
		{"single word", "hello", 1, 2},
		{"simple sentence", "Hello, world!", 3, 6},
		{"longer text", "The quick brown fox jumps over the lazy dog.", 8, 15},
		{"code snippet", "func main() { fmt.Println(\"Hello, World!\") }", 10, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := est.CountTokens(tt.text)
			assert.GreaterOrEqual(t, got, tt.minTokens)
			assert.LessOrEqual(t, got, tt.maxTokens)
		})
	}
}

func TestEstimator_ThreadSafety(t *testing.T) {
	est, err := NewEstimator()
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}

	want := est.CountTokens("concurrent counting")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, est.CountTokens("concurrent counting"))
		}()
	}
	wg.Wait()
}
