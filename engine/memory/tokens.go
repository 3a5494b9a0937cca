package memory

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many tokens a text costs against a model
// context window.
type TokenCounter interface {
	Count(text string) int
}

// EstimatorCounter is the chars/4 heuristic. Cheap, deterministic, and
// close enough for window trimming.
type EstimatorCounter struct{}

func (EstimatorCounter) Count(text string) int {
	return len(text) / 4
}

// tiktokenCounter wraps a real BPE encoding.
type tiktokenCounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Count(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil))
}

// NewTokenCounter returns a cl100k_base counter when the encoding is
// available, falling back to the chars/4 estimator (tiktoken fetches its
// BPE table lazily and can fail offline).
func NewTokenCounter() TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return EstimatorCounter{}
	}
	return &tiktokenCounter{enc: enc}
}
