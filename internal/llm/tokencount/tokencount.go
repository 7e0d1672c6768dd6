// Package tokencount estimates prompt/completion token counts for
// providers (or local call sites) that don't return authoritative usage
// figures up front, using the same BPE tables OpenAI's own tokenizer uses.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter caches one tiktoken encoding per model name, since construction
// is the expensive part of a count call.
type Counter struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// New returns an empty Counter.
func New() *Counter {
	return &Counter{encoders: map[string]*tiktoken.Tiktoken{}}
}

// Count returns the number of tokens text encodes to under model's
// tokenizer, falling back to cl100k_base for models tiktoken doesn't
// recognize by name (non-OpenAI models still tokenize comparably enough
// for budget estimation).
func (c *Counter) Count(model, text string) (int, error) {
	enc, err := c.encoderFor(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

func (c *Counter) encoderFor(model string) (*tiktoken.Tiktoken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encoders[model]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	c.encoders[model] = enc
	return enc, nil
}
