// Package tokens provides token counting for usage accounting. Counts
// feed query-log bookkeeping and admin statistics when the provider does
// not report usage itself.
package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Counter counts tokens with a tiktoken encoding resolved from a model name
type Counter struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewCounter resolves the encoding for the given model. Unknown models
// fall back to cl100k_base, the encoding of gpt-4 and gpt-3.5-turbo.
func NewCounter(model string) (*Counter, error) {
	name := defaultEncoding
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to load encoding %s: %w", defaultEncoding, err)
		}
	} else {
		name = model
	}
	return &Counter{encoding: encoding, name: name}, nil
}

// Count returns the number of tokens in text
func (c *Counter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// CountAll returns the total token count across texts
func (c *Counter) CountAll(texts ...string) int {
	total := 0
	for _, text := range texts {
		total += c.Count(text)
	}
	return total
}

// Encoding returns the name the counter resolved to
func (c *Counter) Encoding() string {
	return c.name
}

// Estimate approximates a token count without an encoder, at four
// characters per token.
func Estimate(text string) int {
	return len(text) / 4
}
