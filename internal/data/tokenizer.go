// Package data turns labeled text into padded, masked tensor batches for
// the classifiers.
package data

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding is used when no encoding name is given.
const defaultEncoding = "cl100k_base"

// Tokenizer converts text into token ids using an OpenAI BPE encoding.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTokenizer creates a tokenizer for the given tiktoken encoding name
// ("cl100k_base", "p50k_base", "r50k_base"). An empty name selects
// cl100k_base.
func NewTokenizer(encodingName string) (*Tokenizer, error) {
	if encodingName == "" {
		encodingName = defaultEncoding
	}

	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}

	return &Tokenizer{
		encoding: encoding,
		name:     encodingName,
	}, nil
}

// Encode converts text to token ids.
func (t *Tokenizer) Encode(text string) []int32 {
	tokens := t.encoding.Encode(text, nil, nil)

	result := make([]int32, len(tokens))
	for i, tok := range tokens {
		result[i] = int32(tok) //nolint:gosec // G115: token ids fit in int32, vocab size < 2^31.
	}
	return result
}

// Decode converts token ids back to text.
func (t *Tokenizer) Decode(tokens []int32) string {
	intTokens := make([]int, len(tokens))
	for i, tok := range tokens {
		intTokens[i] = int(tok)
	}
	return t.encoding.Decode(intTokens)
}

// VocabSize returns the vocabulary size for the encoding, used to size
// embedding tables. tiktoken-go doesn't expose it directly.
func (t *Tokenizer) VocabSize() int {
	switch t.name {
	case "cl100k_base":
		return 100256
	case "p50k_base", "r50k_base":
		return 50257
	default:
		return 100000
	}
}

// Name returns the encoding name.
func (t *Tokenizer) Name() string {
	return t.name
}
