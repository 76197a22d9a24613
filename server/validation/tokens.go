package validation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	"github.com/teilomillet/promptgate/server/prompt"
)

// Tokenizer defines the interface for token counting
type Tokenizer interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
	CountTokens(text string) int
}

// tiktokenWrapper wraps tiktoken to implement our Tokenizer interface
type tiktokenWrapper struct {
	*tiktoken.Tiktoken
}

func (t *tiktokenWrapper) CountTokens(text string) int {
	return len(t.Encode(text, nil, nil))
}

// TokenCounter counts tokens in composed prompts. Counts are approximate for
// non-OpenAI models and are only used for metrics.
type TokenCounter struct {
	encoding Tokenizer
}

// NewTokenCounter loads the named tiktoken encoding, e.g. "cl100k_base".
func NewTokenCounter(encodingName string) (*TokenCounter, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %v", encodingName, err)
	}
	return &TokenCounter{encoding: &tiktokenWrapper{encoding}}, nil
}

// NewTokenCounterWithTokenizer builds a counter around an existing tokenizer.
func NewTokenCounterWithTokenizer(t Tokenizer) *TokenCounter {
	return &TokenCounter{encoding: t}
}

// CountMessages returns the total token count of the message contents.
func (tc *TokenCounter) CountMessages(msgs []prompt.Message) int {
	total := 0
	for _, msg := range msgs {
		total += tc.encoding.CountTokens(msg.Content)
	}
	return total
}
