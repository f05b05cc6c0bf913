package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text in model tokens. Chunk sizing and the prompt
// budget both go through this, so ingestion and answering agree on lengths.
type TokenCounter interface {
	Count(text string) int
}

// NewTokenCounter returns a counter for the given encoding name. The empty
// string or "heuristic" selects a cheap word-based estimate; anything else is
// resolved as a tiktoken encoding such as "cl100k_base".
func NewTokenCounter(encoding string) (TokenCounter, error) {
	encoding = strings.TrimSpace(encoding)
	if encoding == "" || encoding == "heuristic" {
		return heuristicCounter{}, nil
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load token encoding %q: %w", encoding, err)
	}
	return &tiktokenCounter{enc: enc}, nil
}

type heuristicCounter struct{}

// Count approximates tokens as one per word plus one per non-ASCII rune,
// which keeps CJK text from being undercounted by whitespace splitting.
func (heuristicCounter) Count(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
