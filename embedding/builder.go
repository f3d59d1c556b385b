// Package embedding turns text into the fixed-length sketch vector used for
// semantic search: a character-trigram histogram in the lower half and an
// LLM-extracted keyword histogram in the upper half, L2-normalized.
//
// This is deliberately not a learned embedding. Its correctness is measured
// by reproducibility and by the ordering it yields on near-duplicate text.
package embedding

import (
	"context"
	"math"
	"strings"

	"github.com/smallnest/memograph/log"
	"github.com/smallnest/memograph/memory"
)

const (
	// Half of the vector indexes trigrams, the other half keywords.
	bucketCount = memory.VectorSize / 2
	// Only the leading trigrams contribute, keeping the sketch cheap on
	// large content.
	maxTrigrams = 64
	// Keywords carry more signal than raw trigrams.
	keywordWeight = 2.0
)

// KeywordExtractor produces 5-10 keyword concepts for a text. Implementations
// may call an LLM; tests inject a static extractor so vectors stay
// deterministic.
type KeywordExtractor interface {
	Keywords(ctx context.Context, text string) ([]string, error)
}

// StaticExtractor returns a fixed keyword list regardless of input. Intended
// for tests and offline use.
type StaticExtractor []string

// Keywords returns the static list.
func (s StaticExtractor) Keywords(ctx context.Context, text string) ([]string, error) {
	return []string(s), nil
}

// Builder constructs embedding vectors. A nil extractor yields trigram-only
// sketches.
type Builder struct {
	extractor KeywordExtractor
}

// NewBuilder creates a Builder using the given keyword extractor, which may
// be nil.
func NewBuilder(extractor KeywordExtractor) *Builder {
	return &Builder{extractor: extractor}
}

// Embed produces the 128-float L2-normalized sketch for text. A failed or
// absent keyword extraction degrades to the trigram-only sketch rather than
// failing the operation.
func (b *Builder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keywords []string
	if b.extractor != nil {
		kws, err := b.extractor.Keywords(ctx, text)
		if err != nil {
			log.Warn("keyword extraction failed, falling back to trigram-only sketch: %v", err)
		} else {
			keywords = kws
		}
	}

	v := make([]float64, memory.VectorSize)

	lower := []rune(strings.ToLower(text))
	for i, n := 0, 0; i+3 <= len(lower) && n < maxTrigrams; i, n = i+1, n+1 {
		h := memory.Hash32Abs(string(lower[i : i+3]))
		v[h%bucketCount]++
	}

	for _, kw := range keywords {
		kw = strings.TrimSpace(strings.ToLower(kw))
		if kw == "" {
			continue
		}
		h := memory.Hash32Abs(kw)
		v[bucketCount+h%bucketCount] += keywordWeight
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range v {
			v[i] /= norm
		}
	}
	return v, nil
}
