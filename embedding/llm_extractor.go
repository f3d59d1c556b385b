package embedding

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

const keywordPrompt = "Extract 5-10 keyword concepts from the following text. " +
	"Respond with only the keywords, comma-separated, no explanation.\n\nText:\n"

// LLMExtractor asks a language model for keyword concepts.
type LLMExtractor struct {
	model llms.Model
}

var _ KeywordExtractor = (*LLMExtractor)(nil)

// NewLLMExtractor wraps a langchaingo model as a keyword extractor.
func NewLLMExtractor(model llms.Model) *LLMExtractor {
	return &LLMExtractor{model: model}
}

// Keywords returns up to 10 lowercase keywords for text. Errors from the
// model are surfaced; the Builder degrades to a trigram-only sketch.
func (e *LLMExtractor) Keywords(ctx context.Context, text string) ([]string, error) {
	resp, err := llms.GenerateFromSinglePrompt(ctx, e.model, keywordPrompt+text,
		llms.WithTemperature(0))
	if err != nil {
		return nil, err
	}
	parts := strings.Split(resp, ",")
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		kw := strings.TrimSpace(strings.ToLower(p))
		if kw == "" {
			continue
		}
		keywords = append(keywords, kw)
		if len(keywords) == 10 {
			break
		}
	}
	return keywords, nil
}
