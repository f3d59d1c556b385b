// Package analyzer turns raw conversation text into structured memory
// candidates using an LLM. It performs no persistence of its own.
package analyzer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/memograph/log"
	"github.com/smallnest/memograph/memory"
)

const maxSummaryChars = 50

const analyzePrompt = `Extract the durable facts, decisions, requirements, errors, and insights from the conversation below.
Respond with one JSON object per line, no surrounding array, each shaped as:
{"content": "...", "context_type": "...", "summary": "...", "tags": ["..."], "importance": 5}
context_type is one of: directive, information, heading, decision, code_pattern, requirement, error, todo, insight, preference.
importance is 1-10. summary is at most 50 characters. Output nothing else.

Conversation:
`

const summarizePrompt = `Summarize the following session memories in two or three sentences. Respond with the summary only.

`

// Candidate is one memory extracted from a conversation, ready to be stored.
type Candidate struct {
	Content     string             `json:"content"`
	ContextType memory.ContextType `json:"context_type"`
	Summary     string             `json:"summary"`
	Tags        []string           `json:"tags"`
	Importance  int                `json:"importance"`
}

// Analyzer extracts memories and summaries from conversation text.
type Analyzer struct {
	model  llms.Model
	logger log.Logger
}

// New creates an analyzer. A nil model is accepted here and reported as a
// configuration error on first use.
func New(model llms.Model) *Analyzer {
	return &Analyzer{model: model, logger: log.GetDefaultLogger()}
}

// SetLogger replaces the analyzer's logger.
func (a *Analyzer) SetLogger(l log.Logger) {
	if l != nil {
		a.logger = l
	}
}

func (a *Analyzer) requireModel() error {
	if a.model == nil {
		return memory.NewError(memory.KindMisconfigured, "analyzer has no LLM configured, set an API key")
	}
	return nil
}

// rawCandidate matches the line format the model is asked to emit.
type rawCandidate struct {
	Content     string   `json:"content"`
	ContextType string   `json:"context_type"`
	Summary     string   `json:"summary"`
	Tags        []string `json:"tags"`
	Importance  int      `json:"importance"`
}

// AnalyzeConversation asks the model for one JSON object per line and parses
// what comes back. Malformed lines are dropped, unknown context types map to
// information, and importance is clamped to [1, 10].
func (a *Analyzer) AnalyzeConversation(ctx context.Context, text string) ([]Candidate, error) {
	if err := a.requireModel(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, memory.NewError(memory.KindInvalidInput, "conversation text must not be empty")
	}

	resp, err := llms.GenerateFromSinglePrompt(ctx, a.model, analyzePrompt+text,
		llms.WithTemperature(0))
	if err != nil {
		return nil, memory.WrapError(memory.KindInternal, "conversation analysis failed", err)
	}
	return parseCandidates(resp, a.logger), nil
}

func parseCandidates(resp string, logger log.Logger) []Candidate {
	var out []Candidate
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var raw rawCandidate
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			logger.Debug("dropping malformed analyzer line: %v", err)
			continue
		}
		if strings.TrimSpace(raw.Content) == "" {
			continue
		}
		out = append(out, Candidate{
			Content:     raw.Content,
			ContextType: memory.NormalizeContextType(raw.ContextType),
			Summary:     clampSummary(raw.Summary, raw.Content),
			Tags:        raw.Tags,
			Importance:  clampImportance(raw.Importance),
		})
	}
	return out
}

func clampImportance(n int) int {
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

func clampSummary(summary, content string) string {
	s := strings.TrimSpace(summary)
	if s == "" {
		s = strings.TrimSpace(content)
	}
	runes := []rune(s)
	if len(runes) > maxSummaryChars {
		return string(runes[:maxSummaryChars])
	}
	return s
}

// SummarizeSession produces a two-to-three sentence synopsis of a session's
// memories. Any failure degrades to a fixed placeholder so session listings
// never break on a flaky model.
func (a *Analyzer) SummarizeSession(ctx context.Context, entries []*memory.Entry) string {
	const unavailable = "Session summary unavailable"
	if a.model == nil || len(entries) == 0 {
		return unavailable
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString("- [")
		b.WriteString(string(e.ContextType))
		b.WriteString("] ")
		b.WriteString(e.Summary)
		b.WriteByte('\n')
	}
	resp, err := llms.GenerateFromSinglePrompt(ctx, a.model, summarizePrompt+b.String(),
		llms.WithTemperature(0))
	if err != nil {
		a.logger.Warn("session summarization failed: %v", err)
		return unavailable
	}
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return unavailable
	}
	return resp
}

// EnhanceQuery folds the active task into a search query.
func (a *Analyzer) EnhanceQuery(task, query string) string {
	task = strings.TrimSpace(task)
	query = strings.TrimSpace(query)
	switch {
	case task == "":
		return query
	case query == "":
		return task
	default:
		return task + " " + query
	}
}
