package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/memograph/memory"
)

// stubModel returns a canned completion and records the prompt it was given.
type stubModel struct {
	resp       string
	err        error
	lastPrompt string
}

func (s *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range messages {
		for _, part := range m.Parts {
			if t, ok := part.(llms.TextContent); ok {
				s.lastPrompt = t.Text
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: s.resp}},
	}, nil
}

func (s *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.resp, nil
}

func TestAnalyzeConversation(t *testing.T) {
	stub := &stubModel{resp: strings.Join([]string{
		`{"content": "Use Redis for persistence", "context_type": "decision", "summary": "Redis chosen", "tags": ["redis"], "importance": 8}`,
		``,
		`Here are the extracted memories:`,
		`{"content": "broken json`,
		`{"content": "Deploy runs at 3am", "context_type": "SCHEDULE", "importance": 99}`,
		`{"content": "", "context_type": "information", "importance": 5}`,
		`{"content": "Prefer tabs", "context_type": "preference", "importance": 0}`,
	}, "\n")}

	a := New(stub)
	got, err := a.AnalyzeConversation(context.Background(), "user: let's use redis")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "Use Redis for persistence", got[0].Content)
	assert.Equal(t, memory.TypeDecision, got[0].ContextType)
	assert.Equal(t, "Redis chosen", got[0].Summary)
	assert.Equal(t, []string{"redis"}, got[0].Tags)
	assert.Equal(t, 8, got[0].Importance)

	// Unknown context types normalize to information, importance clamps.
	assert.Equal(t, memory.TypeInformation, got[1].ContextType)
	assert.Equal(t, 10, got[1].Importance)
	// A missing summary falls back to the content.
	assert.Equal(t, "Deploy runs at 3am", got[1].Summary)

	assert.Equal(t, 1, got[2].Importance)

	assert.Contains(t, stub.lastPrompt, "user: let's use redis")
}

func TestAnalyzeConversationSummaryClamped(t *testing.T) {
	long := strings.Repeat("好", 60)
	stub := &stubModel{resp: `{"content": "c", "context_type": "information", "summary": "` + long + `", "importance": 5}`}

	a := New(stub)
	got, err := a.AnalyzeConversation(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, strings.Repeat("好", 50), got[0].Summary)
}

func TestAnalyzeConversationErrors(t *testing.T) {
	a := New(nil)
	_, err := a.AnalyzeConversation(context.Background(), "text")
	assert.True(t, memory.IsMisconfigured(err))

	a = New(&stubModel{})
	_, err = a.AnalyzeConversation(context.Background(), "   ")
	assert.True(t, memory.IsInvalidInput(err))

	a = New(&stubModel{err: errors.New("rate limited")})
	_, err = a.AnalyzeConversation(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, memory.KindInternal, memory.KindOf(err))
}

func TestSummarizeSession(t *testing.T) {
	entries := []*memory.Entry{
		{ContextType: memory.TypeDecision, Summary: "Redis chosen"},
		{ContextType: memory.TypeError, Summary: "Deploy failed on Friday"},
	}

	stub := &stubModel{resp: "  The team chose Redis and hit a deploy failure.  "}
	a := New(stub)
	got := a.SummarizeSession(context.Background(), entries)
	assert.Equal(t, "The team chose Redis and hit a deploy failure.", got)
	assert.Contains(t, stub.lastPrompt, "- [decision] Redis chosen")
	assert.Contains(t, stub.lastPrompt, "- [error] Deploy failed on Friday")
}

func TestSummarizeSessionDegradesToPlaceholder(t *testing.T) {
	entries := []*memory.Entry{{ContextType: memory.TypeInformation, Summary: "s"}}
	const want = "Session summary unavailable"

	assert.Equal(t, want, New(nil).SummarizeSession(context.Background(), entries))
	assert.Equal(t, want, New(&stubModel{}).SummarizeSession(context.Background(), nil))
	assert.Equal(t, want, New(&stubModel{err: errors.New("down")}).SummarizeSession(context.Background(), entries))
	assert.Equal(t, want, New(&stubModel{resp: "   "}).SummarizeSession(context.Background(), entries))
}

func TestEnhanceQuery(t *testing.T) {
	a := New(nil)
	assert.Equal(t, "fix auth bug token refresh", a.EnhanceQuery("fix auth bug", "token refresh"))
	assert.Equal(t, "token refresh", a.EnhanceQuery("  ", "token refresh"))
	assert.Equal(t, "fix auth bug", a.EnhanceQuery("fix auth bug", ""))
	assert.Equal(t, "", a.EnhanceQuery("", ""))
}
