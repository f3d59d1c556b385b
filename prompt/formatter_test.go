package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/memograph/memory"
)

func entry(ct memory.ContextType, summary string, importance int, tags ...string) *memory.Entry {
	return &memory.Entry{
		Content:     summary + " (full)",
		ContextType: ct,
		Summary:     summary,
		Importance:  importance,
		Tags:        tags,
	}
}

func TestFormatSectionOrder(t *testing.T) {
	entries := []*memory.Entry{
		entry(memory.TypeInformation, "background note", 3),
		entry(memory.TypeDecision, "use redis", 6),
		entry(memory.TypeDirective, "never force-push", 9),
	}

	out := FormatWorkspaceContext(entries, Options{})

	directives := strings.Index(out, "## Directives")
	decisions := strings.Index(out, "## Decisions")
	information := strings.Index(out, "## Information")
	require.True(t, directives > 0)
	assert.Less(t, directives, decisions)
	assert.Less(t, decisions, information)
}

func TestFormatImportanceOrderAndCriticalMarker(t *testing.T) {
	entries := []*memory.Entry{
		entry(memory.TypeDecision, "minor choice", 4),
		entry(memory.TypeDecision, "major choice", 8),
		entry(memory.TypeDecision, "medium choice", 6),
	}

	out := FormatWorkspaceContext(entries, Options{})

	major := strings.Index(out, "major choice")
	medium := strings.Index(out, "medium choice")
	minor := strings.Index(out, "minor choice")
	assert.Less(t, major, medium)
	assert.Less(t, medium, minor)

	assert.Contains(t, out, "- [CRITICAL] major choice")
	assert.NotContains(t, out, "[CRITICAL] medium choice")
}

func TestFormatHeaderAndTags(t *testing.T) {
	entries := []*memory.Entry{
		entry(memory.TypePreference, "tabs over spaces", 5, "style", "go"),
	}

	out := FormatWorkspaceContext(entries, Options{
		WorkspacePath: "/home/dev/project",
		SessionName:   "sprint-12",
	})

	assert.True(t, strings.HasPrefix(out, "# Workspace Context (/home/dev/project)\n"))
	assert.Contains(t, out, "Session: sprint-12\n")
	assert.Contains(t, out, "- tabs over spaces [style, go]\n")
}

func TestFormatFullContent(t *testing.T) {
	entries := []*memory.Entry{entry(memory.TypeInsight, "cache invalidation is hard", 5)}

	out := FormatWorkspaceContext(entries, Options{FullContent: true})
	assert.Contains(t, out, "cache invalidation is hard (full)")

	out = FormatWorkspaceContext(entries, Options{})
	assert.NotContains(t, out, "(full)")
}

func TestFormatUnknownTypeAppended(t *testing.T) {
	entries := []*memory.Entry{
		entry(memory.TypeDirective, "d", 5),
		entry(memory.ContextType("custom"), "odd one out", 5),
	}

	out := FormatWorkspaceContext(entries, Options{})
	assert.Contains(t, out, "## custom\n")
	assert.Less(t, strings.Index(out, "## Directives"), strings.Index(out, "## custom"))
}

func TestFormatTruncatesOnLineBoundary(t *testing.T) {
	entries := []*memory.Entry{
		entry(memory.TypeInformation, strings.Repeat("a", 60), 5),
		entry(memory.TypeInformation, strings.Repeat("b", 60), 5),
		entry(memory.TypeInformation, strings.Repeat("c", 60), 5),
	}

	out := FormatWorkspaceContext(entries, Options{MaxChars: 120})
	assert.LessOrEqual(t, len(out), 120)
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Contains(t, out, strings.Repeat("a", 60))
	assert.NotContains(t, out, "ccc")
}

func TestFormatEmpty(t *testing.T) {
	out := FormatWorkspaceContext(nil, Options{})
	assert.Equal(t, "# Workspace Context\n\nNo memories recorded yet.\n", out)
}
