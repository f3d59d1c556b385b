// Package prompt composes workspace-context payloads from memory sets, ready
// to be prepended to an agent's system prompt.
package prompt

import (
	"sort"
	"strings"

	"github.com/smallnest/memograph/memory"
)

// DefaultMaxChars is the character budget applied when Options.MaxChars is
// zero.
const DefaultMaxChars = 8000

const criticalMarker = "[CRITICAL] "

// sectionOrder fixes the sequence context-type sections appear in. Types not
// listed here land at the end in type-name order.
var sectionOrder = []memory.ContextType{
	memory.TypeDirective,
	memory.TypeRequirement,
	memory.TypeDecision,
	memory.TypeError,
	memory.TypeCodePattern,
	memory.TypePreference,
	memory.TypeInsight,
	memory.TypeTodo,
	memory.TypeHeading,
	memory.TypeInformation,
}

var sectionTitles = map[memory.ContextType]string{
	memory.TypeDirective:   "Directives",
	memory.TypeRequirement: "Requirements",
	memory.TypeDecision:    "Decisions",
	memory.TypeError:       "Known Errors",
	memory.TypeCodePattern: "Code Patterns",
	memory.TypePreference:  "Preferences",
	memory.TypeInsight:     "Insights",
	memory.TypeTodo:        "Open TODOs",
	memory.TypeHeading:     "Headings",
	memory.TypeInformation: "Information",
}

// Options controls payload composition.
type Options struct {
	// WorkspacePath labels the payload header. Optional.
	WorkspacePath string
	// SessionName labels the payload header. Optional.
	SessionName string
	// MaxChars bounds the payload size; 0 means DefaultMaxChars.
	MaxChars int
	// FullContent emits entry content instead of summaries.
	FullContent bool
}

// FormatWorkspaceContext renders memories as a sectioned text block: one
// section per context type in a fixed order, entries sorted by importance
// descending, critical entries flagged. Output is truncated at the character
// budget on a whole-line boundary.
func FormatWorkspaceContext(entries []*memory.Entry, opts Options) string {
	maxChars := opts.MaxChars
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if len(entries) == 0 {
		return truncate("# Workspace Context\n\nNo memories recorded yet.\n", maxChars)
	}

	byType := make(map[memory.ContextType][]*memory.Entry)
	for _, e := range entries {
		byType[e.ContextType] = append(byType[e.ContextType], e)
	}
	for _, group := range byType {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Importance > group[j].Importance
		})
	}

	var b strings.Builder
	b.WriteString("# Workspace Context")
	if opts.WorkspacePath != "" {
		b.WriteString(" (")
		b.WriteString(opts.WorkspacePath)
		b.WriteByte(')')
	}
	b.WriteByte('\n')
	if opts.SessionName != "" {
		b.WriteString("Session: ")
		b.WriteString(opts.SessionName)
		b.WriteByte('\n')
	}

	for _, t := range orderedTypes(byType) {
		group := byType[t]
		b.WriteString("\n## ")
		b.WriteString(sectionTitle(t))
		b.WriteByte('\n')
		for _, e := range group {
			b.WriteString("- ")
			if e.Importance >= memory.ImportantThreshold {
				b.WriteString(criticalMarker)
			}
			if opts.FullContent {
				b.WriteString(e.Content)
			} else {
				b.WriteString(e.Summary)
			}
			if len(e.Tags) > 0 {
				b.WriteString(" [")
				b.WriteString(strings.Join(e.Tags, ", "))
				b.WriteByte(']')
			}
			b.WriteByte('\n')
		}
	}
	return truncate(b.String(), maxChars)
}

func orderedTypes(byType map[memory.ContextType][]*memory.Entry) []memory.ContextType {
	var out []memory.ContextType
	seen := make(map[memory.ContextType]bool)
	for _, t := range sectionOrder {
		if len(byType[t]) > 0 {
			out = append(out, t)
			seen[t] = true
		}
	}
	var extra []memory.ContextType
	for t := range byType {
		if !seen[t] {
			extra = append(extra, t)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

func sectionTitle(t memory.ContextType) string {
	if title, ok := sectionTitles[t]; ok {
		return title
	}
	return string(t)
}

// truncate cuts text at budget on the last complete line so a payload never
// ends mid-entry.
func truncate(text string, budget int) string {
	if len(text) <= budget {
		return text
	}
	cut := text[:budget]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i+1]
	}
	return cut
}
