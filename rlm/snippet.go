package rlm

import (
	"context"
	"regexp"
	"strings"

	"github.com/smallnest/memograph/memory"
)

// Snippet is the slice of a chain's stored context matching one query,
// packed to fit a token budget.
type Snippet struct {
	Content    string  `json:"content"`
	Relevance  float64 `json:"relevance"`
	TokensUsed int     `json:"tokens_used"`
	Truncated  bool    `json:"truncated"`
}

// InjectSnippet extracts the lines of a chain's out-of-band context that
// match pattern, packing as many as fit within maxTokens. The pattern is
// tried as a case-insensitive regular expression first and falls back to
// plain substring matching when it does not compile. With no matches at all
// the leading slice of the context is returned with minimal relevance, so a
// caller always has something to work from.
func (c *Coordinator) InjectSnippet(ctx context.Context, chainID, pattern string, maxTokens int) (*Snippet, error) {
	if maxTokens <= 0 {
		return nil, memory.NewError(memory.KindInvalidInput, "maxTokens must be positive")
	}
	chain, err := c.GetChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	raw, found, err := c.client.Get(ctx, chain.ContextRef)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, memory.Errorf(memory.KindNotFound, "context for chain %s not found", chainID)
	}

	match := matcherFor(pattern, c)
	lines := strings.Split(raw, "\n")
	budget := maxTokens * charsPerToken

	// Collect every matching line first; relevance reflects the full match
	// count even when the budget cuts the packed content short.
	var matching []string
	for _, line := range lines {
		if match(line) {
			matching = append(matching, line)
		}
	}

	var b strings.Builder
	truncated := false
	for _, line := range matching {
		need := len(line)
		if b.Len() > 0 {
			need++
		}
		if b.Len()+need > budget {
			truncated = true
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}

	snip := &Snippet{Truncated: truncated}
	if len(matching) > 0 {
		snip.Content = b.String()
		snip.Relevance = float64(len(matching)) / float64(len(lines))
	} else {
		if len(raw) > budget {
			snip.Content = raw[:budget]
			snip.Truncated = true
		} else {
			snip.Content = raw
		}
		snip.Relevance = 0.1
	}
	snip.TokensUsed = (len(snip.Content) + charsPerToken - 1) / charsPerToken
	return snip, nil
}

func matcherFor(pattern string, c *Coordinator) func(string) bool {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		c.logger.Warn("snippet pattern %q is not a valid regexp, using substring match: %v", pattern, err)
		needle := strings.ToLower(pattern)
		return func(line string) bool {
			return strings.Contains(strings.ToLower(line), needle)
		}
	}
	return func(line string) bool { return re.MatchString(line) }
}
