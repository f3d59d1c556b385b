package memstore

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/smallnest/memograph/embedding"
	"github.com/smallnest/memograph/memory"
)

// SearchOptions tune a semantic search. Zero values mean "no filter".
type SearchOptions struct {
	// Limit caps the result count; defaults to 10.
	Limit int
	// MinImportance drops entries below the threshold.
	MinImportance int
	// ContextTypes restricts candidates to the union of these type indices.
	ContextTypes []memory.ContextType
	// Category keeps only entries with this category.
	Category string
	// Fuzzy adds a bonus proportional to the fraction of query words found
	// in the content.
	Fuzzy bool
	// Regex filters content by a case-insensitive pattern. A pattern that
	// fails to compile is logged and skipped, never failing the query.
	Regex string
	// ScopeOverride forces a read scope for this call only, instead of the
	// process-wide workspace mode.
	ScopeOverride memory.Mode
}

// SearchResult pairs an entry with its similarity to the query.
type SearchResult struct {
	Entry      *memory.Entry
	Similarity float64
}

const fuzzyBonus = 0.2

// Search runs the semantic search pipeline: embed the query, collect
// candidates per the workspace mode, dereference (skipping expired ids),
// filter, score, and rank.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	qv, err := s.builder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var re *regexp.Regexp
	if opts.Regex != "" {
		re, err = regexp.Compile("(?i)" + opts.Regex)
		if err != nil {
			s.logger.Warn("search regex %q did not compile, skipping filter: %v", opts.Regex, err)
			re = nil
		}
	}

	schemes := s.readSchemes(opts.ScopeOverride)
	hybrid := len(schemes) > 1

	results := make([]SearchResult, 0, limit)
	for _, ks := range schemes {
		ids, err := s.candidateIDs(ctx, ks, opts.ContextTypes)
		if err != nil {
			return nil, err
		}
		entries, err := s.fetchEntries(ctx, ks, ids)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if opts.MinImportance > 0 && e.Importance < opts.MinImportance {
				continue
			}
			if opts.Category != "" && e.Category != opts.Category {
				continue
			}
			if re != nil && !re.MatchString(e.Content) {
				continue
			}
			sim, err := embedding.CosineSimilarity(qv, e.Embedding)
			if err != nil {
				s.logger.Warn("skipping memory %s in search: %v", e.ID, err)
				continue
			}
			if opts.Fuzzy {
				sim += fuzzyBonus * queryWordCoverage(query, e.Content)
				if sim > 1.0 {
					sim = 1.0
				}
			}
			if hybrid && e.IsGlobal {
				sim *= memory.HybridGlobalBias
			}
			results = append(results, SearchResult{Entry: e, Similarity: sim})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// candidateIDs collects the search candidate set for one scope.
func (s *Store) candidateIDs(ctx context.Context, ks memory.KeyScheme, types []memory.ContextType) ([]string, error) {
	if len(types) == 0 {
		return s.client.SMembers(ctx, ks.AllMemories())
	}
	keys := make([]string, len(types))
	for i, t := range types {
		keys[i] = ks.ByType(t)
	}
	return s.client.SUnion(ctx, keys...)
}

// fetchEntries dereferences ids in one scope, skipping expired entries and
// logging (not failing on) corrupt rows.
func (s *Store) fetchEntries(ctx context.Context, ks memory.KeyScheme, ids []string) ([]*memory.Entry, error) {
	entries := make([]*memory.Entry, 0, len(ids))
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, ks.Memory(id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue // expired or deleted; index is lazily reconciled
		}
		e, err := fieldsToEntry(fields)
		if err != nil {
			s.logger.Error("skipping unreadable memory: %v", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// queryWordCoverage returns the fraction of query words contained in the
// content, case-insensitively.
func queryWordCoverage(query, content string) float64 {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	found := 0
	for _, w := range words {
		if strings.Contains(lower, w) {
			found++
		}
	}
	return float64(found) / float64(len(words))
}

// GetRecent returns the newest entries across the effective scopes.
func (s *Store) GetRecent(ctx context.Context, limit int) ([]*memory.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	var all []*memory.Entry
	for _, ks := range s.readSchemes("") {
		ids, err := s.client.ZRevRange(ctx, ks.Timeline(), 0, int64(limit-1))
		if err != nil {
			return nil, err
		}
		entries, err := s.fetchEntries(ctx, ks, ids)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetByType returns entries of one context type, newest first. Entries whose
// authoritative type disagrees with the index (a concurrent-update artifact)
// are filtered out.
func (s *Store) GetByType(ctx context.Context, t memory.ContextType, limit int) ([]*memory.Entry, error) {
	if !memory.ValidContextType(t) {
		return nil, memory.Errorf(memory.KindInvalidInput, "unknown context type %q", t)
	}
	return s.indexedRead(ctx, limit, func(ks memory.KeyScheme) string { return ks.ByType(t) },
		func(e *memory.Entry) bool { return e.ContextType == t })
}

// GetByTag returns entries carrying one tag, newest first.
func (s *Store) GetByTag(ctx context.Context, tag string, limit int) ([]*memory.Entry, error) {
	if tag == "" {
		return nil, memory.NewError(memory.KindInvalidInput, "tag must not be empty")
	}
	return s.indexedRead(ctx, limit, func(ks memory.KeyScheme) string { return ks.ByTag(tag) },
		func(e *memory.Entry) bool { return hasTag(e, tag) })
}

// indexedRead is the shared set-index read: fan out per scope, dereference,
// drop spurious memberships, sort newest first.
func (s *Store) indexedRead(ctx context.Context, limit int, key func(memory.KeyScheme) string, keep func(*memory.Entry) bool) ([]*memory.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	var all []*memory.Entry
	for _, ks := range s.readSchemes("") {
		ids, err := s.client.SMembers(ctx, key(ks))
		if err != nil {
			return nil, err
		}
		entries, err := s.fetchEntries(ctx, ks, ids)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if keep(e) {
				all = append(all, e)
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetImportant returns entries with importance >= minImportance, highest
// first. minImportance below the index threshold still reads the important
// index only (importance >= 8 entries).
func (s *Store) GetImportant(ctx context.Context, minImportance, limit int) ([]*memory.Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	if minImportance < 1 {
		minImportance = memory.ImportantThreshold
	}
	var all []*memory.Entry
	for _, ks := range s.readSchemes("") {
		ids, err := s.client.ZRevRangeByScore(ctx, ks.Important(), 10, float64(minImportance))
		if err != nil {
			return nil, err
		}
		entries, err := s.fetchEntries(ctx, ks, ids)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Importance >= minImportance {
				all = append(all, e)
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Importance > all[j].Importance })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// TimeWindowOptions filter a time-window read.
type TimeWindowOptions struct {
	ContextTypes  []memory.ContextType
	MinImportance int
	Limit         int
}

// GetByTimeWindow returns entries with startMs <= timestamp <= endMs,
// chronologically ascending.
func (s *Store) GetByTimeWindow(ctx context.Context, startMs, endMs int64, opts TimeWindowOptions) ([]*memory.Entry, error) {
	if endMs < startMs {
		return nil, memory.NewError(memory.KindInvalidInput, "time window end precedes start")
	}
	typeFilter := toTypeSet(opts.ContextTypes)
	var all []*memory.Entry
	for _, ks := range s.readSchemes("") {
		ids, err := s.client.ZRangeByScore(ctx, ks.Timeline(), float64(startMs), float64(endMs))
		if err != nil {
			return nil, err
		}
		entries, err := s.fetchEntries(ctx, ks, ids)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if typeFilter != nil && !typeFilter[e.ContextType] {
				continue
			}
			if opts.MinImportance > 0 && e.Importance < opts.MinImportance {
				continue
			}
			all = append(all, e)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp < all[j].Timestamp })
	if opts.Limit > 0 && len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, nil
}

func hasTag(e *memory.Entry, tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func toTypeSet(types []memory.ContextType) map[memory.ContextType]bool {
	if len(types) == 0 {
		return nil
	}
	set := make(map[memory.ContextType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}
