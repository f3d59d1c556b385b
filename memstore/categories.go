package memstore

import (
	"context"

	"github.com/smallnest/memograph/memory"
)

// CategoryInfo describes one known category.
type CategoryInfo struct {
	Name        string `json:"name"`
	MemoryCount int64  `json:"memory_count"`
}

// SetCategory assigns a memory to a category, moving it out of its previous
// category set and stamping the category as recently used. An empty category
// clears the assignment.
func (s *Store) SetCategory(ctx context.Context, memoryID, category string) (*memory.Entry, error) {
	e, err := s.Get(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, memory.Errorf(memory.KindNotFound, "memory %s not found", memoryID)
	}

	ks := memory.KeysFor(e)
	prev, found, err := s.client.Get(ctx, ks.MemoryCategory(memoryID))
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	if found && prev != "" && prev != category {
		pipe.SRem(ks.Category(prev), memoryID)
	}
	if category == "" {
		pipe.Del(ks.MemoryCategory(memoryID))
	} else {
		s.stageCategoryAdd(pipe, ks, memoryID, category, memory.NowMillis())
	}
	e.Category = category
	pipe.HSet(ks.Memory(memoryID), map[string]string{"category": category})
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// ListCategories returns the known categories, most recently used first.
// The list is additive: a category emptied of memories stays listed with a
// zero count until it falls into disuse.
func (s *Store) ListCategories(ctx context.Context) ([]CategoryInfo, error) {
	var out []CategoryInfo
	seen := make(map[string]bool)
	for _, ks := range s.readSchemes("") {
		names, err := s.client.ZRevRange(ctx, ks.Categories(), 0, -1)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			n, err := s.client.SCard(ctx, ks.Category(name))
			if err != nil {
				return nil, err
			}
			out = append(out, CategoryInfo{Name: name, MemoryCount: n})
		}
	}
	return out, nil
}

// GetByCategory returns the entries currently assigned to a category,
// newest first. Spurious index members whose authoritative category
// disagrees are dropped.
func (s *Store) GetByCategory(ctx context.Context, category string, limit int) ([]*memory.Entry, error) {
	if category == "" {
		return nil, memory.NewError(memory.KindInvalidInput, "category must not be empty")
	}
	return s.indexedRead(ctx, limit, func(ks memory.KeyScheme) string { return ks.Category(category) },
		func(e *memory.Entry) bool { return e.Category == category })
}
