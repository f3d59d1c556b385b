package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/smallnest/memograph/memory"
	"github.com/smallnest/memograph/storage"
	"github.com/smallnest/memograph/version"
)

const mergeSeparator = "\n\n--- Merged content ---\n"

// Merge folds several memories into one survivor. The survivor is the entry
// with id keepID when given, otherwise the highest-importance input (first
// seen wins ties). The survivor absorbs the others' content, the union of
// all tags, and the maximum importance; the rest are deleted.
func (s *Store) Merge(ctx context.Context, ids []string, keepID string) (*memory.Entry, error) {
	entries := make([]*memory.Entry, 0, len(ids))
	for _, id := range ids {
		e, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			entries = append(entries, e)
		}
	}
	if len(entries) < 2 {
		return nil, memory.Errorf(memory.KindInvalidInput,
			"merge needs at least two live memories, found %d", len(entries))
	}

	survivor := entries[0]
	if keepID != "" {
		found := false
		for _, e := range entries {
			if e.ID == keepID {
				survivor, found = e, true
				break
			}
		}
		if !found {
			return nil, memory.Errorf(memory.KindNotFound, "keep memory %s not among merge inputs", keepID)
		}
	} else {
		for _, e := range entries[1:] {
			if e.Importance > survivor.Importance {
				survivor = e
			}
		}
	}

	content := survivor.Content
	tags := append([]string{}, survivor.Tags...)
	importance := survivor.Importance
	absorbed := 0
	for _, e := range entries {
		if e.ID == survivor.ID {
			continue
		}
		content += mergeSeparator + e.Content
		tags = append(tags, e.Tags...)
		if e.Importance > importance {
			importance = e.Importance
		}
		absorbed++
	}
	tags = dedupeTags(tags)

	merged, err := s.ApplyUpdate(ctx, survivor.ID, memory.UpdateRequest{
		Content:    &content,
		Tags:       tags,
		Importance: &importance,
	}, version.CreatedBySystem, fmt.Sprintf("Merged %d memories", absorbed))
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.ID == survivor.ID {
			continue
		}
		if _, err := s.Delete(ctx, e.ID); err != nil {
			s.logger.Warn("merge cleanup: deleting %s failed: %v", e.ID, err)
		}
	}
	return merged, nil
}

// ConvertToGlobal moves a workspace memory into the global scope, removing
// it from every workspace index and inserting it into the global ones in a
// single pipeline. The timestamp is preserved. Converting an already-global
// memory is a no-op.
func (s *Store) ConvertToGlobal(ctx context.Context, id string) (*memory.Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, memory.Errorf(memory.KindNotFound, "memory %s not found", id)
	}
	if e.IsGlobal {
		return e, nil
	}

	converted := *e
	converted.IsGlobal = true
	converted.WorkspaceID = ""
	return s.convertScope(ctx, e, &converted)
}

// ConvertToWorkspace moves a global memory into this store's workspace
// scope. Converting an already-local memory is a no-op.
func (s *Store) ConvertToWorkspace(ctx context.Context, id string) (*memory.Entry, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, memory.Errorf(memory.KindNotFound, "memory %s not found", id)
	}
	if !e.IsGlobal {
		return e, nil
	}

	converted := *e
	converted.IsGlobal = false
	converted.WorkspaceID = s.workspaceID
	return s.convertScope(ctx, e, &converted)
}

// convertScope stages the full cross-scope move as one pipeline so the
// change is atomic from a reader following either scope's indices. The
// version log moves with the entry, keeping history and rollback reachable
// after the conversion.
func (s *Store) convertScope(ctx context.Context, from, to *memory.Entry) (*memory.Entry, error) {
	src := memory.KeysFor(from)
	dst := memory.KeysFor(to)

	versionIDs, err := s.client.ZRange(ctx, src.Versions(from.ID), 0, -1)
	if err != nil {
		return nil, err
	}
	type versionRecord struct {
		id     string
		score  float64
		fields map[string]string
	}
	records := make([]versionRecord, 0, len(versionIDs))
	for _, vid := range versionIDs {
		score, ok, err := s.client.ZScore(ctx, src.Versions(from.ID), vid)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		fields, err := s.client.HGetAll(ctx, src.Version(from.ID, vid))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		records = append(records, versionRecord{id: vid, score: score, fields: fields})
	}

	pipe := s.client.Pipeline()
	for _, rec := range records {
		pipe.HSet(dst.Version(to.ID, rec.id), rec.fields)
		pipe.ZAdd(dst.Versions(to.ID), rec.score, rec.id)
		pipe.Del(src.Version(from.ID, rec.id))
	}
	if len(records) > 0 {
		pipe.Del(src.Versions(from.ID))
	}
	s.stageIndexRemove(pipe, src, from)
	if from.Category != "" {
		pipe.SRem(src.Category(from.Category), from.ID)
		pipe.Del(src.MemoryCategory(from.ID))
	}
	pipe.Del(src.Memory(from.ID))

	pipe.HSet(dst.Memory(to.ID), entryToFields(to))
	if to.TTLSeconds > 0 && to.ExpiresAt > 0 {
		remaining := time.Duration(to.ExpiresAt-memory.NowMillis()) * time.Millisecond
		if remaining > 0 {
			pipe.Expire(dst.Memory(to.ID), remaining)
		}
	}
	s.stageIndexAdd(pipe, dst, to)
	if to.Category != "" {
		s.stageCategoryAdd(pipe, dst, to.ID, to.Category, memory.NowMillis())
	}
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return to, nil
}

// stageCategoryAdd stages the category mapping, membership, and last-use
// bookkeeping for an entry.
func (s *Store) stageCategoryAdd(pipe storage.Pipeline, ks memory.KeyScheme, id, category string, nowMs int64) {
	pipe.Set(ks.MemoryCategory(id), category, 0)
	pipe.SAdd(ks.Category(category), id)
	pipe.ZAdd(ks.Categories(), float64(nowMs), category)
}
