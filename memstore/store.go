// Package memstore implements the memory lifecycle over the key-value
// backend: creation, retrieval, search, scope conversion, merging, sessions,
// categories, and templates.
//
// A Store is effectively stateless (workspace identity plus references) and
// may be shared across concurrent requests. Index writes for one logical
// operation go through a single pipeline; pipelines are not transactions, so
// readers dereference index members and skip ids whose entry hash is gone.
package memstore

import (
	"context"
	"time"

	"github.com/smallnest/memograph/embedding"
	"github.com/smallnest/memograph/log"
	"github.com/smallnest/memograph/memory"
	"github.com/smallnest/memograph/storage"
	"github.com/smallnest/memograph/version"
)

// Store owns the memory lifecycle and indexing invariants for one workspace.
type Store struct {
	client        storage.Client
	builder       *embedding.Builder
	versions      *version.Engine
	workspaceID   string
	workspacePath string
	mode          func() memory.Mode
	logger        log.Logger
}

var _ version.Updater = (*Store)(nil)

// New creates a Store for the workspace named by cfg.WorkspacePath. The
// workspace mode is re-read through the mode provider on every operation;
// by default the provider returns cfg.Mode.
func New(client storage.Client, builder *embedding.Builder, cfg memory.Config) *Store {
	cfg = cfg.WithDefaults()
	mode := cfg.Mode
	return &Store{
		client:        client,
		builder:       builder,
		versions:      version.NewEngine(client),
		workspaceID:   memory.WorkspaceID(cfg.WorkspacePath),
		workspacePath: cfg.WorkspacePath,
		mode:          func() memory.Mode { return mode },
		logger:        log.GetDefaultLogger(),
	}
}

// SetModeProvider replaces the workspace-mode source. The provider is called
// at every operation entry, so changes take effect immediately.
func (s *Store) SetModeProvider(fn func() memory.Mode) {
	if fn != nil {
		s.mode = fn
	}
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(l log.Logger) {
	if l != nil {
		s.logger = l
	}
}

// WorkspaceID returns the store's workspace identifier.
func (s *Store) WorkspaceID() string { return s.workspaceID }

// WorkspacePath returns the path the workspace id was derived from.
func (s *Store) WorkspacePath() string { return s.workspacePath }

// Versions exposes the version engine backing this store.
func (s *Store) Versions() *version.Engine { return s.versions }

// workspaceKeys returns the scheme for this store's workspace scope.
func (s *Store) workspaceKeys() memory.KeyScheme {
	return memory.WorkspaceKeys(s.workspaceID)
}

// readSchemes resolves the scopes a read fans out to. override, when
// non-empty, wins over the process-wide mode (used by search scope
// overrides; never by mutating shared state).
func (s *Store) readSchemes(override memory.Mode) []memory.KeyScheme {
	mode := s.mode()
	if override != "" {
		mode = override
	}
	switch mode {
	case memory.ModeGlobal:
		return []memory.KeyScheme{memory.GlobalKeys()}
	case memory.ModeHybrid:
		return []memory.KeyScheme{s.workspaceKeys(), memory.GlobalKeys()}
	default:
		return []memory.KeyScheme{s.workspaceKeys()}
	}
}

func validateCreate(req *memory.CreateRequest) error {
	if req.Content == "" {
		return memory.NewError(memory.KindInvalidInput, "content must not be empty")
	}
	if !memory.ValidContextType(req.ContextType) {
		return memory.Errorf(memory.KindInvalidInput, "unknown context type %q", req.ContextType)
	}
	if req.Importance < 1 || req.Importance > 10 {
		return memory.Errorf(memory.KindInvalidInput, "importance %d out of range [1,10]", req.Importance)
	}
	if req.TTLSeconds != 0 && req.TTLSeconds < memory.MinTTLSeconds {
		return memory.Errorf(memory.KindInvalidInput, "ttl_seconds %d below minimum %d", req.TTLSeconds, memory.MinTTLSeconds)
	}
	return nil
}

// Create persists a new memory and every index entry for it in one pipeline.
func (s *Store) Create(ctx context.Context, req memory.CreateRequest) (*memory.Entry, error) {
	if err := validateCreate(&req); err != nil {
		return nil, err
	}

	emb, err := s.builder.Embed(ctx, req.Content)
	if err != nil {
		return nil, err
	}

	now := memory.NowMillis()
	isGlobal := req.IsGlobal || s.mode() == memory.ModeGlobal
	e := &memory.Entry{
		ID:          memory.NewEntryID(),
		Timestamp:   now,
		ContextType: req.ContextType,
		Content:     req.Content,
		Summary:     req.Summary,
		Tags:        dedupeTags(req.Tags),
		Importance:  req.Importance,
		SessionID:   req.SessionID,
		Embedding:   emb,
		TTLSeconds:  req.TTLSeconds,
		IsGlobal:    isGlobal,
		Category:    req.Category,
	}
	if !isGlobal {
		e.WorkspaceID = s.workspaceID
	}
	if e.Summary == "" {
		e.Summary = memory.DeriveSummary(e.Content)
	}
	if e.TTLSeconds > 0 {
		e.ExpiresAt = now + e.TTLSeconds*1000
	}

	ks := memory.KeysFor(e)
	pipe := s.client.Pipeline()
	pipe.HSet(ks.Memory(e.ID), entryToFields(e))
	if e.TTLSeconds > 0 {
		pipe.Expire(ks.Memory(e.ID), time.Duration(e.TTLSeconds)*time.Second)
	}
	s.stageIndexAdd(pipe, ks, e)
	if e.Category != "" {
		s.stageCategoryAdd(pipe, ks, e.ID, e.Category, now)
	}
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	if e.SessionID != "" && !e.IsGlobal {
		if err := s.recordSessionMemory(ctx, e.SessionID, e.ID); err != nil {
			// Session bookkeeping is best effort; the memory itself is live.
			s.logger.Warn("session %s bookkeeping failed for memory %s: %v", e.SessionID, e.ID, err)
		}
	}
	return e, nil
}

// BatchCreate creates entries sequentially. On failure it returns the
// already-created entries alongside the error.
func (s *Store) BatchCreate(ctx context.Context, reqs []memory.CreateRequest) ([]*memory.Entry, error) {
	created := make([]*memory.Entry, 0, len(reqs))
	for i := range reqs {
		e, err := s.Create(ctx, reqs[i])
		if err != nil {
			return created, err
		}
		created = append(created, e)
	}
	return created, nil
}

// Get loads a memory regardless of the workspace mode: workspace scope
// first, then global. An absent entry yields (nil, nil); absence is not an
// error.
func (s *Store) Get(ctx context.Context, id string) (*memory.Entry, error) {
	for _, ks := range []memory.KeyScheme{s.workspaceKeys(), memory.GlobalKeys()} {
		fields, err := s.client.HGetAll(ctx, ks.Memory(id))
		if err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			return fieldsToEntry(fields)
		}
	}
	return nil, nil
}

// Update mutates a memory on behalf of the user, snapshotting the previous
// state into the version log first.
func (s *Store) Update(ctx context.Context, id string, req memory.UpdateRequest) (*memory.Entry, error) {
	return s.ApplyUpdate(ctx, id, req, version.CreatedByUser, "Memory updated")
}

// ApplyUpdate is the update path shared with rollback: it snapshots the
// current state with the given actor and reason, applies the request, and
// repairs only the indices whose membership actually changed. Scope is never
// changed here.
func (s *Store) ApplyUpdate(ctx context.Context, id string, req memory.UpdateRequest, createdBy, reason string) (*memory.Entry, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, memory.Errorf(memory.KindNotFound, "memory %s not found", id)
	}

	if req.ContextType != nil && !memory.ValidContextType(*req.ContextType) {
		return nil, memory.Errorf(memory.KindInvalidInput, "unknown context type %q", *req.ContextType)
	}
	if req.Importance != nil && (*req.Importance < 1 || *req.Importance > 10) {
		return nil, memory.Errorf(memory.KindInvalidInput, "importance %d out of range [1,10]", *req.Importance)
	}
	if req.Content != nil && *req.Content == "" {
		return nil, memory.NewError(memory.KindInvalidInput, "content must not be empty")
	}

	if _, err := s.versions.Append(ctx, existing, createdBy, reason); err != nil {
		return nil, err
	}

	updated := *existing
	updated.Tags = append([]string{}, existing.Tags...)
	contentChanged := false
	if req.Content != nil && *req.Content != existing.Content {
		updated.Content = *req.Content
		contentChanged = true
	}
	if req.ContextType != nil {
		updated.ContextType = *req.ContextType
	}
	if req.Importance != nil {
		updated.Importance = *req.Importance
	}
	if req.Tags != nil {
		updated.Tags = dedupeTags(req.Tags)
	}
	switch {
	case req.Summary != nil:
		updated.Summary = *req.Summary
	case contentChanged:
		updated.Summary = memory.DeriveSummary(updated.Content)
	}
	if contentChanged {
		emb, err := s.builder.Embed(ctx, updated.Content)
		if err != nil {
			return nil, err
		}
		updated.Embedding = emb
	}

	ks := memory.KeysFor(existing)
	pipe := s.client.Pipeline()
	pipe.HSet(ks.Memory(id), entryToFields(&updated))
	s.stageIndexDiff(pipe, ks, existing, &updated)
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a memory and its index memberships. It reports whether a
// memory was actually removed; deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if e == nil {
		return false, nil
	}

	ks := memory.KeysFor(e)
	pipe := s.client.Pipeline()
	s.stageIndexRemove(pipe, ks, e)
	if e.Category != "" {
		pipe.SRem(ks.Category(e.Category), id)
	}
	pipe.Del(ks.MemoryCategory(id))
	pipe.Del(ks.Memory(id))
	if err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// stageIndexAdd stages every index insertion for a live entry.
func (s *Store) stageIndexAdd(pipe storage.Pipeline, ks memory.KeyScheme, e *memory.Entry) {
	pipe.SAdd(ks.AllMemories(), e.ID)
	pipe.ZAdd(ks.Timeline(), float64(e.Timestamp), e.ID)
	pipe.SAdd(ks.ByType(e.ContextType), e.ID)
	for _, tag := range e.Tags {
		pipe.SAdd(ks.ByTag(tag), e.ID)
	}
	if e.Importance >= memory.ImportantThreshold {
		pipe.ZAdd(ks.Important(), float64(e.Importance), e.ID)
	}
}

// stageIndexRemove stages removal from every index the entry belongs to.
func (s *Store) stageIndexRemove(pipe storage.Pipeline, ks memory.KeyScheme, e *memory.Entry) {
	pipe.SRem(ks.AllMemories(), e.ID)
	pipe.ZRem(ks.Timeline(), e.ID)
	pipe.SRem(ks.ByType(e.ContextType), e.ID)
	for _, tag := range e.Tags {
		pipe.SRem(ks.ByTag(tag), e.ID)
	}
	pipe.ZRem(ks.Important(), e.ID)
}

// stageIndexDiff stages only the index deltas between two states of one
// entry, per the update lifecycle.
func (s *Store) stageIndexDiff(pipe storage.Pipeline, ks memory.KeyScheme, before, after *memory.Entry) {
	if before.ContextType != after.ContextType {
		pipe.SRem(ks.ByType(before.ContextType), before.ID)
		pipe.SAdd(ks.ByType(after.ContextType), after.ID)
	}
	oldTags := toSet(before.Tags)
	newTags := toSet(after.Tags)
	for tag := range oldTags {
		if !newTags[tag] {
			pipe.SRem(ks.ByTag(tag), before.ID)
		}
	}
	for tag := range newTags {
		if !oldTags[tag] {
			pipe.SAdd(ks.ByTag(tag), after.ID)
		}
	}
	wasImportant := before.Importance >= memory.ImportantThreshold
	isImportant := after.Importance >= memory.ImportantThreshold
	switch {
	case isImportant:
		pipe.ZAdd(ks.Important(), float64(after.Importance), after.ID)
	case wasImportant:
		pipe.ZRem(ks.Important(), before.ID)
	}
}

// Rollback restores the memory to an earlier version through the version
// engine. The preserveRelationships flag is accepted but has no effect.
func (s *Store) Rollback(ctx context.Context, memoryID, versionID string, preserveRelationships bool) (*memory.Entry, error) {
	return s.versions.Rollback(ctx, s, memoryID, versionID, preserveRelationships)
}

// GetHistory returns the memory's version log, newest first.
func (s *Store) GetHistory(ctx context.Context, memoryID string) ([]*memory.Version, error) {
	e, err := s.Get(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, memory.Errorf(memory.KindNotFound, "memory %s not found", memoryID)
	}
	return s.versions.History(ctx, e)
}

func dedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}
