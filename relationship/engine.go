// Package relationship maintains typed directed edges between memory
// entries and answers bounded graph queries over them.
package relationship

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/memograph/log"
	"github.com/smallnest/memograph/memory"
	"github.com/smallnest/memograph/storage"
)

// Getter is the slice of the memory store this engine needs: endpoint
// dereferencing. Absent memories come back as (nil, nil).
type Getter interface {
	Get(ctx context.Context, id string) (*memory.Entry, error)
}

// Engine owns the relationship graph for one workspace.
type Engine struct {
	client      storage.Client
	memories    Getter
	workspaceID string
	logger      log.Logger
}

// NewEngine creates a relationship engine bound to one workspace.
func NewEngine(client storage.Client, memories Getter, workspaceID string) *Engine {
	return &Engine{
		client:      client,
		memories:    memories,
		workspaceID: workspaceID,
		logger:      log.GetDefaultLogger(),
	}
}

// SetLogger replaces the engine's logger.
func (e *Engine) SetLogger(l log.Logger) {
	if l != nil {
		e.logger = l
	}
}

// schemes lists the scopes an edge involving this workspace can live in.
func (e *Engine) schemes() []memory.KeyScheme {
	return []memory.KeyScheme{memory.WorkspaceKeys(e.workspaceID), memory.GlobalKeys()}
}

// edgeScheme picks the scope a new edge belongs to: global iff both
// endpoints are global, otherwise the workspace of a non-global endpoint.
func edgeScheme(from, to *memory.Entry) memory.KeyScheme {
	if from.IsGlobal && to.IsGlobal {
		return memory.GlobalKeys()
	}
	if !from.IsGlobal {
		return memory.WorkspaceKeys(from.WorkspaceID)
	}
	return memory.WorkspaceKeys(to.WorkspaceID)
}

// Create links two memories. Creation is idempotent: an existing edge with
// the same (from, to, type) is returned unchanged.
func (e *Engine) Create(ctx context.Context, fromID, toID string, relType memory.RelationshipType, metadata map[string]string) (*memory.Relationship, error) {
	if !memory.ValidRelationshipType(relType) {
		return nil, memory.Errorf(memory.KindInvalidInput, "unknown relationship type %q", relType)
	}
	if fromID == toID {
		return nil, memory.NewError(memory.KindInvalidInput, "relationship endpoints must differ")
	}

	from, err := e.memories.Get(ctx, fromID)
	if err != nil {
		return nil, err
	}
	if from == nil {
		return nil, memory.Errorf(memory.KindNotFound, "memory %s not found", fromID)
	}
	to, err := e.memories.Get(ctx, toID)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, memory.Errorf(memory.KindNotFound, "memory %s not found", toID)
	}

	// Check-then-insert: under contention two callers may both insert; the
	// duplicate is tolerated by traversal, which dedups by neighbor id.
	existing, err := e.outgoing(ctx, fromID)
	if err != nil {
		return nil, err
	}
	for _, rel := range existing {
		if rel.ToMemoryID == toID && rel.RelationshipType == relType {
			return rel, nil
		}
	}

	rel := &memory.Relationship{
		ID:               uuid.NewString(),
		FromMemoryID:     fromID,
		ToMemoryID:       toID,
		RelationshipType: relType,
		CreatedAt:        time.Now().UTC(),
		Metadata:         metadata,
	}
	ks := edgeScheme(from, to)
	pipe := e.client.Pipeline()
	pipe.HSet(ks.Relationship(rel.ID), relationshipToFields(rel))
	pipe.SAdd(ks.AllRelationships(), rel.ID)
	pipe.SAdd(ks.RelationshipsOut(fromID), rel.ID)
	pipe.SAdd(ks.RelationshipsIn(toID), rel.ID)
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return rel, nil
}

// Delete removes an edge from every index it belongs to. The edge's stored
// scope is wherever its hash is found.
func (e *Engine) Delete(ctx context.Context, relID string) error {
	for _, ks := range e.schemes() {
		fields, err := e.client.HGetAll(ctx, ks.Relationship(relID))
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			continue
		}
		rel, err := fieldsToRelationship(fields)
		if err != nil {
			return err
		}
		pipe := e.client.Pipeline()
		pipe.SRem(ks.AllRelationships(), relID)
		pipe.SRem(ks.RelationshipsOut(rel.FromMemoryID), relID)
		pipe.SRem(ks.RelationshipsIn(rel.ToMemoryID), relID)
		pipe.Del(ks.Relationship(relID))
		return pipe.Exec(ctx)
	}
	return memory.Errorf(memory.KindNotFound, "relationship %s not found", relID)
}

// GetMemoryRelationships returns a memory's outgoing and incoming edges.
func (e *Engine) GetMemoryRelationships(ctx context.Context, memoryID string) (outgoing, incoming []*memory.Relationship, err error) {
	if outgoing, err = e.outgoing(ctx, memoryID); err != nil {
		return nil, nil, err
	}
	if incoming, err = e.incoming(ctx, memoryID); err != nil {
		return nil, nil, err
	}
	return outgoing, incoming, nil
}

// outgoing loads a memory's outgoing edges across both scopes an edge can
// live in. Edge ids that no longer dereference are skipped.
func (e *Engine) outgoing(ctx context.Context, memoryID string) ([]*memory.Relationship, error) {
	return e.collectEdges(ctx, func(ks memory.KeyScheme) string { return ks.RelationshipsOut(memoryID) })
}

func (e *Engine) incoming(ctx context.Context, memoryID string) ([]*memory.Relationship, error) {
	return e.collectEdges(ctx, func(ks memory.KeyScheme) string { return ks.RelationshipsIn(memoryID) })
}

func (e *Engine) collectEdges(ctx context.Context, key func(memory.KeyScheme) string) ([]*memory.Relationship, error) {
	var edges []*memory.Relationship
	seen := make(map[string]bool)
	for _, ks := range e.schemes() {
		ids, err := e.client.SMembers(ctx, key(ks))
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			fields, err := e.client.HGetAll(ctx, ks.Relationship(id))
			if err != nil {
				return nil, err
			}
			if len(fields) == 0 {
				continue
			}
			rel, err := fieldsToRelationship(fields)
			if err != nil {
				e.logger.Error("skipping unreadable relationship: %v", err)
				continue
			}
			edges = append(edges, rel)
		}
	}
	return edges, nil
}

func relationshipToFields(r *memory.Relationship) map[string]string {
	meta := ""
	if len(r.Metadata) > 0 {
		b, _ := json.Marshal(r.Metadata)
		meta = string(b)
	}
	return map[string]string{
		"id":                r.ID,
		"from_memory_id":    r.FromMemoryID,
		"to_memory_id":      r.ToMemoryID,
		"relationship_type": string(r.RelationshipType),
		"created_at":        r.CreatedAt.Format(time.RFC3339Nano),
		"metadata":          meta,
	}
}

func fieldsToRelationship(fields map[string]string) (*memory.Relationship, error) {
	r := &memory.Relationship{
		ID:               fields["id"],
		FromMemoryID:     fields["from_memory_id"],
		ToMemoryID:       fields["to_memory_id"],
		RelationshipType: memory.RelationshipType(fields["relationship_type"]),
	}
	if s := fields["created_at"]; s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, memory.WrapError(memory.KindInternal, "relationship "+r.ID+": bad created_at", err)
		}
		r.CreatedAt = t
	}
	if s := fields["metadata"]; s != "" {
		if err := json.Unmarshal([]byte(s), &r.Metadata); err != nil {
			return nil, memory.WrapError(memory.KindInternal, "relationship "+r.ID+": bad metadata", err)
		}
	}
	return r, nil
}
