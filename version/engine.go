// Package version keeps an append-only, capped history of every memory's
// mutable fields and drives rollback to an earlier snapshot.
package version

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/memograph/log"
	"github.com/smallnest/memograph/memory"
	"github.com/smallnest/memograph/storage"
)

// MaxVersions is the retention cap per memory: only the most recent entries
// are kept.
const MaxVersions = 50

// Actors recorded in a version's created_by field.
const (
	CreatedByUser   = "user"
	CreatedBySystem = "system"
)

// Updater is the slice of the memory store the rollback path needs. The
// store passes itself in, keeping this package free of a dependency on it.
type Updater interface {
	// Get returns the entry, or (nil, nil) when absent.
	Get(ctx context.Context, id string) (*memory.Entry, error)
	// ApplyUpdate mutates the entry through the normal update path, which
	// snapshots the pre-update state with the given actor and reason.
	ApplyUpdate(ctx context.Context, id string, req memory.UpdateRequest, createdBy, reason string) (*memory.Entry, error)
}

// Engine owns the per-memory version logs.
type Engine struct {
	client storage.Client
}

// NewEngine creates a version engine over the backend client.
func NewEngine(client storage.Client) *Engine {
	return &Engine{client: client}
}

// Append snapshots the entry's current mutable fields into its version log
// and prunes the log to the retention cap.
func (e *Engine) Append(ctx context.Context, entry *memory.Entry, createdBy, reason string) (*memory.Version, error) {
	v := &memory.Version{
		VersionID:    uuid.NewString(),
		MemoryID:     entry.ID,
		Content:      entry.Content,
		ContextType:  entry.ContextType,
		Importance:   entry.Importance,
		Tags:         append([]string{}, entry.Tags...),
		Summary:      entry.Summary,
		CreatedAt:    memory.NowMillis(),
		CreatedBy:    createdBy,
		ChangeReason: reason,
	}

	ks := memory.KeysFor(entry)
	pipe := e.client.Pipeline()
	pipe.HSet(ks.Version(entry.ID, v.VersionID), versionToFields(v))
	// Microsecond score keeps rapid successive snapshots ordered while the
	// stored created_at stays millisecond-resolution.
	pipe.ZAdd(ks.Versions(entry.ID), float64(time.Now().UnixMicro()), v.VersionID)
	pipe.ZRemRangeByRank(ks.Versions(entry.ID), 0, -(MaxVersions + 1))
	if err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// History returns the memory's versions, newest first, at most MaxVersions.
// Version hashes that no longer dereference are skipped.
func (e *Engine) History(ctx context.Context, entry *memory.Entry) ([]*memory.Version, error) {
	ks, ids, err := e.versionIDs(ctx, entry)
	if err != nil {
		return nil, err
	}
	versions := make([]*memory.Version, 0, len(ids))
	for _, id := range ids {
		fields, err := e.client.HGetAll(ctx, ks.Version(entry.ID, id))
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		v, err := fieldsToVersion(fields)
		if err != nil {
			log.Warn("skipping corrupt version %s of memory %s: %v", id, entry.ID, err)
			continue
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// GetVersion loads one snapshot by id.
func (e *Engine) GetVersion(ctx context.Context, entry *memory.Entry, versionID string) (*memory.Version, error) {
	for _, ks := range versionSchemes(entry) {
		fields, err := e.client.HGetAll(ctx, ks.Version(entry.ID, versionID))
		if err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			return fieldsToVersion(fields)
		}
	}
	return nil, memory.Errorf(memory.KindNotFound, "version %s of memory %s not found", versionID, entry.ID)
}

// Rollback restores the memory to the given snapshot. It records two
// versions: the pre-rollback state (through the update path) and the
// post-rollback state. preserveRelationships is accepted for interface
// stability but has no effect; relationships are never modified here.
func (e *Engine) Rollback(ctx context.Context, up Updater, memoryID, versionID string, preserveRelationships bool) (*memory.Entry, error) {
	_ = preserveRelationships

	entry, err := up.Get(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, memory.Errorf(memory.KindNotFound, "memory %s not found", memoryID)
	}

	v, err := e.GetVersion(ctx, entry, versionID)
	if err != nil {
		return nil, err
	}

	tags := v.Tags
	if tags == nil {
		tags = []string{}
	}
	req := memory.UpdateRequest{
		Content:     &v.Content,
		ContextType: &v.ContextType,
		Importance:  &v.Importance,
		Tags:        tags,
		Summary:     &v.Summary,
	}
	updated, err := up.ApplyUpdate(ctx, memoryID, req, CreatedBySystem, "Before rollback to "+versionID)
	if err != nil {
		return nil, err
	}
	if _, err := e.Append(ctx, updated, CreatedBySystem, "Rolled back to "+versionID); err != nil {
		return nil, err
	}
	return updated, nil
}

// versionIDs resolves the scheme actually holding the memory's log. Scope
// conversion moves the log with the entry; the mirror scope is still tried
// second so a log stranded by a partial move stays readable.
func (e *Engine) versionIDs(ctx context.Context, entry *memory.Entry) (memory.KeyScheme, []string, error) {
	schemes := versionSchemes(entry)
	for _, ks := range schemes {
		ids, err := e.client.ZRevRange(ctx, ks.Versions(entry.ID), 0, -1)
		if err != nil {
			return ks, nil, err
		}
		if len(ids) > 0 {
			return ks, ids, nil
		}
	}
	return schemes[0], nil, nil
}

func versionSchemes(entry *memory.Entry) []memory.KeyScheme {
	if entry.IsGlobal {
		return []memory.KeyScheme{memory.GlobalKeys()}
	}
	return []memory.KeyScheme{memory.KeysFor(entry), memory.GlobalKeys()}
}

func versionToFields(v *memory.Version) map[string]string {
	tags, _ := json.Marshal(v.Tags)
	return map[string]string{
		"version_id":    v.VersionID,
		"memory_id":     v.MemoryID,
		"content":       v.Content,
		"context_type":  string(v.ContextType),
		"importance":    strconv.Itoa(v.Importance),
		"tags":          string(tags),
		"summary":       v.Summary,
		"created_at":    strconv.FormatInt(v.CreatedAt, 10),
		"created_by":    v.CreatedBy,
		"change_reason": v.ChangeReason,
	}
}

func fieldsToVersion(fields map[string]string) (*memory.Version, error) {
	v := &memory.Version{
		VersionID:    fields["version_id"],
		MemoryID:     fields["memory_id"],
		Content:      fields["content"],
		ContextType:  memory.ContextType(fields["context_type"]),
		Summary:      fields["summary"],
		CreatedBy:    fields["created_by"],
		ChangeReason: fields["change_reason"],
	}
	if s := fields["importance"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, memory.WrapError(memory.KindInternal, "version "+v.VersionID+": bad importance", err)
		}
		v.Importance = n
	}
	if s := fields["created_at"]; s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, memory.WrapError(memory.KindInternal, "version "+v.VersionID+": bad created_at", err)
		}
		v.CreatedAt = n
	}
	if s := fields["tags"]; s != "" {
		if err := json.Unmarshal([]byte(s), &v.Tags); err != nil {
			return nil, memory.WrapError(memory.KindInternal, "version "+v.VersionID+": bad tags", err)
		}
	}
	return v, nil
}
