package version

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/memograph/memory"
	"github.com/smallnest/memograph/storage"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := storage.NewRedisClientFromAddr(mr.Addr())
	t.Cleanup(func() { client.Close() })
	return NewEngine(client)
}

func testEntry(id string, global bool) *memory.Entry {
	e := &memory.Entry{
		ID:          id,
		Content:     "initial content",
		ContextType: memory.TypeInformation,
		Importance:  5,
		Tags:        []string{"t1"},
		Summary:     "initial content",
		Timestamp:   memory.NowMillis(),
		IsGlobal:    global,
	}
	if !global {
		e.WorkspaceID = memory.WorkspaceID("/home/dev/project")
	}
	return e
}

func TestAppendAndHistory(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	e := testEntry("m1", false)

	v1, err := engine.Append(ctx, e, CreatedByUser, "Memory updated")
	require.NoError(t, err)
	assert.NotEmpty(t, v1.VersionID)
	assert.Equal(t, "m1", v1.MemoryID)
	assert.Equal(t, "initial content", v1.Content)
	assert.Equal(t, CreatedByUser, v1.CreatedBy)

	e.Content = "second content"
	v2, err := engine.Append(ctx, e, CreatedBySystem, "automatic snapshot")
	require.NoError(t, err)

	history, err := engine.History(ctx, e)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Newest first.
	assert.Equal(t, v2.VersionID, history[0].VersionID)
	assert.Equal(t, "second content", history[0].Content)
	assert.Equal(t, v1.VersionID, history[1].VersionID)
	assert.Equal(t, []string{"t1"}, history[1].Tags)
}

func TestHistoryCapped(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	e := testEntry("m1", false)

	for i := 0; i < MaxVersions+5; i++ {
		e.Content = fmt.Sprintf("revision %d", i)
		_, err := engine.Append(ctx, e, CreatedByUser, "edit")
		require.NoError(t, err)
	}

	history, err := engine.History(ctx, e)
	require.NoError(t, err)
	require.Len(t, history, MaxVersions)
	// The oldest five revisions were pruned.
	assert.Equal(t, fmt.Sprintf("revision %d", MaxVersions+4), history[0].Content)
	assert.Equal(t, "revision 5", history[len(history)-1].Content)
}

func TestGetVersion(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	e := testEntry("m1", false)

	v, err := engine.Append(ctx, e, CreatedByUser, "edit")
	require.NoError(t, err)

	got, err := engine.GetVersion(ctx, e, v.VersionID)
	require.NoError(t, err)
	assert.Equal(t, v.VersionID, got.VersionID)
	assert.Equal(t, "initial content", got.Content)

	_, err = engine.GetVersion(ctx, e, "no-such-version")
	assert.True(t, memory.IsNotFound(err))
}

func TestGlobalEntryUsesGlobalScheme(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	g := testEntry("g1", true)

	v, err := engine.Append(ctx, g, CreatedByUser, "edit")
	require.NoError(t, err)

	history, err := engine.History(ctx, g)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, v.VersionID, history[0].VersionID)
}

func TestHistoryAfterScopeFlip(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	e := testEntry("m1", false)

	_, err := engine.Append(ctx, e, CreatedByUser, "edit")
	require.NoError(t, err)

	// A workspace entry whose log was written under the global scheme (its
	// scope flipped after the snapshots) is still found through the mirror
	// lookup.
	g := testEntry("m2", true)
	_, err = engine.Append(ctx, g, CreatedByUser, "edit")
	require.NoError(t, err)

	local := testEntry("m2", false)
	history, err := engine.History(ctx, local)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

type stubUpdater struct {
	entry *memory.Entry
}

func (s *stubUpdater) Get(ctx context.Context, id string) (*memory.Entry, error) {
	if s.entry != nil && s.entry.ID == id {
		return s.entry, nil
	}
	return nil, nil
}

func (s *stubUpdater) ApplyUpdate(ctx context.Context, id string, req memory.UpdateRequest, createdBy, reason string) (*memory.Entry, error) {
	if req.Content != nil {
		s.entry.Content = *req.Content
	}
	if req.ContextType != nil {
		s.entry.ContextType = *req.ContextType
	}
	if req.Importance != nil {
		s.entry.Importance = *req.Importance
	}
	if req.Tags != nil {
		s.entry.Tags = req.Tags
	}
	if req.Summary != nil {
		s.entry.Summary = *req.Summary
	}
	return s.entry, nil
}

func TestRollback(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()
	e := testEntry("m1", false)

	v, err := engine.Append(ctx, e, CreatedByUser, "edit")
	require.NoError(t, err)

	e.Content = "changed since"
	e.Importance = 9
	up := &stubUpdater{entry: e}

	restored, err := engine.Rollback(ctx, up, "m1", v.VersionID, true)
	require.NoError(t, err)
	assert.Equal(t, "initial content", restored.Content)
	assert.Equal(t, 5, restored.Importance)

	// Rollback appends the post-rollback snapshot itself; the pre-rollback
	// one is the updater's responsibility and the stub skips it.
	history, err := engine.History(ctx, e)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Rolled back to "+v.VersionID, history[0].ChangeReason)
	assert.Equal(t, CreatedBySystem, history[0].CreatedBy)
}

func TestRollbackNotFound(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	up := &stubUpdater{}
	_, err := engine.Rollback(ctx, up, "ghost", "v1", false)
	assert.True(t, memory.IsNotFound(err))

	e := testEntry("m1", false)
	up.entry = e
	_, err = engine.Rollback(ctx, up, "m1", "no-such-version", false)
	assert.True(t, memory.IsNotFound(err))
}
