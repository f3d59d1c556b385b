package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/memograph/memory"
)

func TestSessionLifecycle(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	sess, err := store.CreateSession(ctx, "feature planning")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.SessionID)
	assert.Equal(t, "feature planning", sess.SessionName)
	assert.Zero(t, sess.MemoryCount)

	e1 := mustCreate(t, store, memory.CreateRequest{
		Content: "first decision", ContextType: memory.TypeDecision,
		Importance: 5, SessionID: sess.SessionID,
	})
	e2 := mustCreate(t, store, memory.CreateRequest{
		Content: "second decision", ContextType: memory.TypeDecision,
		Importance: 5, SessionID: sess.SessionID,
	})

	got, err := store.GetSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MemoryCount)
	assert.Equal(t, []string{e1.ID, e2.ID}, got.MemoryIDs)

	require.NoError(t, store.SetSessionSummary(ctx, sess.SessionID, "planned the feature"))
	got, err = store.GetSession(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "planned the feature", got.Summary)
}

func TestSessionImplicitCreation(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	mustCreate(t, store, memory.CreateRequest{
		Content: "note", ContextType: memory.TypeInformation,
		Importance: 3, SessionID: "adhoc-session",
	})

	got, err := store.GetSession(ctx, "adhoc-session")
	require.NoError(t, err)
	assert.Equal(t, "adhoc-session", got.SessionName)
	assert.Equal(t, 1, got.MemoryCount)
}

func TestGlobalMemorySkipsSessionBookkeeping(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	mustCreate(t, store, memory.CreateRequest{
		Content: "global with session id", ContextType: memory.TypeInformation,
		Importance: 3, SessionID: "never-created", IsGlobal: true,
	})

	_, err := store.GetSession(ctx, "never-created")
	assert.Error(t, err)
	assert.True(t, memory.IsNotFound(err))
}

func TestListSessionsNewestFirst(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	a, err := store.CreateSession(ctx, "older")
	require.NoError(t, err)
	b, err := store.CreateSession(ctx, "newer")
	require.NoError(t, err)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	ids := []string{sessions[0].SessionID, sessions[1].SessionID}
	assert.ElementsMatch(t, []string{a.SessionID, b.SessionID}, ids)
	assert.GreaterOrEqual(t, sessions[0].CreatedAt, sessions[1].CreatedAt)
}

func TestGetSessionNotFound(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	_, err := store.GetSession(context.Background(), "ghost")
	assert.Error(t, err)
	assert.True(t, memory.IsNotFound(err))
}

func TestSummaryStats(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeHybrid)
	ctx := context.Background()

	mustCreate(t, store, memory.CreateRequest{
		Content: "a decision", ContextType: memory.TypeDecision,
		Importance: 9, SessionID: "s1", Category: "infra",
	})
	mustCreate(t, store, memory.CreateRequest{
		Content: "an info", ContextType: memory.TypeInformation, Importance: 3,
	})
	mustCreate(t, store, memory.CreateRequest{
		Content: "a global", ContextType: memory.TypeDecision, Importance: 8, IsGlobal: true,
	})

	stats, err := store.SummaryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalMemories)
	assert.Equal(t, int64(2), stats.ByType[memory.TypeDecision])
	assert.Equal(t, int64(1), stats.ByType[memory.TypeInformation])
	assert.Equal(t, int64(2), stats.ImportantCount)
	assert.Equal(t, int64(1), stats.SessionCount)
	assert.Equal(t, int64(1), stats.CategoryCount)
}
