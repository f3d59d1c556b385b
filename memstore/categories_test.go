package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/memograph/memory"
)

func TestSetCategoryMovesMembership(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	e := mustCreate(t, store, memory.CreateRequest{
		Content: "categorized", ContextType: memory.TypeInformation,
		Importance: 3, Category: "infra",
	})

	infra, err := store.GetByCategory(ctx, "infra", 10)
	require.NoError(t, err)
	require.Len(t, infra, 1)
	assert.Equal(t, e.ID, infra[0].ID)

	updated, err := store.SetCategory(ctx, e.ID, "security")
	require.NoError(t, err)
	assert.Equal(t, "security", updated.Category)

	infra, err = store.GetByCategory(ctx, "infra", 10)
	require.NoError(t, err)
	assert.Empty(t, infra)
	sec, err := store.GetByCategory(ctx, "security", 10)
	require.NoError(t, err)
	require.Len(t, sec, 1)
	assert.Equal(t, e.ID, sec[0].ID)
}

func TestClearCategory(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	e := mustCreate(t, store, memory.CreateRequest{
		Content: "uncategorize me", ContextType: memory.TypeInformation,
		Importance: 3, Category: "temp",
	})

	updated, err := store.SetCategory(ctx, e.ID, "")
	require.NoError(t, err)
	assert.Empty(t, updated.Category)

	entries, err := store.GetByCategory(ctx, "temp", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The category name stays listed with a zero count.
	cats, err := store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "temp", cats[0].Name)
	assert.Zero(t, cats[0].MemoryCount)
}

func TestListCategoriesCountsAndOrder(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	mustCreate(t, store, memory.CreateRequest{
		Content: "a", ContextType: memory.TypeInformation, Importance: 3, Category: "one",
	})
	mustCreate(t, store, memory.CreateRequest{
		Content: "b", ContextType: memory.TypeInformation, Importance: 3, Category: "two",
	})
	mustCreate(t, store, memory.CreateRequest{
		Content: "c", ContextType: memory.TypeInformation, Importance: 3, Category: "two",
	})

	cats, err := store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)

	counts := map[string]int64{}
	for _, c := range cats {
		counts[c.Name] = c.MemoryCount
	}
	assert.Equal(t, int64(1), counts["one"])
	assert.Equal(t, int64(2), counts["two"])
}

func TestSetCategoryNotFound(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	_, err := store.SetCategory(context.Background(), "ghost", "x")
	assert.Error(t, err)
	assert.True(t, memory.IsNotFound(err))
}
