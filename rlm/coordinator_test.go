package rlm

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/memograph/memory"
	"github.com/smallnest/memograph/storage"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := storage.NewRedisClientFromAddr(mr.Addr())
	t.Cleanup(func() { client.Close() })
	return NewCoordinator(client, memory.WorkspaceID("/home/dev/project"))
}

func TestDetectStrategy(t *testing.T) {
	cases := []struct {
		task   string
		tokens int
		want   memory.Strategy
	}{
		{"find all database errors", 100, memory.StrategyFilter},
		{"Search the logs", 100, memory.StrategyFilter},
		{"extract stack traces", 100, memory.StrategyFilter},
		{"list every warning", 100, memory.StrategyFilter},
		{"summarize the incident", 100, memory.StrategyAggregate},
		{"combine the reports", 100, memory.StrategyAggregate},
		{"give an overview", 100, memory.StrategyAggregate},
		{"analyze the codebase", 100, memory.StrategyRecursive},
		{"process this corpus", 60000, memory.StrategyRecursive},
		{"translate the document", 100, memory.StrategyChunk},
		// Filter keywords win over size.
		{"find the regression", 60000, memory.StrategyFilter},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DetectStrategy(tc.task, tc.tokens), "task %q", tc.task)
	}
}

func TestCreateChain(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	chain, err := coord.CreateChain(ctx, "translate the document", strings.Repeat("x", 10), 0, "")
	require.NoError(t, err)
	assert.NotEmpty(t, chain.ChainID)
	assert.Equal(t, memory.ChainActive, chain.Status)
	assert.Equal(t, memory.StrategyChunk, chain.Strategy)
	assert.Equal(t, 3, chain.EstimatedTokens) // ceil(10/4)
	assert.Equal(t, 0, chain.Depth)
	assert.NotEmpty(t, chain.ContextRef)

	got, err := coord.GetChain(ctx, chain.ChainID)
	require.NoError(t, err)
	assert.Equal(t, chain.ChainID, got.ChainID)
	assert.Equal(t, "translate the document", got.OriginalTask)

	active, err := coord.ListChains(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	_, err = coord.CreateChain(ctx, "", "ctx", 0, "")
	assert.True(t, memory.IsInvalidInput(err))
}

func TestCreateChainDepth(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	root, err := coord.CreateChain(ctx, "translate part one", "ctx", 2, "")
	require.NoError(t, err)

	child, err := coord.CreateChain(ctx, "translate part two", "ctx", 2, root.ChainID)
	require.NoError(t, err)
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, root.ChainID, child.ParentChainID)

	grandchild, err := coord.CreateChain(ctx, "translate part three", "ctx", 2, child.ChainID)
	require.NoError(t, err)
	assert.Equal(t, 2, grandchild.Depth)

	_, err = coord.CreateChain(ctx, "too deep", "ctx", 2, grandchild.ChainID)
	assert.True(t, memory.IsInvalidInput(err))

	_, err = coord.CreateChain(ctx, "orphan", "ctx", 2, "no-such-chain")
	assert.True(t, memory.IsNotFound(err))
}

func TestDecomposeAndListSubtasks(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	chain, err := coord.CreateChain(ctx, "translate the document", "ctx", 0, "")
	require.NoError(t, err)

	specs := []SubtaskSpec{
		{Description: "chapter one", Query: "ch1"},
		{Description: "chapter two"},
		{Description: "chapter three"},
	}
	subtasks, err := coord.Decompose(ctx, chain.ChainID, specs)
	require.NoError(t, err)
	require.Len(t, subtasks, 3)

	listed, err := coord.ListSubtasks(ctx, chain.ChainID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, st := range listed {
		assert.Equal(t, i, st.Order)
		assert.Equal(t, specs[i].Description, st.Description)
		assert.Equal(t, memory.SubtaskPending, st.Status)
	}
	assert.Equal(t, "ch1", listed[0].Query)

	_, err = coord.Decompose(ctx, chain.ChainID, nil)
	assert.True(t, memory.IsInvalidInput(err))
	_, err = coord.Decompose(ctx, "no-such-chain", specs)
	assert.True(t, memory.IsNotFound(err))
}

func TestUpdateSubtaskResult(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	chain, _ := coord.CreateChain(ctx, "translate", "ctx", 0, "")
	subtasks, err := coord.Decompose(ctx, chain.ChainID, []SubtaskSpec{{Description: "part"}})
	require.NoError(t, err)
	st := subtasks[0]

	// Empty status defaults to completed and stamps CompletedAt.
	updated, err := coord.UpdateSubtaskResult(ctx, chain.ChainID, st.ID, SubtaskResult{
		Result:     "done",
		TokensUsed: 1200,
		MemoryIDs:  []string{"m1", "m2"},
	})
	require.NoError(t, err)
	assert.Equal(t, memory.SubtaskCompleted, updated.Status)
	assert.Equal(t, "done", updated.Result)
	assert.Equal(t, 1200, updated.TokensUsed)
	assert.Equal(t, []string{"m1", "m2"}, updated.MemoryIDs)
	assert.Greater(t, updated.CompletedAt, int64(0))

	// A non-terminal status leaves CompletedAt unset.
	updated, err = coord.UpdateSubtaskResult(ctx, chain.ChainID, st.ID, SubtaskResult{
		Status: memory.SubtaskInProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, memory.SubtaskInProgress, updated.Status)
	assert.Equal(t, int64(0), updated.CompletedAt)

	_, err = coord.UpdateSubtaskResult(ctx, chain.ChainID, st.ID, SubtaskResult{Status: "paused"})
	assert.True(t, memory.IsInvalidInput(err))
	_, err = coord.UpdateSubtaskResult(ctx, chain.ChainID, "ghost", SubtaskResult{})
	assert.True(t, memory.IsNotFound(err))
}

func TestGetChainSummary(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	chain, _ := coord.CreateChain(ctx, "translate", "ctx", 0, "")
	subtasks, err := coord.Decompose(ctx, chain.ChainID, []SubtaskSpec{
		{Description: "a"}, {Description: "b"}, {Description: "c"}, {Description: "d"},
	})
	require.NoError(t, err)

	// Nothing completed yet: the fallback per-subtask estimate applies.
	sum, err := coord.GetChainSummary(ctx, chain.ChainID)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.SubtasksTotal)
	assert.Equal(t, 4, sum.Pending)
	assert.Equal(t, 4*fallbackAvgSubtaskTokens, sum.EstimatedTokensRemaining)

	_, err = coord.UpdateSubtaskResult(ctx, chain.ChainID, subtasks[0].ID, SubtaskResult{TokensUsed: 1000})
	require.NoError(t, err)
	_, err = coord.UpdateSubtaskResult(ctx, chain.ChainID, subtasks[1].ID, SubtaskResult{TokensUsed: 3000})
	require.NoError(t, err)
	_, err = coord.UpdateSubtaskResult(ctx, chain.ChainID, subtasks[2].ID, SubtaskResult{Status: memory.SubtaskInProgress})
	require.NoError(t, err)

	sum, err = coord.GetChainSummary(ctx, chain.ChainID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Completed)
	assert.Equal(t, 1, sum.InProgress)
	assert.Equal(t, 1, sum.Pending)
	// Average of completed usage (2000) times the two unfinished subtasks.
	assert.Equal(t, 4000, sum.EstimatedTokensRemaining)
}

func TestStoreAndGetMergedResults(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	chain, _ := coord.CreateChain(ctx, "translate", "ctx", 0, "")
	subtasks, err := coord.Decompose(ctx, chain.ChainID, []SubtaskSpec{{Description: "a"}, {Description: "b"}})
	require.NoError(t, err)
	_, err = coord.UpdateSubtaskResult(ctx, chain.ChainID, subtasks[0].ID, SubtaskResult{Result: "ok"})
	require.NoError(t, err)

	stored, err := coord.StoreMergedResults(ctx, chain.ChainID, memory.MergedResults{
		AggregatedResult: "combined output",
		Confidence:       0.8,
		SourceCoverage:   0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stored.SubtasksTotal)
	assert.Equal(t, 1, stored.SubtasksCompleted)

	got, err := coord.GetMergedResults(ctx, chain.ChainID)
	require.NoError(t, err)
	assert.Equal(t, "combined output", got.AggregatedResult)
	assert.Equal(t, 0.8, got.Confidence)
	assert.Equal(t, 0.5, got.SourceCoverage)

	_, err = coord.GetMergedResults(ctx, "no-such-chain")
	assert.True(t, memory.IsNotFound(err))
}

func TestUpdateChainStatus(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	chain, _ := coord.CreateChain(ctx, "translate", "ctx", 0, "")

	_, err := coord.UpdateChainStatus(ctx, chain.ChainID, memory.ChainActive, "")
	assert.True(t, memory.IsInvalidInput(err))

	done, err := coord.UpdateChainStatus(ctx, chain.ChainID, memory.ChainFailed, "model unavailable")
	require.NoError(t, err)
	assert.Equal(t, memory.ChainFailed, done.Status)
	assert.Equal(t, "model unavailable", done.ErrorMessage)
	assert.Greater(t, done.CompletedAt, int64(0))

	// Terminal chains leave the active set but stay listed.
	active, err := coord.ListChains(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := coord.ListChains(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestDeleteChain(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	chain, _ := coord.CreateChain(ctx, "translate", "some context", 0, "")
	_, err := coord.Decompose(ctx, chain.ChainID, []SubtaskSpec{{Description: "a"}})
	require.NoError(t, err)
	_, err = coord.StoreMergedResults(ctx, chain.ChainID, memory.MergedResults{AggregatedResult: "out"})
	require.NoError(t, err)

	require.NoError(t, coord.DeleteChain(ctx, chain.ChainID))

	_, err = coord.GetChain(ctx, chain.ChainID)
	assert.True(t, memory.IsNotFound(err))
	subtasks, err := coord.ListSubtasks(ctx, chain.ChainID)
	require.NoError(t, err)
	assert.Empty(t, subtasks)
	_, err = coord.GetMergedResults(ctx, chain.ChainID)
	assert.True(t, memory.IsNotFound(err))
	all, err := coord.ListChains(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.True(t, memory.IsNotFound(coord.DeleteChain(ctx, chain.ChainID)))
}

func TestInjectSnippet(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	lines := []string{
		"INFO boot complete",
		"ERROR connection refused",
		"INFO heartbeat",
		"error: timeout waiting for db",
		"INFO shutdown",
	}
	chain, err := coord.CreateChain(ctx, "translate", strings.Join(lines, "\n"), 0, "")
	require.NoError(t, err)

	snip, err := coord.InjectSnippet(ctx, chain.ChainID, "error", 100)
	require.NoError(t, err)
	assert.Equal(t, "ERROR connection refused\nerror: timeout waiting for db", snip.Content)
	assert.InDelta(t, 0.4, snip.Relevance, 1e-9)
	assert.False(t, snip.Truncated)
	assert.Equal(t, 14, snip.TokensUsed) // ceil(54/4)
}

func TestInjectSnippetBadPatternFallsBack(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	chain, err := coord.CreateChain(ctx, "translate", "alpha [beta\ngamma", 0, "")
	require.NoError(t, err)

	// "[beta" does not compile as a regexp; substring matching still works.
	snip, err := coord.InjectSnippet(ctx, chain.ChainID, "[beta", 100)
	require.NoError(t, err)
	assert.Equal(t, "alpha [beta", snip.Content)
	assert.InDelta(t, 0.5, snip.Relevance, 1e-9)
}

func TestInjectSnippetBudget(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	// Three matching 20-char lines against a 10-token (40 char) budget: only
	// the first line fits once the joining newline is counted.
	line := strings.Repeat("e", 20)
	chain, err := coord.CreateChain(ctx, "translate", line+"\n"+line+"\n"+line, 0, "")
	require.NoError(t, err)

	snip, err := coord.InjectSnippet(ctx, chain.ChainID, "e+", 10)
	require.NoError(t, err)
	assert.Equal(t, line, snip.Content)
	assert.True(t, snip.Truncated)
	// Every line matched, so relevance is 1.0 even though only one fit.
	assert.InDelta(t, 1.0, snip.Relevance, 1e-9)
}

func TestInjectSnippetNoMatch(t *testing.T) {
	coord := newTestCoordinator(t)
	ctx := context.Background()

	raw := strings.Repeat("q", 100)
	chain, err := coord.CreateChain(ctx, "translate", raw, 0, "")
	require.NoError(t, err)

	// No line matches: the leading budget slice comes back at low relevance.
	snip, err := coord.InjectSnippet(ctx, chain.ChainID, "zzz", 10)
	require.NoError(t, err)
	assert.Equal(t, raw[:40], snip.Content)
	assert.InDelta(t, 0.1, snip.Relevance, 1e-9)
	assert.True(t, snip.Truncated)

	_, err = coord.InjectSnippet(ctx, chain.ChainID, "zzz", 0)
	assert.True(t, memory.IsInvalidInput(err))
	_, err = coord.InjectSnippet(ctx, "no-such-chain", "zzz", 10)
	assert.True(t, memory.IsNotFound(err))
}
