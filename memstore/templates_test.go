package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/memograph/memory"
)

func TestBuiltinTemplates(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	tpl, err := store.GetTemplate(ctx, "builtin-decision")
	require.NoError(t, err)
	assert.True(t, tpl.IsBuiltin)
	assert.Equal(t, memory.TypeDecision, tpl.ContextType)

	templates, err := store.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 4)
	// Built-ins come first, sorted by id.
	assert.Equal(t, "builtin-code-pattern", templates[0].TemplateID)
	assert.Equal(t, "builtin-requirement", templates[3].TemplateID)

	err = store.DeleteTemplate(ctx, "builtin-decision")
	assert.Error(t, err)
	assert.True(t, memory.IsConflict(err))
}

func TestCreateAndDeleteUserTemplate(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	tpl, err := store.CreateTemplate(ctx, TemplateRequest{
		Name:              "Incident report",
		ContextType:       memory.TypeError,
		ContentTemplate:   "Incident: {{title}}\nImpact: {{impact}}",
		DefaultTags:       []string{"incident"},
		DefaultImportance: 9,
	})
	require.NoError(t, err)
	assert.False(t, tpl.IsBuiltin)

	got, err := store.GetTemplate(ctx, tpl.TemplateID)
	require.NoError(t, err)
	assert.Equal(t, "Incident report", got.Name)

	templates, err := store.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, templates, 5)

	require.NoError(t, store.DeleteTemplate(ctx, tpl.TemplateID))
	_, err = store.GetTemplate(ctx, tpl.TemplateID)
	assert.True(t, memory.IsNotFound(err))

	err = store.DeleteTemplate(ctx, tpl.TemplateID)
	assert.True(t, memory.IsNotFound(err))
}

func TestCreateTemplateValidation(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	cases := []TemplateRequest{
		{Name: "", ContextType: memory.TypeDecision, ContentTemplate: "x", DefaultImportance: 5},
		{Name: "n", ContextType: memory.TypeDecision, ContentTemplate: "", DefaultImportance: 5},
		{Name: "n", ContextType: memory.ContextType("bogus"), ContentTemplate: "x", DefaultImportance: 5},
		{Name: "n", ContextType: memory.TypeDecision, ContentTemplate: "x", DefaultImportance: 0},
	}
	for i, req := range cases {
		_, err := store.CreateTemplate(ctx, req)
		assert.True(t, memory.IsInvalidInput(err), "case %d", i)
	}
}

func TestCreateFromTemplate(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	e, err := store.CreateFromTemplate(ctx, "builtin-decision", map[string]string{
		"decision":  "adopt sorted sets for timelines",
		"rationale": "range queries by timestamp",
	}, InstantiateOptions{ExtraTags: []string{"storage"}})
	require.NoError(t, err)

	assert.Equal(t, "Decision: adopt sorted sets for timelines\nRationale: range queries by timestamp", e.Content)
	assert.Equal(t, memory.TypeDecision, e.ContextType)
	assert.Equal(t, 7, e.Importance)
	assert.ElementsMatch(t, []string{"decision", "storage"}, e.Tags)
}

func TestCreateFromTemplateMissingVariables(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	_, err := store.CreateFromTemplate(ctx, "builtin-error-pattern", map[string]string{
		"error": "timeout",
	}, InstantiateOptions{})
	require.Error(t, err)
	assert.True(t, memory.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "missing template variables")
}

func TestCreateFromTemplateImportanceOverride(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	ctx := context.Background()

	e, err := store.CreateFromTemplate(ctx, "builtin-requirement", map[string]string{
		"requirement": "all writes pipelined",
	}, InstantiateOptions{ImportanceOverride: intPtr(10)})
	require.NoError(t, err)
	assert.Equal(t, 10, e.Importance)
}

func TestCreateFromTemplateUnknownTemplate(t *testing.T) {
	store, _ := newTestStore(t, memory.ModeIsolated)
	_, err := store.CreateFromTemplate(context.Background(), "nope", nil, InstantiateOptions{})
	assert.True(t, memory.IsNotFound(err))
}
