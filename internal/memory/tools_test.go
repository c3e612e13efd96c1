package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memchat/internal/tools"
)

func toolkit(t *testing.T) (*tools.Registry, *Store) {
	t.Helper()
	store := openTestStore(t, 100)
	reg := tools.NewRegistry()
	require.NoError(t, RegisterTools(reg, store))
	return reg, store
}

func run(t *testing.T, reg *tools.Registry, name string, args map[string]interface{}) (string, error) {
	t.Helper()
	tool, err := reg.Get(name)
	require.NoError(t, err)
	return tool.Execute(context.Background(), args)
}

func TestAddMemoryTool(t *testing.T) {
	reg, store := toolkit(t)

	out, err := run(t, reg, "add_memory", map[string]interface{}{
		"content":    "User's name is Matt",
		"kind":       "fact",
		"tags":       "identity, name",
		"importance": 0.9,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "stored memory")

	got := store.Search(Query{Text: "Matt"})
	require.Len(t, got, 1)
	assert.Equal(t, KindFact, got[0].Kind)
	assert.Equal(t, []string{"identity", "name"}, got[0].Tags)
	assert.Equal(t, 0.9, got[0].Importance)
}

func TestAddMemoryToolDefaults(t *testing.T) {
	reg, store := toolkit(t)
	_, err := run(t, reg, "add_memory", map[string]interface{}{"content": "plain"})
	require.NoError(t, err)

	got := store.Search(Query{Text: "plain"})
	require.Len(t, got, 1)
	assert.Equal(t, KindNote, got[0].Kind)
	assert.Equal(t, 0.5, got[0].Importance)
}

func TestSearchMemoriesTool(t *testing.T) {
	reg, store := toolkit(t)
	store.Add(KindFact, "User's name is Matt", nil, 0.9)
	store.Add(KindNote, "Unrelated note", nil, 0.2)

	out, err := run(t, reg, "search_memories", map[string]interface{}{"query": "name"})
	require.NoError(t, err)
	assert.Contains(t, out, "1 matching")
	assert.Contains(t, out, "Matt")

	out, err = run(t, reg, "search_memories", map[string]interface{}{"query": "nothing here"})
	require.NoError(t, err)
	assert.Equal(t, "no matching memories", out)

	_, err = run(t, reg, "search_memories", map[string]interface{}{"kind": "gossip"})
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestGetUpdateDeleteTools(t *testing.T) {
	reg, store := toolkit(t)
	e, err := store.Add(KindFact, "v1", nil, 0.5)
	require.NoError(t, err)

	out, err := run(t, reg, "get_memory", map[string]interface{}{"id": e.ID})
	require.NoError(t, err)
	assert.Contains(t, out, "v1")

	out, err = run(t, reg, "update_memory", map[string]interface{}{
		"id":      e.ID,
		"content": "v2",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "v2")

	_, err = run(t, reg, "delete_memory", map[string]interface{}{"id": e.ID})
	require.NoError(t, err)
	_, err = run(t, reg, "get_memory", map[string]interface{}{"id": e.ID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStatsTool(t *testing.T) {
	reg, store := toolkit(t)
	store.Add(KindFact, "x", nil, 0.5)

	out, err := run(t, reg, "memory_stats", nil)
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 1`)
	assert.True(t, strings.Contains(out, `"fact": 1`))
}
