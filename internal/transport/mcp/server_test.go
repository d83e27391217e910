package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/internal/service/memory"
	"github.com/sandevgo/mnemo/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "mnemo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := memory.NewService(store, nil, memory.DefaultOptions())
	return NewServer(svc, &bytes.Buffer{}, &bytes.Buffer{}), store
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func TestStoreAndRecall(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	res, err := s.HandleStore(ctx, call("store", map[string]any{
		"type":         "correction",
		"intent":       "Never use global mutable singletons in the service layer",
		"relatedFiles": []any{"internal/service/*.go"},
		"importance":   0.8,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	stored := decode(t, res)
	assert.Equal(t, true, stored["stored"])
	assert.Equal(t, true, stored["created"])

	res, err = s.HandleRecall(ctx, call("recall", map[string]any{"query": "singleton"}))
	require.NoError(t, err)
	out := decode(t, res)
	memories, ok := out["memories"].([]any)
	require.True(t, ok)
	require.Len(t, memories, 1)
	first := memories[0].(map[string]any)
	assert.Equal(t, stored["id"], first["id"])
	assert.Equal(t, "correction", first["type"])
	assert.Contains(t, first["matchMethod"], "keyword")
}

func TestStore_RejectionAndValidation(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	res, err := s.HandleStore(ctx, call("store", map[string]any{"type": "insight", "intent": "fix it"}))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, false, out["stored"])

	res, err = s.HandleStore(ctx, call("store", map[string]any{"type": "opinion", "intent": "Prefer table driven tests everywhere"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestUpdateAndDeactivate(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	res, err := s.HandleStore(ctx, call("store", map[string]any{"type": "decision", "intent": "Adopt goose for schema migrations"}))
	require.NoError(t, err)
	id := decode(t, res)["id"].(string)

	res, err = s.HandleUpdate(ctx, call("update", map[string]any{"id": id, "outcome": "worked", "importance": 0.9}))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, res)["updated"])

	u, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "worked", u.Outcome)
	assert.Equal(t, 0.9, u.Importance)
	assert.Equal(t, "Adopt goose for schema migrations", u.Intent)

	res, err = s.HandleUpdate(ctx, call("update", map[string]any{"id": id}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.HandleUpdate(ctx, call("update", map[string]any{"id": "missing", "outcome": "x"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.HandleDeactivate(ctx, call("deactivate", map[string]any{"id": id}))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, res)["deactivated"])

	u, err = store.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, u.IsActive)

	res, err = s.HandleDeactivate(ctx, call("deactivate", map[string]any{"id": "missing"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestShutdown_FlushesSession(t *testing.T) {
	s, store := newTestServer(t)
	ctx := context.Background()

	_, err := s.HandleStore(ctx, call("store", map[string]any{
		"type":         "decision",
		"intent":       "Sign webhook payloads with HMAC SHA256",
		"relatedFiles": []any{"internal/webhook/sign.go"},
	}))
	require.NoError(t, err)
	_, err = s.HandleRecall(ctx, call("recall", map[string]any{"query": "webhook signatures"}))
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))

	convs, err := store.GetByType(ctx, core.TypeConversation, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, []string{"internal/webhook/sign.go"}, convs[0].RelatedFiles)
}
