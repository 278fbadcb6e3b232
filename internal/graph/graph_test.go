package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertAndGetNode(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	meta := map[string]any{"anomaly_score": 0.7, "file_type": ".py"}
	require.NoError(t, store.UpsertNode(ctx, "/scans/a.py", meta))

	node, err := store.GetNode(ctx, "/scans/a.py")
	require.NoError(t, err)
	assert.Equal(t, "/scans/a.py", node.Path)
	assert.Equal(t, 0.7, node.Metadata["anomaly_score"])
	assert.False(t, node.CreatedAt.IsZero())

	// Upserting the same path replaces metadata, not the row.
	require.NoError(t, store.UpsertNode(ctx, "/scans/a.py", map[string]any{"anomaly_score": 0.1}))
	node2, err := store.GetNode(ctx, "/scans/a.py")
	require.NoError(t, err)
	assert.Equal(t, node.ID, node2.ID)
	assert.Equal(t, 0.1, node2.Metadata["anomaly_score"])
}

func TestGetNodeNotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.GetNode(context.Background(), "/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertAndListEdges(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertEdge(ctx, Edge{
		Source: "/scans", Target: "/scans/a.py", Type: EdgeContains, Weight: 1.0,
	}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{
		Source: "/scans", Target: "/scans/b.py", Type: EdgeContains, Weight: 1.0,
	}))
	require.NoError(t, store.UpsertEdge(ctx, Edge{
		Source: "/scans/a.py", Target: "tag:likely_encrypted", Type: EdgeTagged,
		Weight: 0.9, Metadata: map[string]any{"extractor": "entropy"},
	}))

	edges, err := store.ListEdges(ctx, EdgeFilter{Source: "/scans"})
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	edges, err = store.ListEdges(ctx, EdgeFilter{Type: EdgeTagged})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "entropy", edges[0].Metadata["extractor"])

	// Same (source, target, type) updates weight in place.
	require.NoError(t, store.UpsertEdge(ctx, Edge{
		Source: "/scans/a.py", Target: "tag:likely_encrypted", Type: EdgeTagged, Weight: 0.5,
	}))
	edges, err = store.ListEdges(ctx, EdgeFilter{Type: EdgeTagged})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, 0.5, edges[0].Weight)
}

func TestDeleteNodeRemovesEdges(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertNode(ctx, "/scans/a.py", nil))
	require.NoError(t, store.UpsertEdge(ctx, Edge{
		Source: "/scans", Target: "/scans/a.py", Type: EdgeContains, Weight: 1.0,
	}))

	deleted, err := store.DeleteNode(ctx, "/scans/a.py")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = store.GetNode(ctx, "/scans/a.py")
	assert.ErrorIs(t, err, ErrNotFound)

	edges, err := store.ListEdges(ctx, EdgeFilter{Target: "/scans/a.py"})
	require.NoError(t, err)
	assert.Empty(t, edges)

	deleted, err = store.DeleteNode(ctx, "/scans/a.py")
	require.NoError(t, err)
	assert.False(t, deleted, "second delete finds nothing")
}

func TestStats(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertNode(ctx, "/a", nil))
	require.NoError(t, store.UpsertNode(ctx, "/b", nil))
	require.NoError(t, store.UpsertEdge(ctx, Edge{Source: "/a", Target: "/b", Type: EdgeContains, Weight: 1}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Nodes)
	assert.Equal(t, int64(1), stats.Edges)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "graph.db")

	store, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.UpsertNode(context.Background(), "/a", nil))
	require.NoError(t, store.Close())

	// Reopening applies no pending migrations and keeps data.
	store2, err := Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = store2.Close() }()

	node, err := store2.GetNode(context.Background(), "/a")
	require.NoError(t, err)
	assert.Equal(t, "/a", node.Path)
}
