package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkboard/backend/pkg/config"
	apperrors "linkboard/backend/pkg/errors"
)

// runStoreContract exercises the behaviour every Store must share
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	alice, err := store.CreateNode(ctx, NodeAttributes{Label: "Alice", NodeType: "Person", Role: "CFO"})
	require.NoError(t, err)
	acme, err := store.CreateNode(ctx, NodeAttributes{Label: "Acme Corp", NodeType: "Organization"})
	require.NoError(t, err)
	_, err = store.CreateNode(ctx, NodeAttributes{Label: "alice", NodeType: "Person"})
	require.NoError(t, err)
	assert.NotEqual(t, alice, acme)

	labels, err := store.ListNodeLabels(ctx)
	require.NoError(t, err)
	require.Len(t, labels, 3)
	assert.Equal(t, NodeLabel{ID: alice, Label: "Alice"}, labels[0], "labels are listed oldest first")

	idx := NewLabelIndex(labels)
	id, ok := idx.Lookup("ALICE ")
	assert.True(t, ok)
	assert.Equal(t, alice, id)

	exists, err := store.EdgeExists(ctx, alice, acme, "Professional")
	require.NoError(t, err)
	assert.False(t, exists)

	edgeID, err := store.CreateEdge(ctx, alice, acme, EdgeAttributes{
		Label:        "employed by",
		Relationship: "Professional",
		CustomLabel:  "employed by",
		Confidence:   "Confirmed",
		Direction:    "directed",
		Weight:       5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, edgeID)

	exists, err = store.EdgeExists(ctx, alice, acme, "Professional")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.EdgeExists(ctx, acme, alice, "Professional")
	require.NoError(t, err)
	assert.False(t, exists, "edge triples are directional")

	exists, err = store.EdgeExists(ctx, alice, acme, "Financial")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.CreateEdge(ctx, alice, "missing-node", EdgeAttributes{Relationship: "Unknown", Confidence: "Probable", Direction: "directed", Weight: 2})
	assert.Error(t, err)

	g, err := store.ReadGraph(ctx)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "CFO", g.Nodes[0].Role)
	assert.Equal(t, alice, g.Edges[0].SourceID)
	assert.Equal(t, acme, g.Edges[0].TargetID)
	assert.Equal(t, 5, g.Edges[0].Weight)
	assert.Equal(t, "employed by", g.Edges[0].Label)
	assert.False(t, g.Nodes[0].CreatedAt.IsZero())
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestClear(t *testing.T) {
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "clear.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	for name, store := range map[string]Backend{"memory": NewMemoryStore(), "sqlite": sqlite} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := store.CreateNode(ctx, NodeAttributes{Label: "A", NodeType: "Person"})
			require.NoError(t, err)
			b, err := store.CreateNode(ctx, NodeAttributes{Label: "B", NodeType: "Person"})
			require.NoError(t, err)
			_, err = store.CreateEdge(ctx, a, b, EdgeAttributes{Relationship: "Social", Confidence: "Probable", Direction: "mutual", Weight: 2})
			require.NoError(t, err)

			require.NoError(t, store.Clear(ctx))
			g, err := store.ReadGraph(ctx)
			require.NoError(t, err)
			assert.Empty(t, g.Nodes)
			assert.Empty(t, g.Edges)
		})
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "board.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	runStoreContract(t, store)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.db")
	ctx := context.Background()

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = store.CreateNode(ctx, NodeAttributes{Label: "Persisted", NodeType: "Person"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	labels, err := store.ListNodeLabels(ctx)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "Persisted", labels[0].Label)
}

func TestLabelIndex_FirstWins(t *testing.T) {
	idx := NewLabelIndex([]NodeLabel{
		{ID: "1", Label: "Bob"},
		{ID: "2", Label: " BOB "},
		{ID: "3", Label: ""},
	})
	id, ok := idx.Lookup("bob")
	assert.True(t, ok)
	assert.Equal(t, "1", id)

	idx.Add("bob", "4")
	id, _ = idx.Lookup("Bob")
	assert.Equal(t, "1", id)

	idx.Add("Carol", "5")
	id, ok = idx.Lookup("carol")
	assert.True(t, ok)
	assert.Equal(t, "5", id)

	_, ok = idx.Lookup("")
	assert.False(t, ok)
}

// TestRepository requires a running Neo4j instance
// Set NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD environment variables
func TestRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set")
	}

	ctx := context.Background()
	driver, err := Connect(ctx, uri, os.Getenv("NEO4J_USER"), os.Getenv("NEO4J_PASSWORD"))
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver, os.Getenv("NEO4J_DATABASE"))

	require.NoError(t, repo.Clear(ctx))
	defer repo.Clear(ctx)

	require.NoError(t, repo.EnsureSchema(ctx))
	runStoreContract(t, repo)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, &config.Config{GraphBackend: config.GraphBackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	assert.NoError(t, store.Close())

	store, err = Open(ctx, &config.Config{GraphBackend: config.GraphBackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	assert.NoError(t, store.Close())

	_, err = Open(ctx, &config.Config{GraphBackend: "dgraph"})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
}
