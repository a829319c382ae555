package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "linkboard/backend/pkg/errors"
)

// MemoryStore is a process-local board store for development and tests
type MemoryStore struct {
	mu    sync.RWMutex
	nodes []Node
	edges []Edge
	index map[string]int // node id -> position in nodes
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

func (m *MemoryStore) ListNodeLabels(ctx context.Context) ([]NodeLabel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	labels := make([]NodeLabel, 0, len(m.nodes))
	for _, n := range m.nodes {
		labels = append(labels, NodeLabel{ID: n.ID, Label: n.Label})
	}
	return labels, nil
}

func (m *MemoryStore) CreateNode(ctx context.Context, attrs NodeAttributes) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.index[id] = len(m.nodes)
	m.nodes = append(m.nodes, Node{ID: id, NodeAttributes: attrs, CreatedAt: time.Now()})
	return id, nil
}

func (m *MemoryStore) CreateEdge(ctx context.Context, sourceID, targetID string, attrs EdgeAttributes) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.index[sourceID]; !ok {
		return "", apperrors.NewGraphQueryFailed("create edge", fmt.Errorf("source node not found: %s", sourceID))
	}
	if _, ok := m.index[targetID]; !ok {
		return "", apperrors.NewGraphQueryFailed("create edge", fmt.Errorf("target node not found: %s", targetID))
	}

	id := uuid.New().String()
	m.edges = append(m.edges, Edge{
		ID:             id,
		SourceID:       sourceID,
		TargetID:       targetID,
		EdgeAttributes: attrs,
		CreatedAt:      time.Now(),
	})
	return id, nil
}

func (m *MemoryStore) EdgeExists(ctx context.Context, sourceID, targetID, relationship string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.edges {
		if e.SourceID == sourceID && e.TargetID == targetID && e.Relationship == relationship {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ReadGraph(ctx context.Context) (*Graph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &Graph{
		Nodes: append([]Node{}, m.nodes...),
		Edges: append([]Edge{}, m.edges...),
	}, nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

// Clear removes every node and edge
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes = nil
	m.edges = nil
	m.index = make(map[string]int)
	return nil
}
