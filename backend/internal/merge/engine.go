// Package merge commits accepted proposals into the board graph.
package merge

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"linkboard/backend/internal/graph"
	"linkboard/backend/internal/metrics"
	"linkboard/backend/internal/state"
	apperrors "linkboard/backend/pkg/errors"
	"linkboard/backend/pkg/logger"
)

// Result summarises one commit
type Result struct {
	NodesCreated int `json:"nodes_created"`
	NodesReused  int `json:"nodes_reused"`
	EdgesCreated int `json:"edges_created"`
	EdgesSkipped int `json:"edges_skipped"`
}

// Engine is the only writer of the board graph
type Engine struct {
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewEngine creates a merge engine. m may be nil.
func NewEngine(m *metrics.Metrics) *Engine {
	return &Engine{
		metrics: m,
		logger:  logger.Get(),
	}
}

// Commit writes nodes and edges to store. Callers pass only accepted
// proposals; review state is not consulted here.
//
// Nodes whose label matches, case-insensitively, a stored node or a node
// created earlier in the same batch reuse that node. Edges are written after
// every node and are skipped when an endpoint did not resolve, when both
// endpoints resolve to the same node, or when the store already holds an
// edge with the same source, target and relationship. Committing the same
// batch twice is therefore a no-op the second time.
//
// Failing to list stored labels aborts the commit. Failures on individual
// items are collected and returned together once both passes finish.
func (e *Engine) Commit(ctx context.Context, nodes []state.ProposedNode, edges []state.ProposedEdge, store graph.Store) (*Result, error) {
	existing, err := store.ListNodeLabels(ctx)
	if err != nil {
		return nil, err
	}
	index := graph.NewLabelIndex(existing)

	result := &Result{}
	resolved := make(map[string]string, len(nodes))
	var errs []error

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return result, apperrors.NewCancelled("commit", err)
		}
		if id, ok := index.Lookup(n.Label); ok {
			resolved[n.ProvisionalID] = id
			result.NodesReused++
			continue
		}

		id, err := store.CreateNode(ctx, nodeAttributes(n))
		if err != nil {
			e.logger.Warn("Failed to create node", zap.String("provisional_id", n.ProvisionalID), zap.Error(err))
			errs = append(errs, fmt.Errorf("node %q: %w", n.Label, err))
			continue
		}
		resolved[n.ProvisionalID] = id
		index.Add(n.Label, id)
		result.NodesCreated++
	}

	for _, edge := range edges {
		if err := ctx.Err(); err != nil {
			return result, apperrors.NewCancelled("commit", err)
		}
		source, okSource := resolved[edge.SourceRef]
		target, okTarget := resolved[edge.TargetRef]
		if !okSource || !okTarget || source == target {
			result.EdgesSkipped++
			continue
		}

		exists, err := store.EdgeExists(ctx, source, target, string(edge.Relationship))
		if err != nil {
			e.logger.Warn("Failed to check edge", zap.String("provisional_id", edge.ProvisionalID), zap.Error(err))
			errs = append(errs, fmt.Errorf("edge %s -> %s: %w", edge.SourceLabel, edge.TargetLabel, err))
			continue
		}
		if exists {
			result.EdgesSkipped++
			continue
		}

		if _, err := store.CreateEdge(ctx, source, target, edgeAttributes(edge)); err != nil {
			e.logger.Warn("Failed to create edge", zap.String("provisional_id", edge.ProvisionalID), zap.Error(err))
			errs = append(errs, fmt.Errorf("edge %s -> %s: %w", edge.SourceLabel, edge.TargetLabel, err))
			continue
		}
		result.EdgesCreated++
	}

	e.metrics.RecordMerge(metrics.MergeNodeCreated, result.NodesCreated)
	e.metrics.RecordMerge(metrics.MergeNodeReused, result.NodesReused)
	e.metrics.RecordMerge(metrics.MergeEdgeCreated, result.EdgesCreated)
	e.metrics.RecordMerge(metrics.MergeEdgeSkipped, result.EdgesSkipped)
	e.metrics.RecordMerge(metrics.MergeFailed, len(errs))

	e.logger.Info("Merge finished",
		zap.Int("nodes_created", result.NodesCreated),
		zap.Int("nodes_reused", result.NodesReused),
		zap.Int("edges_created", result.EdgesCreated),
		zap.Int("edges_skipped", result.EdgesSkipped),
		zap.Int("failures", len(errs)),
	)

	if len(errs) > 0 {
		return result, apperrors.NewGraphQueryFailed("commit", errors.Join(errs...))
	}
	return result, nil
}

func nodeAttributes(n state.ProposedNode) graph.NodeAttributes {
	return graph.NodeAttributes{
		Label:            n.Label,
		NodeType:         string(n.NodeType),
		Metadata:         n.Metadata,
		Role:             n.Role,
		Aliases:          n.Aliases,
		Status:           n.Status,
		Location:         n.Location,
		DOB:              n.DOB,
		EventType:        n.EventType,
		EventDate:        n.EventDate,
		EventLocation:    n.EventLocation,
		EventDescription: n.EventDescription,
	}
}

func edgeAttributes(e state.ProposedEdge) graph.EdgeAttributes {
	return graph.EdgeAttributes{
		Label:        e.DisplayLabel(),
		Relationship: string(e.Relationship),
		CustomLabel:  e.CustomLabel,
		Description:  e.Description,
		Confidence:   string(e.Confidence),
		Direction:    string(e.Direction),
		Weight:       e.Weight,
		StartDate:    e.StartDate,
		EndDate:      e.EndDate,
		EventDate:    e.EventDate,
		Location:     e.Location,
	}
}
