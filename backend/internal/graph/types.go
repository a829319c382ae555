package graph

import (
	"context"
	"time"
)

// ============================================================================
// Board Graph Types
// ============================================================================

// Store is the persistent board graph. The merge engine is its only writer.
type Store interface {
	// ListNodeLabels returns every node's label and identifier, oldest first
	ListNodeLabels(ctx context.Context) ([]NodeLabel, error)
	// CreateNode stores a new node and returns its store identifier
	CreateNode(ctx context.Context, attrs NodeAttributes) (string, error)
	// CreateEdge stores a new edge between two existing nodes and returns its identifier
	CreateEdge(ctx context.Context, sourceID, targetID string, attrs EdgeAttributes) (string, error)
	// EdgeExists reports whether an edge with the same source, target and relationship is stored
	EdgeExists(ctx context.Context, sourceID, targetID, relationship string) (bool, error)
	// ReadGraph returns every node and edge
	ReadGraph(ctx context.Context) (*Graph, error)
}

// NodeLabel pairs a stored node's identifier with its label
type NodeLabel struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// NodeAttributes are the stored properties of an entity
type NodeAttributes struct {
	Label            string `json:"label"`
	NodeType         string `json:"node_type"`
	Metadata         string `json:"metadata,omitempty"`
	Role             string `json:"role,omitempty"`
	Aliases          string `json:"aliases,omitempty"`
	Status           string `json:"status,omitempty"`
	Location         string `json:"location,omitempty"`
	DOB              string `json:"dob,omitempty"`
	EventType        string `json:"event_type,omitempty"`
	EventDate        string `json:"event_date,omitempty"`
	EventLocation    string `json:"event_location,omitempty"`
	EventDescription string `json:"event_description,omitempty"`
}

// EdgeAttributes are the stored properties of a relationship. Label is the
// text drawn on the edge.
type EdgeAttributes struct {
	Label        string `json:"label"`
	Relationship string `json:"relationship"`
	CustomLabel  string `json:"custom_label,omitempty"`
	Description  string `json:"description,omitempty"`
	Confidence   string `json:"confidence"`
	Direction    string `json:"direction"`
	Weight       int    `json:"weight"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	EventDate    string `json:"event_date,omitempty"`
	Location     string `json:"location,omitempty"`
}

// Node is a stored entity
type Node struct {
	ID string `json:"id"`
	NodeAttributes
	CreatedAt time.Time `json:"created_at"`
}

// Edge is a stored relationship
type Edge struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	EdgeAttributes
	CreatedAt time.Time `json:"created_at"`
}

// Graph is a full read of the board
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}
