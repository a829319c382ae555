package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	apperrors "linkboard/backend/pkg/errors"
	"linkboard/backend/pkg/logger"
)

// Repository is the Neo4j-backed board store. Entities are :Entity nodes and
// relationships are :LINK relationships carrying the edge attributes.
type Repository struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewRepository creates a new graph repository. An empty database name uses
// the server default.
func NewRepository(driver neo4j.DriverWithContext, database string) *Repository {
	return &Repository{
		driver:   driver,
		database: database,
		logger:   logger.Get(),
	}
}

// Connect creates a driver and verifies that the server is reachable
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperrors.NewGraphConnectionFailed(uri, err)
	}
	return driver, nil
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

func (r *Repository) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: r.database,
	})
}

// EnsureSchema creates the constraints and indexes the board relies on
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE`,
		`CREATE INDEX entity_label_key IF NOT EXISTS FOR (n:Entity) ON (n.label_key)`,
		`CREATE INDEX link_relationship IF NOT EXISTS FOR ()-[r:LINK]-() ON (r.relationship)`,
	}
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return apperrors.NewGraphQueryFailed("ensure schema", err)
		}
	}

	r.logger.Info("Graph schema ensured", zap.Int("statements", len(statements)))
	return nil
}

// ListNodeLabels returns every entity's id and label, oldest first
func (r *Repository) ListNodeLabels(ctx context.Context) ([]NodeLabel, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (n:Entity)
		RETURN n.id AS id, n.label AS label
		ORDER BY n.created_at, n.id
	`

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed("list node labels", err)
	}

	labels := []NodeLabel{}
	for result.Next(ctx) {
		record := result.Record()
		labels = append(labels, NodeLabel{
			ID:    getStringFromRecord(record, "id"),
			Label: getStringFromRecord(record, "label"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, apperrors.NewGraphQueryFailed("list node labels", err)
	}

	return labels, nil
}

// CreateNode creates a new entity node
func (r *Repository) CreateNode(ctx context.Context, attrs NodeAttributes) (string, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := `
		CREATE (n:Entity {
			id: $id,
			label: $label,
			label_key: $label_key,
			node_type: $node_type,
			metadata: $metadata,
			role: $role,
			aliases: $aliases,
			status: $status,
			location: $location,
			dob: $dob,
			event_type: $event_type,
			event_date: $event_date,
			event_location: $event_location,
			event_description: $event_description,
			created_at: datetime()
		})
		RETURN n.id AS id
	`

	id := uuid.New().String()
	params := nodeParams(id, attrs)
	params["label_key"] = LabelKey(attrs.Label)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return "", apperrors.NewGraphQueryFailed("create node", err)
	}
	if _, err := result.Single(ctx); err != nil {
		return "", apperrors.NewGraphQueryFailed("create node", err)
	}

	r.logger.Debug("Entity created",
		zap.String("id", id),
		zap.String("node_type", attrs.NodeType),
	)
	return id, nil
}

// CreateEdge creates a LINK relationship between two existing entities
func (r *Repository) CreateEdge(ctx context.Context, sourceID, targetID string, attrs EdgeAttributes) (string, error) {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := `
		MATCH (s:Entity {id: $source_id}), (t:Entity {id: $target_id})
		CREATE (s)-[l:LINK {
			id: $id,
			label: $label,
			relationship: $relationship,
			custom_label: $custom_label,
			description: $description,
			confidence: $confidence,
			direction: $direction,
			weight: $weight,
			start_date: $start_date,
			end_date: $end_date,
			event_date: $event_date,
			location: $location,
			created_at: datetime()
		}]->(t)
		RETURN l.id AS id
	`

	id := uuid.New().String()
	result, err := session.Run(ctx, query, edgeParams(id, sourceID, targetID, attrs))
	if err != nil {
		return "", apperrors.NewGraphQueryFailed("create edge", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return "", apperrors.NewGraphQueryFailed("create edge", err)
		}
		return "", apperrors.NewGraphQueryFailed("create edge", fmt.Errorf("endpoint not found: %s -> %s", sourceID, targetID))
	}

	r.logger.Debug("Link created",
		zap.String("id", id),
		zap.String("relationship", attrs.Relationship),
	)
	return id, nil
}

// EdgeExists reports whether a LINK with the same relationship already joins source to target
func (r *Repository) EdgeExists(ctx context.Context, sourceID, targetID, relationship string) (bool, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		OPTIONAL MATCH (:Entity {id: $source_id})-[l:LINK {relationship: $relationship}]->(:Entity {id: $target_id})
		RETURN count(l) > 0 AS found
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"source_id":    sourceID,
		"target_id":    targetID,
		"relationship": relationship,
	})
	if err != nil {
		return false, apperrors.NewGraphQueryFailed("edge exists", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return false, apperrors.NewGraphQueryFailed("edge exists", err)
	}
	return getBoolFromRecord(record, "found"), nil
}

// ReadGraph returns every entity and link on the board
func (r *Repository) ReadGraph(ctx context.Context) (*Graph, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	g := &Graph{Nodes: []Node{}, Edges: []Edge{}}

	nodes, err := session.Run(ctx, `
		MATCH (n:Entity)
		RETURN n.id AS id, n.label AS label, n.node_type AS node_type,
		       n.metadata AS metadata, n.role AS role, n.aliases AS aliases,
		       n.status AS status, n.location AS location, n.dob AS dob,
		       n.event_type AS event_type, n.event_date AS event_date,
		       n.event_location AS event_location, n.event_description AS event_description,
		       n.created_at AS created_at
		ORDER BY n.created_at, n.id
	`, nil)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed("read nodes", err)
	}
	for nodes.Next(ctx) {
		g.Nodes = append(g.Nodes, nodeFromRecord(nodes.Record()))
	}
	if err := nodes.Err(); err != nil {
		return nil, apperrors.NewGraphQueryFailed("read nodes", err)
	}

	edges, err := session.Run(ctx, `
		MATCH (s:Entity)-[l:LINK]->(t:Entity)
		RETURN l.id AS id, s.id AS source_id, t.id AS target_id,
		       l.label AS label, l.relationship AS relationship, l.custom_label AS custom_label,
		       l.description AS description, l.confidence AS confidence,
		       l.direction AS direction, l.weight AS weight,
		       l.start_date AS start_date, l.end_date AS end_date,
		       l.event_date AS event_date, l.location AS location,
		       l.created_at AS created_at
		ORDER BY l.created_at, l.id
	`, nil)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed("read edges", err)
	}
	for edges.Next(ctx) {
		g.Edges = append(g.Edges, edgeFromRecord(edges.Record()))
	}
	if err := edges.Err(); err != nil {
		return nil, apperrors.NewGraphQueryFailed("read edges", err)
	}

	return g, nil
}

// Clear removes every entity and link
func (r *Repository) Clear(ctx context.Context) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	if _, err := session.Run(ctx, `MATCH (n:Entity) DETACH DELETE n`, nil); err != nil {
		return apperrors.NewGraphQueryFailed("clear", err)
	}
	r.logger.Warn("Board graph cleared")
	return nil
}
