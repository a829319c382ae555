package graph

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"go.uber.org/zap"

	apperrors "linkboard/backend/pkg/errors"
	"linkboard/backend/pkg/logger"
)

// sqliteSchema is the embedded board schema. Rowids give insertion order.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS nodes (
    id                TEXT PRIMARY KEY,
    label             TEXT NOT NULL,
    label_key         TEXT NOT NULL,
    node_type         TEXT NOT NULL,
    metadata          TEXT NOT NULL DEFAULT '',
    role              TEXT NOT NULL DEFAULT '',
    aliases           TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT '',
    location          TEXT NOT NULL DEFAULT '',
    dob               TEXT NOT NULL DEFAULT '',
    event_type        TEXT NOT NULL DEFAULT '',
    event_date        TEXT NOT NULL DEFAULT '',
    event_location    TEXT NOT NULL DEFAULT '',
    event_description TEXT NOT NULL DEFAULT '',
    created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS edges (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    target_id    TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    label        TEXT NOT NULL,
    relationship TEXT NOT NULL,
    custom_label TEXT NOT NULL DEFAULT '',
    description  TEXT NOT NULL DEFAULT '',
    confidence   TEXT NOT NULL,
    direction    TEXT NOT NULL,
    weight       INTEGER NOT NULL DEFAULT 2,
    start_date   TEXT NOT NULL DEFAULT '',
    end_date     TEXT NOT NULL DEFAULT '',
    event_date   TEXT NOT NULL DEFAULT '',
    location     TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_label_key ON nodes(label_key);
CREATE INDEX IF NOT EXISTS idx_edges_triple ON edges(source_id, target_id, relationship);
`

// SQLiteStore is the embedded board store
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (creating if needed) the board database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, apperrors.NewGraphConnectionFailed(path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.NewGraphConnectionFailed(path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, apperrors.NewGraphQueryFailed("apply schema", err)
	}
	return &SQLiteStore{db: db, logger: logger.Get()}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListNodeLabels returns every node's id and label in insertion order
func (s *SQLiteStore) ListNodeLabels(ctx context.Context) ([]NodeLabel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, label FROM nodes ORDER BY rowid`)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed("list node labels", err)
	}
	defer rows.Close()

	labels := []NodeLabel{}
	for rows.Next() {
		var l NodeLabel
		if err := rows.Scan(&l.ID, &l.Label); err != nil {
			return nil, apperrors.NewGraphQueryFailed("list node labels", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewGraphQueryFailed("list node labels", err)
	}
	return labels, nil
}

// CreateNode inserts a node
func (s *SQLiteStore) CreateNode(ctx context.Context, attrs NodeAttributes) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, label, label_key, node_type, metadata, role, aliases, status, location, dob,
		                    event_type, event_date, event_location, event_description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, attrs.Label, LabelKey(attrs.Label), attrs.NodeType, attrs.Metadata, attrs.Role, attrs.Aliases,
		attrs.Status, attrs.Location, attrs.DOB, attrs.EventType, attrs.EventDate, attrs.EventLocation,
		attrs.EventDescription, now(),
	)
	if err != nil {
		return "", apperrors.NewGraphQueryFailed("create node", fmt.Errorf("insert node %q: %w", attrs.Label, err))
	}

	s.logger.Debug("Node created", zap.String("id", id), zap.String("node_type", attrs.NodeType))
	return id, nil
}

// CreateEdge inserts an edge. Both endpoints must exist.
func (s *SQLiteStore) CreateEdge(ctx context.Context, sourceID, targetID string, attrs EdgeAttributes) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO edges (id, source_id, target_id, label, relationship, custom_label, description,
		                    confidence, direction, weight, start_date, end_date, event_date, location, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sourceID, targetID, attrs.Label, attrs.Relationship, attrs.CustomLabel, attrs.Description,
		attrs.Confidence, attrs.Direction, attrs.Weight, attrs.StartDate, attrs.EndDate, attrs.EventDate,
		attrs.Location, now(),
	)
	if err != nil {
		return "", apperrors.NewGraphQueryFailed("create edge", fmt.Errorf("insert edge %s -> %s: %w", sourceID, targetID, err))
	}

	s.logger.Debug("Edge created", zap.String("id", id), zap.String("relationship", attrs.Relationship))
	return id, nil
}

// EdgeExists reports whether an edge with the same triple is stored
func (s *SQLiteStore) EdgeExists(ctx context.Context, sourceID, targetID, relationship string) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM edges WHERE source_id = ? AND target_id = ? AND relationship = ?)`,
		sourceID, targetID, relationship,
	).Scan(&found)
	if err != nil {
		return false, apperrors.NewGraphQueryFailed("edge exists", err)
	}
	return found == 1, nil
}

// ReadGraph returns every node and edge in insertion order
func (s *SQLiteStore) ReadGraph(ctx context.Context) (*Graph, error) {
	g := &Graph{Nodes: []Node{}, Edges: []Edge{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, node_type, metadata, role, aliases, status, location, dob,
		        event_type, event_date, event_location, event_description, created_at
		 FROM nodes ORDER BY rowid`)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed("read nodes", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n Node
		var created string
		if err := rows.Scan(&n.ID, &n.Label, &n.NodeType, &n.Metadata, &n.Role, &n.Aliases, &n.Status,
			&n.Location, &n.DOB, &n.EventType, &n.EventDate, &n.EventLocation, &n.EventDescription, &created); err != nil {
			return nil, apperrors.NewGraphQueryFailed("read nodes", err)
		}
		n.CreatedAt = parseTime(created)
		g.Nodes = append(g.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewGraphQueryFailed("read nodes", err)
	}

	edgeRows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, target_id, label, relationship, custom_label, description, confidence,
		        direction, weight, start_date, end_date, event_date, location, created_at
		 FROM edges ORDER BY rowid`)
	if err != nil {
		return nil, apperrors.NewGraphQueryFailed("read edges", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var e Edge
		var created string
		if err := edgeRows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Label, &e.Relationship, &e.CustomLabel,
			&e.Description, &e.Confidence, &e.Direction, &e.Weight, &e.StartDate, &e.EndDate, &e.EventDate,
			&e.Location, &created); err != nil {
			return nil, apperrors.NewGraphQueryFailed("read edges", err)
		}
		e.CreatedAt = parseTime(created)
		g.Edges = append(g.Edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, apperrors.NewGraphQueryFailed("read edges", err)
	}

	return g, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clear removes every node and edge
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM edges; DELETE FROM nodes;`); err != nil {
		return apperrors.NewGraphQueryFailed("clear", err)
	}
	s.logger.Warn("Board graph cleared")
	return nil
}
