package graph

import (
	"context"

	"go.uber.org/zap"

	"linkboard/backend/pkg/config"
	apperrors "linkboard/backend/pkg/errors"
	"linkboard/backend/pkg/logger"
)

// Backend is a Store owning a connection that must be released
type Backend interface {
	Store
	// Clear removes every node and edge
	Clear(ctx context.Context) error
	Close() error
}

// Open connects the store selected by cfg.GraphBackend. Neo4j stores have
// their schema ensured before use.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	log := logger.Get()

	switch cfg.GraphBackend {
	case config.GraphBackendNeo4j:
		driver, err := Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			return nil, err
		}
		repo := NewRepository(driver, cfg.Neo4jDatabase)
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		log.Info("Graph store ready", zap.String("backend", cfg.GraphBackend), zap.String("uri", cfg.Neo4jURI))
		return repo, nil

	case config.GraphBackendSQLite:
		store, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("Graph store ready", zap.String("backend", cfg.GraphBackend), zap.String("path", cfg.SQLitePath))
		return store, nil

	case config.GraphBackendMemory:
		log.Warn("Using in-memory graph store; the board is lost on exit")
		return NewMemoryStore(), nil

	default:
		return nil, apperrors.NewConfigValidationFailed("GRAPH_BACKEND", "unknown backend "+cfg.GraphBackend)
	}
}
