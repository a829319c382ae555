package session

import (
	"sync"

	"go.uber.org/zap"

	"linkboard/backend/internal/adapter"
	apperrors "linkboard/backend/pkg/errors"
	"linkboard/backend/pkg/logger"
)

// Manager holds the single open session and the active inference settings.
// Opening a session discards the previous one.
type Manager struct {
	mu       sync.RWMutex
	opts     Options
	settings adapter.Settings
	current  *Session
	logger   *zap.Logger
}

// NewManager creates a manager with no open session
func NewManager(opts Options, settings adapter.Settings) *Manager {
	return &Manager{
		opts:     opts,
		settings: settings,
		logger:   logger.Get(),
	}
}

// Open closes any current session and starts a new one
func (m *Manager) Open() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Close()
		m.logger.Debug("Discarded previous session", zap.String("session_id", m.current.ID()))
	}
	m.current = New(m.opts, m.settings)
	m.logger.Info("Session opened", zap.String("session_id", m.current.ID()))
	return m.current
}

// Current returns the open session
func (m *Manager) Current() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, apperrors.ErrNoSession
	}
	return m.current, nil
}

// CloseCurrent closes and forgets the open session
func (m *Manager) CloseCurrent() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return apperrors.ErrNoSession
	}
	m.current.Close()
	m.current = nil
	return nil
}

// Settings returns the active inference settings
func (m *Manager) Settings() adapter.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// UpdateSettings validates and installs new settings. They apply to the
// open session's next request. A redacted API key keeps the current one.
func (m *Manager) UpdateSettings(s adapter.Settings) (adapter.Settings, error) {
	if err := s.Validate(); err != nil {
		return adapter.Settings{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s.APIKey == adapter.RedactedKey {
		s.APIKey = m.settings.APIKey
	}
	m.settings = s
	if m.current != nil {
		m.current.SetSettings(s)
	}
	m.logger.Info("AI settings updated",
		zap.String("provider", s.Provider),
		zap.String("model", s.Model),
	)
	return s, nil
}
