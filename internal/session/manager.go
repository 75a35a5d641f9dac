package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pharmref-mcp-server/internal/domain"
)

// Manager creates sessions and applies actions to them.
type Manager struct {
	store  Store
	logger *logrus.Logger
}

// NewManager creates a manager over store.
func NewManager(store Store, logger *logrus.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Start creates a session in the initial state and returns its id.
func (m *Manager) Start(ctx context.Context) (string, State, error) {
	id := uuid.New().String()
	state := NewState()
	if err := m.store.Save(ctx, id, state); err != nil {
		return "", State{}, fmt.Errorf("failed to start session: %w", err)
	}

	m.logger.WithField("session_id", id).Debug("Session started")
	return id, state, nil
}

// Get returns the current state of a session.
func (m *Manager) Get(ctx context.Context, id string) (State, error) {
	if _, err := uuid.Parse(id); err != nil {
		return State{}, domain.NewValidationError("session_id", "must be a UUID", id)
	}
	return m.store.Load(ctx, id)
}

// Apply loads the session, reduces the actions over it, validates and saves
// the result.
func (m *Manager) Apply(ctx context.Context, id string, actions ...Action) (State, error) {
	state, err := m.Get(ctx, id)
	if err != nil {
		return State{}, err
	}

	next := Reduce(state, actions...)
	if err := next.Validate(); err != nil {
		return State{}, err
	}
	if err := m.store.Save(ctx, id, next); err != nil {
		return State{}, fmt.Errorf("failed to save session: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"session_id": id,
		"actions":    len(actions),
		"drugs":      len(next.Drugs),
	}).Debug("Session updated")
	return next, nil
}

// End discards the session. Ending an unknown session is not an error.
func (m *Manager) End(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	m.logger.WithField("session_id", id).Debug("Session ended")
	return nil
}
