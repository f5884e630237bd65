package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Persister receives every committed snapshot.
type Persister interface {
	Save(ctx context.Context, snapshot Snapshot) error
	Clear(ctx context.Context) error
}

// Listener is notified after each committed transition.
type Listener func(action Action, prev, next State)

// Machine serializes dispatches through Reduce and persists the result.
// Persistence failures are logged, never surfaced: the in-memory state stays
// authoritative.
type Machine struct {
	mu        sync.Mutex
	state     State
	store     Persister
	listeners []Listener
}

// NewMachine creates a machine in the initial setup state. store may be nil.
func NewMachine(store Persister) *Machine {
	return &Machine{
		state: Initial(),
		store: store,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a listener. Listeners run synchronously on the
// dispatching goroutine, after the lock is released.
func (m *Machine) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Dispatch applies the action. On an invalid transition the state is
// unchanged and the error is returned.
func (m *Machine) Dispatch(ctx context.Context, action Action) (State, error) {
	m.mu.Lock()
	prev := m.state
	next, err := Reduce(prev, action)
	if err != nil {
		m.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"action": action.Type(),
			"status": prev.Status,
		}).WithError(err).Debug("Rejected session transition")
		return prev, err
	}
	m.state = next
	m.persist(ctx, action, next)
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"action": action.Type(),
		"from":   prev.Status,
		"to":     next.Status,
		"pages":  len(next.Pages),
	}).Debug("Session transition")

	for _, l := range listeners {
		l(action, prev, next)
	}
	return next, nil
}

// persist runs under the lock so snapshots are written in dispatch order.
func (m *Machine) persist(ctx context.Context, action Action, next State) {
	if m.store == nil {
		return
	}
	if _, ok := action.(Reset); ok {
		if err := m.store.Clear(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to erase session snapshot")
		}
		return
	}
	if err := m.store.Save(ctx, next.Snapshot()); err != nil {
		logrus.WithError(err).Warn("Failed to save session snapshot")
	}
}
