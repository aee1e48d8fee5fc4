package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BASIL960/FinalYearProject/internal/apierr"
	"github.com/BASIL960/FinalYearProject/internal/domain"
	"github.com/BASIL960/FinalYearProject/internal/tokenstore"
)

// Logouter ends the session on the server and clears it locally
type Logouter interface {
	Logout(ctx context.Context) error
}

// Listener is told about every change of the signed-in user. A nil profile
// means the session ended.
type Listener func(user *domain.UserProfile)

// Manager tracks who is signed in for the presentation layer
type Manager struct {
	store  tokenstore.Store
	logger *slog.Logger

	mu        sync.RWMutex
	user      *domain.UserProfile
	listeners map[int]Listener
	nextID    int
}

// NewManager creates a manager with no user; call Restore to load the stored session
func NewManager(store tokenstore.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// Restore loads the cached user. A store without a complete session leaves
// the manager in the guest state.
func (m *Manager) Restore(ctx context.Context) error {
	session, err := tokenstore.LoadSession(ctx, m.store)
	if errors.Is(err, tokenstore.ErrNotFound) {
		m.setUser(nil)
		return nil
	}
	if err != nil {
		return err
	}
	m.setUser(&session.User)
	return nil
}

// CurrentUser returns the signed-in user
func (m *Manager) CurrentUser() (domain.UserProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return domain.UserProfile{}, false
	}
	return *m.user, true
}

// IsAuthenticated reports whether a user is signed in
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.CurrentUser()
	return ok
}

// LoginSucceeded records the user of a freshly persisted session
func (m *Manager) LoginSucceeded(session *domain.Session) {
	if session == nil {
		return
	}
	user := session.User
	m.setUser(&user)
}

// Logout ends the session. The user is signed out locally whatever the
// server said; only a failure to clear local state is returned.
func (m *Manager) Logout(ctx context.Context, l Logouter) error {
	err := l.Logout(ctx)
	if err != nil {
		m.logger.Error("Logout did not complete cleanly", "error", err)
	}
	m.setUser(nil)
	return err
}

// ObserveError signs the user out when err says the session has ended.
// It returns err unchanged.
func (m *Manager) ObserveError(err error) error {
	var authErr *apierr.AuthenticationError
	if errors.As(err, &authErr) && m.IsAuthenticated() {
		m.logger.Info("Session ended by the server", "reason", authErr.Reason)
		m.setUser(nil)
	}
	return err
}

// Subscribe registers fn and returns a function that removes it
func (m *Manager) Subscribe(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) setUser(user *domain.UserProfile) {
	m.mu.Lock()
	m.user = user
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		if user == nil {
			fn(nil)
			continue
		}
		copied := *user
		fn(&copied)
	}
}
