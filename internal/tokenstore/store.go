// ABOUTME: Durable storage of the access token, refresh token and cached user profile
// ABOUTME: Backends share one contract: whole-value writes, and Clear removes all three keys

package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/BASIL960/FinalYearProject/internal/domain"
)

// Stable storage keys, shared by every backend
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// Keys lists every persisted key
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

var (
	// ErrNotFound is returned by Read/ReadProfile when nothing is stored
	ErrNotFound = errors.New("no session stored")
	// ErrInvalidCredentials rejects a Save that would store no tokens at all
	ErrInvalidCredentials = errors.New("credentials must carry at least one token")
)

// Store persists the session for one profile
type Store interface {
	// Save replaces both tokens. An empty field removes that key.
	Save(ctx context.Context, creds domain.Credentials) error

	// SaveProfile replaces the cached profile
	SaveProfile(ctx context.Context, profile domain.UserProfile) error

	// Read returns the stored tokens, or ErrNotFound when neither exists
	Read(ctx context.Context) (domain.Credentials, error)

	// ReadProfile returns the cached profile, or ErrNotFound
	ReadProfile(ctx context.Context) (domain.UserProfile, error)

	// Clear removes the access token, refresh token and profile
	Clear(ctx context.Context) error
}

// SessionSaver is implemented by backends that can write credentials and
// profile in a single step.
type SessionSaver interface {
	SaveSession(ctx context.Context, session domain.Session) error
}

// SaveSession persists a full session. Without a SessionSaver the two
// writes happen in sequence and a failure clears whatever was written.
func SaveSession(ctx context.Context, store Store, session domain.Session) error {
	if session.Credentials.IsEmpty() {
		return ErrInvalidCredentials
	}
	if saver, ok := store.(SessionSaver); ok {
		return saver.SaveSession(ctx, session)
	}

	if err := store.Save(ctx, session.Credentials); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	if err := store.SaveProfile(ctx, session.User); err != nil {
		if clearErr := store.Clear(ctx); clearErr != nil {
			return errors.Join(fmt.Errorf("saving profile: %w", err), fmt.Errorf("rolling back credentials: %w", clearErr))
		}
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

// LoadSession reads a complete session. A store holding tokens without a
// profile, or the reverse, reports ErrNotFound.
func LoadSession(ctx context.Context, store Store) (*domain.Session, error) {
	creds, err := store.Read(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := store.ReadProfile(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.Session{Credentials: creds, User: profile}, nil
}

func tokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
