package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BASIL960/FinalYearProject/internal/domain"
)

// FileStore keeps one file per key inside a profile directory. It is the
// CLI's equivalent of browser local storage: the session survives restarts
// of the process but is never shared across profile directories.
type FileStore struct {
	dir    string
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewFileStore creates a file-backed store rooted at dir
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, errors.New("token store directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating token store directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir returns the profile directory
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Save(ctx context.Context, creds domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCredentials(creds)
}

func (s *FileStore) SaveProfile(ctx context.Context, profile domain.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveProfile(profile)
}

func (s *FileStore) SaveSession(ctx context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveCredentials(session.Credentials); err != nil {
		return err
	}
	if err := s.saveProfile(session.User); err != nil {
		if clearErr := s.clear(); clearErr != nil {
			s.logger.Error("Failed to roll back partial session", "error", clearErr)
		}
		return err
	}
	return nil
}

func (s *FileStore) Read(ctx context.Context) (domain.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	access, err := s.readKey(KeyAccessToken)
	if err != nil {
		return domain.Credentials{}, err
	}
	refresh, err := s.readKey(KeyRefreshToken)
	if err != nil {
		return domain.Credentials{}, err
	}

	creds := domain.Credentials{AccessToken: access, RefreshToken: refresh}
	if creds.IsEmpty() {
		return domain.Credentials{}, ErrNotFound
	}
	return creds, nil
}

func (s *FileStore) ReadProfile(ctx context.Context) (domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.readKey(KeyUser)
	if err != nil {
		return domain.UserProfile{}, err
	}
	if raw == "" {
		return domain.UserProfile{}, ErrNotFound
	}

	var profile domain.UserProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		// A corrupt cache is treated as absent, as the browser did
		s.logger.Warn("Cached user profile is unreadable", "error", err)
		return domain.UserProfile{}, ErrNotFound
	}
	return profile, nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clear()
}

func (s *FileStore) saveCredentials(creds domain.Credentials) error {
	if err := s.writeKey(KeyAccessToken, creds.AccessToken); err != nil {
		return err
	}
	if err := s.writeKey(KeyRefreshToken, creds.RefreshToken); err != nil {
		return err
	}
	s.logger.Debug("Saved credentials to token store",
		"dir", s.dir,
		"access_token_prefix", tokenPrefix(creds.AccessToken))
	return nil
}

func (s *FileStore) saveProfile(profile domain.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return s.writeKey(KeyUser, string(data))
}

func (s *FileStore) clear() error {
	var errs []error
	for _, key := range Keys {
		if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing %s: %w", key, err))
		}
	}
	if len(errs) == 0 {
		s.logger.Debug("Cleared token store", "dir", s.dir)
	}
	return errors.Join(errs...)
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *FileStore) readKey(key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// writeKey replaces a key atomically; an empty value removes it
func (s *FileStore) writeKey(key, value string) error {
	if value == "" {
		if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", key, err)
		}
		return nil
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting permissions for %s: %w", key, err)
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}
