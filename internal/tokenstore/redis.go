package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/BASIL960/FinalYearProject/internal/domain"
)

// RedisStore keeps a profile's session under <prefix>:<profile>:<key>
type RedisStore struct {
	client  *redis.Client
	prefix  string
	profile string
	logger  *slog.Logger
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, prefix, profile string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "compliancectl"
	}
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{client: client, prefix: prefix, profile: profile, logger: logger}
}

// NewRedisStoreWithURL creates a store from a redis:// URL
func NewRedisStoreWithURL(url, prefix, profile string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), prefix, profile, logger), nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(name string) string {
	return s.prefix + ":" + s.profile + ":" + name
}

func (s *RedisStore) Save(ctx context.Context, creds domain.Credentials) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueCredentials(ctx, pipe, creds)
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving credentials to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveProfile(ctx context.Context, profile domain.UserProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	if err := s.client.Set(ctx, s.key(KeyUser), data, 0).Err(); err != nil {
		return fmt.Errorf("saving profile to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveSession(ctx context.Context, session domain.Session) error {
	data, err := json.Marshal(session.User)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueCredentials(ctx, pipe, session.Credentials)
		pipe.Set(ctx, s.key(KeyUser), data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving session to redis: %w", err)
	}
	s.logger.Debug("Saved session to redis",
		"profile", s.profile,
		"access_token_prefix", tokenPrefix(session.Credentials.AccessToken))
	return nil
}

func (s *RedisStore) queueCredentials(ctx context.Context, pipe redis.Pipeliner, creds domain.Credentials) {
	for key, value := range map[string]string{
		KeyAccessToken:  creds.AccessToken,
		KeyRefreshToken: creds.RefreshToken,
	} {
		if value == "" {
			pipe.Del(ctx, s.key(key))
			continue
		}
		pipe.Set(ctx, s.key(key), value, 0)
	}
}

func (s *RedisStore) Read(ctx context.Context) (domain.Credentials, error) {
	values, err := s.client.MGet(ctx, s.key(KeyAccessToken), s.key(KeyRefreshToken)).Result()
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("reading credentials from redis: %w", err)
	}

	var creds domain.Credentials
	if v, ok := values[0].(string); ok {
		creds.AccessToken = v
	}
	if v, ok := values[1].(string); ok {
		creds.RefreshToken = v
	}
	if creds.IsEmpty() {
		return domain.Credentials{}, ErrNotFound
	}
	return creds, nil
}

func (s *RedisStore) ReadProfile(ctx context.Context) (domain.UserProfile, error) {
	data, err := s.client.Get(ctx, s.key(KeyUser)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.UserProfile{}, ErrNotFound
	}
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("reading profile from redis: %w", err)
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		s.logger.Warn("Cached user profile in redis is unreadable", "error", err)
		return domain.UserProfile{}, ErrNotFound
	}
	return profile, nil
}

// Clear deletes all three keys in one DEL
func (s *RedisStore) Clear(ctx context.Context) error {
	keys := make([]string, 0, len(Keys))
	for _, k := range Keys {
		keys = append(keys, s.key(k))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clearing session in redis: %w", err)
	}
	return nil
}
