package tokenstore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/BASIL960/FinalYearProject/internal/domain"
)

var testProfile = domain.UserProfile{
	ID:        "17",
	Username:  "auditor",
	Email:     "auditor@example.com",
	UserType:  domain.UserTypeIndividual,
	FirstName: "Sara",
	LastName:  "Ali",
}

// storeFactory returns a fresh store and a function that opens a second,
// independent reader over the same backing storage.
type storeFactory func(t *testing.T) (Store, func() Store)

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"file": func(t *testing.T) (Store, func() Store) {
			dir := t.TempDir()
			s, err := NewFileStore(dir, nil)
			require.NoError(t, err)
			return s, func() Store {
				reopened, err := NewFileStore(dir, nil)
				require.NoError(t, err)
				return reopened
			}
		},
		"memory": func(t *testing.T) (Store, func() Store) {
			s := NewMemoryStore()
			return s, func() Store { return s }
		},
		"redis": func(t *testing.T) (Store, func() Store) {
			mr := miniredis.RunT(t)
			s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", "default", nil)
			return s, func() Store {
				return NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", "default", nil)
			}
		},
		"kubernetes": func(t *testing.T) (Store, func() Store) {
			client := fake.NewSimpleClientset()
			s := NewKubernetesSecretStoreWithClientset(client, "audit", "compliancectl-session", nil)
			return s, func() Store {
				return NewKubernetesSecretStoreWithClientset(client, "audit", "compliancectl-session", nil)
			}
		},
	}
}

func TestStore_EmptyReadsNotFound(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s, _ := factory(t)
			ctx := context.Background()

			_, err := s.Read(ctx)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.ReadProfile(ctx)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, s.Clear(ctx), "clearing an empty store is not an error")
		})
	}
}

func TestStore_SessionSurvivesReload(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s, reopen := factory(t)
			ctx := context.Background()

			session := domain.Session{
				Credentials: domain.Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"},
				User:        testProfile,
			}
			require.NoError(t, SaveSession(ctx, s, session))

			loaded, err := LoadSession(ctx, reopen())
			require.NoError(t, err)
			assert.Equal(t, session.Credentials, loaded.Credentials)
			assert.Equal(t, testProfile, loaded.User)
		})
	}
}

func TestStore_SaveReplacesWholeValue(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s, _ := factory(t)
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, domain.Credentials{AccessToken: "a1", RefreshToken: "r1"}))
			require.NoError(t, s.Save(ctx, domain.Credentials{AccessToken: "a2"}))

			creds, err := s.Read(ctx)
			require.NoError(t, err)
			assert.Equal(t, domain.Credentials{AccessToken: "a2"}, creds)
		})
	}
}

func TestStore_RefreshTokenOnlyIsReadable(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s, _ := factory(t)
			ctx := context.Background()

			require.NoError(t, s.Save(ctx, domain.Credentials{RefreshToken: "r-only"}))

			creds, err := s.Read(ctx)
			require.NoError(t, err)
			assert.Empty(t, creds.AccessToken)
			assert.Equal(t, "r-only", creds.RefreshToken)
		})
	}
}

func TestStore_ClearRemovesAllKeys(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s, reopen := factory(t)
			ctx := context.Background()

			require.NoError(t, SaveSession(ctx, s, domain.Session{
				Credentials: domain.Credentials{AccessToken: "a", RefreshToken: "r"},
				User:        testProfile,
			}))
			require.NoError(t, s.Clear(ctx))

			other := reopen()
			_, err := other.Read(ctx)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = other.ReadProfile(ctx)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSaveSession_RejectsEmptyCredentials(t *testing.T) {
	err := SaveSession(context.Background(), NewMemoryStore(), domain.Session{User: testProfile})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

// profileFailingStore hides MemoryStore's SaveSession so the sequential path runs
type profileFailingStore struct {
	inner *MemoryStore
}

func (s profileFailingStore) Save(ctx context.Context, c domain.Credentials) error {
	return s.inner.Save(ctx, c)
}
func (s profileFailingStore) SaveProfile(context.Context, domain.UserProfile) error {
	return errors.New("disk full")
}
func (s profileFailingStore) Read(ctx context.Context) (domain.Credentials, error) {
	return s.inner.Read(ctx)
}
func (s profileFailingStore) ReadProfile(ctx context.Context) (domain.UserProfile, error) {
	return s.inner.ReadProfile(ctx)
}
func (s profileFailingStore) Clear(ctx context.Context) error { return s.inner.Clear(ctx) }

func TestSaveSession_RollsBackPartialWrite(t *testing.T) {
	ctx := context.Background()
	s := profileFailingStore{inner: NewMemoryStore()}

	err := SaveSession(ctx, s, domain.Session{
		Credentials: domain.Credentials{AccessToken: "a", RefreshToken: "r"},
		User:        testProfile,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, ErrNotFound, "credentials must not outlive a failed profile write")
}

func TestFileStore_CorruptProfileReadsAsAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.writeKey(KeyUser, "{not json"))

	_, err = s.ReadProfile(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKubernetesSecretStore_RetriesUpdateConflict(t *testing.T) {
	client := fake.NewSimpleClientset()
	s := NewKubernetesSecretStoreWithClientset(client, "audit", "compliancectl-session", nil)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, domain.Credentials{AccessToken: "a1", RefreshToken: "r1"}))

	conflicts := 1
	client.PrependReactor("update", "secrets", func(k8stesting.Action) (bool, runtime.Object, error) {
		if conflicts == 0 {
			return false, nil, nil
		}
		conflicts--
		return true, nil, apierrors.NewConflict(schema.GroupResource{Resource: "secrets"}, "compliancectl-session", errors.New("stale"))
	})

	require.NoError(t, s.Save(ctx, domain.Credentials{AccessToken: "a2", RefreshToken: "r2"}))
	creds, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", creds.AccessToken)
	assert.Equal(t, 0, conflicts)
}
