// ABOUTME: Kubernetes Secret-backed session store for headless runners inside a cluster
// ABOUTME: All three keys live in one Secret so a session write is a single update

package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/retry"

	"github.com/BASIL960/FinalYearProject/internal/domain"
)

const annotationLastUpdated = "compliancectl/last-updated"

// KubernetesSecretStore implements Store on top of a single Secret
type KubernetesSecretStore struct {
	clientset  kubernetes.Interface
	namespace  string
	secretName string
	logger     *slog.Logger
}

// NewKubernetesSecretStore builds a clientset from kubeconfig, or from the
// in-cluster service account when kubeconfig is empty.
func NewKubernetesSecretStore(kubeconfig, namespace, secretName string, logger *slog.Logger) (*KubernetesSecretStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		config *rest.Config
		err    error
	)
	if kubeconfig != "" {
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		config, err = rest.InClusterConfig()
	}
	if err != nil {
		logger.Error("Failed to create Kubernetes config", "error", err)
		return nil, fmt.Errorf("failed to create Kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		logger.Error("Failed to create Kubernetes clientset", "error", err)
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}

	return NewKubernetesSecretStoreWithClientset(clientset, namespace, secretName, logger), nil
}

// NewKubernetesSecretStoreWithClientset creates a store with a custom clientset (for testing)
func NewKubernetesSecretStoreWithClientset(
	clientset kubernetes.Interface,
	namespace, secretName string,
	logger *slog.Logger,
) *KubernetesSecretStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &KubernetesSecretStore{
		clientset:  clientset,
		namespace:  namespace,
		secretName: secretName,
		logger:     logger,
	}
}

func (s *KubernetesSecretStore) Save(ctx context.Context, creds domain.Credentials) error {
	return s.mutate(ctx, func(data map[string][]byte) error {
		putCredentials(data, creds)
		return nil
	})
}

func (s *KubernetesSecretStore) SaveProfile(ctx context.Context, profile domain.UserProfile) error {
	encoded, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return s.mutate(ctx, func(data map[string][]byte) error {
		data[KeyUser] = encoded
		return nil
	})
}

func (s *KubernetesSecretStore) SaveSession(ctx context.Context, session domain.Session) error {
	encoded, err := json.Marshal(session.User)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	return s.mutate(ctx, func(data map[string][]byte) error {
		putCredentials(data, session.Credentials)
		data[KeyUser] = encoded
		return nil
	})
}

func (s *KubernetesSecretStore) Read(ctx context.Context) (domain.Credentials, error) {
	secret, err := s.get(ctx)
	if err != nil {
		return domain.Credentials{}, err
	}
	creds := domain.Credentials{
		AccessToken:  string(secret.Data[KeyAccessToken]),
		RefreshToken: string(secret.Data[KeyRefreshToken]),
	}
	if creds.IsEmpty() {
		return domain.Credentials{}, ErrNotFound
	}
	return creds, nil
}

func (s *KubernetesSecretStore) ReadProfile(ctx context.Context) (domain.UserProfile, error) {
	secret, err := s.get(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	raw, ok := secret.Data[KeyUser]
	if !ok || len(raw) == 0 {
		return domain.UserProfile{}, ErrNotFound
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		s.logger.Warn("Cached user profile in secret is unreadable",
			"secret_name", s.secretName,
			"error", err)
		return domain.UserProfile{}, ErrNotFound
	}
	return profile, nil
}

// Clear drops the three keys but keeps the Secret itself, so RBAC that only
// allows update on an existing Secret keeps working.
func (s *KubernetesSecretStore) Clear(ctx context.Context) error {
	if _, err := s.get(ctx); errors.Is(err, ErrNotFound) {
		return nil
	}
	err := s.mutate(ctx, func(data map[string][]byte) error {
		for _, key := range Keys {
			delete(data, key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("Cleared session from Kubernetes Secret",
		"namespace", s.namespace,
		"secret_name", s.secretName)
	return nil
}

// StoragePath describes where the session lives
func (s *KubernetesSecretStore) StoragePath() string {
	return fmt.Sprintf("Kubernetes Secret %s/%s", s.namespace, s.secretName)
}

func (s *KubernetesSecretStore) get(ctx context.Context) (*corev1.Secret, error) {
	secret, err := s.clientset.CoreV1().Secrets(s.namespace).Get(ctx, s.secretName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error("Failed to retrieve secret from Kubernetes",
			"error", err,
			"namespace", s.namespace,
			"secret_name", s.secretName)
		return nil, fmt.Errorf("failed to retrieve session secret: %w", err)
	}
	return secret, nil
}

// mutate applies fn to the Secret's data, creating the Secret on first write.
// A concurrent writer's update conflict re-reads the Secret and applies fn again.
func (s *KubernetesSecretStore) mutate(ctx context.Context, fn func(map[string][]byte) error) error {
	secrets := s.clientset.CoreV1().Secrets(s.namespace)

	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		current, err := secrets.Get(ctx, s.secretName, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			data := make(map[string][]byte)
			if err := fn(data); err != nil {
				return err
			}
			secret := &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{
					Name:      s.secretName,
					Namespace: s.namespace,
					Labels: map[string]string{
						"app.kubernetes.io/name":       "compliancectl",
						"app.kubernetes.io/component":  "session",
						"app.kubernetes.io/managed-by": "compliancectl",
					},
					Annotations: map[string]string{
						annotationLastUpdated: time.Now().Format(time.RFC3339),
					},
				},
				Type: corev1.SecretTypeOpaque,
				Data: data,
			}
			if _, err := secrets.Create(ctx, secret, metav1.CreateOptions{}); err != nil {
				s.logger.Error("Failed to create secret", "error", err)
				return fmt.Errorf("failed to create session secret: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get current secret for update: %w", err)
		}

		if current.Data == nil {
			current.Data = make(map[string][]byte)
		}
		if err := fn(current.Data); err != nil {
			return err
		}
		if current.Annotations == nil {
			current.Annotations = make(map[string]string)
		}
		current.Annotations[annotationLastUpdated] = time.Now().Format(time.RFC3339)

		if _, err := secrets.Update(ctx, current, metav1.UpdateOptions{}); err != nil {
			if apierrors.IsConflict(err) {
				s.logger.Debug("Secret changed underneath, retrying", "secret", s.secretName)
				return err
			}
			s.logger.Error("Failed to update secret", "error", err)
			return fmt.Errorf("failed to update session secret: %w", err)
		}
		return nil
	})
}

func putCredentials(data map[string][]byte, creds domain.Credentials) {
	for key, value := range map[string]string{
		KeyAccessToken:  creds.AccessToken,
		KeyRefreshToken: creds.RefreshToken,
	} {
		if value == "" {
			delete(data, key)
			continue
		}
		data[key] = []byte(value)
	}
}
