// Package config provides Viper-based configuration management for compliancectl
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultBaseURL is the production compliance-auditing service
const DefaultBaseURL = "https://backend.lytrex.fuzte.com"

// Store backends
const (
	BackendFile       = "file"
	BackendMemory     = "memory"
	BackendRedis      = "redis"
	BackendKubernetes = "kubernetes"
)

// Config represents the complete compliancectl configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
	Output  OutputConfig  `mapstructure:"output"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// APIConfig describes the remote service
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,http_url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// StoreConfig selects where the session is persisted
type StoreConfig struct {
	Backend    string           `mapstructure:"backend" validate:"oneof=file memory redis kubernetes"`
	Profile    string           `mapstructure:"profile" validate:"required,excludesall=/\\"`
	Dir        string           `mapstructure:"dir"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kubernetes KubernetesConfig `mapstructure:"kubernetes"`
}

// RedisConfig contains settings for the redis backend
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// KubernetesConfig contains settings for the Secret backend
type KubernetesConfig struct {
	Namespace  string `mapstructure:"namespace"`
	SecretName string `mapstructure:"secret_name"`
	Kubeconfig string `mapstructure:"kubeconfig"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// OutputConfig contains output formatting settings
type OutputConfig struct {
	Colors bool `mapstructure:"colors"`
}

// MetricsConfig controls the Prometheus textfile export
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// TracingConfig controls OTLP trace export; off unless enabled
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// Load reads configuration from file, environment variables and overrides.
// overrides are applied last; the CLI passes flag values that were set.
func Load(cfgFile string, overrides map[string]any) (*Config, error) {
	// A .env in the working directory may carry COMPLIANCECTL_* variables
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".compliancectl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/compliancectl")
	}

	v.SetEnvPrefix("COMPLIANCECTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Store.Dir == "" {
		cfg.Store.Dir = defaultStoreDir(cfg.Store.Profile)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", DefaultBaseURL)
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.profile", "default")
	v.SetDefault("store.dir", "")
	v.SetDefault("store.redis.url", "redis://localhost:6379/0")
	v.SetDefault("store.redis.key_prefix", "compliancectl")
	v.SetDefault("store.kubernetes.namespace", "default")
	v.SetDefault("store.kubernetes.secret_name", "compliancectl-session")
	v.SetDefault("store.kubernetes.kubeconfig", "")

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")

	v.SetDefault("output.colors", true)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "http://localhost:4318")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// defaultStoreDir keeps each profile in its own directory under the user
// config dir, falling back to the working directory.
func defaultStoreDir(profile string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "compliancectl", "profiles", profile)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("mapstructure")
	})
	return v
}

// validateConfig checks the configuration for errors
func validateConfig(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fieldMessage(fe))
	}
	return errors.New(strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	// Namespace is "Config.api.base_url"; drop the root type
	key := fe.Namespace()
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s must not be empty", key)
	case "http_url":
		return fmt.Sprintf("invalid %s: %v (must start with http:// or https://)", key, fe.Value())
	case "oneof":
		return fmt.Sprintf("invalid %s: %v (must be one of %s)", key, fe.Value(), fe.Param())
	case "gt", "gte", "lte":
		return fmt.Sprintf("invalid %s: %v (must be %s %s)", key, fe.Value(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("invalid %s: %v", key, fe.Value())
	}
}
