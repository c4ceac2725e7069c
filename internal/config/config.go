// Package config handles loading and validation of storefront client configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"storefront/internal/api"
	"storefront/internal/localstore"
	"storefront/internal/transport"
)

const defaultSecretName = "storefront-api"

// Config holds all client configuration.
// Environment determines whether the API credential loads from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings (cartd only)
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"
	LogFile     string // empty logs to stdout

	// GCP settings (required in production)
	GCPProject string
	SecretName string

	HTTPTimeout time.Duration

	API     APIConfig
	Storage StorageConfig
}

// APIConfig describes the storefront API.
// In production, ClientToken is loaded from Secret Manager as JSON.
type APIConfig struct {
	BaseURL        string `json:"base_url"`
	Version        string `json:"version"`
	ClientToken    string `json:"client_token,omitempty"`
	TLSFingerprint string `json:"tls_fingerprint,omitempty"` // "go" or "chrome"
	CircuitBreaker *bool  `json:"circuit_breaker,omitempty"` // nil means enabled
}

// StorageConfig selects where the guest cart and session token live.
type StorageConfig struct {
	Backend       string `json:"backend"` // file, sqlite, redis, memory
	Path          string `json:"path,omitempty"`
	Key           string `json:"key,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	RedisPrefix   string `json:"redis_prefix,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	timeout, err := time.ParseDuration(envOrDefault("HTTP_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("parsing HTTP_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		SecretName:  envOrDefault("SECRET_NAME", defaultSecretName),
		HTTPTimeout: timeout,
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading api credentials: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port        string        `json:"port"`
		Environment string        `json:"environment"`
		LogLevel    string        `json:"log_level"`
		LogFile     string        `json:"log_file"`
		HTTPTimeout string        `json:"http_timeout"`
		API         APIConfig     `json:"api"`
		Storage     StorageConfig `json:"storage"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	timeout, err := time.ParseDuration(withDefault(fileConfig.HTTPTimeout, "30s"))
	if err != nil {
		return nil, fmt.Errorf("parsing http_timeout: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fileConfig.Port, "8080"),
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		LogFile:     fileConfig.LogFile,
		HTTPTimeout: timeout,
		API:         fileConfig.API,
		Storage:     fileConfig.Storage,
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager overlays API credentials from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret}/versions/latest
// The payload is a JSON object with APIConfig fields; absent fields keep their env values.
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.SecretName)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.API); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads API and storage settings from individual environment variables.
func (c *Config) loadFromEnv() error {
	c.API = APIConfig{
		BaseURL:        os.Getenv("API_BASE_URL"),
		Version:        os.Getenv("API_VERSION"),
		ClientToken:    os.Getenv("API_CLIENT_TOKEN"),
		TLSFingerprint: os.Getenv("TLS_FINGERPRINT"),
	}
	if v := os.Getenv("CIRCUIT_BREAKER"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing CIRCUIT_BREAKER: %w", err)
		}
		c.API.CircuitBreaker = &enabled
	}

	c.Storage = StorageConfig{
		Backend:       os.Getenv("STORAGE_BACKEND"),
		Path:          os.Getenv("STORAGE_PATH"),
		Key:           os.Getenv("STORAGE_KEY"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisPrefix:   os.Getenv("REDIS_PREFIX"),
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing REDIS_DB: %w", err)
		}
		c.Storage.RedisDB = db
	}

	return nil
}

func (c *Config) applyDefaults() {
	c.API.Version = withDefault(c.API.Version, api.DefaultVersion)
	c.API.TLSFingerprint = withDefault(c.API.TLSFingerprint, transport.FingerprintGo)
	c.Storage.Backend = withDefault(c.Storage.Backend, localstore.KindFile)
	c.Storage.Key = withDefault(c.Storage.Key, localstore.DefaultKey)
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid api base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api base_url must be http or https, got %q", c.API.BaseURL)
	}
	if _, err := api.BasePath(c.API.Version); err != nil {
		return err
	}

	switch c.API.TLSFingerprint {
	case transport.FingerprintGo, transport.FingerprintChrome:
	default:
		return fmt.Errorf("tls_fingerprint must be %q or %q", transport.FingerprintGo, transport.FingerprintChrome)
	}

	switch c.Storage.Backend {
	case localstore.KindFile, localstore.KindSQLite, localstore.KindMemory:
	case localstore.KindRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis storage backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
	if c.Storage.Backend == localstore.KindSQLite && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required for the sqlite backend")
	}

	return nil
}

// StorageOptions converts the storage section for localstore.Open.
func (c *Config) StorageOptions() localstore.Options {
	return localstore.Options{
		Kind:          c.Storage.Backend,
		Path:          c.Storage.Path,
		RedisAddr:     c.Storage.RedisAddr,
		RedisPassword: c.Storage.RedisPassword,
		RedisDB:       c.Storage.RedisDB,
		RedisPrefix:   c.Storage.RedisPrefix,
	}
}

// TransportOptions converts the API section for transport.NewClient.
func (c *Config) TransportOptions(logger *slog.Logger) transport.Options {
	return transport.Options{
		Timeout:     c.HTTPTimeout,
		Fingerprint: c.API.TLSFingerprint,
		Breaker:     c.API.CircuitBreaker == nil || *c.API.CircuitBreaker,
		Logger:      logger,
	}
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
