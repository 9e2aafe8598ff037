// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"duckflow/internal/domain"
	"duckflow/internal/store"
)

const insecureEncryptionKey = "0000000000000000000000000000000000000000000000000000000000000000"

// DefaultCredentialName is the credential reference the AWS environment
// variables are registered under.
const DefaultCredentialName = "aws_credentials"

// AWSConfig holds object store credentials read from the standard AWS
// environment variables. All fields are optional.
type AWSConfig struct {
	CredentialName  string // reference name stage tasks use (default aws_credentials)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Region          string
	Endpoint        string
}

// Configured returns true when any AWS setting is present.
func (a *AWSConfig) Configured() bool {
	return a.AccessKeyID != "" || a.Region != "" || a.Endpoint != ""
}

// Credential returns the settings as a storage credential.
func (a *AWSConfig) Credential() domain.StorageCredential {
	return domain.StorageCredential{
		Name:           a.CredentialName,
		CredentialType: domain.CredentialTypeS3,
		KeyID:          a.AccessKeyID,
		Secret:         a.SecretAccessKey,
		SessionToken:   a.SessionToken,
		Region:         a.Region,
		Endpoint:       a.Endpoint,
	}
}

// Config holds the configuration for the engine, its HTTP API and the target store.
type Config struct {
	MetaDBPath    string // path to SQLite metastore for run history and credentials
	PipelinesDir  string // directory of pipeline YAML documents
	ListenAddr    string // HTTP listen address (default ":8080")
	EncryptionKey string // 64-char hex string (32-byte AES key) for encrypting stored credentials
	LogLevel      string // log level: debug, info, warn, error (default "info")
	Env           string // environment: "development" (default) or "production"

	// Target store.
	Store store.Config

	// Execution.
	MaxParallel      int           // default task concurrency for pipelines that leave it unset
	SchedulerEnabled bool          // run cron schedules in serve mode (default true)
	ShutdownTimeout  time.Duration // grace period for in-flight runs on shutdown (default 30s)

	// Rate limiting of the HTTP API.
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// PushgatewayURL receives metrics after one-shot CLI runs (optional).
	PushgatewayURL string

	AWS AWSConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
// Credentials are optional; the engine can start without them.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:       os.Getenv("META_DB_PATH"),
		PipelinesDir:     os.Getenv("PIPELINES_DIR"),
		ListenAddr:       os.Getenv("LISTEN_ADDR"),
		EncryptionKey:    os.Getenv("ENCRYPTION_KEY"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		Env:              os.Getenv("ENV"),
		PushgatewayURL:   os.Getenv("PUSHGATEWAY_URL"),
		SchedulerEnabled: parseBoolEnvDefault("SCHEDULER_ENABLED", true),
		Store: store.Config{
			Kind: os.Getenv("STORE_KIND"),
			DSN:  os.Getenv("STORE_DSN"),
		},
		AWS: AWSConfig{
			CredentialName:  os.Getenv("AWS_CREDENTIALS_NAME"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Region:          os.Getenv("AWS_REGION"),
			Endpoint:        os.Getenv("AWS_ENDPOINT_URL"),
		},
	}

	if v := os.Getenv("STORE_EXTENSIONS"); v != "" {
		cfg.Store.Extensions = compactNonEmpty(splitTrim(v))
	}
	if v := os.Getenv("STORE_MAX_CONNS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil && n > 0 {
			cfg.Store.MaxConns = int32(n)
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid STORE_MAX_CONNS %q", v))
		}
	}
	if v := os.Getenv("MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxParallel = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid MAX_PARALLEL %q", v))
		}
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ShutdownTimeout = d
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid SHUTDOWN_TIMEOUT %q", v))
		}
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = compactNonEmpty(splitTrim(v))
	}

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "duckflow_meta.sqlite"
	}
	if cfg.PipelinesDir == "" {
		cfg.PipelinesDir = "pipelines"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Store.Kind == "" {
		cfg.Store.Kind = "duckdb"
	}
	if cfg.MaxParallel == 0 {
		cfg.MaxParallel = 4
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.AWS.CredentialName == "" {
		cfg.AWS.CredentialName = DefaultCredentialName
	}
	if (cfg.AWS.AccessKeyID == "") != (cfg.AWS.SecretAccessKey == "") {
		return nil, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}
	if cfg.EncryptionKey == "" {
		cfg.EncryptionKey = insecureEncryptionKey
		cfg.Warnings = append(cfg.Warnings, "ENCRYPTION_KEY not set: using insecure default. Set ENCRYPTION_KEY in production!")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.EncryptionKey == insecureEncryptionKey {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be set in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func splitTrim(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = stripQuotes(value)
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
