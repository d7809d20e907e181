// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads holoauth configuration from defaults, a YAML file,
// HOLOAUTH_ environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/logging"
	"github.com/holomush/holoauth/internal/xdg"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys are separated by a double underscore: HOLOAUTH_AUTH__TOKEN_TTL.
const EnvPrefix = "HOLOAUTH_"

// Directory backends.
const (
	DirectoryPostgres = "postgres"
	DirectoryMemory   = "memory"
)

// Config is the complete holoauth configuration.
type Config struct {
	Environment string         `koanf:"environment" json:"environment" jsonschema:"enum=development,enum=test,enum=staging,enum=production"`
	Server      ServerConfig   `koanf:"server" json:"server"`
	Metrics     MetricsConfig  `koanf:"metrics" json:"metrics"`
	Log         LogConfig      `koanf:"log" json:"log"`
	Database    DatabaseConfig `koanf:"database" json:"database"`
	Directory   string         `koanf:"directory" json:"directory" jsonschema:"enum=postgres,enum=memory"`
	Auth        AuthConfig     `koanf:"auth" json:"auth"`
}

// ServerConfig configures the public HTTP listener.
type ServerConfig struct {
	Addr               string        `koanf:"addr" json:"addr"`
	ReadHeaderTimeout  time.Duration `koanf:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins" json:"cors_allowed_origins"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// DatabaseConfig configures PostgreSQL access.
type DatabaseConfig struct {
	URL             string `koanf:"url" json:"url"`
	AutoMigrate     bool   `koanf:"auto_migrate" json:"auto_migrate"`
	ConnectAttempts uint64 `koanf:"connect_attempts" json:"connect_attempts" jsonschema:"minimum=1"`
}

// AuthConfig configures token issuance and password hashing.
type AuthConfig struct {
	Secret                  string          `koanf:"secret" json:"secret"`
	Issuer                  string          `koanf:"issuer" json:"issuer"`
	TokenTTL                time.Duration   `koanf:"token_ttl" json:"token_ttl"`
	ShortTokenTTL           time.Duration   `koanf:"short_token_ttl" json:"short_token_ttl"`
	RegistrationTokenPolicy string          `koanf:"registration_token_policy" json:"registration_token_policy" jsonschema:"enum=lenient,enum=strict"`
	Hash                    auth.HashParams `koanf:"hash" json:"hash"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Environment: "development",
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Metrics:   MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:       LogConfig{Format: "json", Level: "info"},
		Database:  DatabaseConfig{ConnectAttempts: 5},
		Directory: DirectoryPostgres,
		Auth: AuthConfig{
			Issuer:                  auth.DefaultIssuer,
			TokenTTL:                auth.DefaultSessionTTL,
			ShortTokenTTL:           auth.DefaultShortLivedTTL,
			RegistrationTokenPolicy: string(auth.PolicyLenient),
			Hash:                    auth.DefaultHashParams(),
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":         "server.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"directory":    "directory",
	"auto-migrate": "database.auto_migrate",
	"database-url": "database.url",
}

// Load builds a Config. path names a YAML file; when empty the XDG config
// file is used if it exists. Only flags the user changed override lower
// layers; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		if candidate := xdg.ConfigFile(); fileExists(candidate) {
			path = candidate
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagKey), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	return &cfg, nil
}

// envKey turns HOLOAUTH_AUTH__TOKEN_TTL into auth.token_ttl.
func envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if key == "server.cors_allowed_origins" {
		return key, splitList(value)
	}
	return key, value
}

func flagKey(f *pflag.Flag) (string, any) {
	key, ok := flagKeys[f.Name]
	if !ok || !f.Changed {
		return "", nil
	}
	return key, f.Value.String()
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// SecureCookies reports whether session cookies must carry the Secure flag.
func (c *Config) SecureCookies() bool {
	switch c.Environment {
	case "production", "staging":
		return true
	default:
		return false
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, key, msg string) {
		if !ok {
			errs = append(errs, oops.With("key", key).Errorf("%s: %s", key, msg))
		}
	}

	check(len(c.Auth.Secret) >= auth.MinSecretLength, "auth.secret", "must be at least 32 bytes")
	check(c.Auth.Issuer != "", "auth.issuer", "must not be empty")
	check(c.Auth.TokenTTL > 0, "auth.token_ttl", "must be positive")
	check(c.Auth.ShortTokenTTL > 0, "auth.short_token_ttl", "must be positive")
	check(auth.RegistrationTokenPolicy(c.Auth.RegistrationTokenPolicy).Valid(),
		"auth.registration_token_policy", "must be lenient or strict")
	if err := c.Auth.Hash.Validate(); err != nil {
		errs = append(errs, oops.With("key", "auth.hash").Errorf("auth.hash: %s", err.Error()))
	}

	check(c.Log.Format == "json" || c.Log.Format == "text", "log.format", "must be json or text")
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		check(false, "log.level", "must be debug, info, warn or error")
	}
	check(c.Server.Addr != "", "server.addr", "must not be empty")
	check(c.Server.ShutdownTimeout > 0, "server.shutdown_timeout", "must be positive")

	switch c.Directory {
	case DirectoryPostgres:
		check(c.Database.URL != "", "database.url", "required when directory is postgres")
	case DirectoryMemory:
	default:
		check(false, "directory", "must be postgres or memory")
	}

	if len(errs) > 0 {
		return oops.Code("CONFIG_INVALID").Wrap(errors.Join(errs...))
	}
	return nil
}
