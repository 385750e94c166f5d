// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package config loads service configuration from a YAML file overlaid
// with command-line flags.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full service configuration.
type Config struct {
	Log           Log           `koanf:"log"`
	HTTP          HTTP          `koanf:"http"`
	Observability Observability `koanf:"observability"`
	Database      Database      `koanf:"database"`
	Auth          Auth          `koanf:"auth"`
	Workspace     Workspace     `koanf:"workspace"`
}

// Log configures structured logging.
type Log struct {
	Format string `koanf:"format"` // json or text
	Level  string `koanf:"level"`  // debug, info, warn, error
}

// HTTP configures the API listener.
type HTTP struct {
	Addr string `koanf:"addr"`
}

// Observability configures the metrics/health listener.
type Observability struct {
	Addr string `koanf:"addr"`
}

// Database configures PostgreSQL.
type Database struct {
	URL string `koanf:"url"`
}

// Auth configures session and one-time code lifetimes.
type Auth struct {
	SessionTTL   time.Duration `koanf:"session_ttl"`
	OTPTTL       time.Duration `koanf:"otp_ttl"`
	OTPResendTTL time.Duration `koanf:"otp_resend_ttl"`
	// InviteMailTTL throttles invite mail per workspace.
	InviteMailTTL time.Duration `koanf:"invite_mail_ttl"`
}

// Workspace configures tenant policy.
type Workspace struct {
	// AllowPublicCreation grants every verified user the right to create
	// workspaces. Off by default: only operators provision tenants.
	AllowPublicCreation bool `koanf:"allow_public_creation"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:           Log{Format: "json", Level: "info"},
		HTTP:          HTTP{Addr: ":8080"},
		Observability: Observability{Addr: ":9100"},
		Auth: Auth{
			SessionTTL:    30 * 24 * time.Hour,
			OTPTTL:        10 * time.Minute,
			OTPResendTTL:  30 * time.Second,
			InviteMailTTL: time.Minute,
		},
	}
}

// Load reads path (optional) and overlays flags (optional) onto the
// defaults. A missing file is only an error when the path was given
// explicitly.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, oops.Code("CONFIG_FILE_MISSING").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	if c.HTTP.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("http.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	for name, d := range map[string]time.Duration{
		"auth.session_ttl":     c.Auth.SessionTTL,
		"auth.otp_ttl":         c.Auth.OTPTTL,
		"auth.otp_resend_ttl":  c.Auth.OTPResendTTL,
		"auth.invite_mail_ttl": c.Auth.InviteMailTTL,
	} {
		if d <= 0 {
			return oops.Code("CONFIG_INVALID").Errorf("%s must be positive", name)
		}
	}
	return nil
}
