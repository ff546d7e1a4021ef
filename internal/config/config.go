// Package config loads sso CLI configuration from a TOML file with
// environment variable and CLI flag overrides. Precedence is
// defaults -> config file -> environment -> CLI flags.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the TOML file schema. All durations are expressed in the units
// their key names state; Resolved converts them to time.Duration.
type Config struct {
	AuthBaseURL string `toml:"auth_base_url"`
	APIBaseURL  string `toml:"api_base_url"`
	ClientID    string `toml:"client_id"`
	LogLevel    string `toml:"log_level"`

	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	SkewBufferSeconds     int `toml:"skew_buffer_seconds"`
	RenewAheadMinutes     int `toml:"renew_ahead_minutes"`
	CoalesceWindowSeconds int `toml:"coalesce_window_seconds"`
	DefaultTTLMinutes     int `toml:"default_ttl_minutes"`

	CredentialsPath string `toml:"credentials_path"`
	HistoryDBPath   string `toml:"history_db_path"`
}

// Defaults for the lifecycle tuning knobs. The skew buffer and coalescing
// window values follow the server deployment's observed clock drift and
// retry burst patterns; they are tunables, not contracts.
const (
	defaultRequestTimeoutSeconds = 10
	defaultSkewBufferSeconds     = 100
	defaultRenewAheadMinutes     = 2
	defaultCoalesceWindowSeconds = 5
	defaultTTLMinutes            = 30
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		AuthBaseURL:           "http://localhost:9000",
		APIBaseURL:            "http://localhost:9001",
		ClientID:              "webapp-client",
		LogLevel:              "info",
		RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
		SkewBufferSeconds:     defaultSkewBufferSeconds,
		RenewAheadMinutes:     defaultRenewAheadMinutes,
		CoalesceWindowSeconds: defaultCoalesceWindowSeconds,
		DefaultTTLMinutes:     defaultTTLMinutes,
		CredentialsPath:       filepath.Join(stateDir(), "credentials.json"),
		HistoryDBPath:         filepath.Join(stateDir(), "history.db"),
	}
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(stateDir(), "config.toml")
}

// stateDir is where the config file, credential file, and history database
// live by default.
func stateDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}

	return filepath.Join(base, "sso")
}

// Resolved is the effective configuration after the override chain, with
// durations converted for direct use.
type Resolved struct {
	AuthBaseURL string
	APIBaseURL  string
	ClientID    string
	LogLevel    string

	RequestTimeout time.Duration
	SkewBuffer     time.Duration
	RenewAhead     time.Duration
	CoalesceWindow time.Duration
	DefaultTTL     time.Duration

	CredentialsPath string
	HistoryDBPath   string
}

// resolved converts a merged Config into a Resolved.
func (c *Config) resolved() *Resolved {
	return &Resolved{
		AuthBaseURL:     c.AuthBaseURL,
		APIBaseURL:      c.APIBaseURL,
		ClientID:        c.ClientID,
		LogLevel:        c.LogLevel,
		RequestTimeout:  time.Duration(c.RequestTimeoutSeconds) * time.Second,
		SkewBuffer:      time.Duration(c.SkewBufferSeconds) * time.Second,
		RenewAhead:      time.Duration(c.RenewAheadMinutes) * time.Minute,
		CoalesceWindow:  time.Duration(c.CoalesceWindowSeconds) * time.Second,
		DefaultTTL:      time.Duration(c.DefaultTTLMinutes) * time.Minute,
		CredentialsPath: c.CredentialsPath,
		HistoryDBPath:   c.HistoryDBPath,
	}
}
