package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors: silently ignoring a
// typo in a config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. This supports the zero-config
// first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// checkUnknownKeys rejects keys the schema does not define.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}

	return fmt.Errorf("unknown key(s): %s", strings.Join(keys, ", "))
}

// validate checks invariants the schema cannot express.
func validate(cfg *Config) error {
	if cfg.AuthBaseURL == "" {
		return fmt.Errorf("auth_base_url must not be empty")
	}

	if cfg.APIBaseURL == "" {
		return fmt.Errorf("api_base_url must not be empty")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error (got %q)", cfg.LogLevel)
	}

	if cfg.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive")
	}

	if cfg.SkewBufferSeconds < 0 {
		return fmt.Errorf("skew_buffer_seconds must not be negative")
	}

	if cfg.RenewAheadMinutes < 0 {
		return fmt.Errorf("renew_ahead_minutes must not be negative")
	}

	if cfg.DefaultTTLMinutes <= 0 {
		return fmt.Errorf("default_ttl_minutes must be positive")
	}

	return nil
}

// EnvOverrides holds values read from SSO_* environment variables.
type EnvOverrides struct {
	ConfigPath  string
	AuthBaseURL string
	APIBaseURL  string
	ClientID    string
}

// ReadEnvOverrides reads the supported SSO_* environment variables.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv("SSO_CONFIG"),
		AuthBaseURL: os.Getenv("SSO_AUTH_BASE_URL"),
		APIBaseURL:  os.Getenv("SSO_API_BASE_URL"),
		ClientID:    os.Getenv("SSO_CLIENT_ID"),
	}
}

// CLIOverrides holds values from command-line flags.
type CLIOverrides struct {
	ConfigPath  string
	AuthBaseURL string
	APIBaseURL  string
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// CLI flags always win, matching user expectations for one-off overrides.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.AuthBaseURL != "" {
		cfg.AuthBaseURL = env.AuthBaseURL
	}

	if env.APIBaseURL != "" {
		cfg.APIBaseURL = env.APIBaseURL
	}

	if env.ClientID != "" {
		cfg.ClientID = env.ClientID
	}

	if cli.AuthBaseURL != "" {
		cfg.AuthBaseURL = cli.AuthBaseURL
	}

	if cli.APIBaseURL != "" {
		cfg.APIBaseURL = cli.APIBaseURL
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg.resolved(), nil
}
