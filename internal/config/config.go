// Package config loads Plurcast's per-user TOML configuration file and
// layers a small set of environment-variable overrides on top of it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Env var names that override file-based configuration, per spec §6.
const (
	ConfigPathEnvVar  = "PLURCAST_CONFIG"
	DatabasePathEnvVar = "PLURCAST_DATABASE_PATH"
	PassphraseEnvVar  = "PLURCAST_CREDENTIAL_PASSPHRASE"
)

// CredentialBackend names the three credential storage tiers (spec §4.1).
type CredentialBackend string

const (
	BackendKeyring   CredentialBackend = "keyring"
	BackendEncrypted CredentialBackend = "encrypted"
	BackendPlain     CredentialBackend = "plain"
)

// DatabaseConfig is the `[database]` section.
type DatabaseConfig struct {
	Path string `toml:"path" validate:"required"`
}

// CredentialsConfig is the `[credentials]` section.
type CredentialsConfig struct {
	Storage CredentialBackend `toml:"storage" validate:"required,oneof=keyring encrypted plain"`
	Path    string            `toml:"path" validate:"required"`
}

// PlatformConfig is one `[<platform>]` section.
type PlatformConfig struct {
	Enabled        bool              `toml:"enabled"`
	CharacterLimit int               `toml:"character_limit"`
	Extra          map[string]string `toml:"-"`
}

// DefaultsConfig is the `[defaults]` section.
type DefaultsConfig struct {
	Platforms []string `toml:"platforms"`
}

// RateLimitConfig is one entry of `[scheduling.rate_limits]`.
type RateLimitConfig struct {
	PostsPerHour int `toml:"posts_per_hour" validate:"gte=0"`
}

// SchedulingConfig is the `[scheduling]` section.
type SchedulingConfig struct {
	PollInterval           int                        `toml:"poll_interval" validate:"gte=1"`
	MaxRetries             int                        `toml:"max_retries" validate:"gte=0"`
	RetryDelay             int                        `toml:"retry_delay" validate:"gte=0"`
	StartupDelay           int                        `toml:"startup_delay" validate:"gte=0"`
	InterRetryDelay        int                        `toml:"inter_retry_delay" validate:"gte=0"`
	MaxRetriesPerIteration int                        `toml:"max_retries_per_iteration" validate:"gte=1"`
	MetricsAddr            string                     `toml:"metrics_addr"`
	RateLimits             map[string]RateLimitConfig `toml:"rate_limits"`
}

// Config is the full parsed TOML config file, §6.
type Config struct {
	Database    DatabaseConfig            `toml:"database" validate:"required"`
	Credentials CredentialsConfig         `toml:"credentials" validate:"required"`
	Platforms   map[string]PlatformConfig `toml:"-"`
	Defaults    DefaultsConfig            `toml:"defaults"`
	Scheduling  SchedulingConfig          `toml:"scheduling" validate:"required"`

	// LogLevel/LogFormat are ambient, not part of spec §6's enumerated
	// sections, but every binary needs them; they live alongside
	// `[defaults]` in the file as top-level keys.
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// envOverrides holds the three environment variables layered over file config.
type envOverrides struct {
	ConfigPath   string `env:"PLURCAST_CONFIG"`
	DatabasePath string `env:"PLURCAST_DATABASE_PATH"`
	Passphrase   string `env:"PLURCAST_CREDENTIAL_PASSPHRASE"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultConfigDir returns `<user_config_dir>/plurcast`.
func DefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config dir: %w", err)
	}
	return filepath.Join(dir, "plurcast"), nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ResolvePath determines the config file path: the env override if set,
// else the default user-config-dir location.
func ResolvePath() (string, error) {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return "", fmt.Errorf("parsing config env overrides: %w", err)
	}
	if ov.ConfigPath != "" {
		return ov.ConfigPath, nil
	}
	return DefaultConfigPath()
}

// Load reads the TOML config file at path (or the resolved default path if
// path is empty), applies environment overrides, validates the result, and
// returns it. A missing file is an error — callers that want bootstrap
// behavior should check os.IsNotExist and call WriteDefault first.
func Load(path string) (*Config, error) {
	var err error
	if path == "" {
		path, err = ResolvePath()
		if err != nil {
			return nil, err
		}
	}

	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	cfg.Platforms = decodePlatformSections(&meta, path)

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("config: parsing env overrides: %w", err)
	}
	if ov.DatabasePath != "" {
		cfg.Database.Path = ov.DatabasePath
	}

	applyDefaults(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validating %s: %w", path, err)
	}

	return &cfg, nil
}

// decodePlatformSections re-decodes the raw TOML to pick out every top-level
// table that isn't one of the reserved section names, treating it as a
// per-platform config block (spec §6: `[<platform>] enabled = bool, ...`).
func decodePlatformSections(_ *toml.MetaData, path string) map[string]PlatformConfig {
	var generic map[string]any
	if _, err := toml.DecodeFile(path, &generic); err != nil {
		return map[string]PlatformConfig{}
	}

	reserved := map[string]bool{
		"database": true, "credentials": true, "defaults": true,
		"scheduling": true, "log_level": true, "log_format": true,
	}

	out := map[string]PlatformConfig{}
	for name, v := range generic {
		if reserved[name] {
			continue
		}
		section, ok := v.(map[string]any)
		if !ok {
			continue
		}
		pc := PlatformConfig{Extra: map[string]string{}}
		if enabled, ok := section["enabled"].(bool); ok {
			pc.Enabled = enabled
		}
		if lim, ok := section["character_limit"].(int64); ok {
			pc.CharacterLimit = int(lim)
		}
		for k, v := range section {
			if k == "enabled" || k == "character_limit" {
				continue
			}
			pc.Extra[k] = fmt.Sprintf("%v", v)
		}
		out[name] = pc
	}
	return out
}

// applyDefaults fills in the scheduling defaults named in spec §4.8 when the
// TOML file omits them (a zero value in the file is indistinguishable from
// "not set" for these fields, and 0 is never a sane operational value).
func applyDefaults(cfg *Config) {
	if cfg.Scheduling.PollInterval == 0 {
		cfg.Scheduling.PollInterval = 60
	}
	if cfg.Scheduling.MaxRetries == 0 {
		cfg.Scheduling.MaxRetries = 3
	}
	if cfg.Scheduling.RetryDelay == 0 {
		cfg.Scheduling.RetryDelay = 300
	}
	if cfg.Scheduling.InterRetryDelay == 0 {
		cfg.Scheduling.InterRetryDelay = 5
	}
	if cfg.Scheduling.MaxRetriesPerIteration == 0 {
		cfg.Scheduling.MaxRetriesPerIteration = 10
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// RateLimitFor returns the configured posts-per-hour limit for platform,
// falling back to a conservative built-in default when unconfigured.
func (c *Config) RateLimitFor(platform string) int {
	if rl, ok := c.Scheduling.RateLimits[platform]; ok && rl.PostsPerHour > 0 {
		return rl.PostsPerHour
	}
	switch platform {
	case "nostr":
		return 100
	case "mastodon":
		return 300
	default:
		return 60
	}
}

// CredentialPassphrase resolves the encrypted-backend passphrase from the
// environment override (spec §6: "Master passphrase ... via an environment
// variable to enable non-interactive use").
func CredentialPassphrase() (string, bool) {
	v, ok := os.LookupEnv(PassphraseEnvVar)
	return v, ok
}

// WriteDefault writes a minimal, valid config file to path, creating parent
// directories as needed. Used by the setup driver (spec §6 Setup tool).
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("config: creating directory for %s: %w", path, err)
	}

	dbPath := filepath.Join(filepath.Dir(path), "plurcast.db")
	credPath := filepath.Join(filepath.Dir(path), "credentials")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("config: creating %s: %w", path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	doc := struct {
		Database    DatabaseConfig    `toml:"database"`
		Credentials CredentialsConfig `toml:"credentials"`
		Defaults    DefaultsConfig    `toml:"defaults"`
		Scheduling  SchedulingConfig  `toml:"scheduling"`
		LogLevel    string            `toml:"log_level"`
		LogFormat   string            `toml:"log_format"`
	}{
		Database:    DatabaseConfig{Path: dbPath},
		Credentials: CredentialsConfig{Storage: BackendKeyring, Path: credPath},
		Defaults:    DefaultsConfig{Platforms: []string{}},
		Scheduling: SchedulingConfig{
			PollInterval: 60, MaxRetries: 3, RetryDelay: 300,
			StartupDelay: 10, InterRetryDelay: 5, MaxRetriesPerIteration: 10,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("config: encoding default config: %w", err)
	}
	return nil
}
