// Package config loads birdy's TOML configuration and applies environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/swiftos/birdy/internal/messages"
)

// Config is the full birdy configuration.
type Config struct {
	Registry RegistryConfig `toml:"registry"`
	Paths    PathsConfig    `toml:"paths"`
	Resolve  ResolveConfig  `toml:"resolve"`
	Manifest ManifestConfig `toml:"manifest"`
	Install  InstallConfig  `toml:"install"`
	Remove   RemoveConfig   `toml:"remove"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// RegistryConfig locates the package registry.
type RegistryConfig struct {
	URL     string   `toml:"url" validate:"required,url"`
	Timeout Duration `toml:"timeout"`
	// Retries applies to network errors and 5xx responses only.
	Retries          int   `toml:"retries" validate:"gte=0,lte=10"`
	MaxDownloadBytes int64 `toml:"max_download_bytes" validate:"gt=0"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	Manifest    string `toml:"manifest" validate:"required"`
	CacheDir    string `toml:"cache_dir" validate:"required"`
	DefaultRoot string `toml:"default_root" validate:"required"`
}

// ResolveConfig controls version resolution.
type ResolveConfig struct {
	Order string `toml:"order" validate:"oneof=lexical semver"`
}

// ManifestConfig controls manifest access.
type ManifestConfig struct {
	RecoverCorrupt bool     `toml:"recover_corrupt"`
	LockTimeout    Duration `toml:"lock_timeout"`
}

// InstallConfig controls extraction.
type InstallConfig struct {
	Staged        bool  `toml:"staged"`
	MaxEntryBytes int64 `toml:"max_entry_bytes" validate:"gt=0"`
}

// RemoveConfig controls removal.
type RemoveConfig struct {
	IgnoreMissing bool `toml:"ignore_missing"`
}

// LogConfig controls diagnostic logging on stderr.
type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `toml:"format" validate:"oneof=console json"`
}

// MetricsConfig controls the node_exporter textfile written after each command.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// Duration is a time.Duration written as a Go duration string ("30s", "2m").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf(messages.ConfigInvalidDurationFmt, string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
