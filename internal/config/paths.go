package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"

	"github.com/swiftos/birdy/internal/messages"
)

// Defaults for every key.
const (
	DefaultRegistryURL      = "http://127.0.0.1:5000"
	DefaultRegistryTimeout  = 30 * time.Second
	DefaultMaxDownloadBytes = int64(512 * 1024 * 1024)
	DefaultManifestPath     = "/var/lib/birdy/data.json"
	DefaultInstallRoot      = "/"
	DefaultLockTimeout      = 30 * time.Second
	DefaultMaxEntryBytes    = int64(1024 * 1024 * 1024)
	DefaultLogLevel         = "warn"
	DefaultLogFormat        = "console"
	DefaultOrder            = "lexical"
)

var userConfigDir = os.UserConfigDir

// Defaults returns a Config populated with default values.
func Defaults() Config {
	return Config{
		Registry: RegistryConfig{
			URL:              DefaultRegistryURL,
			Timeout:          Duration{DefaultRegistryTimeout},
			MaxDownloadBytes: DefaultMaxDownloadBytes,
		},
		Paths: PathsConfig{
			Manifest:    DefaultManifestPath,
			CacheDir:    filepath.Join(os.TempDir(), "birdy"),
			DefaultRoot: DefaultInstallRoot,
		},
		Resolve:  ResolveConfig{Order: DefaultOrder},
		Manifest: ManifestConfig{LockTimeout: Duration{DefaultLockTimeout}},
		Install:  InstallConfig{MaxEntryBytes: DefaultMaxEntryBytes},
		Log:      LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", fmt.Errorf(messages.ConfigUserDirFmt, err)
	}
	return filepath.Join(dir, "birdy", "config.toml"), nil
}

// expandPath expands a leading "~" and makes p absolute. Empty stays empty.
func expandPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf(messages.ConfigExpandPathFmt, p, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf(messages.ConfigExpandPathFmt, p, err)
	}
	return abs, nil
}
