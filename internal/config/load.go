package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/swiftos/birdy/internal/messages"
)

// ErrConfigValidation wraps config validation failures
// (as opposed to TOML syntax or filesystem errors).
var ErrConfigValidation = errors.New("config validation failed")

// Environment overrides, applied after the config file and before command-line flags.
const (
	EnvConfig      = "BIRDY_CONFIG"
	EnvRegistryURL = "BIRDY_REGISTRY_URL"
	EnvManifest    = "BIRDY_MANIFEST"
	EnvCacheDir    = "BIRDY_CACHE_DIR"
	EnvRoot        = "BIRDY_ROOT"
	EnvLogLevel    = "BIRDY_LOG_LEVEL"
)

var osReadFile = os.ReadFile

// Load reads the config file at path on top of Defaults. When required is false a
// missing file yields the defaults; when true it is an error.
// The result still needs Finalize after overrides are applied.
func Load(path string, required bool) (*Config, error) {
	cfg := Defaults()
	data, err := osReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return &cfg, nil
		}
		return nil, fmt.Errorf(messages.ConfigMissingFileFmt, path, err)
	}
	if err := ParseConfig(data, path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseConfig decodes TOML data into cfg, keeping values for keys the data omits.
// source names the data in error messages. Unknown keys are rejected.
func ParseConfig(data []byte, source string, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf(messages.ConfigInvalidConfigFmt, source, err)
	}
	if err := decodeStrict(data); err != nil {
		return fmt.Errorf("%w: "+messages.ConfigUnrecognizedKeysFmt, ErrConfigValidation, source, err)
	}
	return nil
}

// decodeStrict re-decodes the TOML data with strict unknown-field rejection.
func decodeStrict(data []byte) error {
	cfg := Defaults()
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(&cfg)
}

// ApplyEnv overrides fields from environment variables found through lookup.
// Blank values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(EnvRegistryURL, &c.Registry.URL)
	set(EnvManifest, &c.Paths.Manifest)
	set(EnvCacheDir, &c.Paths.CacheDir)
	set(EnvRoot, &c.Paths.DefaultRoot)
	set(EnvLogLevel, &c.Log.Level)
}

// Finalize normalizes paths and enum casing, then validates the result.
func (c *Config) Finalize() error {
	var err error
	for _, p := range []*string{&c.Paths.Manifest, &c.Paths.CacheDir, &c.Paths.DefaultRoot, &c.Metrics.Textfile} {
		if *p, err = expandPath(*p); err != nil {
			return fmt.Errorf("%w: %w", ErrConfigValidation, err)
		}
	}
	c.Registry.URL = strings.TrimSpace(c.Registry.URL)
	c.Resolve.Order = strings.ToLower(strings.TrimSpace(c.Resolve.Order))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	return c.Validate()
}
