package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/swiftos/birdy/internal/archive"
	"github.com/swiftos/birdy/internal/cache"
	"github.com/swiftos/birdy/internal/config"
	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/manifest"
	"github.com/swiftos/birdy/internal/messages"
	"github.com/swiftos/birdy/internal/registry"
	"github.com/swiftos/birdy/internal/resolver"
	"github.com/swiftos/birdy/internal/telemetry"
	"github.com/swiftos/birdy/internal/txn"
	"github.com/swiftos/birdy/internal/version"
)

var lookupEnv = os.LookupEnv

// app is the set of collaborators one command invocation works with.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	resolver *resolver.Resolver
	fetcher  *cache.Fetcher
	store    *manifest.Store
}

// withApp builds the app for cmd before running fn and flushes metrics afterwards.
func withApp(opts *rootOptions, fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, opts)
		if err != nil {
			return err
		}
		defer a.flushMetrics()
		return fn(cmd, args, a)
	}
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := telemetry.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, invalidConfig(err)
	}
	cmd.SetContext(logger.WithContext(cmd.Context()))

	client, err := registry.New(cfg.Registry.URL,
		registry.WithHTTPClient(&http.Client{Timeout: cfg.Registry.Timeout.Duration}),
		registry.WithRetries(cfg.Registry.Retries),
		registry.WithMaxDownloadBytes(cfg.Registry.MaxDownloadBytes),
		registry.WithUserAgent(messages.RootUse+"/"+Version),
	)
	if err != nil {
		return nil, invalidConfig(err)
	}
	order, err := version.ParseOrder(cfg.Resolve.Order)
	if err != nil {
		return nil, invalidConfig(err)
	}

	metrics := telemetry.NewMetrics()
	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		resolver: resolver.New(client, order),
		fetcher: cache.NewFetcher(cfg.Paths.CacheDir, client,
			cache.WithProgress(cmd.OutOrStdout()),
			cache.WithLockTimeout(cfg.Manifest.LockTimeout.Duration),
			cache.WithMetrics(metrics),
		),
		store: manifest.NewStore(cfg.Paths.Manifest,
			manifest.WithRecoverCorrupt(cfg.Manifest.RecoverCorrupt),
			manifest.WithLockTimeout(cfg.Manifest.LockTimeout.Duration),
		),
	}, nil
}

// loadConfig layers the config file, BIRDY_* environment variables and flags.
// A file named by --config or BIRDY_CONFIG must exist; the per-user default may not.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	path := strings.TrimSpace(opts.configPath)
	required := path != ""
	if !required {
		if env, ok := lookupEnv(config.EnvConfig); ok && strings.TrimSpace(env) != "" {
			path = strings.TrimSpace(env)
			required = true
		}
	}
	if !required {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}

	cfg := config.Defaults()
	if path != "" {
		loaded, err := config.Load(path, required)
		if err != nil {
			return nil, invalidConfig(err)
		}
		cfg = *loaded
	}
	cfg.ApplyEnv(lookupEnv)
	opts.apply(&cfg)
	if err := cfg.Finalize(); err != nil {
		return nil, invalidConfig(err)
	}
	return &cfg, nil
}

// apply overrides cfg with flags that were set.
func (o *rootOptions) apply(cfg *config.Config) {
	set := func(value string, dst *string) {
		if v := strings.TrimSpace(value); v != "" {
			*dst = v
		}
	}
	set(o.manifest, &cfg.Paths.Manifest)
	set(o.cacheDir, &cfg.Paths.CacheDir)
	set(o.registry, &cfg.Registry.URL)
	set(o.logLevel, &cfg.Log.Level)
	set(o.logFormat, &cfg.Log.Format)
	if o.verbose {
		cfg.Log.Level = zerolog.LevelDebugValue
	}
	if o.recoverCorrupt {
		cfg.Manifest.RecoverCorrupt = true
	}
}

func invalidConfig(err error) error {
	return fmt.Errorf("%w: "+messages.ConfigLoadFmt, errs.ErrInvalidInput, err)
}

func (a *app) installer(staged bool) *txn.Installer {
	return &txn.Installer{
		Resolver: a.resolver,
		Fetcher:  a.fetcher,
		Extractor: archive.Extractor{
			MaxEntryBytes: a.cfg.Install.MaxEntryBytes,
			Staged:        staged || a.cfg.Install.Staged,
		},
		Manifest: a.store,
		Metrics:  a.metrics,
	}
}

func (a *app) remover(ignoreMissing bool, confirm txn.ConfirmFunc) *txn.Remover {
	return &txn.Remover{
		Resolver:      a.resolver,
		Manifest:      a.store,
		System:        txn.RealSystem{},
		IgnoreMissing: ignoreMissing || a.cfg.Remove.IgnoreMissing,
		Confirm:       confirm,
		Metrics:       a.metrics,
	}
}

// flushMetrics writes the textfile when one is configured. Failures only warn.
func (a *app) flushMetrics() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn().Err(err).Str("path", a.cfg.Metrics.Textfile).Msg(messages.MetricsWriteWarn)
	}
}
