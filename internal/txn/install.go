package txn

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/swiftos/birdy/internal/archive"
	"github.com/swiftos/birdy/internal/cache"
	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/manifest"
	"github.com/swiftos/birdy/internal/messages"
	"github.com/swiftos/birdy/internal/telemetry"
)

// Resolver picks the version a transaction acts on.
type Resolver interface {
	Resolve(ctx context.Context, name string, requested string) (string, error)
}

// Fetcher provides a local archive for a package version and discards it afterwards.
type Fetcher interface {
	Fetch(ctx context.Context, name string, version string) (string, error)
	Evict(name string, version string) error
}

// Extractor unpacks an archive onto a root and reports what it wrote.
type Extractor interface {
	Extract(archivePath string, root string) ([]archive.Entry, error)
}

// ManifestAppender records an installed package.
type ManifestAppender interface {
	Append(rec manifest.Record) error
}

// Installer runs install transactions.
type Installer struct {
	Resolver  Resolver
	Fetcher   Fetcher
	Extractor Extractor
	Manifest  ManifestAppender
	Metrics   *telemetry.Metrics
}

// InstallRequest names what to install and where. An empty Version installs the latest.
type InstallRequest struct {
	Name    string
	Version string
	Root    string
}

// InstallResult describes a completed install.
type InstallResult struct {
	Record      manifest.Record
	ArchivePath string
	// CleanupErr is set when the cached archive could not be removed. The install
	// itself still succeeded.
	CleanupErr error
}

// Install resolves, fetches, extracts and records a package, then discards the cached archive.
// The manifest is only written after extraction succeeded.
func (in *Installer) Install(ctx context.Context, req InstallRequest) (result InstallResult, err error) {
	if err := in.validate(); err != nil {
		return InstallResult{}, err
	}
	if err := cache.ValidateComponent("name", req.Name); err != nil {
		return InstallResult{}, &StageError{Op: OpInstall, Name: req.Name, Stage: StageValidate, Err: err}
	}
	root, err := installRoot(req.Root)
	if err != nil {
		return InstallResult{}, &StageError{Op: OpInstall, Name: req.Name, Stage: StageValidate, Err: err}
	}

	ctx, _ = telemetry.WithTransaction(ctx, string(OpInstall), req.Name)
	ctx, span := telemetry.StartSpan(ctx, "birdy.install",
		attribute.String("package", req.Name),
		attribute.String("root", root))
	logger := zerolog.Ctx(ctx)
	started := time.Now()
	version := req.Version
	defer func() {
		in.Metrics.ObserveTransaction(string(OpInstall), outcome(err), time.Since(started))
		telemetry.EndSpan(span, err)
		if err != nil {
			logger.Error().Err(err).Str("version", version).Msg("install failed")
		}
	}()

	fail := func(stage Stage, cause error) error {
		return &StageError{Op: OpInstall, Name: req.Name, Version: version, Stage: stage, Err: cause}
	}

	version, err = in.Resolver.Resolve(ctx, req.Name, req.Version)
	if err != nil {
		return InstallResult{}, fail(StageResolve, err)
	}
	if err := cache.ValidateComponent("version", version); err != nil {
		return InstallResult{}, fail(StageResolve, err)
	}
	span.SetAttributes(attribute.String("version", version))
	logger.Debug().Str("version", version).Str("stage", string(StageResolve)).Msg("version resolved")

	archivePath, err := in.Fetcher.Fetch(ctx, req.Name, version)
	if err != nil {
		return InstallResult{}, fail(StageFetch, err)
	}
	logger.Debug().Str("archive", archivePath).Str("stage", string(StageFetch)).Msg("archive ready")

	entries, err := in.Extractor.Extract(archivePath, root)
	if err != nil {
		if len(entries) > 0 {
			logger.Warn().Int("written", len(entries)).Str("root", root).Msg("extraction left partial files in place")
		}
		return InstallResult{}, fail(StageExtract, err)
	}
	logger.Debug().Int("entries", len(entries)).Str("stage", string(StageExtract)).Msg("archive extracted")

	rec := RecordFromEntries(req.Name, version, root, entries)
	if err := in.Manifest.Append(rec); err != nil {
		return InstallResult{}, fail(StagePersist, err)
	}
	logger.Debug().Int("files", len(rec.Files)).Str("stage", string(StagePersist)).Msg("manifest updated")

	result = InstallResult{Record: rec, ArchivePath: archivePath}
	if cleanupErr := in.Fetcher.Evict(req.Name, version); cleanupErr != nil {
		result.CleanupErr = fail(StageCleanup, cleanupErr)
		logger.Warn().Err(cleanupErr).Msg("cached archive was not removed")
	}
	return result, nil
}

func (in *Installer) validate() error {
	switch {
	case in.Resolver == nil:
		return errs.New(errs.ErrInvalidInput, messages.TxnResolverRequired)
	case in.Fetcher == nil:
		return errs.New(errs.ErrInvalidInput, messages.TxnFetcherRequired)
	case in.Extractor == nil:
		return errs.New(errs.ErrInvalidInput, messages.TxnExtractorRequired)
	case in.Manifest == nil:
		return errs.New(errs.ErrInvalidInput, messages.TxnManifestRequired)
	}
	return nil
}

func installRoot(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errs.New(errs.ErrInvalidInput, messages.ArchiveRootRequired)
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", errs.Wrap(errs.ErrInvalidInput, raw, fmt.Errorf(messages.TxnInstallRootFmt, raw, err))
	}
	return abs, nil
}

// RecordFromEntries builds the manifest record for extracted entries. Directories are
// listed apart from files so removal can delete them last.
func RecordFromEntries(name string, version string, root string, entries []archive.Entry) manifest.Record {
	rec := manifest.Record{Name: name, Version: version, Files: []string{}, InstallRoot: root}
	for _, entry := range entries {
		if entry.Kind == archive.KindDir {
			rec.Dirs = append(rec.Dirs, entry.Path)
			continue
		}
		rec.Files = append(rec.Files, entry.Path)
	}
	return rec
}
