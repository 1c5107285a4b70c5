// Package cache keeps downloaded package archives keyed by name and version.
package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/fsutil"
	"github.com/swiftos/birdy/internal/messages"
	"github.com/swiftos/birdy/internal/telemetry"
)

// ArchiveSuffix is the file extension of every cached archive.
const ArchiveSuffix = ".tar.gz"

var (
	osCreateTemp = os.CreateTemp
	osRename     = os.Rename
	osStat       = os.Stat
)

// Downloader writes the registry archive for name at version into dest.
type Downloader interface {
	Download(ctx context.Context, name string, version string, dest *os.File) (int64, error)
}

// Fetcher ensures a local archive exists for a package version, downloading only on a miss.
// A cached archive is trusted as-is.
type Fetcher struct {
	dir         string
	source      Downloader
	lockTimeout time.Duration
	progress    io.Writer
	metrics     *telemetry.Metrics
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithProgress writes download progress lines to w.
func WithProgress(w io.Writer) Option {
	return func(f *Fetcher) {
		if w != nil {
			f.progress = w
		}
	}
}

// WithLockTimeout bounds how long Fetch waits for a concurrent download of the same archive.
func WithLockTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.lockTimeout = d
	}
}

// WithMetrics records cache lookups and download volume on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// NewFetcher returns a Fetcher storing archives under dir.
func NewFetcher(dir string, source Downloader, opts ...Option) *Fetcher {
	f := &Fetcher{
		dir:      dir,
		source:   source,
		progress: io.Discard,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Dir returns the cache directory.
func (f *Fetcher) Dir() string {
	return f.dir
}

// Path returns the deterministic cache location for name at version.
func (f *Fetcher) Path(name string, version string) (string, error) {
	if err := ValidateComponent("name", name); err != nil {
		return "", err
	}
	if err := ValidateComponent("version", version); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, name, version+ArchiveSuffix), nil
}

// ValidateComponent rejects values that cannot be used as a single path element.
func ValidateComponent(field string, value string) error {
	switch {
	case strings.TrimSpace(value) == "":
		return errs.New(errs.ErrInvalidInput, fmt.Sprintf(messages.CacheEmptyComponentFmt, field))
	case value == "." || value == "..",
		strings.ContainsAny(value, `/\`),
		strings.ContainsRune(value, 0):
		return errs.New(errs.ErrInvalidInput, fmt.Sprintf(messages.CacheInvalidComponentFmt, field, value))
	}
	return nil
}

// Fetch returns the local archive path for name at version, downloading it on a miss.
// The archive appears at its final path only after the download completed.
func (f *Fetcher) Fetch(ctx context.Context, name string, version string) (string, error) {
	archivePath, err := f.Path(name, version)
	if err != nil {
		return "", err
	}
	logger := zerolog.Ctx(ctx).With().Str("archive", archivePath).Logger()

	if hit, err := cached(archivePath); err != nil {
		return "", errs.Wrap(errs.ErrFetch, name+"@"+version, err)
	} else if hit {
		f.metrics.ObserveCacheLookup(true)
		logger.Debug().Msg("archive cache hit")
		return archivePath, nil
	}
	if f.source == nil {
		return "", errs.New(errs.ErrFetch, messages.CacheSourceRequired)
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return "", errs.Wrap(errs.ErrFetch, name+"@"+version, fmt.Errorf(messages.CacheCreateDirFmt, err))
	}

	hitUnderLock := false
	err = fsutil.WithFileLock(archivePath+".lock", f.lockTimeout, func() error {
		// Another process may have finished the download while we waited.
		if hit, err := cached(archivePath); err != nil {
			return err
		} else if hit {
			hitUnderLock = true
			return nil
		}
		return f.download(ctx, logger, name, version, archivePath)
	})
	if err != nil {
		return "", errs.Wrap(errs.ErrFetch, name+"@"+version, err)
	}
	f.metrics.ObserveCacheLookup(hitUnderLock)
	return archivePath, nil
}

func (f *Fetcher) download(ctx context.Context, logger zerolog.Logger, name string, version string, archivePath string) error {
	tmp, err := osCreateTemp(filepath.Dir(archivePath), "."+filepath.Base(archivePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf(messages.CacheCreateTempFmt, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	_, _ = fmt.Fprintf(f.progress, messages.CacheDownloadingFmt, name, version)
	n, err := f.source.Download(ctx, name, version, tmp)
	if err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf(messages.CacheSyncTempFmt, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf(messages.CacheCloseTempFmt, err)
	}
	if err := osRename(tmpName, archivePath); err != nil {
		return fmt.Errorf(messages.CacheMoveArchiveFmt, err)
	}
	committed = true
	f.metrics.AddDownloadBytes(n)
	logger.Debug().Int64("bytes", n).Msg("archive downloaded")
	return nil
}

// Evict deletes the cached archive for name at version. A missing archive is not an error.
func (f *Fetcher) Evict(name string, version string) error {
	archivePath, err := f.Path(name, version)
	if err != nil {
		return err
	}
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf(messages.CacheEvictFmt, archivePath, err)
	}
	// Only an empty package directory is removed; a lock file keeps it alive.
	_ = os.Remove(filepath.Dir(archivePath))
	return nil
}

// Clean deletes every cached archive and returns how many were removed.
func (f *Fetcher) Clean() (int, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf(messages.CacheReadDirFmt, f.dir, err)
	}
	removed := 0
	for _, pkg := range entries {
		if !pkg.IsDir() {
			continue
		}
		pkgDir := filepath.Join(f.dir, pkg.Name())
		archives, err := os.ReadDir(pkgDir)
		if err != nil {
			return removed, fmt.Errorf(messages.CacheReadDirFmt, pkgDir, err)
		}
		for _, archive := range archives {
			if archive.IsDir() || !strings.HasSuffix(archive.Name(), ArchiveSuffix) {
				continue
			}
			if err := os.Remove(filepath.Join(pkgDir, archive.Name())); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf(messages.CacheEvictFmt, filepath.Join(pkgDir, archive.Name()), err)
			}
			removed++
		}
		if err := os.RemoveAll(pkgDir); err != nil {
			return removed, fmt.Errorf(messages.CacheEvictFmt, pkgDir, err)
		}
	}
	return removed, nil
}

func cached(path string) (bool, error) {
	info, err := osStat(path)
	if err == nil {
		return info.Mode().IsRegular(), nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf(messages.CacheCheckArchiveFmt, path, err)
}
