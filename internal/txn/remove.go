package txn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sys/unix"

	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/manifest"
	"github.com/swiftos/birdy/internal/messages"
	"github.com/swiftos/birdy/internal/telemetry"
)

// ManifestRemover drops a record once the caller's cleanup succeeded.
type ManifestRemover interface {
	Find(name string, version string) (manifest.Record, bool, error)
	FindAndRemove(name string, version string, cleanup func(manifest.Record) error) (manifest.Record, error)
}

// ConfirmFunc is asked before any file is deleted, without the manifest lock held.
// Returning false aborts the removal.
type ConfirmFunc func(rec manifest.Record) (bool, error)

// Remover runs remove transactions.
type Remover struct {
	// Resolver is consulted only when the request names no version.
	Resolver Resolver
	Manifest ManifestRemover
	System   System
	// IgnoreMissing treats recorded files that no longer exist as already removed.
	IgnoreMissing bool
	Confirm       ConfirmFunc
	Metrics       *telemetry.Metrics
}

// RemoveRequest names the package to remove. An empty Version removes the latest published one.
type RemoveRequest struct {
	Name    string
	Version string
}

// RemoveResult describes a completed removal.
type RemoveResult struct {
	Record manifest.Record
	// Deleted lists the paths removed: files in record order, then directories.
	Deleted []string
	// Missing lists recorded files that were already gone.
	Missing []string
	// KeptDirs lists recorded directories left in place because they were not empty.
	KeptDirs []string
}

// Remove deletes every file of the first matching record and then drops the record.
// A lookup miss changes nothing. A deletion failure stops immediately and leaves the
// record in the manifest.
func (rm *Remover) Remove(ctx context.Context, req RemoveRequest) (result RemoveResult, err error) {
	if rm.Manifest == nil {
		return RemoveResult{}, errs.New(errs.ErrInvalidInput, messages.TxnManifestRequired)
	}
	if req.Name == "" {
		return RemoveResult{}, &StageError{Op: OpRemove, Stage: StageValidate, Err: errs.New(errs.ErrInvalidInput, messages.ManifestNameRequired)}
	}
	sys := rm.System
	if sys == nil {
		sys = RealSystem{}
	}

	ctx, _ = telemetry.WithTransaction(ctx, string(OpRemove), req.Name)
	ctx, span := telemetry.StartSpan(ctx, "birdy.remove", attribute.String("package", req.Name))
	logger := zerolog.Ctx(ctx)
	started := time.Now()
	version := req.Version
	stage := StageLookup
	defer func() {
		rm.Metrics.ObserveTransaction(string(OpRemove), outcome(err), time.Since(started))
		telemetry.EndSpan(span, err)
		if err != nil {
			logger.Error().Err(err).Str("version", version).Str("stage", string(stage)).Msg("remove failed")
		}
	}()

	if version == "" {
		stage = StageResolve
		if rm.Resolver == nil {
			return RemoveResult{}, &StageError{Op: OpRemove, Name: req.Name, Stage: stage, Err: errs.New(errs.ErrResolution, messages.TxnResolverRequired)}
		}
		version, err = rm.Resolver.Resolve(ctx, req.Name, "")
		if err != nil {
			return RemoveResult{}, &StageError{Op: OpRemove, Name: req.Name, Stage: stage, Err: err}
		}
		logger.Debug().Str("version", version).Msg("version resolved")
		stage = StageLookup
	}
	span.SetAttributes(attribute.String("version", version))

	var confirmed *manifest.Record
	if rm.Confirm != nil {
		found, ok, err := rm.Manifest.Find(req.Name, version)
		if err != nil {
			return RemoveResult{}, &StageError{Op: OpRemove, Name: req.Name, Version: version, Stage: stage, Err: err}
		}
		if !ok {
			return RemoveResult{}, &StageError{Op: OpRemove, Name: req.Name, Version: version, Stage: stage, Err: errs.New(errs.ErrNotFound, req.Name+"@"+version)}
		}
		stage = StageConfirm
		ok, err = rm.Confirm(found)
		if err != nil {
			return RemoveResult{}, &StageError{Op: OpRemove, Name: req.Name, Version: version, Stage: stage, Err: err}
		}
		if !ok {
			return RemoveResult{}, &StageError{Op: OpRemove, Name: req.Name, Version: version, Stage: stage, Err: errs.New(errs.ErrAborted, messages.TxnDeclined)}
		}
		confirmed = &found
		stage = StageLookup
	}

	rec, err := rm.Manifest.FindAndRemove(req.Name, version, func(rec manifest.Record) error {
		if confirmed != nil && !sameRecord(*confirmed, rec) {
			stage = StageConfirm
			return errs.New(errs.ErrAborted, messages.TxnManifestChanged)
		}
		stage = StageDelete
		deleted, deleteErr := rm.deleteRecorded(logger, sys, rec)
		result = deleted
		if deleteErr != nil {
			return deleteErr
		}
		stage = StagePersist
		return nil
	})
	if err != nil {
		return result, &StageError{Op: OpRemove, Name: req.Name, Version: version, Stage: stage, Err: err}
	}
	result.Record = rec
	return result, nil
}

// deleteRecorded removes files in record order, then directories in reverse order.
func (rm *Remover) deleteRecorded(logger *zerolog.Logger, sys System, rec manifest.Record) (RemoveResult, error) {
	result := RemoveResult{Record: rec}
	var dirs []string
	for _, rel := range rec.Files {
		path, err := rec.Path(rel)
		if err != nil {
			return result, errs.Wrap(errs.ErrDeletion, rel, fmt.Errorf(messages.TxnRecordedPathFmt, rel, err))
		}
		err = sys.Remove(path)
		switch {
		case err == nil:
			result.Deleted = append(result.Deleted, rel)
		case os.IsNotExist(err) && rm.IgnoreMissing:
			result.Missing = append(result.Missing, rel)
			logger.Warn().Str("path", path).Msg("recorded file already missing")
		case isNotEmpty(err):
			// Records written before directories were tracked list them with the files.
			dirs = append(dirs, rel)
		default:
			return result, errs.Wrap(errs.ErrDeletion, rel, fmt.Errorf(messages.TxnRemoveFileFmt, path, err))
		}
	}

	dirs = append(append([]string{}, rec.Dirs...), dirs...)
	for i := len(dirs) - 1; i >= 0; i-- {
		path, err := rec.Path(dirs[i])
		if err != nil {
			result.KeptDirs = append(result.KeptDirs, dirs[i])
			continue
		}
		info, err := sys.Lstat(path)
		if err != nil {
			if !os.IsNotExist(err) {
				result.KeptDirs = append(result.KeptDirs, dirs[i])
				logger.Debug().Err(err).Str("path", path).Msg("directory kept")
			}
			continue
		}
		// Only real directories are ours to remove; a link to one is not.
		if !info.IsDir() {
			result.KeptDirs = append(result.KeptDirs, dirs[i])
			logger.Debug().Str("path", path).Stringer("mode", info.Mode()).Msg("recorded directory is not a directory, kept")
			continue
		}
		if err := sys.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				result.KeptDirs = append(result.KeptDirs, dirs[i])
				logger.Debug().Err(err).Str("path", path).Msg("directory kept")
			}
			continue
		}
		result.Deleted = append(result.Deleted, dirs[i])
	}
	return result, nil
}

// sameRecord reports whether the record under the lock is the one the user confirmed.
func sameRecord(a manifest.Record, b manifest.Record) bool {
	return a.Name == b.Name && a.Version == b.Version && a.InstallRoot == b.InstallRoot &&
		slices.Equal(a.Files, b.Files) && slices.Equal(a.Dirs, b.Dirs)
}

func isNotEmpty(err error) bool {
	return errors.Is(err, unix.ENOTEMPTY) || errors.Is(err, unix.EEXIST)
}
