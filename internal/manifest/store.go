package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/fsutil"
	"github.com/swiftos/birdy/internal/messages"
)

const filePerm = 0o644

var osReadFile = os.ReadFile

// Snapshot is one read of the manifest file.
type Snapshot struct {
	Records []Record
	State   State
	// Err is the decode failure when State is StateCorrupt.
	Err error
	raw []byte
}

// Store reads and rewrites the manifest file. Every mutation runs under an advisory
// lock on "<path>.lock" and replaces the document atomically.
type Store struct {
	path           string
	recoverCorrupt bool
	lockTimeout    time.Duration
	now            func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithRecoverCorrupt treats an unreadable manifest as empty instead of failing.
// The corrupt document is copied to "<path>.corrupt-<unix seconds>" before it is replaced.
func WithRecoverCorrupt(enabled bool) Option {
	return func(s *Store) {
		s.recoverCorrupt = enabled
	}
}

// WithLockTimeout bounds how long a mutation waits for the manifest lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

// NewStore returns a Store for the manifest at path.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:        path,
		lockTimeout: fsutil.DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the manifest file location.
func (s *Store) Path() string {
	return s.path
}

// Inspect reads the manifest without locking or creating it.
// A corrupt document is reported through the snapshot's State and Err, not the error result.
func (s *Store) Inspect() (Snapshot, error) {
	data, err := osReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{Records: []Record{}, State: StateMissing}, nil
		}
		return Snapshot{}, errs.Wrap(errs.ErrPersistence, s.path, fmt.Errorf(messages.ManifestReadFmt, err))
	}
	records, state, decodeErr := Decode(data)
	if decodeErr != nil {
		return Snapshot{Records: []Record{}, State: state, Err: decodeErr, raw: data}, nil
	}
	return Snapshot{Records: records, State: state, raw: data}, nil
}

// List returns every record in insertion order. A missing manifest yields an empty list
// and is not created.
func (s *Store) List() ([]Record, error) {
	snap, err := s.usable()
	if err != nil {
		return nil, err
	}
	return snap.Records, nil
}

// Find returns the first record for name at version.
func (s *Store) Find(name string, version string) (Record, bool, error) {
	snap, err := s.usable()
	if err != nil {
		return Record{}, false, err
	}
	if i := index(snap.Records, name, version); i >= 0 {
		return snap.Records[i], true, nil
	}
	return Record{}, false, nil
}

// Load returns every record, creating an empty manifest when none exists.
func (s *Store) Load() ([]Record, error) {
	var records []Record
	err := s.locked(func() error {
		snap, err := s.usable()
		if err != nil {
			return err
		}
		if snap.State == StateMissing {
			if err := s.write(nil); err != nil {
				return err
			}
		}
		records = snap.Records
		return nil
	})
	return records, err
}

// Append adds rec after every existing record and rewrites the manifest.
func (s *Store) Append(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return s.locked(func() error {
		snap, err := s.usable()
		if err != nil {
			return err
		}
		if err := s.backupCorrupt(snap); err != nil {
			return err
		}
		return s.write(append(snap.Records, normalize(rec)))
	})
}

// FindAndRemove locates the first record for name at version and passes it to cleanup.
// The record is dropped and the manifest rewritten only when cleanup returns nil;
// otherwise the manifest is left byte-for-byte unchanged and cleanup's error is returned.
// A missing record yields an error wrapping errs.ErrNotFound and cleanup is not called.
func (s *Store) FindAndRemove(name string, version string, cleanup func(Record) error) (Record, error) {
	// Avoid creating the manifest directory just to learn nothing is installed.
	if snap, err := s.Inspect(); err != nil {
		return Record{}, err
	} else if snap.State == StateMissing {
		return Record{}, errs.New(errs.ErrNotFound, name+"@"+version)
	}

	var removed Record
	err := s.locked(func() error {
		snap, err := s.usable()
		if err != nil {
			return err
		}
		i := index(snap.Records, name, version)
		if i < 0 {
			return errs.New(errs.ErrNotFound, name+"@"+version)
		}
		removed = snap.Records[i]
		if cleanup != nil {
			if err := cleanup(removed); err != nil {
				return err
			}
		}
		if err := s.backupCorrupt(snap); err != nil {
			return err
		}
		remaining := make([]Record, 0, len(snap.Records)-1)
		remaining = append(remaining, snap.Records[:i]...)
		remaining = append(remaining, snap.Records[i+1:]...)
		return s.write(remaining)
	})
	return removed, err
}

// usable reads the manifest and applies the corrupt-document policy.
func (s *Store) usable() (Snapshot, error) {
	snap, err := s.Inspect()
	if err != nil {
		return Snapshot{}, err
	}
	if snap.State == StateCorrupt && !s.recoverCorrupt {
		return Snapshot{}, errs.Wrap(errs.ErrPersistence, s.path, snap.Err)
	}
	return snap, nil
}

func (s *Store) backupCorrupt(snap Snapshot) error {
	if snap.State != StateCorrupt {
		return nil
	}
	backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := fsutil.WriteFileAtomic(backup, snap.raw, filePerm); err != nil {
		return errs.Wrap(errs.ErrPersistence, backup, fmt.Errorf(messages.ManifestBackupFmt, err))
	}
	return nil
}

func (s *Store) locked(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errs.Wrap(errs.ErrPersistence, s.path, fmt.Errorf(messages.ManifestCreateDirFmt, err))
	}
	var fnErr error
	lockErr := fsutil.WithFileLock(s.path+".lock", s.lockTimeout, func() error {
		fnErr = fn()
		return nil
	})
	if lockErr != nil {
		return errs.Wrap(errs.ErrPersistence, s.path, lockErr)
	}
	return fnErr
}

func (s *Store) write(records []Record) error {
	data, err := Encode(records)
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, s.path, err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, filePerm); err != nil {
		return errs.Wrap(errs.ErrPersistence, s.path, err)
	}
	return nil
}

func index(records []Record, name string, version string) int {
	for i, rec := range records {
		if rec.Matches(name, version) {
			return i
		}
	}
	return -1
}

// IsCorrupt reports whether err came from an unreadable manifest document.
func IsCorrupt(err error) bool {
	return errors.Is(err, errs.ErrCorruptManifest)
}
