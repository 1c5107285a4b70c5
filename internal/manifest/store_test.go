package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/fsutil"
	"github.com/swiftos/birdy/internal/testutil"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "state", "data.json"), opts...)
}

func record(name, version string, files ...string) Record {
	return Record{Name: name, Version: version, Files: files, InstallRoot: "/opt/root"}
}

func TestEncodeDecodePreservesRecords(t *testing.T) {
	records := []Record{
		{Name: "foo", Version: "1.0.0", Files: []string{"bin/foo"}, Dirs: []string{"bin"}, InstallRoot: "/"},
		{Name: "empty", Version: "0.1.0", InstallRoot: "/opt"},
	}
	data, err := Encode(records)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"install-loc": "/"`)
	assert.Contains(t, string(data), `"files": []`)

	decoded, state, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, StatePresent, state)
	require.Len(t, decoded, 2)
	assert.Equal(t, records[0], decoded[0])
	assert.Equal(t, []string{}, decoded[1].Files)
	assert.Nil(t, decoded[1].Dirs)
}

func TestEncodeNil(t *testing.T) {
	data, err := Encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestDecodeStates(t *testing.T) {
	for _, raw := range []string{"", "  \n", "null", "[]"} {
		records, state, err := Decode([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, StateEmpty, state, raw)
		assert.Empty(t, records, raw)
	}

	for _, raw := range []string{"{", `{"name":"foo"}`, `[{"name":"foo","version":"1","files":["../etc/passwd"],"install-loc":"/"}]`, `[{"version":"1","files":[],"install-loc":"/"}]`} {
		_, state, err := Decode([]byte(raw))
		assert.Equal(t, StateCorrupt, state, raw)
		assert.True(t, IsCorrupt(err), raw)
		assert.False(t, errors.Is(err, errs.ErrInvalidInput), raw)
	}
}

func TestDecodeReadsLegacyDocument(t *testing.T) {
	raw := `[{"name":"foo","version":"1.2.0","files":["bin/foo","share/foo/README"],"install-loc":"/"}]`
	records, state, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, StatePresent, state)
	assert.Equal(t, "foo-1.2.0-/", records[0].String())
}

func TestListMissingManifestDoesNotCreateIt(t *testing.T) {
	store := newTestStore(t)
	records, err := store.List()
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	testutil.RequireMissing(t, store.Path())
	testutil.RequireMissing(t, filepath.Dir(store.Path()))
}

func TestLoadCreatesEmptyManifest(t *testing.T) {
	store := newTestStore(t)
	records, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, "[]\n", testutil.ReadFile(t, store.Path()))

	snap, err := store.Inspect()
	require.NoError(t, err)
	assert.Equal(t, StateEmpty, snap.State)
}

func TestAppendKeepsInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Append(record("foo", "1.0.0", "bin/foo")))
	require.NoError(t, store.Append(record("bar", "2.0.0")))
	require.NoError(t, store.Append(record("foo", "1.0.0", "bin/foo")))

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"foo", "bar", "foo"}, []string{records[0].Name, records[1].Name, records[2].Name})
	assert.Equal(t, []string{}, records[1].Files)

	found, ok, err := store.Find("bar", "2.0.0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "bar", found.Name)

	_, ok, err = store.Find("bar", "9.9.9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppendRejectsInvalidRecord(t *testing.T) {
	store := newTestStore(t)
	err := store.Append(Record{Name: "foo", Version: "1", InstallRoot: "/", Files: []string{"/etc/passwd"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrPathEscape))
	testutil.RequireMissing(t, store.Path())
}

func TestFindAndRemoveDropsFirstMatchOnly(t *testing.T) {
	store := newTestStore(t)
	first := record("foo", "1.0.0", "a")
	second := record("foo", "1.0.0", "b")
	require.NoError(t, store.Append(first))
	require.NoError(t, store.Append(record("bar", "1.0.0")))
	require.NoError(t, store.Append(second))

	var seen Record
	removed, err := store.FindAndRemove("foo", "1.0.0", func(rec Record) error {
		seen = rec
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, first.Files, removed.Files)
	assert.Equal(t, removed, seen)

	records, err := store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "bar", records[0].Name)
	assert.Equal(t, []string{"b"}, records[1].Files)
}

func TestFindAndRemoveCleanupFailureKeepsManifest(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Append(record("foo", "1.0.0", "bin/foo")))
	before := testutil.ReadFile(t, store.Path())

	cleanupErr := errs.New(errs.ErrDeletion, "bin/foo")
	_, err := store.FindAndRemove("foo", "1.0.0", func(Record) error { return cleanupErr })
	require.ErrorIs(t, err, errs.ErrDeletion)
	assert.Equal(t, before, testutil.ReadFile(t, store.Path()))
}

func TestFindAndRemoveNotFound(t *testing.T) {
	store := newTestStore(t)
	called := false
	_, err := store.FindAndRemove("foo", "1.0.0", func(Record) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.False(t, called)
	testutil.RequireMissing(t, filepath.Dir(store.Path()))

	require.NoError(t, store.Append(record("foo", "2.0.0")))
	before := testutil.ReadFile(t, store.Path())
	_, err = store.FindAndRemove("foo", "1.0.0", nil)
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, before, testutil.ReadFile(t, store.Path()))
}

func TestCorruptManifestFailsByDefault(t *testing.T) {
	store := newTestStore(t)
	testutil.WriteFile(t, store.Path(), "{not json")

	_, err := store.List()
	require.Error(t, err)
	assert.True(t, IsCorrupt(err))
	assert.Equal(t, errs.ExitPersistence, errs.ExitCode(err))

	err = store.Append(record("foo", "1.0.0"))
	require.ErrorIs(t, err, errs.ErrPersistence)
	assert.Equal(t, "{not json", testutil.ReadFile(t, store.Path()))

	snap, err := store.Inspect()
	require.NoError(t, err)
	assert.Equal(t, StateCorrupt, snap.State)
	assert.Error(t, snap.Err)
}

func TestRecoverCorruptBacksUpBeforeWriting(t *testing.T) {
	store := newTestStore(t, WithRecoverCorrupt(true))
	store.now = func() time.Time { return time.Unix(1700000000, 0) }
	testutil.WriteFile(t, store.Path(), "{not json")

	records, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, store.Append(record("foo", "1.0.0", "bin/foo")))
	assert.Equal(t, "{not json", testutil.ReadFile(t, store.Path()+".corrupt-1700000000"))

	records, err = store.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "foo", records[0].Name)
}

func TestMutationTimesOutWhileLocked(t *testing.T) {
	store := newTestStore(t, WithLockTimeout(20*time.Millisecond))
	require.NoError(t, os.MkdirAll(filepath.Dir(store.Path()), 0o755))
	lock, err := fsutil.AcquireFileLock(store.Path()+".lock", time.Second)
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	err = store.Append(record("foo", "1.0.0"))
	require.ErrorIs(t, err, errs.ErrPersistence)
	assert.True(t, strings.Contains(err.Error(), "timed out"))
}

func TestReadFailureIsPersistenceError(t *testing.T) {
	store := newTestStore(t)
	orig := osReadFile
	osReadFile = func(string) ([]byte, error) { return nil, os.ErrPermission }
	t.Cleanup(func() { osReadFile = orig })

	_, err := store.List()
	require.ErrorIs(t, err, errs.ErrPersistence)
}

func TestRecordPath(t *testing.T) {
	rec := Record{InstallRoot: "/opt/root"}
	got, err := rec.Path("./bin/foo")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/opt/root", "bin", "foo"), got)

	for _, bad := range []string{"", "..", "../x", "a/../../x", "/etc/passwd"} {
		_, err := rec.Path(bad)
		assert.ErrorIs(t, err, errs.ErrPathEscape, bad)
	}
}
