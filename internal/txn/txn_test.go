package txn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/swiftos/birdy/internal/archive"
	"github.com/swiftos/birdy/internal/cache"
	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/fsutil"
	"github.com/swiftos/birdy/internal/manifest"
	"github.com/swiftos/birdy/internal/registry"
	"github.com/swiftos/birdy/internal/resolver"
	"github.com/swiftos/birdy/internal/telemetry"
	"github.com/swiftos/birdy/internal/testutil"
	"github.com/swiftos/birdy/internal/version"
)

type harness struct {
	reg       *testutil.Registry
	fetcher   *cache.Fetcher
	store     *manifest.Store
	resolver  *resolver.Resolver
	installer *Installer
	root      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := testutil.NewRegistry(t)
	client, err := registry.New(reg.URL(), registry.WithHTTPClient(reg.Client()))
	if err != nil {
		t.Fatalf("registry client: %v", err)
	}
	base := t.TempDir()
	h := &harness{
		reg:      reg,
		fetcher:  cache.NewFetcher(filepath.Join(base, "cache"), client),
		store:    manifest.NewStore(filepath.Join(base, "state", "data.json")),
		resolver: resolver.New(client, version.OrderLexical),
		root:     filepath.Join(base, "root"),
	}
	h.installer = &Installer{
		Resolver:  h.resolver,
		Fetcher:   h.fetcher,
		Extractor: archive.Extractor{},
		Manifest:  h.store,
		Metrics:   telemetry.NewMetrics(),
	}
	return h
}

func (h *harness) remover() *Remover {
	return &Remover{Resolver: h.resolver, Manifest: h.store, Metrics: telemetry.NewMetrics()}
}

func (h *harness) publishFoo(t *testing.T, version string) {
	t.Helper()
	h.reg.SetArchive("foo", version, testutil.TarGz(t,
		testutil.Dir("bin/"),
		testutil.File("bin/foo", "#!/bin/sh\n"),
		testutil.File("share/foo/README", "foo "+version),
	))
}

func TestInstallResolvesLatestAndRecordsFiles(t *testing.T) {
	h := newHarness(t)
	h.reg.SetVersions("foo", "1.0.0", "1.2.0", "1.1.0")
	h.publishFoo(t, "1.2.0")

	result, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Root: h.root})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	want := manifest.Record{
		Name:        "foo",
		Version:     "1.2.0",
		Files:       []string{"bin/foo", "share/foo/README"},
		Dirs:        []string{"bin"},
		InstallRoot: h.root,
	}
	if !reflect.DeepEqual(result.Record, want) {
		t.Fatalf("record = %#v, want %#v", result.Record, want)
	}
	if result.CleanupErr != nil {
		t.Fatalf("unexpected cleanup error: %v", result.CleanupErr)
	}
	if got := testutil.ReadFile(t, filepath.Join(h.root, "share", "foo", "README")); got != "foo 1.2.0" {
		t.Fatalf("unexpected README %q", got)
	}

	records, err := h.store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || !reflect.DeepEqual(records[0], want) {
		t.Fatalf("manifest = %#v", records)
	}
	testutil.RequireMissing(t, result.ArchivePath)
}

func TestInstallUsesCachedArchiveWithoutNetwork(t *testing.T) {
	h := newHarness(t)
	path, err := h.fetcher.Path("foo", "1.0.0")
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	testutil.WriteTarGz(t, path, testutil.File("bin/foo", "cached"))

	if _, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root}); err != nil {
		t.Fatalf("install: %v", err)
	}
	if h.reg.TotalHits() != 0 {
		t.Fatalf("expected no registry requests, got %d", h.reg.TotalHits())
	}
	if got := testutil.ReadFile(t, filepath.Join(h.root, "bin", "foo")); got != "cached" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestInstallFetchFailureLeavesManifestUntouched(t *testing.T) {
	h := newHarness(t)

	_, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root})
	if !errors.Is(err, errs.ErrFetch) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if stage, _ := FailedStage(err); stage != StageFetch {
		t.Fatalf("expected fetch stage, got %q", stage)
	}
	if errs.ExitCode(err) != errs.ExitFetch {
		t.Fatalf("expected exit %d, got %d", errs.ExitFetch, errs.ExitCode(err))
	}
	testutil.RequireMissing(t, h.store.Path())
}

func TestInstallResolutionFailure(t *testing.T) {
	h := newHarness(t)
	h.reg.SetVersions("foo")

	_, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Root: h.root})
	if !errors.Is(err, errs.ErrNoVersions) {
		t.Fatalf("expected no-versions error, got %v", err)
	}
	if stage, _ := FailedStage(err); stage != StageResolve {
		t.Fatalf("expected resolve stage, got %q", stage)
	}
	testutil.RequireMissing(t, h.root)
}

func TestInstallExtractionFailureLeavesManifestUntouched(t *testing.T) {
	h := newHarness(t)
	h.reg.SetArchive("foo", "1.0.0", testutil.TarGz(t, testutil.File("../escape", "x")))

	_, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root})
	if !errors.Is(err, errs.ErrExtraction) || !errors.Is(err, errs.ErrPathEscape) {
		t.Fatalf("expected extraction error, got %v", err)
	}
	if stage, _ := FailedStage(err); stage != StageExtract {
		t.Fatalf("expected extract stage, got %q", stage)
	}
	testutil.RequireMissing(t, h.store.Path())
}

type failingAppender struct{ err error }

func (f failingAppender) Append(manifest.Record) error { return f.err }

func TestInstallPersistFailureKeepsArchive(t *testing.T) {
	h := newHarness(t)
	h.publishFoo(t, "1.0.0")
	h.installer.Manifest = failingAppender{err: errs.New(errs.ErrPersistence, "disk full")}

	_, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root})
	if !errors.Is(err, errs.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if stage, _ := FailedStage(err); stage != StagePersist {
		t.Fatalf("expected persist stage, got %q", stage)
	}
	path, _ := h.fetcher.Path("foo", "1.0.0")
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("expected cached archive to remain for retry: %v", statErr)
	}
}

type evictFailFetcher struct{ *cache.Fetcher }

func (evictFailFetcher) Evict(string, string) error { return errors.New("evict boom") }

func TestInstallCleanupFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.publishFoo(t, "1.0.0")
	h.installer.Fetcher = evictFailFetcher{h.fetcher}

	result, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if result.CleanupErr == nil {
		t.Fatal("expected cleanup error")
	}
	if stage, _ := FailedStage(result.CleanupErr); stage != StageCleanup {
		t.Fatalf("expected cleanup stage, got %q", stage)
	}
	if _, ok, _ := h.store.Find("foo", "1.0.0"); !ok {
		t.Fatal("expected record to be persisted")
	}
}

func TestInstallRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	for _, req := range []InstallRequest{
		{Name: "", Root: h.root},
		{Name: "../foo", Root: h.root},
		{Name: "foo", Version: "1.0.0", Root: ""},
		{Name: "foo", Version: "../1", Root: h.root},
	} {
		_, err := h.installer.Install(context.Background(), req)
		if !errors.Is(err, errs.ErrInvalidInput) {
			t.Errorf("Install(%+v) = %v, want invalid input", req, err)
		}
	}
	if h.reg.TotalHits() != 0 {
		t.Fatalf("expected no registry requests, got %d", h.reg.TotalHits())
	}
}

func TestRemoveAfterInstallDeletesExactlyRecordedFiles(t *testing.T) {
	h := newHarness(t)
	h.publishFoo(t, "1.0.0")
	testutil.WriteFile(t, filepath.Join(h.root, "bin", "other"), "not ours")

	if _, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root}); err != nil {
		t.Fatalf("install: %v", err)
	}
	result, err := h.remover().Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !reflect.DeepEqual(result.Deleted, []string{"bin/foo", "share/foo/README"}) {
		t.Fatalf("deleted = %v", result.Deleted)
	}
	if !reflect.DeepEqual(result.KeptDirs, []string{"bin"}) {
		t.Fatalf("kept dirs = %v", result.KeptDirs)
	}
	want := []string{"bin", "bin/other", "share", "share/foo"}
	if got := testutil.Tree(t, h.root); !reflect.DeepEqual(got, want) {
		t.Fatalf("tree = %v, want %v", got, want)
	}
	records, _ := h.store.List()
	if len(records) != 0 {
		t.Fatalf("expected empty manifest, got %v", records)
	}
}

func TestRemoveDeletesEmptyRecordedDirs(t *testing.T) {
	h := newHarness(t)
	h.reg.SetArchive("foo", "1.0.0", testutil.TarGz(t,
		testutil.Dir("opt/"),
		testutil.Dir("opt/foo/"),
		testutil.File("opt/foo/bin", "x"),
	))
	if _, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root}); err != nil {
		t.Fatalf("install: %v", err)
	}
	result, err := h.remover().Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !reflect.DeepEqual(result.Deleted, []string{"opt/foo/bin", "opt/foo", "opt"}) {
		t.Fatalf("deleted = %v", result.Deleted)
	}
	if tree := testutil.Tree(t, h.root); len(tree) != 0 {
		t.Fatalf("expected empty root, got %v", tree)
	}
}

func TestRemoveNotInstalled(t *testing.T) {
	h := newHarness(t)
	_, err := h.remover().Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if stage, _ := FailedStage(err); stage != StageLookup {
		t.Fatalf("expected lookup stage, got %q", stage)
	}
	if errs.ExitCode(err) != errs.ExitNotFound {
		t.Fatalf("expected exit %d, got %d", errs.ExitNotFound, errs.ExitCode(err))
	}
	testutil.RequireMissing(t, h.store.Path())
}

type testSystem struct {
	RemoveFunc func(name string) error
	LstatFunc  func(name string) (os.FileInfo, error)
}

func (s testSystem) Remove(name string) error {
	if s.RemoveFunc != nil {
		return s.RemoveFunc(name)
	}
	return RealSystem{}.Remove(name)
}

func (s testSystem) Lstat(name string) (os.FileInfo, error) {
	if s.LstatFunc != nil {
		return s.LstatFunc(name)
	}
	return RealSystem{}.Lstat(name)
}

func TestRemoveDeletionFailureKeepsRecord(t *testing.T) {
	h := newHarness(t)
	h.publishFoo(t, "1.0.0")
	if _, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root}); err != nil {
		t.Fatalf("install: %v", err)
	}
	before := testutil.ReadFile(t, h.store.Path())

	rm := h.remover()
	readme := filepath.Join(h.root, "share", "foo", "README")
	rm.System = testSystem{RemoveFunc: func(name string) error {
		if name == readme {
			return &os.PathError{Op: "remove", Path: name, Err: os.ErrPermission}
		}
		return os.Remove(name)
	}}

	_, err := rm.Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"})
	if !errors.Is(err, errs.ErrDeletion) {
		t.Fatalf("expected deletion error, got %v", err)
	}
	if stage, _ := FailedStage(err); stage != StageDelete {
		t.Fatalf("expected delete stage, got %q", stage)
	}
	if got := testutil.ReadFile(t, h.store.Path()); got != before {
		t.Fatalf("manifest changed:\n%s", got)
	}
	testutil.RequireMissing(t, filepath.Join(h.root, "bin", "foo"))
	if testutil.ReadFile(t, readme) != "foo 1.0.0" {
		t.Fatal("expected README to remain")
	}
}

func TestRemoveMissingFile(t *testing.T) {
	h := newHarness(t)
	h.publishFoo(t, "1.0.0")
	if _, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root}); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := os.Remove(filepath.Join(h.root, "bin", "foo")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	_, err := h.remover().Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"})
	if !errors.Is(err, errs.ErrDeletion) {
		t.Fatalf("expected deletion error, got %v", err)
	}
	if _, ok, _ := h.store.Find("foo", "1.0.0"); !ok {
		t.Fatal("expected record to remain")
	}

	rm := h.remover()
	rm.IgnoreMissing = true
	result, err := rm.Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("remove with ignore-missing: %v", err)
	}
	if !reflect.DeepEqual(result.Missing, []string{"bin/foo"}) {
		t.Fatalf("missing = %v", result.Missing)
	}
	if _, ok, _ := h.store.Find("foo", "1.0.0"); ok {
		t.Fatal("expected record to be dropped")
	}
}

func TestRemoveDeclinedConfirmation(t *testing.T) {
	h := newHarness(t)
	h.publishFoo(t, "1.0.0")
	if _, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root}); err != nil {
		t.Fatalf("install: %v", err)
	}

	rm := h.remover()
	var asked manifest.Record
	rm.Confirm = func(rec manifest.Record) (bool, error) {
		asked = rec
		return false, nil
	}
	_, err := rm.Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"})
	if !errors.Is(err, errs.ErrAborted) {
		t.Fatalf("expected aborted, got %v", err)
	}
	if stage, _ := FailedStage(err); stage != StageConfirm {
		t.Fatalf("expected confirm stage, got %q", stage)
	}
	if asked.Name != "foo" || len(asked.Files) != 2 {
		t.Fatalf("unexpected confirmation record %#v", asked)
	}
	if testutil.ReadFile(t, filepath.Join(h.root, "bin", "foo")) == "" {
		t.Fatal("expected files to remain")
	}
	if _, ok, _ := h.store.Find("foo", "1.0.0"); !ok {
		t.Fatal("expected record to remain")
	}
}

func TestRemoveConfirmsWithoutHoldingManifestLock(t *testing.T) {
	h := newHarness(t)
	h.publishFoo(t, "1.0.0")
	if _, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root}); err != nil {
		t.Fatalf("install: %v", err)
	}

	rm := h.remover()
	rm.Confirm = func(manifest.Record) (bool, error) {
		if err := fsutil.WithFileLock(h.store.Path()+".lock", 100*time.Millisecond, func() error { return nil }); err != nil {
			t.Errorf("manifest lock held during confirmation: %v", err)
		}
		return true, nil
	}
	if _, err := rm.Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	testutil.RequireMissing(t, filepath.Join(h.root, "bin", "foo"))
	if _, ok, _ := h.store.Find("foo", "1.0.0"); ok {
		t.Fatal("expected record to be dropped")
	}
}

func TestRemoveAbortsWhenRecordChangesDuringConfirmation(t *testing.T) {
	h := newHarness(t)
	h.publishFoo(t, "1.0.0")
	if _, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root}); err != nil {
		t.Fatalf("install: %v", err)
	}

	rm := h.remover()
	rm.Confirm = func(rec manifest.Record) (bool, error) {
		if _, err := h.store.FindAndRemove(rec.Name, rec.Version, nil); err != nil {
			t.Errorf("drop record: %v", err)
		}
		other := rec
		other.Files = []string{"bin/foo"}
		if err := h.store.Append(other); err != nil {
			t.Errorf("append: %v", err)
		}
		return true, nil
	}
	_, err := rm.Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"})
	if !errors.Is(err, errs.ErrAborted) {
		t.Fatalf("expected aborted, got %v", err)
	}
	if stage, _ := FailedStage(err); stage != StageConfirm {
		t.Fatalf("expected confirm stage, got %q", stage)
	}
	if testutil.ReadFile(t, filepath.Join(h.root, "bin", "foo")) == "" {
		t.Fatal("expected files to remain")
	}
}

func TestRemoveConfirmationOfUnknownRecord(t *testing.T) {
	h := newHarness(t)
	rm := h.remover()
	rm.Confirm = func(manifest.Record) (bool, error) {
		t.Fatal("confirmation must not be asked")
		return false, nil
	}
	_, err := rm.Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveKeepsSymlinkedDirectory(t *testing.T) {
	h := newHarness(t)
	testutil.WriteFile(t, filepath.Join(h.root, "usr", "bin", "other"), "keep")
	if err := os.Symlink(filepath.Join("usr", "bin"), filepath.Join(h.root, "bin")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	h.publishFoo(t, "1.0.0")

	installed, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Version: "1.0.0", Root: h.root})
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(installed.Record.Dirs) != 0 {
		t.Fatalf("expected no recorded directories, got %v", installed.Record.Dirs)
	}
	if got := testutil.ReadFile(t, filepath.Join(h.root, "usr", "bin", "foo")); got != "#!/bin/sh\n" {
		t.Fatalf("unexpected installed file %q", got)
	}

	if _, err := h.remover().Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	info, err := os.Lstat(filepath.Join(h.root, "bin"))
	if err != nil {
		t.Fatalf("lstat: %v", err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("expected bin to remain a symlink, got mode %v", info.Mode())
	}
	if got := testutil.ReadFile(t, filepath.Join(h.root, "usr", "bin", "other")); got != "keep" {
		t.Fatalf("unexpected other %q", got)
	}
	testutil.RequireMissing(t, filepath.Join(h.root, "usr", "bin", "foo"))
}

func TestRemoveSkipsRecordedDirectoryReplacedByLink(t *testing.T) {
	h := newHarness(t)
	testutil.WriteFile(t, filepath.Join(h.root, "usr", "bin", "other"), "keep")
	if err := os.Symlink(filepath.Join("usr", "bin"), filepath.Join(h.root, "bin")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	rec := manifest.Record{Name: "foo", Version: "1.0.0", Files: []string{}, Dirs: []string{"bin"}, InstallRoot: h.root}
	if err := h.store.Append(rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	rm := h.remover()
	rm.System = testSystem{RemoveFunc: func(name string) error {
		t.Errorf("unexpected remove of %s", name)
		return nil
	}}
	result, err := rm.Remove(context.Background(), RemoveRequest{Name: "foo", Version: "1.0.0"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !reflect.DeepEqual(result.KeptDirs, []string{"bin"}) {
		t.Fatalf("kept dirs = %v", result.KeptDirs)
	}
	if _, err := os.Lstat(filepath.Join(h.root, "bin")); err != nil {
		t.Fatalf("expected symlink to remain: %v", err)
	}
}

func TestRemoveWithoutVersionResolvesLatest(t *testing.T) {
	h := newHarness(t)
	h.reg.SetVersions("foo", "1.0.0", "1.1.0")
	h.publishFoo(t, "1.1.0")
	if _, err := h.installer.Install(context.Background(), InstallRequest{Name: "foo", Root: h.root}); err != nil {
		t.Fatalf("install: %v", err)
	}

	result, err := h.remover().Remove(context.Background(), RemoveRequest{Name: "foo"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if result.Record.Version != "1.1.0" {
		t.Fatalf("expected 1.1.0 removed, got %q", result.Record.Version)
	}
}

func TestRemoveLegacyRecordWithDirectoriesInFiles(t *testing.T) {
	h := newHarness(t)
	testutil.WriteFile(t, filepath.Join(h.root, "bin", "foo"), "x")
	legacy := manifest.Record{Name: "foo", Version: "0.1.0", Files: []string{"bin", "bin/foo"}, InstallRoot: h.root}
	if err := h.store.Append(legacy); err != nil {
		t.Fatalf("append: %v", err)
	}

	result, err := h.remover().Remove(context.Background(), RemoveRequest{Name: "foo", Version: "0.1.0"})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !reflect.DeepEqual(result.Deleted, []string{"bin/foo", "bin"}) {
		t.Fatalf("deleted = %v", result.Deleted)
	}
	if tree := testutil.Tree(t, h.root); len(tree) != 0 {
		t.Fatalf("expected empty root, got %v", tree)
	}
}

func TestRecordFromEntries(t *testing.T) {
	rec := RecordFromEntries("foo", "1", "/", nil)
	if rec.Files == nil || len(rec.Files) != 0 || rec.Dirs != nil {
		t.Fatalf("unexpected empty record %#v", rec)
	}
}
