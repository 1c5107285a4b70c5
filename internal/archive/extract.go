// Package archive unpacks gzip-compressed tar package archives onto an install root.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/messages"
)

// DefaultMaxEntryBytes caps a single extracted file.
const DefaultMaxEntryBytes = int64(1024 * 1024 * 1024) // 1 GiB

const stagingPattern = ".birdy-staging-*"

// Kind classifies an extracted entry.
type Kind string

// Entry kinds.
const (
	KindFile     Kind = "file"
	KindDir      Kind = "dir"
	KindSymlink  Kind = "symlink"
	KindHardlink Kind = "hardlink"
)

// Entry is one path written by an extraction, relative to the install root
// and slash-separated.
type Entry struct {
	Path string
	Kind Kind
}

var (
	osRename  = os.Rename
	osSymlink = os.Symlink
	osLink    = os.Link
)

// Extractor unpacks archives. The zero value extracts directly with DefaultMaxEntryBytes.
type Extractor struct {
	// MaxEntryBytes caps the size of a single regular file. Zero selects DefaultMaxEntryBytes.
	MaxEntryBytes int64
	// Staged extracts into a staging directory under the root and moves entries into
	// place only after the whole archive unpacked.
	Staged bool
}

// Extract unpacks archivePath into root and returns every entry written, in archive order.
// Each path appears once even if the archive repeats it.
//
// In direct mode a failure leaves already-written entries in place and returns them
// with the error. In staged mode a failure during unpacking leaves root untouched.
func (x Extractor) Extract(archivePath string, root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errs.New(errs.ErrInvalidInput, messages.ArchiveRootRequired)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Wrap(errs.ErrExtraction, root, err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrExtraction, absRoot, fmt.Errorf(messages.ArchiveCreateRootFmt, err))
	}
	if !x.Staged {
		entries, err := x.unpack(archivePath, absRoot, absRoot)
		if err != nil {
			return entries, wrapExtraction(archivePath, err)
		}
		return entries, nil
	}

	staging, err := os.MkdirTemp(absRoot, stagingPattern)
	if err != nil {
		return nil, errs.Wrap(errs.ErrExtraction, archivePath, fmt.Errorf(messages.ArchiveCreateStagingFmt, err))
	}
	defer func() { _ = os.RemoveAll(staging) }()

	entries, err := x.unpack(archivePath, staging, absRoot)
	if err != nil {
		return nil, wrapExtraction(archivePath, err)
	}
	placed, err := promote(entries, staging, absRoot)
	if err != nil {
		return nil, wrapExtraction(archivePath, err)
	}
	return placed, nil
}

func wrapExtraction(archivePath string, err error) error {
	if errors.Is(err, errs.ErrExtraction) {
		return err
	}
	return errs.Wrap(errs.ErrExtraction, archivePath, err)
}

// unpack writes every archive entry beneath dest. installRoot is where the entries will
// finally live and bounds absolute symlink targets.
func (x Extractor) unpack(archivePath string, dest string, installRoot string) ([]Entry, error) {
	maxBytes := x.MaxEntryBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxEntryBytes
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf(messages.ArchiveOpenFmt, err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf(messages.ArchiveCorruptFmt, err)
	}
	defer func() { _ = gz.Close() }()

	realDest, err := filepath.EvalSymlinks(dest)
	if err != nil {
		return nil, fmt.Errorf(messages.ArchiveResolveFmt, dest, err)
	}

	var entries []Entry
	seen := make(map[string]bool)
	tr := tar.NewReader(gz)
	for {
		hdr, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}
		if nextErr != nil {
			return entries, fmt.Errorf(messages.ArchiveCorruptFmt, nextErr)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		rel, err := cleanEntryName(hdr.Name)
		if err != nil {
			return entries, err
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))
		if _, err := ensureParent(realDest, target); err != nil {
			return entries, err
		}

		var kind Kind
		linked := false
		switch hdr.Typeflag {
		case tar.TypeDir:
			kind = KindDir
			linked = isSymlink(target)
			err = writeDir(realDest, target, hdr.FileInfo().Mode().Perm())
		case tar.TypeReg:
			kind = KindFile
			err = writeFile(target, tr, hdr, maxBytes)
		case tar.TypeSymlink:
			kind = KindSymlink
			err = writeSymlink(rel, target, hdr.Linkname, installRoot)
		case tar.TypeLink:
			kind = KindHardlink
			err = writeHardlink(dest, target, hdr.Linkname, seen)
		default:
			err = errs.New(errs.ErrUnsupportedEntry, fmt.Sprintf(messages.ArchiveUnsupportedEntryFmt, hdr.Name, string(hdr.Typeflag)))
		}
		if err != nil {
			return entries, err
		}
		// A directory entry landing on an existing link belongs to whoever made the link.
		if linked {
			continue
		}
		if !seen[rel] {
			seen[rel] = true
			entries = append(entries, Entry{Path: rel, Kind: kind})
		}
	}
	return entries, nil
}

// cleanEntryName normalizes an archive member name to a slash-separated relative path.
// It returns "" for the archive root itself.
func cleanEntryName(name string) (string, error) {
	raw := strings.ReplaceAll(name, `\`, "/")
	if strings.ContainsRune(raw, 0) {
		return "", errs.New(errs.ErrPathEscape, fmt.Sprintf(messages.ArchiveUnsafePathFmt, name))
	}
	if path.IsAbs(raw) || filepath.IsAbs(raw) || filepath.VolumeName(raw) != "" {
		return "", errs.New(errs.ErrPathEscape, fmt.Sprintf(messages.ArchiveUnsafePathFmt, name))
	}
	cleaned := path.Clean(raw)
	if cleaned == "." {
		return "", nil
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errs.New(errs.ErrPathEscape, fmt.Sprintf(messages.ArchiveUnsafePathFmt, name))
	}
	return cleaned, nil
}

// within reports whether target is root or lies beneath it.
func within(root string, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ensureParent creates the missing parents of target once the deepest existing ancestor
// is known to resolve inside realRoot. It returns the directories it created, outermost first.
func ensureParent(realRoot string, target string) ([]string, error) {
	var missing []string
	existing := filepath.Dir(target)
	for {
		_, err := os.Lstat(existing)
		if err == nil {
			break
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf(messages.ArchiveStatFmt, existing, err)
		}
		missing = append(missing, existing)
		next := filepath.Dir(existing)
		if next == existing {
			break
		}
		existing = next
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return nil, fmt.Errorf(messages.ArchiveResolveFmt, existing, err)
	}
	if !within(realRoot, resolved) {
		return nil, errs.New(errs.ErrPathEscape, fmt.Sprintf(messages.ArchiveUnsafePathFmt, target))
	}

	var created []string
	for i := len(missing) - 1; i >= 0; i-- {
		if err := os.Mkdir(missing[i], 0o755); err != nil {
			if os.IsExist(err) {
				continue
			}
			return created, fmt.Errorf(messages.ArchiveCreateDirFmt, missing[i], err)
		}
		created = append(created, missing[i])
	}
	return created, nil
}

// isSymlink reports whether target exists and is a symbolic link.
func isSymlink(target string) bool {
	info, err := os.Lstat(target)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// clearPath removes a non-directory at target so it can be recreated without following
// an existing symlink.
func clearPath(target string) error {
	info, err := os.Lstat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf(messages.ArchiveStatFmt, target, err)
	}
	if info.IsDir() {
		return fmt.Errorf(messages.ArchiveReplaceDirFmt, target)
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf(messages.ArchiveReplaceFmt, target, err)
	}
	return nil
}

func writeDir(realRoot string, target string, perm os.FileMode) error {
	info, err := os.Stat(target)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf(messages.ArchiveNotDirFmt, target)
		}
		resolved, err := filepath.EvalSymlinks(target)
		if err != nil {
			return fmt.Errorf(messages.ArchiveResolveFmt, target, err)
		}
		if !within(realRoot, resolved) {
			return errs.New(errs.ErrPathEscape, fmt.Sprintf(messages.ArchiveUnsafePathFmt, target))
		}
		return nil
	case os.IsNotExist(err):
		if perm == 0 {
			perm = 0o755
		}
		// A dangling symlink reports not-exist through Stat.
		if err := clearPath(target); err != nil {
			return err
		}
		if err := os.Mkdir(target, perm|0o700); err != nil {
			return fmt.Errorf(messages.ArchiveCreateDirFmt, target, err)
		}
		return nil
	default:
		return fmt.Errorf(messages.ArchiveStatFmt, target, err)
	}
}

func writeFile(target string, r io.Reader, hdr *tar.Header, maxBytes int64) (err error) {
	if hdr.Size > maxBytes {
		return fmt.Errorf(messages.ArchiveEntryTooLargeFmt, hdr.Name, maxBytes)
	}
	if err := clearPath(target); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, hdr.FileInfo().Mode().Perm())
	if err != nil {
		return fmt.Errorf(messages.ArchiveWriteFileFmt, target, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf(messages.ArchiveWriteFileFmt, target, closeErr)
		}
	}()
	n, err := io.Copy(out, io.LimitReader(r, maxBytes+1))
	if err != nil {
		return fmt.Errorf(messages.ArchiveCorruptFmt, err)
	}
	if n > maxBytes {
		return fmt.Errorf(messages.ArchiveEntryTooLargeFmt, hdr.Name, maxBytes)
	}
	return nil
}

// writeSymlink creates a symlink whose target must resolve inside installRoot.
// Relative targets are checked in archive namespace; absolute targets against installRoot.
func writeSymlink(rel string, target string, linkname string, installRoot string) error {
	if linkname == "" || strings.ContainsRune(linkname, 0) {
		return errs.New(errs.ErrPathEscape, fmt.Sprintf(messages.ArchiveUnsafeLinkFmt, rel, linkname))
	}
	if filepath.IsAbs(linkname) {
		if !within(installRoot, filepath.Clean(linkname)) {
			return errs.New(errs.ErrPathEscape, fmt.Sprintf(messages.ArchiveUnsafeLinkFmt, rel, linkname))
		}
	} else {
		resolved := path.Join(path.Dir(rel), filepath.ToSlash(linkname))
		if resolved == ".." || strings.HasPrefix(resolved, "../") {
			return errs.New(errs.ErrPathEscape, fmt.Sprintf(messages.ArchiveUnsafeLinkFmt, rel, linkname))
		}
	}
	if err := clearPath(target); err != nil {
		return err
	}
	if err := osSymlink(linkname, target); err != nil {
		return fmt.Errorf(messages.ArchiveSymlinkFmt, target, err)
	}
	return nil
}

// writeHardlink links target to an entry extracted earlier from the same archive.
func writeHardlink(dest string, target string, linkname string, extracted map[string]bool) error {
	source, err := cleanEntryName(linkname)
	if err != nil {
		return err
	}
	if source == "" || !extracted[source] {
		return errs.New(errs.ErrPathEscape, fmt.Sprintf(messages.ArchiveUnsafeLinkFmt, target, linkname))
	}
	if err := clearPath(target); err != nil {
		return err
	}
	if err := osLink(filepath.Join(dest, filepath.FromSlash(source)), target); err != nil {
		return fmt.Errorf(messages.ArchiveHardlinkFmt, target, err)
	}
	return nil
}
