package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/swiftos/birdy/internal/messages"
)

const replacedPattern = ".birdy-replaced-*"

// promote moves staged entries into root in archive order and returns the entries it
// placed. Files it overwrites are set aside until every entry is in place. On failure
// each step is undone newest first: placed entries are removed, overwritten files are
// restored and created directories are removed.
func promote(entries []Entry, staging string, root string) (placed []Entry, err error) {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf(messages.ArchiveResolveFmt, root, err)
	}

	var undo []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		placed = nil
	}()
	removeStep := func(path string) func() {
		return func() { _ = os.Remove(path) }
	}

	backups := ""
	for _, entry := range entries {
		src := filepath.Join(staging, filepath.FromSlash(entry.Path))
		dst := filepath.Join(root, filepath.FromSlash(entry.Path))
		created, err := ensureParent(realRoot, dst)
		for _, dir := range created {
			undo = append(undo, removeStep(dir))
		}
		if err != nil {
			return nil, err
		}

		if entry.Kind == KindDir {
			if isSymlink(dst) {
				if err := writeDir(realRoot, dst, 0); err != nil {
					return nil, err
				}
				continue
			}
			if info, statErr := os.Stat(dst); statErr == nil && info.IsDir() {
				placed = append(placed, entry)
				continue
			}
			perm := os.FileMode(0o755)
			if info, statErr := os.Lstat(src); statErr == nil {
				perm = info.Mode().Perm()
			}
			if err := writeDir(realRoot, dst, perm); err != nil {
				return nil, err
			}
			undo = append(undo, removeStep(dst))
			placed = append(placed, entry)
			continue
		}

		info, statErr := os.Lstat(dst)
		switch {
		case statErr == nil && info.IsDir():
			return nil, fmt.Errorf(messages.ArchiveReplaceDirFmt, dst)
		case statErr == nil:
			if backups == "" {
				if backups, err = os.MkdirTemp(staging, replacedPattern); err != nil {
					return nil, fmt.Errorf(messages.ArchiveCreateStagingFmt, err)
				}
			}
			backup := filepath.Join(backups, strconv.Itoa(len(undo)))
			if err := osRename(dst, backup); err != nil {
				return nil, fmt.Errorf(messages.ArchiveReplaceFmt, dst, err)
			}
			undo = append(undo, func() { _ = osRename(backup, dst) })
		case !os.IsNotExist(statErr):
			return nil, fmt.Errorf(messages.ArchiveStatFmt, dst, statErr)
		}

		if err := osRename(src, dst); err != nil {
			return nil, fmt.Errorf(messages.ArchivePromoteFmt, entry.Path, err)
		}
		undo = append(undo, removeStep(dst))
		placed = append(placed, entry)
	}
	return placed, nil
}
