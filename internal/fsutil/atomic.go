// Package fsutil holds the filesystem primitives shared by the cache and the manifest:
// atomic whole-file replacement and advisory file locks.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/swiftos/birdy/internal/messages"
)

var (
	osCreateTemp = os.CreateTemp
	osChmod      = os.Chmod
	osRename     = os.Rename
)

// WriteFileAtomic writes data to filename by writing a temp file in the same
// directory and renaming it over filename. Readers observe either the old
// contents or the new contents, never a partial write.
func WriteFileAtomic(filename string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(filename)
	tmp, err := osCreateTemp(dir, "."+filepath.Base(filename)+".tmp-*")
	if err != nil {
		return fmt.Errorf(messages.FsutilCreateTempFmt, filename, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf(messages.FsutilWriteTempFmt, filename, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf(messages.FsutilSyncTempFmt, filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf(messages.FsutilCloseTempFmt, filename, err)
	}
	if err := osChmod(tmpName, perm); err != nil {
		return fmt.Errorf(messages.FsutilChmodTempFmt, filename, err)
	}
	if err := osRename(tmpName, filename); err != nil {
		return fmt.Errorf(messages.FsutilRenameFmt, filename, err)
	}
	committed = true
	return nil
}
