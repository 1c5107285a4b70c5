package txn

import "os"

// System abstracts the filesystem operations removal needs.
// It is package-local so tests can inject failures without global state.
type System interface {
	Remove(name string) error
	Lstat(name string) (os.FileInfo, error)
}

// RealSystem implements System using the OS filesystem.
type RealSystem struct{}

// Remove removes the named file or empty directory.
func (RealSystem) Remove(name string) error {
	return os.Remove(name)
}

// Lstat describes the named file without following a final symlink.
func (RealSystem) Lstat(name string) (os.FileInfo, error) {
	return os.Lstat(name)
}
