// Package manifest persists the set of installed packages as a single JSON document.
package manifest

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/swiftos/birdy/internal/errs"
	"github.com/swiftos/birdy/internal/messages"
)

// Record describes one installed package. Files and Dirs are relative to InstallRoot
// and slash-separated; Dirs lists directories the archive declared, in archive order.
type Record struct {
	Name        string   `json:"name" yaml:"name"`
	Version     string   `json:"version" yaml:"version"`
	Files       []string `json:"files" yaml:"files"`
	Dirs        []string `json:"dirs,omitempty" yaml:"dirs,omitempty"`
	InstallRoot string   `json:"install-loc" yaml:"install-loc"`
}

// Matches reports whether r is the record for name at version.
func (r Record) Matches(name string, version string) bool {
	return r.Name == name && r.Version == version
}

// String formats r the way `list` prints it.
func (r Record) String() string {
	return fmt.Sprintf(messages.ManifestRecordLineFmt, r.Name, r.Version, r.InstallRoot)
}

// Path joins rel onto the record's install root. It rejects paths that would leave the root.
func (r Record) Path(rel string) (string, error) {
	cleaned, err := cleanRelative(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.InstallRoot, filepath.FromSlash(cleaned)), nil
}

// Validate checks that r can be persisted and later removed safely.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return errs.New(errs.ErrInvalidInput, messages.ManifestNameRequired)
	case strings.TrimSpace(r.Version) == "":
		return errs.New(errs.ErrInvalidInput, messages.ManifestVersionRequired)
	case strings.TrimSpace(r.InstallRoot) == "":
		return errs.New(errs.ErrInvalidInput, messages.ManifestRootRequired)
	}
	for _, rel := range r.Files {
		if _, err := cleanRelative(rel); err != nil {
			return err
		}
	}
	for _, rel := range r.Dirs {
		if _, err := cleanRelative(rel); err != nil {
			return err
		}
	}
	return nil
}

func cleanRelative(rel string) (string, error) {
	slashed := filepath.ToSlash(rel)
	if strings.TrimSpace(slashed) == "" || path.IsAbs(slashed) || filepath.IsAbs(rel) {
		return "", errs.New(errs.ErrPathEscape, fmt.Sprintf(messages.ManifestUnsafePathFmt, rel))
	}
	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errs.New(errs.ErrPathEscape, fmt.Sprintf(messages.ManifestUnsafePathFmt, rel))
	}
	return cleaned, nil
}
