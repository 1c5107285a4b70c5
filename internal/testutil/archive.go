// Package testutil provides fixtures shared by package tests: gzip-compressed tar
// archives built in memory and a fake registry server.
package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"testing"
)

// TarEntry describes one archive member. Type defaults to a regular file.
type TarEntry struct {
	Name     string
	Body     string
	Mode     int64
	Type     byte
	Linkname string
}

// File returns a regular-file entry with mode 0644.
func File(name string, body string) TarEntry {
	return TarEntry{Name: name, Body: body, Mode: 0o644, Type: tar.TypeReg}
}

// Dir returns a directory entry with mode 0755.
func Dir(name string) TarEntry {
	return TarEntry{Name: name, Mode: 0o755, Type: tar.TypeDir}
}

// Symlink returns a symbolic link entry pointing at target.
func Symlink(name string, target string) TarEntry {
	return TarEntry{Name: name, Mode: 0o777, Type: tar.TypeSymlink, Linkname: target}
}

// TarGz returns a gzip-compressed tar archive containing entries in order.
func TarGz(t testing.TB, entries ...TarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, entry := range entries {
		typ := entry.Type
		if typ == 0 {
			typ = tar.TypeReg
		}
		mode := entry.Mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{
			Name:     entry.Name,
			Mode:     mode,
			Typeflag: typ,
			Linkname: entry.Linkname,
		}
		if typ == tar.TypeReg {
			hdr.Size = int64(len(entry.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write tar header %s: %v", entry.Name, err)
		}
		if typ == tar.TypeReg {
			if _, err := tw.Write([]byte(entry.Body)); err != nil {
				t.Fatalf("write tar body %s: %v", entry.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return buf.Bytes()
}

// WriteTarGz writes a gzip-compressed tar archive of entries to path.
func WriteTarGz(t testing.TB, path string, entries ...TarEntry) {
	t.Helper()
	if err := os.WriteFile(path, TarGz(t, entries...), 0o644); err != nil {
		t.Fatalf("write archive %s: %v", path, err)
	}
}
