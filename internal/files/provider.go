// Package files exposes the served root folder to the HTTP layer.
package files

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// Info describes a path under the root.
type Info struct {
	Exists bool
	IsDir  bool
}

// Provider resolves URL paths against the served folder.
type Provider interface {
	Stat(name string) (Info, error)
	Open(name string) (io.ReadCloser, error)
}

// Dir is a Provider over a directory on disk.
type Dir struct {
	fsys fs.FS
}

var _ Provider = (*Dir)(nil)

// NewDir returns a provider rooted at root.
func NewDir(root string) *Dir {
	return &Dir{fsys: os.DirFS(root)}
}

// FileSystem returns the root as an http.FileSystem for static file serving.
// Only regular files open; directories read as missing, so their index
// documents are left to the not-found fallback.
func (d *Dir) FileSystem() http.FileSystem {
	return filesOnly{http.FS(d.fsys)}
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return file, nil
}

// Stat reports whether name exists under the root. Paths that escape the
// root or cannot be resolved are reported as missing.
func (d *Dir) Stat(name string) (Info, error) {
	rel, ok := fsPath(name)
	if !ok {
		return Info{}, nil
	}
	fi, err := fs.Stat(d.fsys, rel)
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, err
	}
	return Info{Exists: true, IsDir: fi.IsDir()}, nil
}

// Open opens name for reading.
func (d *Dir) Open(name string) (io.ReadCloser, error) {
	rel, ok := fsPath(name)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return d.fsys.Open(rel)
}

// fsPath turns a URL path into an fs.FS path.
func fsPath(name string) (string, bool) {
	rel := strings.TrimPrefix(path.Clean("/"+name), "/")
	if rel == "" {
		rel = "."
	}
	return rel, fs.ValidPath(rel)
}
