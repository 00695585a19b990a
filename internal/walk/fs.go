// Package walk turns command line paths into a stream of files to analyze.
package walk

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// Entry is a regular file found by the walkers.
type Entry interface {
	Path() string
	Open() (io.ReadCloser, error)
	Stat() (fs.FileInfo, error)
}

// Paths yields the given files as they are and walks the given directories
// recursively. A path which cannot be stat'ed is yielded as an error.
func Paths(ctx context.Context, paths ...string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		for _, path := range paths {
			if ctx.Err() != nil {
				return
			}
			info, err := os.Stat(path)
			if err != nil {
				if !yield(nil, fmt.Errorf("walk: %w", err)) {
					return
				}
				continue
			}
			if !info.IsDir() {
				if !yield(fileEntry{path: path, info: info}, nil) {
					return
				}
				continue
			}
			if !walkDir(ctx, path, yield) {
				return
			}
		}
	}
}

// walkDir uses os.DirFS rather than os.Root, entries are opened by other
// goroutines after the walk may have finished.
func walkDir(ctx context.Context, path string, yield func(Entry, error) bool) bool {
	for entry, err := range FS(ctx, os.DirFS(path), path) {
		if !yield(entry, err) {
			return false
		}
	}
	return true
}

// FS recursively walks the filesystem rooted at root and return a handle for every regular file found.
// Or an error if file information retrieval fails.
// Each Entry's Path() is prefixed with name of a filesystem, usually the directory given on the
// command line. It does not follow symlinks.
func FS(ctx context.Context, root fs.FS, name string) iter.Seq2[Entry, error] {
	if root == nil {
		panic("root is nil")
	}

	return func(yield func(Entry, error) bool) {
		fn := func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			var entry = fsEntry{
				root:    root,
				abspath: filepath.Join(name, path),
				path:    path,
			}
			var yieldErr error
			if err != nil {
				yieldErr = err
			} else {
				info, err := d.Info()
				if err != nil {
					entry.infoErr = err
					yieldErr = err
				} else {
					if !info.Mode().IsRegular() {
						return nil
					}
					entry.info = info
					yieldErr = nil
				}
			}

			if !yield(entry, yieldErr) {
				return fs.SkipAll
			}
			return nil
		}
		_ = fs.WalkDir(root, ".", fn)
	}
}

// fsEntry implements Entry for a filesystem
// it uses root.Open to open the file
type fsEntry struct {
	root    fs.FS
	abspath string
	path    string
	info    fs.FileInfo
	infoErr error
}

// returns the absolute path to the file
func (e fsEntry) Path() string {
	return e.abspath
}

func (e fsEntry) Open() (io.ReadCloser, error) {
	if e.infoErr != nil {
		return nil, e.infoErr
	}
	return e.root.Open(e.path)
}

func (e fsEntry) Stat() (fs.FileInfo, error) {
	return e.info, e.infoErr
}

// fileEntry is a single file given explicitly by its path.
type fileEntry struct {
	path string
	info fs.FileInfo
}

func (e fileEntry) Path() string {
	return e.path
}

func (e fileEntry) Open() (io.ReadCloser, error) {
	return os.Open(e.path)
}

func (e fileEntry) Stat() (fs.FileInfo, error) {
	return e.info, nil
}
