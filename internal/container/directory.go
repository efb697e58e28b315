package container

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

// Directory is a container backed by a directory tree.
type Directory struct {
	root string
	name string
}

func OpenDirectory(root string) *Directory {
	return openDirectory(root, filepath.Base(root))
}

func openDirectory(root, name string) *Directory {
	return &Directory{root: root, name: name}
}

func (d *Directory) Name() string { return d.name }

func (d *Directory) Walk(ctx context.Context, fn func(Entry) error) error {
	return filepath.WalkDir(d.root, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !de.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		info, err := de.Info()
		if err != nil {
			return err
		}
		return fn(&fileEntry{dir: d, path: filepath.ToSlash(rel), abs: p, size: info.Size()})
	})
}

func (d *Directory) Entry(p string) (Entry, error) {
	clean := path.Clean(p)
	if path.IsAbs(clean) || clean == ".." || len(clean) > 2 && clean[:3] == "../" {
		return nil, fmt.Errorf("%w: %s in %s", apperrors.ErrEntryNotFound, p, d.name)
	}
	abs := filepath.Join(d.root, filepath.FromSlash(clean))
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s in %s", apperrors.ErrEntryNotFound, p, d.name)
	}
	return &fileEntry{dir: d, path: clean, abs: abs, size: info.Size()}, nil
}

func (d *Directory) Close() error { return nil }

type fileEntry struct {
	dir  *Directory
	path string
	abs  string
	size int64
}

func (e *fileEntry) Container() string { return e.dir.name }
func (e *fileEntry) Path() string      { return e.path }
func (e *fileEntry) Artifact() string  { return Artifact(e.dir.name, e.path) }
func (e *fileEntry) Size() int64       { return e.size }

func (e *fileEntry) Open() (io.ReadCloser, error) {
	return os.Open(e.abs)
}
