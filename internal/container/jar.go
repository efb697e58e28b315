package container

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

// Jar is a container backed by a zip archive. Directory members are not
// entries.
type Jar struct {
	name   string
	rc     *zip.ReadCloser
	files  []*zip.File
	byPath map[string]*zip.File
}

func openJar(path, name string) (*Jar, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening jar %s: %w", path, err)
	}
	j := &Jar{name: name, rc: rc, byPath: make(map[string]*zip.File, len(rc.File))}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		j.files = append(j.files, f)
		j.byPath[f.Name] = f
	}
	sort.Slice(j.files, func(a, b int) bool { return j.files[a].Name < j.files[b].Name })
	return j, nil
}

func (j *Jar) Name() string { return j.name }

func (j *Jar) Walk(ctx context.Context, fn func(Entry) error) error {
	for _, f := range j.files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(&jarEntry{jar: j, f: f}); err != nil {
			return err
		}
	}
	return nil
}

func (j *Jar) Entry(path string) (Entry, error) {
	f, ok := j.byPath[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", apperrors.ErrEntryNotFound, path, j.name)
	}
	return &jarEntry{jar: j, f: f}, nil
}

func (j *Jar) Close() error {
	return j.rc.Close()
}

type jarEntry struct {
	jar *Jar
	f   *zip.File
}

func (e *jarEntry) Container() string { return e.jar.name }
func (e *jarEntry) Path() string      { return e.f.Name }
func (e *jarEntry) Artifact() string  { return Artifact(e.jar.name, e.f.Name) }
func (e *jarEntry) Size() int64       { return int64(e.f.UncompressedSize64) }

func (e *jarEntry) Open() (io.ReadCloser, error) {
	return e.f.Open()
}
