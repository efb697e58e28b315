// Package container supplies module bytes to the indexer. A container is a
// directory tree or a jar archive; each regular file inside it is an Entry
// identified by an artifact handle of the form "<container>!/<path>".
package container

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/classfile-indexer/pkg/errors"
)

// KindFile is the selector kind of every regular entry.
const KindFile = "file"

type Entry interface {
	// Container is the name of the owning container.
	Container() string
	// Path is the slash-separated path inside the container.
	Path() string
	// Artifact is the handle recorded in the indexes.
	Artifact() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type Container interface {
	Name() string
	// Walk calls fn for every regular entry in path order. It stops at the
	// first error from fn or when ctx is done.
	Walk(ctx context.Context, fn func(Entry) error) error
	// Entry returns the entry at path or an error wrapping ErrEntryNotFound.
	Entry(path string) (Entry, error)
	Close() error
}

// Artifact composes the artifact handle for path inside container.
func Artifact(container, path string) string {
	return container + "!/" + path
}

// SplitArtifact is the inverse of Artifact.
func SplitArtifact(artifact string) (container, path string, err error) {
	i := strings.Index(artifact, "!/")
	if i <= 0 || i+2 == len(artifact) {
		return "", "", fmt.Errorf("%w: artifact %q is not <container>!/<path>", apperrors.ErrInvalidInput, artifact)
	}
	return artifact[:i], artifact[i+2:], nil
}

// Open opens path as a Directory if it is one, otherwise as a Jar. The
// container is named by the base name of path.
func Open(path string) (Container, error) {
	return open(path, filepath.Base(path))
}

func open(path, name string) (Container, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening container %s: %w", path, err)
	}
	if info.IsDir() {
		return openDirectory(path, name), nil
	}
	j, err := openJar(path, name)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// Resolve opens the container at name relative to root and names it by that
// relative path. Names that escape root are rejected.
func Resolve(root, name string) (Container, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: container %q is outside %s", apperrors.ErrInvalidInput, name, root)
	}
	return open(filepath.Join(root, clean), filepath.ToSlash(clean))
}
