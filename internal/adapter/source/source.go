// Package source lists and opens input files (detection CSVs and reference
// GeoJSON) from a local directory or a remote store.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Object describes one file available from a Source.
type Object struct {
	ID         string
	Name       string
	Size       int64
	ModifiedAt time.Time
}

// Source lists and opens input files.
type Source interface {
	List(ctx context.Context) ([]Object, error)
	Open(ctx context.Context, obj Object) (io.ReadCloser, error)
}

// Find returns the object whose name matches name, ignoring case.
func Find(objs []Object, name string) (Object, bool) {
	for _, o := range objs {
		if strings.EqualFold(o.Name, name) {
			return o, true
		}
	}
	return Object{}, false
}

// WithSuffix keeps the objects whose name ends in suffix, ignoring case.
func WithSuffix(objs []Object, suffix string) []Object {
	suffix = strings.ToLower(suffix)
	out := make([]Object, 0, len(objs))
	for _, o := range objs {
		if strings.HasSuffix(strings.ToLower(o.Name), suffix) {
			out = append(out, o)
		}
	}
	return out
}

// Dir is a Source over the regular files of one local directory.
type Dir struct {
	root string
}

// NewDir creates a Source rooted at dir. Subdirectories are not traversed.
func NewDir(dir string) *Dir {
	return &Dir{root: dir}
}

// List returns the directory's regular files sorted by name. A missing
// directory lists as empty.
func (d *Dir) List(ctx context.Context) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", d.root, err)
	}

	objs := make([]Object, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		objs = append(objs, Object{
			ID:         filepath.Join(d.root, e.Name()),
			Name:       e.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Name < objs[j].Name })
	return objs, nil
}

// Open opens the named file for reading.
func (d *Dir) Open(ctx context.Context, obj Object) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(d.root, filepath.Base(obj.Name)))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", obj.Name, err)
	}
	return f, nil
}
