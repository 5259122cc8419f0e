// Package storage writes output artifacts to a local directory or S3.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// Store persists named artifacts.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
}

// Dir writes artifacts into a local directory. Each write goes to a temporary
// file that is renamed into place, so readers never see a partial artifact.
type Dir struct {
	root string
}

// NewDir creates a Store rooted at dir. The directory is created on first write.
func NewDir(dir string) *Dir {
	return &Dir{root: dir}
}

// Root returns the output directory.
func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(d.root, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(d.root, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// Gzip compresses artifacts before handing them to the wrapped Store and
// appends ".gz" to their names.
type Gzip struct {
	inner Store
	level int
}

// NewGzip wraps inner with gzip compression at the default level.
func NewGzip(inner Store) *Gzip {
	return &Gzip{inner: inner, level: gzip.DefaultCompression}
}

func (g *Gzip) Put(ctx context.Context, name string, data []byte) error {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, g.level)
	if err != nil {
		return fmt.Errorf("gzip writer: %w", err)
	}
	zw.Name = name
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("gzip %s: %w", name, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("gzip %s: %w", name, err)
	}
	return g.inner.Put(ctx, name+".gz", buf.Bytes())
}
