package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// Dir is a Source over the supported files below a directory. Names are
// slash-separated paths relative to the root.
type Dir struct {
	root string
	kind string
}

var _ Source = (*Dir)(nil)

// NewDir creates a directory source; kind is recorded on every document.
func NewDir(root, kind string) *Dir {
	return &Dir{root: root, kind: kind}
}

func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) List(ctx context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || !Supported(entry.Name()) {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.root, err)
	}
	slices.Sort(names)
	return names, nil
}

func (d *Dir) Load(ctx context.Context, name string) (*Document, error) {
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return FromBytes(name, d.kind, data)
}
