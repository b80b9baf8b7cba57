package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Load reads split of kind from dir. Either the gzipped archives or their
// decompressed counterparts (same name without ".gz") are accepted. The
// image and label files are read concurrently.
func Load(dir string, kind Kind, split Split) (*Dataset, error) {
	imagesName, labelsName := kind.Files(split)

	var (
		images     [][]float32
		rows, cols int
		labels     []int32
	)

	var g errgroup.Group
	g.Go(func() error {
		return withFile(dir, imagesName, func(r io.Reader) (err error) {
			images, rows, cols, err = ReadImages(r)
			return err
		})
	})
	g.Go(func() error {
		return withFile(dir, labelsName, func(r io.Reader) (err error) {
			labels, err = ReadLabels(r)
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load %s %s: %w", kind, split, err)
	}

	d := &Dataset{Images: images, Labels: labels, Rows: rows, Cols: cols}
	if err := d.Validate(NumClasses); err != nil {
		return nil, fmt.Errorf("load %s %s: %w", kind, split, err)
	}
	return d, nil
}

// resolve finds name in dir, falling back to the name without ".gz".
func resolve(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	plain := filepath.Join(dir, strings.TrimSuffix(name, ".gz"))
	if _, err := os.Stat(plain); err == nil {
		return plain, nil
	}
	return "", fmt.Errorf("%s not found in %s: %w", name, dir, os.ErrNotExist)
}

func withFile(dir, name string, f func(io.Reader) error) (err error) {
	path, err := resolve(dir, name)
	if err != nil {
		return err
	}
	//nolint:gosec // dataset files live in a user-chosen directory
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(file))

	if err := f(file); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// Available reports whether every file of kind is present in dir.
func Available(dir string, kind Kind) bool {
	for _, name := range kind.AllFiles() {
		if _, err := resolve(dir, name); err != nil {
			return false
		}
	}
	return true
}
