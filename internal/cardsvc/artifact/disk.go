package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskStorage keeps each folder as a directory under Root.
type DiskStorage struct {
	Root string
}

func NewDiskStorage(root string) (*DiskStorage, error) {
	for _, f := range Folders {
		if err := os.MkdirAll(filepath.Join(root, string(f)), 0755); err != nil {
			return nil, fmt.Errorf("create artifact folder %s: %w", f, err)
		}
	}
	return &DiskStorage{Root: root}, nil
}

func (d *DiskStorage) path(folder Folder, name string) string {
	return filepath.Join(d.Root, string(folder), name)
}

// Save writes to a temp file in the destination folder and renames it into
// place, so readers never see a partial file.
func (d *DiskStorage) Save(ctx context.Context, folder Folder, name string, r io.Reader) error {
	if err := checkName(folder, name); err != nil {
		return err
	}
	dir := filepath.Join(d.Root, string(folder))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create folder %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, d.path(folder, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func (d *DiskStorage) Open(ctx context.Context, folder Folder, name string) (io.ReadCloser, error) {
	if err := checkName(folder, name); err != nil {
		return nil, err
	}
	f, err := os.Open(d.path(folder, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (d *DiskStorage) Remove(ctx context.Context, folder Folder, name string) error {
	if err := checkName(folder, name); err != nil {
		return err
	}
	err := os.Remove(d.path(folder, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
