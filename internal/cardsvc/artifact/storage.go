// Package artifact stores the files attached to a card: the photo, up to
// three documents and the rendered code image.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
)

// Folder namespaces artifacts by kind. The values double as URL segments
// under /static/.
type Folder string

const (
	FolderPhotos    Folder = "uploads"
	FolderDocuments Folder = "documents"
	FolderCodes     Folder = "qr"
)

var (
	ErrNotFound    = errors.New("artifact not found")
	ErrInvalidName = errors.New("invalid artifact name")
	ErrBadFolder   = errors.New("unknown artifact folder")
)

// Folders lists every folder a backend has to provide.
var Folders = []Folder{FolderPhotos, FolderDocuments, FolderCodes}

func (f Folder) Valid() bool {
	switch f {
	case FolderPhotos, FolderDocuments, FolderCodes:
		return true
	}
	return false
}

// Storage is implemented by the disk and minio backends.
type Storage interface {
	Save(ctx context.Context, folder Folder, name string, r io.Reader) error
	Open(ctx context.Context, folder Folder, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, folder Folder, name string) error
}

// checkName rejects anything that is not a single plain path element.
func checkName(folder Folder, name string) error {
	if !folder.Valid() {
		return fmt.Errorf("%w: %q", ErrBadFolder, folder)
	}
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
