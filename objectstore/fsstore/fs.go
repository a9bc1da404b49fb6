package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zlnvch/garden/objectstore"
)

// FSObjectStore keeps objects as files in one directory. Used in dev mode
// where the API serves the directory itself.
type FSObjectStore struct {
	dir     string
	baseURL string
}

func NewFSObjectStore(dir string, baseURL string) (*FSObjectStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object dir: %w", err)
	}
	return &FSObjectStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (fsStore *FSObjectStore) Dir() string {
	return fsStore.dir
}

func (fsStore *FSObjectStore) Upload(ctx context.Context, filename string, data []byte, contentType string) (objectstore.Object, error) {
	if filename == "" || filepath.Base(filename) != filename {
		return objectstore.Object{}, fmt.Errorf("invalid object name %q", filename)
	}
	if err := ctx.Err(); err != nil {
		return objectstore.Object{}, err
	}

	path := filepath.Join(fsStore.dir, filename)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return objectstore.Object{}, fmt.Errorf("%s: %w", filename, objectstore.ErrObjectExists)
		}
		return objectstore.Object{}, fmt.Errorf("failed to create object: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return objectstore.Object{}, fmt.Errorf("failed to write object: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return objectstore.Object{}, fmt.Errorf("failed to write object: %w", err)
	}

	return objectstore.Object{
		URL:  fsStore.baseURL + "/" + filename,
		Path: filename,
	}, nil
}
