package objectstore

import (
	"context"
	"errors"
)

// Object is a stored drawing: its public URL and its key within the bucket.
type Object struct {
	URL  string
	Path string
}

// ObjectStore writes objects without overwrite: uploading to an existing key
// fails with ErrObjectExists.
type ObjectStore interface {
	Upload(ctx context.Context, filename string, data []byte, contentType string) (Object, error)
}

var ErrObjectExists = errors.New("object already exists")

// CacheControl is applied to every uploaded drawing. Stored objects never
// change.
const CacheControl = "public, max-age=31536000"
