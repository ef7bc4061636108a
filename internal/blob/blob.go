// Package blob stores uploaded files such as review photos.
package blob

import (
	"context"
	"io"
	"strings"
)

// Storage uploads and removes blobs. Upload returns the public URL of the
// stored object.
type Storage interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// JoinURL joins a base URL and an object key with a single slash.
func JoinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
