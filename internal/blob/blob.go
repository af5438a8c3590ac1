// Package blob stores uploaded bytes: asset files, thumbnails and artwork
// images too large to keep inline.
package blob

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("blob not found")

// Store is an object store addressed by slash-separated keys.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, *Info, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

type Info struct {
	Key         string
	Size        int64
	ContentType string
}

func joinURL(base, key string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(key, "/")
}
