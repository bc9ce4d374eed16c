// Package storage keeps uploaded document files on local disk or in S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"

	"notifycsc/internal/platform/config"
)

var (
	ErrObjectNotFound = errors.New("stored object not found")
	ErrInvalidKey     = errors.New("invalid object key")
)

type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// DownloadURL returns a time-limited URL for direct download, or "" when the
	// backend can only stream through the API.
	DownloadURL(ctx context.Context, key, filename string) (string, error)
}

func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		return NewS3(ctx, cfg)
	case config.StorageLocal, "":
		return NewLocal(cfg.StorageDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// NewKey builds "<prefix>/<ULID><ext>" with the extension taken from filename.
func NewKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, "\\", "/")))
	if len(ext) > 10 || strings.ContainsAny(ext, " /?#%") {
		ext = ""
	}
	prefix = strings.Trim(prefix, "/")
	id := ulid.Make().String()
	if prefix == "" {
		return id + ext
	}
	return prefix + "/" + id + ext
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}

// ContentDisposition returns an attachment header value with the filename
// reduced to characters safe inside a quoted string.
func ContentDisposition(filename string) string {
	var b strings.Builder
	for _, r := range filename {
		switch {
		case r == '"' || r == '\\' || r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	name := strings.TrimSpace(b.String())
	if name == "" {
		name = "download"
	}
	return fmt.Sprintf("attachment; filename=%q", name)
}
