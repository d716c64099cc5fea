package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FS keeps uploads on local disk and serves them under a URL prefix.
type FS struct {
	rootPath string
	baseURL  string
}

var _ Backend = (*FS)(nil)

func NewFS(rootPath, baseURL string) (*FS, error) {
	// Use filepath.Clean to prevent path traversal issues like "media/../"
	p := filepath.Clean(rootPath)

	if err := os.MkdirAll(p, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage directory %s: %w", p, err)
	}

	return &FS{rootPath: p, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes data to <root>/<key[:2]>/<key>. Keys are generated, never user input.
func (s *FS) Put(ctx context.Context, key, _ string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = filepath.Base(filepath.Clean(key))
	relativePath := filepath.Join(shard(key), key)
	fullPath := filepath.Join(s.rootPath, relativePath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create subdirectories: %w", err)
	}

	dst, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to copy file data: %w", err)
	}

	return s.baseURL + "/" + path.Join(shard(key), key), nil
}

// Handler serves stored files. Directory listings are refused.
func (s *FS) Handler() http.Handler {
	files := http.FileServer(http.Dir(s.rootPath))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		files.ServeHTTP(w, r)
	})
}

func shard(key string) string {
	if len(key) < 2 {
		return "_"
	}
	return key[:2]
}
