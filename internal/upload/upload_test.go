package upload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func fileOf(name, contentType string, data []byte) File {
	return File{Name: name, ContentType: contentType, Size: int64(len(data)), Data: bytes.NewReader(data)}
}

var imageMimes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

func TestValidate(t *testing.T) {
	v := NewValidator(1<<20, imageMimes)
	data := pngBytes(t, 3, 2)

	t.Run("png", func(t *testing.T) {
		got, err := v.Validate(fileOf("cat.png", "image/png", data))
		require.NoError(t, err)
		assert.Equal(t, "image/png", got.MimeType)
		assert.Equal(t, ".png", got.Ext)
		assert.Equal(t, 3, got.Width)
		assert.Equal(t, 2, got.Height)

		// the reader is rewound for the backend
		all, err := io.ReadAll(got.Data)
		require.NoError(t, err)
		assert.Equal(t, data, all)
	})

	t.Run("sniffed type beats a lying extension", func(t *testing.T) {
		got, err := v.Validate(fileOf("cat.gif", "image/gif", data))
		require.NoError(t, err)
		assert.Equal(t, "image/png", got.MimeType)
	})

	t.Run("too large", func(t *testing.T) {
		_, err := NewValidator(10, imageMimes).Validate(fileOf("cat.png", "image/png", data))
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("not an image", func(t *testing.T) {
		_, err := v.Validate(fileOf("notes.txt", "text/plain", []byte("hello world")))
		assert.ErrorIs(t, err, ErrInvalidMimeType)
	})

	t.Run("disallowed image type", func(t *testing.T) {
		_, err := NewValidator(1<<20, []string{"image/jpeg"}).Validate(fileOf("cat.png", "image/png", data))
		assert.ErrorIs(t, err, ErrInvalidMimeType)
	})

	t.Run("truncated image", func(t *testing.T) {
		_, err := v.Validate(fileOf("cat.png", "image/png", data[:20]))
		assert.ErrorIs(t, err, ErrNotAnImage)
	})
}

func TestFS(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFS(root, "/media/")
	require.NoError(t, err)

	url, err := fs.Put(context.Background(), "abcdef.png", "image/png", strings.NewReader("bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/media/ab/abcdef.png", url)

	stored, err := os.ReadFile(filepath.Join(root, "ab", "abcdef.png"))
	require.NoError(t, err)
	assert.Equal(t, "bytes", string(stored))

	t.Run("key cannot escape root", func(t *testing.T) {
		url, err := fs.Put(context.Background(), "../../evil.png", "image/png", strings.NewReader("x"))
		require.NoError(t, err)
		assert.Equal(t, "/media/ev/evil.png", url)
	})

	t.Run("handler", func(t *testing.T) {
		h := http.StripPrefix("/media", fs.Handler())

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/ab/abcdef.png", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bytes", rec.Body.String())

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/ab/", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

type mockBackend struct {
	putFunc func(ctx context.Context, key, contentType string, data io.Reader) (string, error)

	putCalled bool
	keyArg    string
}

func (m *mockBackend) Put(ctx context.Context, key, contentType string, data io.Reader) (string, error) {
	m.putCalled = true
	m.keyArg = key
	if m.putFunc != nil {
		return m.putFunc(ctx, key, contentType, data)
	}
	return "https://cdn.example.com/" + key, nil
}

func TestService(t *testing.T) {
	v := NewValidator(1<<20, imageMimes)
	newKey := func() string { return "KEY123" }

	t.Run("success", func(t *testing.T) {
		backend := &mockBackend{}
		url, err := NewService(v, backend, newKey).Upload(context.Background(), fileOf("a.png", "", pngBytes(t, 1, 1)))
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/KEY123.png", url)
	})

	t.Run("invalid file never reaches backend", func(t *testing.T) {
		backend := &mockBackend{}
		_, err := NewService(v, backend, newKey).Upload(context.Background(), fileOf("a.txt", "", []byte("nope")))
		require.Error(t, err)
		assert.False(t, backend.putCalled)
	})

	t.Run("backend error", func(t *testing.T) {
		backend := &mockBackend{putFunc: func(context.Context, string, string, io.Reader) (string, error) {
			return "", errors.New("bucket gone")
		}}
		_, err := NewService(v, backend, newKey).Upload(context.Background(), fileOf("a.png", "", pngBytes(t, 1, 1)))
		assert.ErrorContains(t, err, "bucket gone")
	})
}
