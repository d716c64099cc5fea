// Package upload stores user images and hands back a stable URL.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

var (
	ErrTooLarge        = errors.New("file too large")
	ErrInvalidMimeType = errors.New("invalid file type")
	ErrNotAnImage      = errors.New("file is not a readable image")
)

// File is one image submitted with a post.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Data        io.ReadSeeker
}

// Uploader stores a validated file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, f File) (string, error)
}

// Validated is a file that passed Validate.
type Validated struct {
	File
	MimeType string
	Ext      string
	Width    int
	Height   int
}

// Validator checks size, sniffed type and that the image header decodes.
type Validator struct {
	maxBytes int64
	allowed  map[string]bool
}

func NewValidator(maxBytes int64, allowedMimes []string) *Validator {
	allowed := make(map[string]bool, len(allowedMimes))
	for _, m := range allowedMimes {
		allowed[m] = true
	}
	return &Validator{maxBytes: maxBytes, allowed: allowed}
}

func (v *Validator) Validate(f File) (*Validated, error) {
	if f.Size > v.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, f.Size, v.maxBytes)
	}

	mimeType, err := DetectMimeType(f)
	if err != nil {
		return nil, err
	}
	if !v.allowed[mimeType] {
		return nil, fmt.Errorf("%w: %s (file: %s)", ErrInvalidMimeType, mimeType, f.Name)
	}

	cfg, _, err := image.DecodeConfig(f.Data)
	if _, seekErr := f.Data.Seek(0, io.SeekStart); seekErr != nil {
		return nil, fmt.Errorf("rewind %s: %w", f.Name, seekErr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAnImage, f.Name, err)
	}

	return &Validated{
		File:     f,
		MimeType: mimeType,
		Ext:      extensionFor(mimeType, f.Name),
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// DetectMimeType sniffs the content first and only trusts the declared type
// or the extension when sniffing is inconclusive.
func DetectMimeType(f File) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(f.Data, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read %s: %w", f.Name, err)
	}
	if _, err := f.Data.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind %s: %w", f.Name, err)
	}

	mimeType := http.DetectContentType(head[:n])
	if mimeType == "application/octet-stream" && bytes.HasPrefix(head[:n], []byte("RIFF")) && n >= 12 && string(head[8:12]) == "WEBP" {
		mimeType = "image/webp"
	}
	if mimeType == "application/octet-stream" || strings.HasPrefix(mimeType, "text/plain") {
		declared := f.ContentType
		if declared == "" || declared == "application/octet-stream" {
			declared = mime.TypeByExtension(filepath.Ext(f.Name))
		}
		if declared != "" {
			mimeType = declared
		}
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		return "", fmt.Errorf("could not detect MIME type for file: %s", f.Name)
	}
	return mimeType, nil
}

func extensionFor(mimeType, name string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return strings.ToLower(filepath.Ext(name))
}

// Service validates before handing the file to a backend.
type Service struct {
	validator *Validator
	backend   Backend
	newKey    func() string
}

// Backend persists bytes under a key and knows the public URL for it.
type Backend interface {
	Put(ctx context.Context, key, contentType string, data io.Reader) (string, error)
}

func NewService(v *Validator, backend Backend, newKey func() string) *Service {
	return &Service{validator: v, backend: backend, newKey: newKey}
}

func (s *Service) Upload(ctx context.Context, f File) (string, error) {
	valid, err := s.validator.Validate(f)
	if err != nil {
		return "", err
	}
	key := s.newKey() + valid.Ext
	url, err := s.backend.Put(ctx, key, valid.MimeType, valid.Data)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return url, nil
}
