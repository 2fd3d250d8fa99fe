// Package storage accepts uploaded images and hands them to an object store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/linkup-social/linkup/metrics"
)

var (
	// ErrFileTooLarge is returned when an upload exceeds the configured limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrUnsupportedType is returned when the sniffed content is not an allowed image type.
	ErrUnsupportedType = errors.New("only jpeg, png, webp and gif images are allowed")
)

// allowedTypes maps sniffed MIME types to the extension used in object keys.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Store persists objects under a key and returns their public URL.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	// Delete removes the object behind a URL previously returned by Put.
	// URLs this store did not issue are ignored.
	Delete(ctx context.Context, url string) error
}

// Gateway validates images before storing them.
type Gateway struct {
	store    Store
	maxBytes int64
	metrics  *metrics.Metrics
}

// NewGateway creates a gateway in front of store. m may be nil.
func NewGateway(store Store, maxBytes int64, m *metrics.Metrics) *Gateway {
	return &Gateway{store: store, maxBytes: maxBytes, metrics: m}
}

// MaxBytes returns the upload size limit.
func (g *Gateway) MaxBytes() int64 {
	return g.maxBytes
}

// UploadFile stores a multipart file and returns its reference URL.
func (g *Gateway) UploadFile(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	if fh.Size > g.maxBytes {
		g.metrics.Upload("rejected")
		return "", ErrFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		g.metrics.Upload("failed")
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return g.Upload(ctx, f)
}

// Upload reads at most the size limit from r, checks the content type and stores it.
func (g *Gateway) Upload(ctx context.Context, r io.Reader) (string, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, g.maxBytes+1))
	if err != nil {
		g.metrics.Upload("failed")
		return "", fmt.Errorf("read upload: %w", err)
	}
	if n > g.maxBytes {
		g.metrics.Upload("rejected")
		return "", ErrFileTooLarge
	}

	mt := mimetype.Detect(buf.Bytes())
	ext, ok := allowedTypes[mt.String()]
	if !ok {
		g.metrics.Upload("rejected")
		return "", ErrUnsupportedType
	}

	key := "images/" + uuid.NewString() + ext
	url, err := g.store.Put(ctx, key, mt.String(), buf.Bytes())
	if err != nil {
		g.metrics.Upload("failed")
		return "", fmt.Errorf("store upload: %w", err)
	}
	g.metrics.Upload("stored")
	return url, nil
}

// Remove deletes a previously stored image. Empty URLs are ignored.
func (g *Gateway) Remove(ctx context.Context, url string) error {
	if g == nil || url == "" {
		return nil
	}
	return g.store.Delete(ctx, url)
}
