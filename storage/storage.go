// Package storage keeps downsized product images so API clients can fetch
// them by key instead of receiving them inline.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no image is stored under a key
var ErrNotFound = errors.New("image not found")

// ErrInvalidKey is returned for keys outside the images/ namespace
var ErrInvalidKey = errors.New("invalid image key")

// ImageStore is implemented by the filesystem and S3 backends
type ImageStore interface {
	SaveImage(ctx context.Context, imageData []byte, slug, contentType string) (string, error)
	ReadImage(ctx context.Context, key string) ([]byte, error)
	DeleteImage(ctx context.Context, key string) error
}

// Config contains filesystem storage configuration
type Config struct {
	BasePath string // Base directory for all stored files
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// Storage stores images on the local filesystem
type Storage struct {
	config Config
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
	}, nil
}

// ImageKey builds images/YYYY/MM/<slug>-<id><ext>. The random suffix keeps
// keys unique when two products share a slug.
func ImageKey(slug, contentType string, now time.Time) string {
	ext := extensionFromContentType(contentType)
	if ext == "" {
		ext = ".jpg"
	}
	if slug == "" {
		slug = "image"
	}
	id := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return path.Join("images",
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		slug+"-"+id+ext,
	)
}

// ValidateKey rejects keys that escape the images/ namespace
func ValidateKey(key string) error {
	if key == "" || strings.Contains(key, "\\") || path.IsAbs(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean != key || !strings.HasPrefix(clean, "images/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// SaveImage writes an image and returns its key relative to the base directory
func (s *Storage) SaveImage(ctx context.Context, imageData []byte, slug, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := ImageKey(slug, contentType, time.Now())
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	fullPath := s.GetFullPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	if err := os.WriteFile(fullPath, imageData, 0644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}

	return key, nil
}

// ReadImage reads an image from the filesystem
func (s *Storage) ReadImage(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.GetFullPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	return data, nil
}

// DeleteImage deletes an image from the filesystem. Missing files are ignored.
func (s *Storage) DeleteImage(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	if err := os.Remove(s.GetFullPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete image file: %w", err)
	}

	return nil
}

// GetFullPath returns the full filesystem path for a key
func (s *Storage) GetFullPath(key string) string {
	return filepath.Join(s.config.BasePath, filepath.FromSlash(key))
}

// extensionFromContentType returns the file extension for a content type
func extensionFromContentType(contentType string) string {
	contentType = strings.ToLower(strings.Split(contentType, ";")[0])
	contentType = strings.TrimSpace(contentType)

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

// ContentTypeFromKey maps a stored key back to its content type
func ContentTypeFromKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
