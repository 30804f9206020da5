// Package attach normalizes image attachments into the string form the chat
// backend accepts: a remote URL or a base64 data URL.
package attach

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// DefaultMaxBytes caps the size of an image read from disk.
const DefaultMaxBytes = 10 * 1024 * 1024

var (
	ErrNotImage = errors.New("not an image")
	ErrTooLarge = errors.New("image too large")
	ErrEmpty    = errors.New("empty attachment reference")
)

// Reader reads a local file into a data URL
type Reader interface {
	ReadFileAsDataURL(path string) (string, error)
}

// OSReader reads attachments from the local filesystem
type OSReader struct {
	MaxBytes int64
}

// ReadFileAsDataURL returns the file at path as "data:<mime>;base64,<data>".
// The MIME type is sniffed from the content and must be an image type.
func (r OSReader) ReadFileAsDataURL(path string) (string, error) {
	limit := r.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > limit {
		return "", fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrTooLarge, path, info.Size(), limit)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return EncodeDataURL(data)
}

// EncodeDataURL encodes image bytes as a base64 data URL
func EncodeDataURL(data []byte) (string, error) {
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Normalize turns a user-supplied reference into an attachment string.
// http(s) URLs and image data URLs pass through unchanged; anything else is
// treated as a local path and read through r.
func Normalize(r Reader, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmpty
	}

	if strings.HasPrefix(ref, "data:") {
		if !strings.HasPrefix(ref, "data:image/") || !strings.Contains(ref, ";base64,") {
			return "", fmt.Errorf("%w: data URL must be a base64 image", ErrNotImage)
		}
		return ref, nil
	}

	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return ref, nil
	}

	return r.ReadFileAsDataURL(ref)
}

// IsDataURL reports whether an attachment carries inline data
func IsDataURL(image string) bool {
	return strings.HasPrefix(image, "data:")
}

// Describe returns a short human-readable form of an attachment
func Describe(image string) string {
	if !IsDataURL(image) {
		return image
	}
	header, payload, _ := strings.Cut(image, ",")
	mime := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	size := base64.StdEncoding.DecodedLen(len(payload))
	return fmt.Sprintf("%s (%d bytes inline)", mime, size)
}
