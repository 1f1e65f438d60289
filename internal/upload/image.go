// Package upload spools client uploads to scoped temp files and checks that
// they are images the embedding service can read.
package upload

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/timmy/petmatch/internal/apperr"
)

// DefaultMaxBytes caps an upload at 10 MB.
const DefaultMaxBytes int64 = 10 << 20

// Accepted content types, detected from the bytes rather than the client header.
var allowedTypes = []string{"image/jpeg", "image/png", "image/webp"}

// ImageInfo describes an accepted image.
type ImageInfo struct {
	ContentType string
	Extension   string
	Width       int
	Height      int
}

// Inspect sniffs r and decodes the image header. r is left at offset 0.
func Inspect(r io.ReadSeeker) (ImageInfo, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("failed to sniff upload: %w", err)
	}
	if !allowed(mtype) {
		return ImageInfo{}, apperr.Validation("image", fmt.Sprintf("unsupported image type %s (use JPG, PNG or WEBP)", mtype.String()))
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return ImageInfo{}, fmt.Errorf("failed to rewind upload: %w", err)
	}
	cfg, _, err := image.DecodeConfig(r)
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, apperr.Validation("image", "image could not be decoded")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return ImageInfo{}, fmt.Errorf("failed to rewind upload: %w", err)
	}

	return ImageInfo{
		ContentType: baseType(mtype),
		Extension:   mtype.Extension(),
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

func allowed(m *mimetype.MIME) bool {
	for _, t := range allowedTypes {
		if m.Is(t) {
			return true
		}
	}
	return false
}

func baseType(m *mimetype.MIME) string {
	for _, t := range allowedTypes {
		if m.Is(t) {
			return t
		}
	}
	return m.String()
}
