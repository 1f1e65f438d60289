package upload

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/petmatch/internal/apperr"
)

const tmpDir = "/tmp/petmatch"

// 1x1 lossless WEBP.
const webpPixel = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 200, G: 120, B: 40, A: 255})
	return img
}

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	return buf.Bytes()
}

func webpBytes(t *testing.T) []byte {
	data, err := base64.StdEncoding.DecodeString(webpPixel)
	require.NoError(t, err)
	return data
}

func leftovers(t *testing.T, fs afero.Fs) []string {
	t.Helper()
	entries, err := afero.ReadDir(fs, tmpDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSpoolAcceptsSupportedImages(t *testing.T) {
	tests := []struct {
		name        string
		data        func(*testing.T) []byte
		contentType string
		width       int
	}{
		{"png", pngBytes, "image/png", 4},
		{"jpeg", jpegBytes, "image/jpeg", 4},
		{"webp", webpBytes, "image/webp", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			s := NewSpooler(fs, tmpDir, 0)
			data := tt.data(t)

			f, err := s.Spool(bytes.NewReader(data), "dog."+tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.contentType, f.ContentType)
			assert.Equal(t, tt.width, f.Width)
			assert.Equal(t, int64(len(data)), f.Size)
			assert.Equal(t, "dog."+tt.name, f.Filename)

			// readable from the start for the upload
			got, err := io.ReadAll(f)
			require.NoError(t, err)
			assert.Equal(t, data, got)

			require.NoError(t, f.Release())
			assert.Empty(t, leftovers(t, fs))
		})
	}
}

func TestSpoolRejects(t *testing.T) {
	var gifBuf bytes.Buffer
	require.NoError(t, gif.Encode(&gifBuf, testImage(), nil))

	tests := []struct {
		name string
		data []byte
	}{
		{"text", []byte("definitely not an image")},
		{"gif", gifBuf.Bytes()},
		{"truncated jpeg", []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00 garbage")},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			_, err := NewSpooler(fs, tmpDir, 0).Spool(bytes.NewReader(tt.data), "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Empty(t, leftovers(t, fs))
		})
	}
}

func TestSpoolRejectsOversized(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := NewSpooler(fs, tmpDir, 1<<20)

	big := io.MultiReader(bytes.NewReader(pngBytes(t)), strings.NewReader(strings.Repeat("x", 2<<20)))
	_, err := s.Spool(big, "big.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "1 MB")
	assert.Empty(t, leftovers(t, fs))
}

func TestSpoolRequiresReader(t *testing.T) {
	_, err := NewSpooler(afero.NewMemMapFs(), tmpDir, 0).Spool(nil, "x")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReleaseIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	f, err := NewSpooler(fs, tmpDir, 0).Spool(bytes.NewReader(pngBytes(t)), "a.png")
	require.NoError(t, err)

	exists, err := afero.Exists(fs, f.Path())
	require.NoError(t, err)
	assert.True(t, exists)

	assert.NoError(t, f.Release())
	assert.NoError(t, f.Release())

	exists, err = afero.Exists(fs, f.Path())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInspectRewinds(t *testing.T) {
	r := bytes.NewReader(pngBytes(t))
	info, err := Inspect(r)
	require.NoError(t, err)
	assert.Equal(t, ".png", info.Extension)
	assert.Equal(t, 3, info.Height)

	pos, err := r.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Zero(t, pos)
}
