package upload

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/timmy/petmatch/internal/apperr"
)

// Spooler writes uploads to temp files under one directory.
type Spooler struct {
	fs       afero.Fs
	dir      string
	maxBytes int64
}

// NewSpooler creates a Spooler on fs. An empty dir uses the OS temp dir and a
// non-positive maxBytes uses DefaultMaxBytes.
func NewSpooler(fs afero.Fs, dir string, maxBytes int64) *Spooler {
	if dir == "" {
		dir = os.TempDir()
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Spooler{fs: fs, dir: dir, maxBytes: maxBytes}
}

// NewOSSpooler creates a Spooler on the real filesystem.
func NewOSSpooler(dir string, maxBytes int64) *Spooler {
	return NewSpooler(afero.NewOsFs(), dir, maxBytes)
}

// File is a spooled, inspected upload. Release must be called exactly once
// the caller is done with it; further calls are no-ops.
type File struct {
	afero.File
	Filename string // as sent by the client
	Size     int64
	ImageInfo

	fs      afero.Fs
	once    sync.Once
	release error
}

// Spool copies src into a new temp file and inspects it. On any error the
// temp file is already gone.
func (s *Spooler) Spool(src io.Reader, filename string) (*File, error) {
	if src == nil {
		return nil, apperr.Validation("image", "image is required")
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	tmp, err := afero.TempFile(s.fs, s.dir, "petmatch-upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	f := &File{File: tmp, Filename: filename, fs: s.fs}

	n, err := io.Copy(tmp, io.LimitReader(src, s.maxBytes+1))
	if err != nil {
		_ = f.Release()
		return nil, fmt.Errorf("failed to spool upload: %w", err)
	}
	if n == 0 {
		_ = f.Release()
		return nil, apperr.Validation("image", "image is empty")
	}
	if n > s.maxBytes {
		_ = f.Release()
		return nil, apperr.Validation("image", fmt.Sprintf("image exceeds %d MB", s.maxBytes>>20))
	}
	f.Size = n

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		_ = f.Release()
		return nil, fmt.Errorf("failed to rewind upload: %w", err)
	}
	info, err := Inspect(tmp)
	if err != nil {
		_ = f.Release()
		return nil, err
	}
	f.ImageInfo = info
	return f, nil
}

// Path returns the temp file location.
func (f *File) Path() string {
	return f.File.Name()
}

// Release closes and removes the temp file.
func (f *File) Release() error {
	f.once.Do(func() {
		path := f.File.Name()
		closeErr := f.File.Close()
		removeErr := f.fs.Remove(path)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			f.release = fmt.Errorf("failed to remove temp file %s: %w", path, removeErr)
			return
		}
		if closeErr != nil {
			f.release = fmt.Errorf("failed to close temp file %s: %w", path, closeErr)
		}
	})
	return f.release
}
