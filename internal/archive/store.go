// Package archive persists uploaded zip archives and reads the urls out of them.
package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jdholdren/webtrack/internal/webtrack"
)

const extension = ".zip"

// ErrTooLarge is returned when an upload goes over the configured size.
var ErrTooLarge = errors.New("archive exceeds the maximum upload size")

// Store keeps uploaded archives in a single directory.
type Store struct {
	dir     string
	maxSize int64
}

// NewStore makes sure the upload directory exists.
//
// A maxSize of zero or less disables the size check.
func NewStore(dir string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("error creating upload directory %s: %w", dir, err)
	}

	return &Store{dir: dir, maxSize: maxSize}, nil
}

// ValidateFilename checks the client supplied name has a zip extension.
func ValidateFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("%w: file name is empty", webtrack.ErrInvalidFileFormat)
	}
	if !strings.EqualFold(filepath.Ext(filename), extension) {
		return webtrack.ErrInvalidFileFormat
	}

	return nil
}

// Save writes the upload to disk under a freshly generated name and returns that name.
//
// The client supplied name is only used for the extension check, never for the path.
// Data goes to a temp file first and is renamed into place once synced.
func (s *Store) Save(filename string, r io.Reader) (string, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}

	name := uuid.NewString() + extension
	fullPath := filepath.Join(s.dir, name)
	tmpPath := fullPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("error creating archive file: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		// One extra byte tells an exact fit apart from an overflow
		src = io.LimitReader(r, s.maxSize+1)
	}
	size, err := io.Copy(f, src)
	if err == nil && s.maxSize > 0 && size > s.maxSize {
		err = ErrTooLarge
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("error writing archive: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("error moving archive into place: %w", err)
	}

	return name, nil
}

// Path resolves a stored archive name inside the upload directory.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Remove deletes a stored archive.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing archive: %w", err)
	}

	return nil
}
