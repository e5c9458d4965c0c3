// Package upload is the object storage collaborator: it accepts a file and
// hands back a durable public URL. Files live on local disk under a
// uuid-keyed directory and are served read-only under /files/.
package upload

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrBadFilename = errors.New("invalid filename")

type Store struct {
	dir     string
	baseURL string
}

func NewStore(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// CleanFilename keeps the base name and rejects anything that could escape
// the upload directory.
func CleanFilename(filename string) (string, error) {
	filename = path.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == ".." || strings.ContainsAny(filename, "/\\") {
		return "", ErrBadFilename
	}
	return filename, nil
}

// Save writes the file under a fresh uuid folder and returns its public URL.
func (s *Store) Save(filename string, r io.Reader) (string, error) {
	filename, err := CleanFilename(filename)
	if err != nil {
		return "", err
	}

	key := uuid.NewString()
	dir := filepath.Join(s.dir, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	file, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		_ = os.Remove(file.Name())
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/files/%s/%s", s.baseURL, key, filename), nil
}

// Handler serves stored files. Mounted under /files/.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix("/files/", http.FileServer(http.Dir(s.dir)))
}
