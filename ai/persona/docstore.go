package persona

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DocumentStore persists whole JSON documents by key. The backing medium is
// swappable so tests can run against an in-memory implementation.
type DocumentStore interface {
	// Load returns the raw document for key, or an error if it does not
	// exist or cannot be read.
	Load(key string) ([]byte, error)

	// Save rewrites the full document for key.
	Save(key string, doc []byte) error
}

// FileDocumentStore stores each document as <key>.json under a directory.
type FileDocumentStore struct {
	dir string
}

// NewFileDocumentStore creates a document store rooted at dir, creating the
// directory if needed.
func NewFileDocumentStore(dir string) (*FileDocumentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create document dir %s", dir)
	}
	return &FileDocumentStore{dir: dir}, nil
}

func (s *FileDocumentStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileDocumentStore) Load(key string) ([]byte, error) {
	doc, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load document %s", key)
	}
	return doc, nil
}

func (s *FileDocumentStore) Save(key string, doc []byte) error {
	if err := os.WriteFile(s.path(key), doc, 0o644); err != nil {
		return errors.Wrapf(err, "failed to save document %s", key)
	}
	return nil
}
