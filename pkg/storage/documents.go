// Package storage reads and writes definition documents (vardefs, legacy view
// definitions, language packs) from the local filesystem or Azure Blob Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
)

// DocumentStore reads and writes documents addressed by slash-separated paths.
// ReadDocument returns an error wrapping errors.ErrNotFound for missing documents.
type DocumentStore interface {
	ReadDocument(ctx context.Context, docPath string) ([]byte, error)
	WriteDocument(ctx context.Context, docPath string, data []byte) error
}

// FileStore is a DocumentStore rooted at a local directory.
type FileStore struct {
	root string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage root directory is required")
	}
	return &FileStore{root: dir}, nil
}

// ReadDocument reads a document relative to the store root.
func (s *FileStore) ReadDocument(ctx context.Context, docPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(docPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("document %s: %w", docPath, sdkerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read document %s: %w", docPath, err)
	}
	return data, nil
}

// WriteDocument writes a document, creating parent directories.
func (s *FileStore) WriteDocument(ctx context.Context, docPath string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(docPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", docPath, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document %s: %w", docPath, err)
	}
	return nil
}

func (s *FileStore) resolve(docPath string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(docPath))
	if clean == "/" {
		return "", fmt.Errorf("document path is required")
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// FirstExisting reads the first path that exists. It returns the path that was
// read, or ErrNotFound when none exist.
func FirstExisting(ctx context.Context, store DocumentStore, paths ...string) (string, []byte, error) {
	for _, p := range paths {
		data, err := store.ReadDocument(ctx, p)
		if err == nil {
			return p, data, nil
		}
		if !sdkerrors.IsNotFound(err) {
			return "", nil, err
		}
	}
	return "", nil, fmt.Errorf("documents %v: %w", paths, sdkerrors.ErrNotFound)
}
