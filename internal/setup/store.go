// internal/setup/store.go
package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// FileStore persists configuration blocks as raw wire-layout files
type FileStore struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// NewFileStore creates a store rooted at dir
func NewFileStore(fs afero.Fs, dir string, logger *zap.Logger) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create setup directory: %w", err)
	}
	return &FileStore{fs: fs, dir: dir, logger: logger.With(zap.String("component", "setup_store"))}, nil
}

func (s *FileStore) path(name string) (string, error) {
	clean := filepath.Base(filepath.Clean(name))
	if clean == "." || clean == string(filepath.Separator) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid setup file name %q", name)
	}
	return filepath.Join(s.dir, clean), nil
}

// Save writes the encoded block
func (s *FileStore) Save(name string, b *Block) error {
	data, err := b.Encode()
	if err != nil {
		return err
	}
	return s.SaveRaw(name, data)
}

// SaveRaw writes bytes that are already in wire layout
func (s *FileStore) SaveRaw(name string, data []byte) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write setup file: %w", err)
	}
	s.logger.Info("Setup file saved", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// Load reads and decodes a block with the given layout
func (s *FileStore) Load(name string, layout *Layout) (*Block, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("setup file %q not found", name)
		}
		return nil, fmt.Errorf("failed to read setup file: %w", err)
	}

	block, err := layout.Decode(data)
	if err != nil {
		return nil, err
	}
	if warning := block.CompatibilityWarning(); warning != "" {
		s.logger.Warn("Setup file compatibility", zap.String("path", path), zap.String("warning", warning))
	}
	return block, nil
}

// List returns the stored file names
func (s *FileStore) List() ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list setup files: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a stored file
func (s *FileStore) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to delete setup file: %w", err)
	}
	return nil
}
