package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
)

// ErrDescriptorsNotFound is returned when no document exists for a key.
var ErrDescriptorsNotFound = errors.New("devices: descriptors not found")

// DescriptorStore persists switch descriptor lists. Lists are written wholesale.
type DescriptorStore interface {
	Load(ctx context.Context, key string) ([]types.SwitchDescriptor, error)
	Save(ctx context.Context, key string, descriptors []types.SwitchDescriptor) error
}

// FileStore keeps one JSON document per key below a directory.
type FileStore struct {
	dir       string
	validator *Validator
	mu        sync.Mutex
}

func NewFileStore(dir string, validator *Validator) *FileStore {
	return &FileStore{dir: dir, validator: validator}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, filepath.Base(key))
}

func (s *FileStore) Load(ctx context.Context, key string) ([]types.SwitchDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (searched in: %s)", ErrDescriptorsNotFound, key, s.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptors %s: %w", key, err)
	}

	descriptors, err := s.validator.DecodeDescriptors(data)
	if err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", s.path(key), err)
	}
	return descriptors, nil
}

// Save replaces the document atomically via a temporary file in the same directory.
func (s *FileStore) Save(ctx context.Context, key string, descriptors []types.SwitchDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(descriptors, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal descriptors: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create descriptor dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write descriptors: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("failed to replace descriptors %s: %w", key, err)
	}
	return nil
}
