package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

var safeNamePattern = regexp.MustCompile(`^[A-Za-z0-9:._-]+$`)

// FileBackend persists enrollment records on the local file system: one
// directory per namespace, one file per key. Writes go through a temp file
// and rename so a value is either the previous one or the new one, never
// half of each.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file storage backend rooted at baseDir,
// creating the directory if needed.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Namespace returns the store scoped to the given namespace.
func (b *FileBackend) Namespace(name string) interfaces.KVStore {
	return typedKV{raw: &fileStore{backend: b, ns: name}}
}

// Available reports whether the base directory is accessible.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	return err == nil
}

// Name returns a unique identifier for this backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", b.baseDir)
}

// LocationURI returns the URI that identifies this backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

// Close is a no-op for the file backend.
func (b *FileBackend) Close() error {
	return nil
}

type fileStore struct {
	backend *FileBackend
	ns      string
}

func (s *fileStore) path(key string) (string, error) {
	if !safeNamePattern.MatchString(s.ns) {
		return "", fmt.Errorf("invalid namespace %q", s.ns)
	}
	if !safeNamePattern.MatchString(key) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.backend.baseDir, s.ns, key), nil
}

func (s *fileStore) has(ctx context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return true, nil
}

func (s *fileStore) get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (s *fileStore) put(ctx context.Context, key string, value []byte) (int, error) {
	path, err := s.path(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create namespace directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+key+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := tmp.Write(value)
	if err != nil {
		tmp.Close()
		return written, fmt.Errorf("%w: %v", interfaces.ErrStorageFull, err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("%w: %v", interfaces.ErrStorageFull, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to replace %s: %w", path, err)
	}

	s.backend.log.Debug("Stored value",
		slog.String("path", path),
		slog.Int("size", written))
	return written, nil
}

func (s *fileStore) clear(ctx context.Context) error {
	if !safeNamePattern.MatchString(s.ns) {
		return fmt.Errorf("invalid namespace %q", s.ns)
	}
	dir := filepath.Join(s.backend.baseDir, s.ns)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear namespace %s: %w", s.ns, err)
	}
	return nil
}
