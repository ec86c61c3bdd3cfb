package storage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

// MemoryBackend keeps enrollment records in process memory. It backs
// ephemeral simulator runs and tests; nothing survives the process.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
	log  *slog.Logger
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(log *slog.Logger) *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]map[string][]byte),
		log:  log,
	}
}

// Namespace returns the store scoped to the given namespace.
func (b *MemoryBackend) Namespace(name string) interfaces.KVStore {
	return typedKV{raw: &memoryStore{backend: b, ns: name}}
}

// Available always reports true.
func (b *MemoryBackend) Available(ctx context.Context) bool {
	return true
}

// Name returns a unique identifier for this backend.
func (b *MemoryBackend) Name() string {
	return "memory"
}

// LocationURI returns the URI that identifies this backend.
func (b *MemoryBackend) LocationURI() string {
	return "mem://"
}

// Close is a no-op.
func (b *MemoryBackend) Close() error {
	return nil
}

type memoryStore struct {
	backend *MemoryBackend
	ns      string
}

func (s *memoryStore) has(ctx context.Context, key string) (bool, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	_, ok := s.backend.data[s.ns][key]
	return ok, nil
}

func (s *memoryStore) get(ctx context.Context, key string) ([]byte, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	value, ok := s.backend.data[s.ns][key]
	if !ok {
		return nil, interfaces.ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *memoryStore) put(ctx context.Context, key string, value []byte) (int, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	ns, ok := s.backend.data[s.ns]
	if !ok {
		ns = make(map[string][]byte)
		s.backend.data[s.ns] = ns
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	ns[key] = stored
	return len(value), nil
}

func (s *memoryStore) clear(ctx context.Context) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	delete(s.backend.data, s.ns)
	return nil
}
