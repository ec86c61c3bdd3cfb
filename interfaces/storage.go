package interfaces

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// KVStore is a namespaced key-value store in the NVS idiom: typed get/put
// primitives plus a namespace-wide clear. Implementations persist enrollment
// records; the enrollment layer is their only writer.
//
// PutBytes reports the number of bytes actually written. A write that
// returns short without an error must still be treated by callers as an
// uncommitted write: the previous value may remain visible, but the new
// value must never be half-applied.
type KVStore interface {
	// Has reports whether the key exists in this namespace.
	Has(ctx context.Context, key string) (bool, error)

	// GetBool returns the stored boolean, or def if the key is absent.
	GetBool(ctx context.Context, key string, def bool) (bool, error)

	// GetInt returns the stored integer, or def if the key is absent.
	GetInt(ctx context.Context, key string, def int64) (int64, error)

	// GetBytes returns the stored blob, or def if the key is absent.
	GetBytes(ctx context.Context, key string, def []byte) ([]byte, error)

	// PutBool stores a boolean.
	PutBool(ctx context.Context, key string, value bool) error

	// PutInt stores an integer.
	PutInt(ctx context.Context, key string, value int64) error

	// PutBytes stores a blob and returns the number of bytes written.
	PutBytes(ctx context.Context, key string, value []byte) (int, error)

	// Clear removes every key in this namespace.
	Clear(ctx context.Context) error
}

// KVBackend provides namespaced views into one durable store. Each device's
// enrollment record lives in its own namespace.
type KVBackend interface {
	// Namespace returns the store scoped to the given namespace.
	Namespace(name string) KVStore

	// Available reports whether the backend currently accepts operations.
	Available(ctx context.Context) bool

	// Name returns a unique identifier for this backend.
	Name() string

	// LocationURI returns the URI this backend was created from.
	LocationURI() string

	// Close releases backend resources.
	Close() error
}

// StorageLocation is a parsed storage backend URI.
type StorageLocation struct {
	Raw    string
	Scheme string
	Host   string
	Path   string
	Query  url.Values
}

// NewStorageLocation parses and validates a storage backend URI.
//
// Supported schemes: mem, file, sqlite, vault, s3.
func NewStorageLocation(uri string) (StorageLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "mem", "file", "sqlite", "vault", "s3":
	default:
		return StorageLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
	}, nil
}

var (
	// ErrKeyNotFound indicates the requested key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrStorageFull indicates a persist did not write the full value.
	// The round that triggered the write must not be treated as committed.
	ErrStorageFull = errors.New("storage write incomplete")

	// ErrCorruptRecord indicates a stored enrollment record failed its
	// integrity check and accumulation must restart from round zero.
	ErrCorruptRecord = errors.New("corrupt enrollment record")

	// ErrInvalidLocationURI indicates a malformed storage location URI.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrBackendUnavailable indicates the storage backend cannot be reached.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)
