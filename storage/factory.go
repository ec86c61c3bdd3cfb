package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

// Factory creates KV backends from location URIs.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a new factory instance.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// BackendFor creates a storage backend from a location URI.
//
// Supported schemes:
//   - mem:// - in-memory storage for tests and ephemeral runs
//   - file:///var/lib/puf/records - local filesystem, one file per key
//   - sqlite:///var/lib/puf/enroll.db - SQLite database
//   - vault://vault.example.com:8200/secret/puf-enrollment - Vault KV v2
//   - s3://bucket/prefix?region=us-west-2 - Amazon S3 or compatible
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (f *Factory) BackendFor(location interfaces.StorageLocation) (interfaces.KVBackend, error) {
	switch strings.ToLower(location.Scheme) {
	case "mem":
		return NewMemoryBackend(f.log), nil
	case "file":
		return f.createFileBackend(location)
	case "sqlite":
		return f.createSQLiteBackend(location)
	case "vault":
		return f.createVaultBackend(location)
	case "s3":
		return f.createS3Backend(location)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, location.Scheme)
	}
}

func (f *Factory) createFileBackend(location interfaces.StorageLocation) (interfaces.KVBackend, error) {
	dir := location.Path
	if location.Host != "" {
		// Relative form: file://records
		dir = path.Join(location.Host, location.Path)
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: file URI is missing a path", interfaces.ErrInvalidLocationURI)
	}
	return NewFileBackend(dir, f.log)
}

func (f *Factory) createSQLiteBackend(location interfaces.StorageLocation) (interfaces.KVBackend, error) {
	dbPath := location.Path
	if location.Host != "" {
		dbPath = path.Join(location.Host, location.Path)
	}
	if dbPath == "" {
		return nil, fmt.Errorf("%w: sqlite URI is missing a database path", interfaces.ErrInvalidLocationURI)
	}
	return NewSQLiteBackend(dbPath, f.log)
}

func (f *Factory) createVaultBackend(location interfaces.StorageLocation) (interfaces.KVBackend, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: vault URI is missing a host", interfaces.ErrInvalidLocationURI)
	}

	// Path carries mount and data path: /secret/puf-enrollment
	parts := strings.SplitN(strings.Trim(location.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: vault URI path must be /<mount>/<data-path>", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if location.Query.Get("scheme") == "http" {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, location.Host)

	return NewVaultBackend(address, parts[0], parts[1], location.Query.Get("token"), f.log)
}

func (f *Factory) createS3Backend(location interfaces.StorageLocation) (interfaces.KVBackend, error) {
	if location.Host == "" {
		return nil, fmt.Errorf("%w: s3 URI is missing a bucket", interfaces.ErrInvalidLocationURI)
	}

	region := location.Query.Get("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if auth := location.Query.Get("credentials"); auth != "" {
		creds, err := url.QueryUnescape(auth)
		if err == nil {
			if i := strings.IndexByte(creds, ':'); i > 0 {
				accessKey, secretKey = creds[:i], creds[i+1:]
			}
		}
	}

	return NewS3Backend(
		location.Host,
		strings.Trim(location.Path, "/"),
		region,
		location.Query.Get("endpoint"),
		accessKey,
		secretKey,
		f.log,
	)
}
