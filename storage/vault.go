package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

// VaultBackend persists enrollment records in HashiCorp Vault's KV v2
// engine: one secret per key under mount/data/<path>/<namespace>/<key>.
// Authentication uses the standard Vault environment (VAULT_TOKEN et al)
// or a token passed on the location URI.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a Vault storage backend.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: path within the mount (e.g. "puf-enrollment")
//   - token: Vault token; empty means the environment's token is used
//   - log: structured logger
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", address, mountPath, dataPath),
	}, nil
}

// Namespace returns the store scoped to the given namespace.
func (b *VaultBackend) Namespace(name string) interfaces.KVStore {
	return typedKV{raw: &vaultStore{backend: b, ns: name}}
}

// Available checks that Vault is reachable, initialized, and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}
	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}
	return true
}

// Name returns a unique identifier for this backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

// Close is a no-op; the Vault client holds no persistent connection.
func (b *VaultBackend) Close() error {
	return nil
}

type vaultStore struct {
	backend *VaultBackend
	ns      string
}

func (s *vaultStore) dataPath(key string) string {
	return fmt.Sprintf("%s/data/%s/%s/%s", s.backend.mountPath, s.backend.dataPath, s.ns, key)
}

func (s *vaultStore) metadataPath(key string) string {
	return fmt.Sprintf("%s/metadata/%s/%s/%s", s.backend.mountPath, s.backend.dataPath, s.ns, key)
}

func (s *vaultStore) has(ctx context.Context, key string) (bool, error) {
	_, err := s.get(ctx, key)
	if err == interfaces.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *vaultStore) get(ctx context.Context, key string) ([]byte, error) {
	path := s.dataPath(key)

	secret, err := s.backend.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.backend.log.Error("Failed to read from Vault", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, interfaces.ErrKeyNotFound
	}

	// KV v2 wraps the payload in a "data" map.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response at %s", path)
	}
	encoded, ok := data["value"].(string)
	if !ok {
		return nil, fmt.Errorf("value key not found in Vault data at %s", path)
	}

	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid value encoding at %s: %w", path, err)
	}
	return value, nil
}

func (s *vaultStore) put(ctx context.Context, key string, value []byte) (int, error) {
	path := s.dataPath(key)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"value": base64.StdEncoding.EncodeToString(value),
		},
	}

	if _, err := s.backend.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		s.backend.log.Error("Failed to write to Vault", slog.String("path", path), "err", err)
		return 0, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return len(value), nil
}

func (s *vaultStore) clear(ctx context.Context) error {
	listPath := fmt.Sprintf("%s/metadata/%s/%s", s.backend.mountPath, s.backend.dataPath, s.ns)

	secret, err := s.backend.client.Logical().ListWithContext(ctx, listPath)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return nil
	}
	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil
	}

	for _, k := range keys {
		name, ok := k.(string)
		if !ok {
			continue
		}
		if _, err := s.backend.client.Logical().DeleteWithContext(ctx, s.metadataPath(name)); err != nil {
			return fmt.Errorf("%w: delete %s: %v", interfaces.ErrBackendUnavailable, name, err)
		}
	}
	return nil
}
