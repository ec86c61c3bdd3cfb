package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// backendFixtures builds one of each locally-testable backend.
func backendFixtures(t *testing.T) map[string]interfaces.KVBackend {
	t.Helper()

	fileBackend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	sqliteBackend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "test.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { sqliteBackend.Close() })

	return map[string]interfaces.KVBackend{
		"memory": NewMemoryBackend(testLogger()),
		"file":   fileBackend,
		"sqlite": sqliteBackend,
	}
}

func TestBackends_TypedRoundTrip(t *testing.T) {
	for name, backend := range backendFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := backend.Namespace("dev-1")

			ok, err := kv.Has(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			b, err := kv.GetBool(ctx, "missing", true)
			require.NoError(t, err)
			assert.True(t, b, "absent key returns the default")

			require.NoError(t, kv.PutBool(ctx, "flag", true))
			b, err = kv.GetBool(ctx, "flag", false)
			require.NoError(t, err)
			assert.True(t, b)

			require.NoError(t, kv.PutInt(ctx, "round", 5))
			n, err := kv.GetInt(ctx, "round", -1)
			require.NoError(t, err)
			assert.EqualValues(t, 5, n)

			blob := []byte{0, 1, 2, 3, 255}
			written, err := kv.PutBytes(ctx, "acc", blob)
			require.NoError(t, err)
			assert.Equal(t, len(blob), written)

			got, err := kv.GetBytes(ctx, "acc", nil)
			require.NoError(t, err)
			assert.Equal(t, blob, got)

			ok, err = kv.Has(ctx, "acc")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestBackends_Overwrite(t *testing.T) {
	for name, backend := range backendFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv := backend.Namespace("dev-1")

			_, err := kv.PutBytes(ctx, "acc", []byte("old"))
			require.NoError(t, err)
			_, err = kv.PutBytes(ctx, "acc", []byte("replacement"))
			require.NoError(t, err)

			got, err := kv.GetBytes(ctx, "acc", nil)
			require.NoError(t, err)
			assert.Equal(t, []byte("replacement"), got)
		})
	}
}

func TestBackends_ClearIsNamespaceScoped(t *testing.T) {
	for name, backend := range backendFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			devA := backend.Namespace("dev-a")
			devB := backend.Namespace("dev-b")

			require.NoError(t, devA.PutInt(ctx, "round", 3))
			require.NoError(t, devB.PutInt(ctx, "round", 5))

			require.NoError(t, devA.Clear(ctx))

			ok, err := devA.Has(ctx, "round")
			require.NoError(t, err)
			assert.False(t, ok, "cleared namespace must be empty")

			n, err := devB.GetInt(ctx, "round", -1)
			require.NoError(t, err)
			assert.EqualValues(t, 5, n, "other namespaces must be unaffected")
		})
	}
}

func TestBackends_Available(t *testing.T) {
	for name, backend := range backendFixtures(t) {
		t.Run(name, func(t *testing.T) {
			assert.True(t, backend.Available(context.Background()))
		})
	}
}

func TestFileBackend_RejectsUnsafeNames(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	kv := backend.Namespace("../escape")
	_, err = kv.PutBytes(ctx, "key", []byte("x"))
	assert.Error(t, err)

	kv = backend.Namespace("dev-1")
	_, err = kv.PutBytes(ctx, "../escape", []byte("x"))
	assert.Error(t, err)
}

func TestTypedKV_TypeMismatch(t *testing.T) {
	backend := NewMemoryBackend(testLogger())
	kv := backend.Namespace("dev-1")
	ctx := context.Background()

	_, err := kv.PutBytes(ctx, "blob", []byte{1, 2, 3})
	require.NoError(t, err)

	_, err = kv.GetBool(ctx, "blob", false)
	assert.Error(t, err)
	_, err = kv.GetInt(ctx, "blob", 0)
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	factory := NewFactory(testLogger())

	tests := []struct {
		name    string
		uri     string
		wantErr bool
	}{
		{"memory", "mem://", false},
		{"file", "file://" + t.TempDir(), false},
		{"sqlite", "sqlite://" + filepath.Join(t.TempDir(), "kv.db"), false},
		{"vault", "vault://vault.example.com:8200/secret/puf-enrollment", false},
		{"s3", "s3://puf-records/enroll?region=eu-central-1", false},
		{"vault missing path", "vault://vault.example.com:8200/secret", true},
		{"file missing path", "file://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			location, err := interfaces.NewStorageLocation(tt.uri)
			require.NoError(t, err)

			backend, err := factory.BackendFor(location)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, backend.Name())
			backend.Close()
		})
	}

	_, err := interfaces.NewStorageLocation("ipfs://nope")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}
