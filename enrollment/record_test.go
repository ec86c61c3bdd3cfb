package enrollment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
	"github.com/MapleMaven/esp32-sram-puf/puf"
	"github.com/MapleMaven/esp32-sram-puf/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func smallConfig() puf.Config {
	return puf.Config{SampleSize: 4, Rounds: 7, ThresholdNum: 85, ThresholdDen: 100}
}

// MockKVStore implements interfaces.KVStore for write-contract tests.
type MockKVStore struct {
	mock.Mock
}

func (m *MockKVStore) Has(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockKVStore) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	args := m.Called(ctx, key, def)
	return args.Bool(0), args.Error(1)
}

func (m *MockKVStore) GetInt(ctx context.Context, key string, def int64) (int64, error) {
	args := m.Called(ctx, key, def)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockKVStore) GetBytes(ctx context.Context, key string, def []byte) ([]byte, error) {
	args := m.Called(ctx, key, def)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockKVStore) PutBool(ctx context.Context, key string, value bool) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockKVStore) PutInt(ctx context.Context, key string, value int64) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockKVStore) PutBytes(ctx context.Context, key string, value []byte) (int, error) {
	args := m.Called(ctx, key, value)
	return args.Int(0), args.Error(1)
}

func (m *MockKVStore) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestRecordStore_FirstAccessInitializes(t *testing.T) {
	cfg := smallConfig()
	records, err := NewRecordStore(cfg, testLogger())
	require.NoError(t, err)

	backend := storage.NewMemoryBackend(testLogger())
	kv := backend.Namespace("dev-1")
	ctx := context.Background()

	// Stale data from an unrelated prior use of the namespace.
	_, err = kv.PutBytes(ctx, "leftover", []byte("junk"))
	require.NoError(t, err)

	rec, err := records.Load(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.RoundCount)
	assert.Equal(t, puf.NewAccumulator(cfg), rec.Accumulator)

	stale, err := kv.Has(ctx, "leftover")
	require.NoError(t, err)
	assert.False(t, stale, "initialization must clear stale keys")

	initialized, err := kv.GetBool(ctx, keyInitialized, false)
	require.NoError(t, err)
	assert.True(t, initialized)
}

func TestRecordStore_CommitAndReload(t *testing.T) {
	cfg := smallConfig()
	records, err := NewRecordStore(cfg, testLogger())
	require.NoError(t, err)

	backend := storage.NewMemoryBackend(testLogger())
	kv := backend.Namespace("dev-1")
	ctx := context.Background()

	_, err = records.Load(ctx, kv)
	require.NoError(t, err)

	acc := puf.NewAccumulator(cfg)
	acc[3] = 1
	require.NoError(t, records.Commit(ctx, kv, Record{RoundCount: 1, Accumulator: acc}))

	rec, err := records.Load(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RoundCount)
	assert.Equal(t, acc, rec.Accumulator)
}

func TestRecordStore_LengthMismatchIsCorruption(t *testing.T) {
	cfg := smallConfig()
	records, err := NewRecordStore(cfg, testLogger())
	require.NoError(t, err)

	backend := storage.NewMemoryBackend(testLogger())
	kv := backend.Namespace("dev-1")
	ctx := context.Background()

	_, err = records.Load(ctx, kv)
	require.NoError(t, err)

	// Simulate a record persisted under a different sample size.
	require.NoError(t, kv.PutInt(ctx, keyRoundCount, 3))
	_, err = kv.PutBytes(ctx, keyAccumulator, make([]byte, cfg.BitCount()-1))
	require.NoError(t, err)

	rec, err := records.Load(ctx, kv)
	assert.ErrorIs(t, err, interfaces.ErrCorruptRecord)
	assert.Equal(t, 0, rec.RoundCount, "corrupt record loads as round zero")

	// Load itself must not have repaired anything: repair is the
	// controller's call, gated on a genuine boot.
	round, err := kv.GetInt(ctx, keyRoundCount, -1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, round)
}

func TestRecordStore_OutOfRangeRoundIsCorruption(t *testing.T) {
	cfg := smallConfig()
	records, err := NewRecordStore(cfg, testLogger())
	require.NoError(t, err)

	backend := storage.NewMemoryBackend(testLogger())
	kv := backend.Namespace("dev-1")
	ctx := context.Background()

	_, err = records.Load(ctx, kv)
	require.NoError(t, err)
	require.NoError(t, kv.PutInt(ctx, keyRoundCount, int64(cfg.Rounds+1)))

	_, err = records.Load(ctx, kv)
	assert.ErrorIs(t, err, interfaces.ErrCorruptRecord)
}

func TestRecordStore_ShortWriteDoesNotAdvanceRound(t *testing.T) {
	cfg := smallConfig()
	records, err := NewRecordStore(cfg, testLogger())
	require.NoError(t, err)

	kv := new(MockKVStore)
	acc := puf.NewAccumulator(cfg)

	// The accumulator persist returns short: the round counter write must
	// never happen.
	kv.On("PutBytes", mock.Anything, keyAccumulator, mock.Anything).Return(len(acc)-5, nil)

	err = records.Commit(context.Background(), kv, Record{RoundCount: 1, Accumulator: acc})
	assert.ErrorIs(t, err, interfaces.ErrStorageFull)
	kv.AssertNotCalled(t, "PutInt", mock.Anything, keyRoundCount, mock.Anything)
}

func TestRecordStore_WriteErrorDoesNotAdvanceRound(t *testing.T) {
	cfg := smallConfig()
	records, err := NewRecordStore(cfg, testLogger())
	require.NoError(t, err)

	kv := new(MockKVStore)
	kv.On("PutBytes", mock.Anything, keyAccumulator, mock.Anything).Return(0, errors.New("flash full"))

	err = records.Commit(context.Background(), kv, Record{RoundCount: 1, Accumulator: puf.NewAccumulator(cfg)})
	assert.ErrorIs(t, err, interfaces.ErrStorageFull)
	kv.AssertNotCalled(t, "PutInt", mock.Anything, keyRoundCount, mock.Anything)
}

func TestRecordStore_Erase(t *testing.T) {
	cfg := smallConfig()
	records, err := NewRecordStore(cfg, testLogger())
	require.NoError(t, err)

	backend := storage.NewMemoryBackend(testLogger())
	kv := backend.Namespace("dev-1")
	ctx := context.Background()

	_, err = records.Load(ctx, kv)
	require.NoError(t, err)
	require.NoError(t, records.Erase(ctx, kv))

	initialized, err := kv.GetBool(ctx, keyInitialized, false)
	require.NoError(t, err)
	assert.False(t, initialized, "erase returns the namespace to uninitialized")
}
