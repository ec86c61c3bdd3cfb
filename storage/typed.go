package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

// rawStore is the per-namespace primitive every backend implements. The
// typed KVStore surface is layered on top so encoding of bools and ints is
// identical across backends.
type rawStore interface {
	has(ctx context.Context, key string) (bool, error)
	get(ctx context.Context, key string) ([]byte, error)
	put(ctx context.Context, key string, value []byte) (int, error)
	clear(ctx context.Context) error
}

// typedKV adapts a rawStore to interfaces.KVStore. Booleans are stored as a
// single 0/1 byte, integers as 8 bytes big-endian.
type typedKV struct {
	raw rawStore
}

func (t typedKV) Has(ctx context.Context, key string) (bool, error) {
	return t.raw.has(ctx, key)
}

func (t typedKV) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	raw, err := t.raw.get(ctx, key)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	if len(raw) != 1 || raw[0] > 1 {
		return def, fmt.Errorf("key %q does not hold a boolean", key)
	}
	return raw[0] == 1, nil
}

func (t typedKV) GetInt(ctx context.Context, key string, def int64) (int64, error) {
	raw, err := t.raw.get(ctx, key)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	if len(raw) != 8 {
		return def, fmt.Errorf("key %q does not hold an integer", key)
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

func (t typedKV) GetBytes(ctx context.Context, key string, def []byte) ([]byte, error) {
	raw, err := t.raw.get(ctx, key)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return def, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (t typedKV) PutBool(ctx context.Context, key string, value bool) error {
	b := byte(0)
	if value {
		b = 1
	}
	written, err := t.raw.put(ctx, key, []byte{b})
	if err != nil {
		return err
	}
	if written != 1 {
		return fmt.Errorf("%w: wrote %d of 1 bytes", interfaces.ErrStorageFull, written)
	}
	return nil
}

func (t typedKV) PutInt(ctx context.Context, key string, value int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(value))
	written, err := t.raw.put(ctx, key, buf[:])
	if err != nil {
		return err
	}
	if written != 8 {
		return fmt.Errorf("%w: wrote %d of 8 bytes", interfaces.ErrStorageFull, written)
	}
	return nil
}

func (t typedKV) PutBytes(ctx context.Context, key string, value []byte) (int, error) {
	return t.raw.put(ctx, key, value)
}

func (t typedKV) Clear(ctx context.Context) error {
	return t.raw.clear(ctx)
}
