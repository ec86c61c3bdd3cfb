package enrollment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
	"github.com/MapleMaven/esp32-sram-puf/puf"
)

// Storage keys of the enrollment record, NVS-style short names under the
// device's namespace.
const (
	keyInitialized = "puf_init"
	keyRoundCount  = "puf_round"
	keyAccumulator = "puf_acc"
)

// Record is the in-memory view of one device's persisted enrollment state.
type Record struct {
	// RoundCount is the number of committed rounds, in [0, Rounds].
	RoundCount int

	// Accumulator holds one counter per bit position.
	Accumulator []uint8
}

// Complete reports whether all enrollment rounds have been committed.
func (r Record) Complete(cfg puf.Config) bool {
	return r.RoundCount >= cfg.Rounds
}

// RecordStore persists enrollment records through the namespaced KV
// boundary. It owns the record's integrity and write contracts: a stored
// accumulator with the wrong length is corruption, and a round is committed
// only when the accumulator write persisted the exact byte count, after
// which the round counter is advanced.
type RecordStore struct {
	cfg puf.Config
	log *slog.Logger
}

// NewRecordStore creates a record store for the given configuration.
func NewRecordStore(cfg puf.Config, log *slog.Logger) (*RecordStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &RecordStore{cfg: cfg, log: log}, nil
}

// Load reads the device's enrollment record from kv.
//
// On first-ever access the namespace is initialized: any stale accumulator
// left over from an unrelated prior use of the storage area is cleared,
// the round counter is zeroed, and the initialization flag is set.
//
// Load is otherwise read-only. If the stored accumulator's length does not
// match the configured size the record is returned zeroed together with
// interfaces.ErrCorruptRecord; the caller decides when the reset may be
// persisted (a corruption repair is still a record write, and non-genuine
// boots must not write).
func (s *RecordStore) Load(ctx context.Context, kv interfaces.KVStore) (Record, error) {
	initialized, err := kv.GetBool(ctx, keyInitialized, false)
	if err != nil {
		return Record{}, fmt.Errorf("read init flag: %w", err)
	}

	if !initialized {
		if err := s.initialize(ctx, kv); err != nil {
			return Record{}, err
		}
		return Record{RoundCount: 0, Accumulator: puf.NewAccumulator(s.cfg)}, nil
	}

	round, err := kv.GetInt(ctx, keyRoundCount, 0)
	if err != nil {
		return Record{}, fmt.Errorf("read round count: %w", err)
	}
	if round < 0 || round > int64(s.cfg.Rounds) {
		s.log.Error("Stored round count out of range", "round", round, "rounds", s.cfg.Rounds)
		return Record{RoundCount: 0, Accumulator: puf.NewAccumulator(s.cfg)},
			fmt.Errorf("%w: round count %d out of [0, %d]", interfaces.ErrCorruptRecord, round, s.cfg.Rounds)
	}

	if round == 0 {
		return Record{RoundCount: 0, Accumulator: puf.NewAccumulator(s.cfg)}, nil
	}

	acc, err := kv.GetBytes(ctx, keyAccumulator, nil)
	if err != nil {
		return Record{}, fmt.Errorf("read accumulator: %w", err)
	}
	if len(acc) != s.cfg.BitCount() {
		s.log.Error("Stored accumulator length mismatch",
			slog.Int("got", len(acc)),
			slog.Int("want", s.cfg.BitCount()))
		return Record{RoundCount: 0, Accumulator: puf.NewAccumulator(s.cfg)},
			fmt.Errorf("%w: accumulator length %d, want %d", interfaces.ErrCorruptRecord, len(acc), s.cfg.BitCount())
	}

	return Record{RoundCount: int(round), Accumulator: acc}, nil
}

// Commit persists one accepted round: the updated accumulator followed by
// the advanced round counter. If the accumulator write errors or persists
// fewer bytes than the accumulator holds, the round counter is left at its
// prior value and interfaces.ErrStorageFull is returned so the round can be
// retried on the next genuine power cycle.
func (s *RecordStore) Commit(ctx context.Context, kv interfaces.KVStore, rec Record) error {
	if len(rec.Accumulator) != s.cfg.BitCount() {
		return fmt.Errorf("accumulator length %d, want %d", len(rec.Accumulator), s.cfg.BitCount())
	}
	if rec.RoundCount < 1 || rec.RoundCount > s.cfg.Rounds {
		return fmt.Errorf("round count %d out of [1, %d]", rec.RoundCount, s.cfg.Rounds)
	}

	written, err := kv.PutBytes(ctx, keyAccumulator, rec.Accumulator)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrStorageFull, err)
	}
	if written != len(rec.Accumulator) {
		s.log.Error("Accumulator persist incomplete",
			slog.Int("written", written),
			slog.Int("expected", len(rec.Accumulator)))
		return fmt.Errorf("%w: wrote %d of %d bytes", interfaces.ErrStorageFull, written, len(rec.Accumulator))
	}

	if err := kv.PutInt(ctx, keyRoundCount, int64(rec.RoundCount)); err != nil {
		return fmt.Errorf("%w: advance round count: %v", interfaces.ErrStorageFull, err)
	}
	return nil
}

// ResetRounds persists a restart of accumulation from round zero, used to
// repair a corrupt record. The initialization flag stays set.
func (s *RecordStore) ResetRounds(ctx context.Context, kv interfaces.KVStore) error {
	if err := kv.PutInt(ctx, keyRoundCount, 0); err != nil {
		return fmt.Errorf("reset round count: %w", err)
	}
	zero := puf.NewAccumulator(s.cfg)
	written, err := kv.PutBytes(ctx, keyAccumulator, zero)
	if err != nil {
		return fmt.Errorf("clear accumulator: %w", err)
	}
	if written != len(zero) {
		return fmt.Errorf("%w: clearing accumulator wrote %d of %d bytes", interfaces.ErrStorageFull, written, len(zero))
	}
	return nil
}

// Erase clears the device's namespace entirely, returning it to the
// uninitialized state. This is the manual reset operation; it is never part
// of the normal enrollment flow.
func (s *RecordStore) Erase(ctx context.Context, kv interfaces.KVStore) error {
	if err := kv.Clear(ctx); err != nil {
		return fmt.Errorf("clear namespace: %w", err)
	}
	return nil
}

func (s *RecordStore) initialize(ctx context.Context, kv interfaces.KVStore) error {
	s.log.Info("Initializing enrollment record")

	// Leftover data from an unrelated prior use of this storage area must
	// not survive into enrollment.
	if err := kv.Clear(ctx); err != nil {
		return fmt.Errorf("clear stale namespace: %w", err)
	}
	if err := kv.PutInt(ctx, keyRoundCount, 0); err != nil {
		return fmt.Errorf("init round count: %w", err)
	}
	if err := kv.PutBool(ctx, keyInitialized, true); err != nil {
		return fmt.Errorf("set init flag: %w", err)
	}
	return nil
}
