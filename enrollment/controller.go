package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
	"github.com/MapleMaven/esp32-sram-puf/puf"
	"github.com/MapleMaven/esp32-sram-puf/sram"
)

// State is the enrollment state of a device after a controller step.
type State int

const (
	// StateEnrolling means more genuine power cycles are required.
	StateEnrolling State = iota
	// StateComplete means all rounds are committed; every subsequent boot
	// re-derives the same final key from the stored accumulator.
	StateComplete
)

// String returns the state name.
func (s State) String() string {
	if s == StateComplete {
		return "complete"
	}
	return "enrolling"
}

// Event describes what one boot did to the enrollment record.
type Event int

const (
	// EventRoundAccepted means the boot's sample was folded in and the
	// advanced record was committed.
	EventRoundAccepted Event = iota
	// EventResetRejected means a non-genuine reset was gated out; the
	// record was left untouched.
	EventResetRejected
	// EventCorruptionRepaired means the stored record failed its integrity
	// check; accumulation was restarted from round zero and the boot's
	// sample was discarded.
	EventCorruptionRepaired
	// EventPersistFailed means the round's persist did not complete; the
	// record still holds the prior round and the round will be retried on
	// the next genuine power cycle.
	EventPersistFailed
	// EventFinalized means enrollment is complete and the final key was
	// (re-)derived from the stored accumulator.
	EventFinalized
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventRoundAccepted:
		return "round-accepted"
	case EventResetRejected:
		return "reset-rejected"
	case EventCorruptionRepaired:
		return "corruption-repaired"
	case EventPersistFailed:
		return "persist-failed"
	case EventFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// PromptPowerCycle is the operator instruction emitted whenever the next
// enrollment round requires a genuine power cycle.
const PromptPowerCycle = "unplug and replug"

// Outcome reports the result of one boot to the console/transport boundary.
type Outcome struct {
	Event  Event
	State  State
	Round  int // committed rounds after this boot
	Rounds int

	// Prompt is the operator instruction for the next step, empty once
	// enrollment is complete.
	Prompt string

	// StableBits and TotalBits are set on EventFinalized. The stable-bit
	// count is a diagnostic only; no stability floor is enforced here.
	StableBits int
	TotalBits  int

	// Key is set on EventFinalized.
	Key *interfaces.FinalKey
}

// Controller drives the enrollment state machine. Each device boot is one
// step over (persisted record, reset cause, sample source); nothing is
// committed until the round's persist succeeds, so a power loss mid-step
// simply re-attempts the round on the next genuine power-on.
type Controller struct {
	cfg     puf.Config
	records *RecordStore
	log     *slog.Logger
}

// NewController validates the configuration and creates a controller.
func NewController(cfg puf.Config, log *slog.Logger) (*Controller, error) {
	records, err := NewRecordStore(cfg, log)
	if err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg, records: records, log: log}, nil
}

// Config returns the controller's enrollment parameters.
func (c *Controller) Config() puf.Config {
	return c.cfg
}

// Step executes one boot of the enrollment flow against the device's
// namespace kv.
//
// While the record is incomplete, only a genuine power-on may accumulate:
// any other reset cause returns EventResetRejected without touching
// storage. A record that fails its integrity check on a genuine boot is
// reset to round zero and the boot's sample is discarded
// (EventCorruptionRepaired). A persist that does not complete leaves the
// round counter at its prior value (EventPersistFailed). Once all rounds
// are committed, every boot, regardless of reset cause, re-derives the
// final key from the stored accumulator (EventFinalized).
//
// The source is consulted only when a sample will actually be used; a
// source failure aborts the boot before any storage write.
func (c *Controller) Step(ctx context.Context, kv interfaces.KVStore, cause interfaces.ResetCause, source sram.SampleSource) (Outcome, error) {
	rec, loadErr := c.records.Load(ctx, kv)
	if loadErr != nil && !errors.Is(loadErr, interfaces.ErrCorruptRecord) {
		return Outcome{}, fmt.Errorf("load enrollment record: %w", loadErr)
	}
	corrupt := loadErr != nil

	if !corrupt && rec.Complete(c.cfg) {
		return c.finalize(rec)
	}

	if ClassifyReset(cause) != ClassGenuinePowerOn {
		c.log.Info("Rejecting boot for enrollment",
			slog.String("reset_cause", cause.String()),
			slog.Int("round", rec.RoundCount))
		return Outcome{
			Event:  EventResetRejected,
			State:  StateEnrolling,
			Round:  rec.RoundCount,
			Rounds: c.cfg.Rounds,
			Prompt: PromptPowerCycle,
		}, nil
	}

	if corrupt {
		c.log.Error("Enrollment record corrupt, restarting accumulation", "err", loadErr)
		if err := c.records.ResetRounds(ctx, kv); err != nil {
			return Outcome{}, fmt.Errorf("repair corrupt record: %w", err)
		}
		return Outcome{
			Event:  EventCorruptionRepaired,
			State:  StateEnrolling,
			Round:  0,
			Rounds: c.cfg.Rounds,
			Prompt: PromptPowerCycle,
		}, nil
	}

	sample, err := source.ReadSample(ctx)
	if err != nil {
		// Fatal for this boot only; persisted state is untouched.
		return Outcome{}, fmt.Errorf("obtain entropy sample: %w", err)
	}

	acc, err := puf.Accumulate(rec.Accumulator, sample, c.cfg)
	if err != nil {
		return Outcome{}, fmt.Errorf("accumulate round %d: %w", rec.RoundCount, err)
	}

	next := Record{RoundCount: rec.RoundCount + 1, Accumulator: acc}
	if err := c.records.Commit(ctx, kv, next); err != nil {
		if errors.Is(err, interfaces.ErrStorageFull) {
			c.log.Error("Round persist failed, will retry on next genuine power cycle",
				slog.Int("round", rec.RoundCount), "err", err)
			return Outcome{
				Event:  EventPersistFailed,
				State:  StateEnrolling,
				Round:  rec.RoundCount,
				Rounds: c.cfg.Rounds,
				Prompt: PromptPowerCycle,
			}, nil
		}
		return Outcome{}, fmt.Errorf("commit round %d: %w", next.RoundCount, err)
	}

	c.log.Info("Training step committed",
		slog.Int("round", next.RoundCount),
		slog.Int("rounds", c.cfg.Rounds))

	if next.Complete(c.cfg) {
		return c.finalize(next)
	}
	return Outcome{
		Event:  EventRoundAccepted,
		State:  StateEnrolling,
		Round:  next.RoundCount,
		Rounds: c.cfg.Rounds,
		Prompt: PromptPowerCycle,
	}, nil
}

// Status reports the device's enrollment state without mutating anything
// beyond first-access initialization. On a complete record it includes the
// stability diagnostic but not the key.
func (c *Controller) Status(ctx context.Context, kv interfaces.KVStore) (Outcome, error) {
	rec, err := c.records.Load(ctx, kv)
	if err != nil && !errors.Is(err, interfaces.ErrCorruptRecord) {
		return Outcome{}, fmt.Errorf("load enrollment record: %w", err)
	}

	out := Outcome{
		State:  StateEnrolling,
		Round:  rec.RoundCount,
		Rounds: c.cfg.Rounds,
		Prompt: PromptPowerCycle,
	}
	if err == nil && rec.Complete(c.cfg) {
		cl, classErr := puf.Classify(rec.Accumulator, c.cfg)
		if classErr != nil {
			return Outcome{}, classErr
		}
		out.State = StateComplete
		out.Prompt = ""
		out.StableBits = cl.StableBits
		out.TotalBits = cl.TotalBits
	}
	return out, nil
}

// Derive re-runs finalization on a complete record. Deterministic: the same
// stored accumulator always reproduces the same key.
func (c *Controller) Derive(ctx context.Context, kv interfaces.KVStore) (Outcome, error) {
	rec, err := c.records.Load(ctx, kv)
	if err != nil {
		return Outcome{}, fmt.Errorf("load enrollment record: %w", err)
	}
	if !rec.Complete(c.cfg) {
		return Outcome{}, fmt.Errorf("enrollment incomplete: %d of %d rounds", rec.RoundCount, c.cfg.Rounds)
	}
	return c.finalize(rec)
}

// Reset is the manual, operator-invoked reset: it erases the device's
// namespace back to the uninitialized state.
func (c *Controller) Reset(ctx context.Context, kv interfaces.KVStore) error {
	c.log.Info("Manual enrollment reset requested")
	return c.records.Erase(ctx, kv)
}

func (c *Controller) finalize(rec Record) (Outcome, error) {
	cl, key, err := puf.Finalize(rec.Accumulator, c.cfg)
	if err != nil {
		return Outcome{}, fmt.Errorf("finalize enrollment: %w", err)
	}

	c.log.Info("Enrollment complete",
		slog.Int("stable_bits", cl.StableBits),
		slog.Int("total_bits", cl.TotalBits))

	return Outcome{
		Event:      EventFinalized,
		State:      StateComplete,
		Round:      rec.RoundCount,
		Rounds:     c.cfg.Rounds,
		StableBits: cl.StableBits,
		TotalBits:  cl.TotalBits,
		Key:        &key,
	}, nil
}
