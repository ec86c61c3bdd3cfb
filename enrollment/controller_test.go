package enrollment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
	"github.com/MapleMaven/esp32-sram-puf/sram"
	"github.com/MapleMaven/esp32-sram-puf/storage"
)

func newTestController(t *testing.T) (*Controller, interfaces.KVStore) {
	t.Helper()
	controller, err := NewController(smallConfig(), testLogger())
	require.NoError(t, err)
	backend := storage.NewMemoryBackend(testLogger())
	return controller, backend.Namespace("dev-1")
}

func fixedSource(t *testing.T, sample []byte) sram.SampleSource {
	t.Helper()
	source, err := sram.NewStaticSource(sample, len(sample))
	require.NoError(t, err)
	return source
}

// faultyKV wraps a KVStore and makes PutBytes write short for a number of
// calls, modeling a full NVS partition.
type faultyKV struct {
	interfaces.KVStore
	shortWrites int
}

func (f *faultyKV) PutBytes(ctx context.Context, key string, value []byte) (int, error) {
	if f.shortWrites > 0 {
		f.shortWrites--
		return len(value) / 2, nil
	}
	return f.KVStore.PutBytes(ctx, key, value)
}

func TestController_FullEnrollment(t *testing.T) {
	controller, kv := newTestController(t)
	ctx := context.Background()
	cfg := controller.Config()

	sample := []byte{0xA5, 0x5A, 0xFF, 0x00}
	source := fixedSource(t, sample)

	for round := 1; round < cfg.Rounds; round++ {
		outcome, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
		require.NoError(t, err)
		assert.Equal(t, EventRoundAccepted, outcome.Event)
		assert.Equal(t, StateEnrolling, outcome.State)
		assert.Equal(t, round, outcome.Round)
		assert.Equal(t, PromptPowerCycle, outcome.Prompt)
	}

	outcome, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
	require.NoError(t, err)
	assert.Equal(t, EventFinalized, outcome.Event)
	assert.Equal(t, StateComplete, outcome.State)
	require.NotNil(t, outcome.Key)

	// A constant sample makes every bit stable.
	assert.Equal(t, cfg.BitCount(), outcome.StableBits)
	assert.Equal(t, cfg.BitCount(), outcome.TotalBits)
}

func TestController_NonGenuineResetLeavesRecordUntouched(t *testing.T) {
	controller, kv := newTestController(t)
	ctx := context.Background()

	sample := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	source := fixedSource(t, sample)

	for i := 0; i < 3; i++ {
		_, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
		require.NoError(t, err)
	}

	for _, cause := range []interfaces.ResetCause{
		interfaces.ResetSoftware,
		interfaces.ResetWatchdog,
		interfaces.ResetBrownout,
		interfaces.ResetDeepSleepWake,
	} {
		outcome, err := controller.Step(ctx, kv, cause, source)
		require.NoError(t, err)
		assert.Equal(t, EventResetRejected, outcome.Event, "cause %s", cause)
		assert.Equal(t, 3, outcome.Round, "round count must not move on %s", cause)
		assert.Equal(t, PromptPowerCycle, outcome.Prompt)
	}

	status, err := controller.Status(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Round)
}

func TestController_RejectedBootNeverReadsSource(t *testing.T) {
	controller, kv := newTestController(t)

	poisoned := sram.SourceFunc(func() ([]byte, error) {
		t.Fatal("sample source consulted on a rejected boot")
		return nil, nil
	})

	_, err := controller.Step(context.Background(), kv, interfaces.ResetSoftware, poisoned)
	require.NoError(t, err)
}

func TestController_SourceFailureAbortsBeforePersist(t *testing.T) {
	controller, kv := newTestController(t)
	ctx := context.Background()

	failing := sram.SourceFunc(func() ([]byte, error) {
		return nil, errors.New("sram region unavailable")
	})

	_, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, failing)
	assert.Error(t, err)

	status, err := controller.Status(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Round, "aborted boot must not advance the record")
}

func TestController_CorruptionRestartsAccumulation(t *testing.T) {
	controller, kv := newTestController(t)
	ctx := context.Background()
	cfg := controller.Config()

	source := fixedSource(t, []byte{0x0F, 0xF0, 0x00, 0xFF})
	for i := 0; i < 3; i++ {
		_, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
		require.NoError(t, err)
	}

	// Truncate the stored accumulator behind the controller's back.
	_, err := kv.PutBytes(ctx, keyAccumulator, make([]byte, cfg.BitCount()-3))
	require.NoError(t, err)

	// The sample of the repair boot must be discarded, so a consulted
	// source is a contract violation.
	poisoned := sram.SourceFunc(func() ([]byte, error) {
		t.Fatal("sample source consulted on a corruption-repair boot")
		return nil, nil
	})

	outcome, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, poisoned)
	require.NoError(t, err)
	assert.Equal(t, EventCorruptionRepaired, outcome.Event)
	assert.Equal(t, 0, outcome.Round)

	// Accumulation restarts cleanly on subsequent boots.
	outcome, err = controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
	require.NoError(t, err)
	assert.Equal(t, EventRoundAccepted, outcome.Event)
	assert.Equal(t, 1, outcome.Round)
}

func TestController_CorruptionOnNonGenuineBootIsNotRepaired(t *testing.T) {
	controller, kv := newTestController(t)
	ctx := context.Background()
	cfg := controller.Config()

	source := fixedSource(t, []byte{1, 2, 3, 4})
	_, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
	require.NoError(t, err)

	_, err = kv.PutBytes(ctx, keyAccumulator, make([]byte, cfg.BitCount()+1))
	require.NoError(t, err)

	outcome, err := controller.Step(ctx, kv, interfaces.ResetSoftware, source)
	require.NoError(t, err)
	assert.Equal(t, EventResetRejected, outcome.Event)

	// The oversized accumulator is still there: nothing was written.
	acc, err := kv.GetBytes(ctx, keyAccumulator, nil)
	require.NoError(t, err)
	assert.Len(t, acc, cfg.BitCount()+1)
}

func TestController_PersistFailureKeepsRound(t *testing.T) {
	controller, kv := newTestController(t)
	ctx := context.Background()

	source := fixedSource(t, []byte{0xFF, 0x00, 0xFF, 0x00})
	for i := 0; i < 2; i++ {
		_, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
		require.NoError(t, err)
	}

	faulty := &faultyKV{KVStore: kv, shortWrites: 1}
	outcome, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
	require.NoError(t, err)
	require.Equal(t, EventRoundAccepted, outcome.Event)

	outcome, err = controller.Step(ctx, faulty, interfaces.ResetPowerOn, source)
	require.NoError(t, err)
	assert.Equal(t, EventPersistFailed, outcome.Event)
	assert.Equal(t, 3, outcome.Round, "failed persist keeps the prior round")

	// Retry on the next genuine cycle succeeds.
	outcome, err = controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
	require.NoError(t, err)
	assert.Equal(t, EventRoundAccepted, outcome.Event)
	assert.Equal(t, 4, outcome.Round)
}

func TestController_FinalizationIsIdempotent(t *testing.T) {
	controller, kv := newTestController(t)
	ctx := context.Background()
	cfg := controller.Config()

	source := fixedSource(t, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	var final Outcome
	for i := 0; i < cfg.Rounds; i++ {
		var err error
		final, err = controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
		require.NoError(t, err)
	}
	require.Equal(t, EventFinalized, final.Event)

	// Once complete, any reset cause re-derives the identical key; a
	// complete record never consults the sample source.
	poisoned := sram.SourceFunc(func() ([]byte, error) {
		t.Fatal("sample source consulted after completion")
		return nil, nil
	})
	for _, cause := range []interfaces.ResetCause{
		interfaces.ResetPowerOn,
		interfaces.ResetSoftware,
		interfaces.ResetWatchdog,
	} {
		again, err := controller.Step(ctx, kv, cause, poisoned)
		require.NoError(t, err)
		assert.Equal(t, EventFinalized, again.Event, "cause %s", cause)
		assert.Equal(t, *final.Key, *again.Key, "re-derived key must be byte-identical")
		assert.Equal(t, final.StableBits, again.StableBits)
	}

	derived, err := controller.Derive(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, *final.Key, *derived.Key)
}

func TestController_ManualResetRestartsFromScratch(t *testing.T) {
	controller, kv := newTestController(t)
	ctx := context.Background()
	cfg := controller.Config()

	source := fixedSource(t, []byte{0x11, 0x22, 0x33, 0x44})
	for i := 0; i < cfg.Rounds; i++ {
		_, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
		require.NoError(t, err)
	}

	require.NoError(t, controller.Reset(ctx, kv))

	status, err := controller.Status(ctx, kv)
	require.NoError(t, err)
	assert.Equal(t, StateEnrolling, status.State)
	assert.Equal(t, 0, status.Round)
}

func TestController_DeriveRejectsIncompleteRecord(t *testing.T) {
	controller, kv := newTestController(t)
	ctx := context.Background()

	source := fixedSource(t, []byte{1, 1, 1, 1})
	_, err := controller.Step(ctx, kv, interfaces.ResetPowerOn, source)
	require.NoError(t, err)

	_, err = controller.Derive(ctx, kv)
	assert.Error(t, err)
}
