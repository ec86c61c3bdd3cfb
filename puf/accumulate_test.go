package puf

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

func testConfig() Config {
	return Config{
		SampleSize:   4,
		Rounds:       7,
		ThresholdNum: 85,
		ThresholdDen: 100,
	}
}

func TestAccumulate_CountsSetBits(t *testing.T) {
	cfg := testConfig()
	acc := NewAccumulator(cfg)

	sample := interfaces.Sample{0b00000001, 0x00, 0xFF, 0b10000000}
	out, err := Accumulate(acc, sample, cfg)
	require.NoError(t, err)

	assert.EqualValues(t, 1, out[0], "bit 0 of byte 0 is set")
	assert.EqualValues(t, 0, out[1], "bit 1 of byte 0 is clear")
	for i := 16; i < 24; i++ {
		assert.EqualValues(t, 1, out[i], "all bits of byte 2 are set")
	}
	assert.EqualValues(t, 0, out[24], "low bit of byte 3 is clear")
	assert.EqualValues(t, 1, out[31], "high bit of byte 3 is set")
}

func TestAccumulate_InputUnchanged(t *testing.T) {
	cfg := testConfig()
	acc := NewAccumulator(cfg)
	sample := interfaces.Sample{0xFF, 0xFF, 0xFF, 0xFF}

	_, err := Accumulate(acc, sample, cfg)
	require.NoError(t, err)

	for i, c := range acc {
		require.EqualValues(t, 0, c, "input accumulator mutated at %d", i)
	}
}

func TestAccumulate_OrderIndependent(t *testing.T) {
	cfg := testConfig()
	rng := rand.New(rand.NewSource(42))

	samples := make([]interfaces.Sample, cfg.Rounds)
	for i := range samples {
		s := make([]byte, cfg.SampleSize)
		rng.Read(s)
		samples[i] = s
	}

	fold := func(order []int) []uint8 {
		acc := NewAccumulator(cfg)
		for _, i := range order {
			var err error
			acc, err = Accumulate(acc, samples[i], cfg)
			require.NoError(t, err)
		}
		return acc
	}

	forward := fold([]int{0, 1, 2, 3, 4, 5, 6})
	reversed := fold([]int{6, 5, 4, 3, 2, 1, 0})
	shuffled := fold([]int{3, 0, 6, 1, 5, 2, 4})

	assert.Equal(t, forward, reversed)
	assert.Equal(t, forward, shuffled)
}

func TestAccumulate_BoundsAfterAllRounds(t *testing.T) {
	cfg := testConfig()
	rng := rand.New(rand.NewSource(7))

	acc := NewAccumulator(cfg)
	for round := 0; round < cfg.Rounds; round++ {
		s := make([]byte, cfg.SampleSize)
		rng.Read(s)
		var err error
		acc, err = Accumulate(acc, s, cfg)
		require.NoError(t, err)
	}

	for i, c := range acc {
		assert.LessOrEqual(t, int(c), cfg.Rounds, "counter %d above round count", i)
	}
}

func TestAccumulate_RejectsLengthMismatch(t *testing.T) {
	cfg := testConfig()

	_, err := Accumulate(make([]uint8, 3), interfaces.Sample{0, 0, 0, 0}, cfg)
	assert.Error(t, err, "short accumulator must be rejected")

	_, err = Accumulate(NewAccumulator(cfg), interfaces.Sample{0}, cfg)
	assert.Error(t, err, "short sample must be rejected")
}
