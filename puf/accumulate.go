package puf

import (
	"fmt"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

// NewAccumulator returns a zeroed accumulator with one counter per bit
// position of a sample.
func NewAccumulator(cfg Config) []uint8 {
	return make([]uint8, cfg.BitCount())
}

// Accumulate folds one accepted sample into the per-bit counters: counter i
// is incremented iff bit i of the sample reads one. The input accumulator is
// not modified; the updated copy is returned. Pure counting, so applying
// rounds in any order yields the same final accumulator.
func Accumulate(acc []uint8, sample interfaces.Sample, cfg Config) ([]uint8, error) {
	bits := cfg.BitCount()
	if len(acc) != bits {
		return nil, fmt.Errorf("accumulator length %d does not match %d bit positions", len(acc), bits)
	}
	if len(sample) != cfg.SampleSize {
		return nil, fmt.Errorf("sample length %d does not match configured %d bytes", len(sample), cfg.SampleSize)
	}

	out := make([]uint8, bits)
	copy(out, acc)
	for i := 0; i < bits; i++ {
		if sample.Bit(i) == 1 {
			if out[i] == 255 {
				return nil, fmt.Errorf("counter overflow at bit %d", i)
			}
			out[i]++
		}
	}
	return out, nil
}
