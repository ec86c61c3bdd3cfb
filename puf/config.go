package puf

import (
	"errors"
	"fmt"
)

// Default enrollment parameters. SampleSize matches the reserved SRAM
// region on the target; Rounds and the 85% threshold match the values the
// devices were characterized with. Changing any of these invalidates
// records enrolled under the old values.
const (
	DefaultSampleSize   = 256
	DefaultRounds       = 7
	DefaultThresholdNum = 85
	DefaultThresholdDen = 100
)

// Config carries the enrollment parameters. Bit-stability classification is
// done in integer arithmetic: a counter c out of Rounds rounds is stable-one
// iff c*ThresholdDen >= ThresholdNum*Rounds, and stable-zero iff
// c*ThresholdDen <= (ThresholdDen-ThresholdNum)*Rounds. This keeps the
// boundary cases exact where a float frequency comparison would depend on
// rounding.
type Config struct {
	// SampleSize is the PUF region size in bytes.
	SampleSize int

	// Rounds is the number of accepted power cycles required before
	// finalization.
	Rounds int

	// ThresholdNum and ThresholdDen express the stability threshold as the
	// fraction ThresholdNum/ThresholdDen.
	ThresholdNum int
	ThresholdDen int
}

// DefaultConfig returns the production enrollment parameters.
func DefaultConfig() Config {
	return Config{
		SampleSize:   DefaultSampleSize,
		Rounds:       DefaultRounds,
		ThresholdNum: DefaultThresholdNum,
		ThresholdDen: DefaultThresholdDen,
	}
}

// BitCount returns the number of bit positions in a sample.
func (c Config) BitCount() int {
	return c.SampleSize * 8
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.SampleSize <= 0 {
		return errors.New("sample size must be positive")
	}
	if c.Rounds <= 0 {
		return errors.New("round count must be positive")
	}
	if c.Rounds > 255 {
		// Accumulator counters are one byte per bit position.
		return fmt.Errorf("round count %d exceeds counter range", c.Rounds)
	}
	if c.ThresholdDen <= 0 || c.ThresholdNum <= 0 || c.ThresholdNum > c.ThresholdDen {
		return fmt.Errorf("invalid stability threshold %d/%d", c.ThresholdNum, c.ThresholdDen)
	}
	if 2*c.ThresholdNum <= c.ThresholdDen {
		// A threshold at or below 1/2 makes the stable-one and stable-zero
		// bands overlap.
		return fmt.Errorf("stability threshold %d/%d must exceed 1/2", c.ThresholdNum, c.ThresholdDen)
	}
	return nil
}
