package puf

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

// BitClass is the stability classification of one bit position after a
// completed enrollment.
type BitClass int

const (
	// BitUnstable means the bit's one-frequency fell in the indeterminate
	// middle band. It contributes a zero to the key candidate but is not
	// counted as used.
	BitUnstable BitClass = iota
	// BitStableOne means the bit read one in at least the threshold
	// fraction of rounds.
	BitStableOne
	// BitStableZero means the bit read one in at most the complementary
	// fraction of rounds.
	BitStableZero
)

// ClassifyBit classifies a single counter value against the configured
// threshold. Comparisons are integer-only: both sides are scaled by
// Rounds*ThresholdDen, so a frequency landing exactly on a threshold
// boundary classifies the same on every platform.
func ClassifyBit(count uint8, cfg Config) BitClass {
	scaled := int(count) * cfg.ThresholdDen
	switch {
	case scaled >= cfg.ThresholdNum*cfg.Rounds:
		return BitStableOne
	case scaled <= (cfg.ThresholdDen-cfg.ThresholdNum)*cfg.Rounds:
		return BitStableZero
	default:
		return BitUnstable
	}
}

// Classification is the outcome of running the stability classifier over a
// completed accumulator.
type Classification struct {
	// Candidate is the stable-bit key candidate: stable-one positions set,
	// everything else (stable-zero and unstable) left zero.
	Candidate []byte

	// StableBits counts the positions classified stable (one or zero).
	StableBits int

	// TotalBits is the number of bit positions examined.
	TotalBits int
}

// Classify applies the stability threshold to every counter of a completed
// accumulator and assembles the key candidate. The stable-bit count is a
// diagnostic: derivation proceeds regardless of how few bits are stable,
// and callers that want a stability floor gate on StableBits themselves.
func Classify(acc []uint8, cfg Config) (Classification, error) {
	bits := cfg.BitCount()
	if len(acc) != bits {
		return Classification{}, fmt.Errorf("accumulator length %d does not match %d bit positions", len(acc), bits)
	}

	cl := Classification{
		Candidate: make([]byte, cfg.SampleSize),
		TotalBits: bits,
	}
	for i := 0; i < bits; i++ {
		switch ClassifyBit(acc[i], cfg) {
		case BitStableOne:
			cl.Candidate[i/8] |= 1 << (uint(i) % 8)
			cl.StableBits++
		case BitStableZero:
			cl.StableBits++
		}
	}
	return cl, nil
}

// DeriveKey condenses a key candidate into the fixed-size final key.
// Identical accumulators always yield identical keys.
func DeriveKey(cl Classification) interfaces.FinalKey {
	return interfaces.FinalKey(sha256.Sum256(cl.Candidate))
}

// Finalize runs classification and key derivation in one step.
func Finalize(acc []uint8, cfg Config) (Classification, interfaces.FinalKey, error) {
	cl, err := Classify(acc, cfg)
	if err != nil {
		return Classification{}, interfaces.FinalKey{}, err
	}
	return cl, DeriveKey(cl), nil
}

// AppKey derives an n-byte application sub-key from the final PUF key via
// HKDF-SHA256 under the given label. Consumers get per-purpose keys so the
// PUF key itself never has to leave the enrollment flow.
func AppKey(key interfaces.FinalKey, label string, n int) ([]byte, error) {
	if label == "" {
		return nil, fmt.Errorf("app key label must not be empty")
	}
	if n <= 0 || n > 255*sha256.Size {
		return nil, fmt.Errorf("invalid app key length %d", n)
	}

	out := make([]byte, n)
	r := hkdf.New(sha256.New, key.Bytes(), nil, []byte(label))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out, nil
}
