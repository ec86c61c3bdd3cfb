package sram

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// Cell bias bands. Each cell gets one byte of keyed hash output; values in
// the middle band make the cell weak (noisy at power-up), everything else
// is a strong cell with a fixed power-up value.
const (
	weakBandLow  = 120
	weakBandHigh = 136
)

// DeviceModel simulates the power-up behavior of one device's SRAM region.
// Manufacturing variation is modeled as a per-cell bias derived
// deterministically from the device seed: most cells are strong and power
// up to the same value every cold boot, a small fraction are weak and power
// up randomly. Warm resets retain the previous RAM image instead of
// producing fresh power-up noise, which is exactly why the enrollment gate
// rejects them.
type DeviceModel struct {
	size     int
	strong   []byte // power-up value of strong cells, LSB-first bit order
	weakMask []byte // set bits mark weak cells
	retained []byte // last RAM image, nil before the first power-on

	// noise fills weak cells on power-up. Defaults to crypto/rand.Read;
	// tests substitute a deterministic source.
	noise func([]byte) error
}

// NewDeviceModel builds the cell bias map for the given device seed.
// The same seed always produces the same strong-cell layout.
func NewDeviceModel(seed []byte, size int) (*DeviceModel, error) {
	if len(seed) == 0 {
		return nil, errors.New("device seed must not be empty")
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid sram size %d", size)
	}

	m := &DeviceModel{
		size:     size,
		strong:   make([]byte, size),
		weakMask: make([]byte, size),
		noise:    defaultNoise,
	}

	bits := size * 8
	for i := 0; i < bits; i++ {
		b := cellBias(seed, i)
		switch {
		case b >= weakBandLow && b < weakBandHigh:
			m.weakMask[i/8] |= 1 << (uint(i) % 8)
		case b >= weakBandHigh:
			m.strong[i/8] |= 1 << (uint(i) % 8)
		}
	}
	return m, nil
}

// WithNoise replaces the weak-cell noise source.
func (m *DeviceModel) WithNoise(noise func([]byte) error) *DeviceModel {
	m.noise = noise
	return m
}

// PowerOn simulates a genuine power cycle and returns the fresh power-up
// image: strong cells read their bias value, weak cells read noise. The
// image is retained as the current RAM content for subsequent warm resets.
func (m *DeviceModel) PowerOn(ctx context.Context) ([]byte, error) {
	noise := make([]byte, m.size)
	if err := m.noise(noise); err != nil {
		return nil, fmt.Errorf("noise source: %w", err)
	}

	img := make([]byte, m.size)
	for i := range img {
		img[i] = (m.strong[i] &^ m.weakMask[i]) | (noise[i] & m.weakMask[i])
	}

	m.retained = img
	out := make([]byte, m.size)
	copy(out, img)
	return out, nil
}

// WarmReset simulates a reset without power loss: the RAM image from the
// previous boot is still present. Returns an error before the first
// power-on, when there is no image to retain.
func (m *DeviceModel) WarmReset() ([]byte, error) {
	if m.retained == nil {
		return nil, errors.New("no retained image: device was never powered on")
	}
	out := make([]byte, m.size)
	copy(out, m.retained)
	return out, nil
}

// WeakBits counts the cells modeled as weak.
func (m *DeviceModel) WeakBits() int {
	n := 0
	for _, b := range m.weakMask {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

// cellBias derives the bias byte for bit position i from the device seed.
func cellBias(seed []byte, i int) byte {
	var pos [8]byte
	binary.BigEndian.PutUint64(pos[:], uint64(i/sha256.Size))
	block := sha256.Sum256(append(append([]byte{}, seed...), pos[:]...))
	return block[i%sha256.Size]
}

func defaultNoise(p []byte) error {
	_, err := rand.Read(p)
	return err
}
