package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DeviceID identifies a single enrolled device. It doubles as the storage
// namespace for the device's enrollment record, so it is restricted to
// characters that every supported backend can carry in a key path.
type DeviceID string

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9:._-]{0,63}$`)

// NewDeviceID validates and returns a device identifier.
func NewDeviceID(s string) (DeviceID, error) {
	if !deviceIDPattern.MatchString(s) {
		return "", fmt.Errorf("invalid device id %q: must be 1-64 chars of [A-Za-z0-9:._-]", s)
	}
	return DeviceID(s), nil
}

// String returns the identifier as a plain string.
func (d DeviceID) String() string {
	return string(d)
}

// Sample is one power-up image of the PUF memory region. It exists only
// within a single boot and is never persisted.
type Sample []byte

// NewSample validates that raw has exactly the configured sample size.
func NewSample(raw []byte, size int) (Sample, error) {
	if len(raw) != size {
		return nil, fmt.Errorf("invalid sample length: got %d bytes, want %d", len(raw), size)
	}
	return Sample(raw), nil
}

// Bit returns bit i of the sample, LSB-first within each byte.
func (s Sample) Bit(i int) byte {
	return (s[i/8] >> (uint(i) % 8)) & 1
}

// ResetCause is the hardware-reported cause of the current boot.
type ResetCause int

const (
	ResetUnknown ResetCause = iota
	// ResetPowerOn is a cold boot after actual loss and restoration of power.
	ResetPowerOn
	// ResetSoftware covers CPU resets requested by firmware or a flasher.
	ResetSoftware
	// ResetWatchdog covers all watchdog-triggered resets.
	ResetWatchdog
	// ResetBrownout is a supply-voltage dip reset. The SRAM image may be
	// partially retained, so it does not count as a genuine power-on.
	ResetBrownout
	// ResetDeepSleepWake is a wake from deep sleep.
	ResetDeepSleepWake
)

var resetCauseNames = map[ResetCause]string{
	ResetUnknown:       "unknown",
	ResetPowerOn:       "power-on",
	ResetSoftware:      "software",
	ResetWatchdog:      "watchdog",
	ResetBrownout:      "brownout",
	ResetDeepSleepWake: "deep-sleep-wake",
}

// String returns the cause name.
func (c ResetCause) String() string {
	if name, ok := resetCauseNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseResetCause converts a cause name as reported over the boot-report
// boundary into a ResetCause.
func ParseResetCause(s string) (ResetCause, error) {
	for cause, name := range resetCauseNames {
		if name == strings.ToLower(s) {
			return cause, nil
		}
	}
	return ResetUnknown, fmt.Errorf("unknown reset cause %q", s)
}

// KeySize is the byte length of a derived PUF key digest.
const KeySize = 32

// FinalKey is the device-unique key derived from the stable-bit candidate.
// Ephemeral output of finalization; the core never persists it.
type FinalKey [KeySize]byte

// NewFinalKeyFromBytes creates a FinalKey from a raw digest.
func NewFinalKeyFromBytes(raw []byte) (FinalKey, error) {
	if len(raw) != KeySize {
		return FinalKey{}, errors.New("invalid key length: must be 32 bytes")
	}
	var k FinalKey
	copy(k[:], raw)
	return k, nil
}

// String returns the hex representation of the key.
func (k FinalKey) String() string {
	return hex.EncodeToString(k[:])
}

// Bytes returns the raw digest.
func (k FinalKey) Bytes() []byte {
	return k[:]
}
