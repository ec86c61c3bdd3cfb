package enrollment

import "github.com/MapleMaven/esp32-sram-puf/interfaces"

// ResetClass is the enrollment-relevant classification of a reset cause.
type ResetClass int

const (
	// ClassOther covers causes that are neither a genuine power-on nor a
	// recognized soft reset (watchdog, brownout, unknown).
	ClassOther ResetClass = iota
	// ClassGenuinePowerOn is an actual loss and restoration of power. Only
	// these boots may contribute a sample while enrollment is incomplete.
	ClassGenuinePowerOn
	// ClassSoftReset is a software-triggered restart or deep-sleep wake.
	ClassSoftReset
)

// String returns the class name.
func (c ResetClass) String() string {
	switch c {
	case ClassGenuinePowerOn:
		return "genuine-power-on"
	case ClassSoftReset:
		return "soft-reset"
	default:
		return "other"
	}
}

// ClassifyReset maps the hardware-reported reset cause onto the enrollment
// gate's three classes. While enrollment is incomplete only
// ClassGenuinePowerOn may proceed to accumulation; once complete the class
// is irrelevant and finalization runs on any boot.
func ClassifyReset(cause interfaces.ResetCause) ResetClass {
	switch cause {
	case interfaces.ResetPowerOn:
		return ClassGenuinePowerOn
	case interfaces.ResetSoftware, interfaces.ResetDeepSleepWake:
		return ClassSoftReset
	default:
		return ClassOther
	}
}
