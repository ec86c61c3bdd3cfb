package enrollment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

func TestClassifyReset(t *testing.T) {
	tests := []struct {
		cause    interfaces.ResetCause
		expected ResetClass
	}{
		{interfaces.ResetPowerOn, ClassGenuinePowerOn},
		{interfaces.ResetSoftware, ClassSoftReset},
		{interfaces.ResetDeepSleepWake, ClassSoftReset},
		{interfaces.ResetWatchdog, ClassOther},
		{interfaces.ResetBrownout, ClassOther},
		{interfaces.ResetUnknown, ClassOther},
	}

	for _, tt := range tests {
		t.Run(tt.cause.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyReset(tt.cause))
		})
	}
}

func TestResetCauseRoundTrip(t *testing.T) {
	for _, name := range []string{"power-on", "software", "watchdog", "brownout", "deep-sleep-wake"} {
		cause, err := interfaces.ParseResetCause(name)
		assert.NoError(t, err)
		assert.Equal(t, name, cause.String())
	}

	_, err := interfaces.ParseResetCause("cosmic-ray")
	assert.Error(t, err)
}
