package sharing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRemaining(t *testing.T) {
	cases := map[int]string{
		3900: "1h 5m",
		3600: "1h 0m",
		720:  "12m",
		59:   "0m",
		0:    "0m",
		-5:   "0m",
	}
	for seconds, want := range cases {
		assert.Equal(t, want, FormatRemaining(seconds), "seconds=%d", seconds)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "15m", FormatDuration(15))
	assert.Equal(t, "1h", FormatDuration(60))
	assert.Equal(t, "4h", FormatDuration(240))
	assert.Equal(t, "1h 30m", FormatDuration(90))
}

func TestFormatLastUpdated(t *testing.T) {
	now := time.Date(2024, 2, 14, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, "Just now", FormatLastUpdated(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", FormatLastUpdated(now.Add(-5*time.Minute), now))
	assert.Equal(t, "2h ago", FormatLastUpdated(now.Add(-2*time.Hour-10*time.Minute), now))
	assert.Equal(t, "2024-02-12", FormatLastUpdated(now.Add(-48*time.Hour), now))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "expired", EventExpired.String())
}
