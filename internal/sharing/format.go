package sharing

import (
	"fmt"
	"time"
)

// DurationOptions are the durations, in minutes, offered when starting a session.
var DurationOptions = []int{15, 30, 60, 120, 240}

// FormatDuration renders a duration option: "15m", "2h".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	if minutes%60 == 0 {
		return fmt.Sprintf("%dh", minutes/60)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// FormatRemaining renders a countdown: "1h 5m" or "12m".
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	minutes := seconds / 60
	hours := minutes / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatLastUpdated renders how long ago a position was captured.
func FormatLastUpdated(at, now time.Time) string {
	diff := now.Sub(at)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff/time.Hour))
	default:
		return at.Format("2006-01-02")
	}
}
