// Package readtime formats reading durations for display.
package readtime

import "fmt"

// Format renders a reading duration in seconds as a compact human string:
// "45min", "2h 5min", "3d 2h". Zero components are dropped ("2h", not
// "2h 0min"); sub-minute durations round down to "0min".
func Format(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	minutes := seconds / 60

	days := minutes / (60 * 24)
	hours := (minutes / 60) % 24
	mins := minutes % 60

	switch {
	case days > 0:
		if hours > 0 {
			return fmt.Sprintf("%dd %dh", days, hours)
		}
		return fmt.Sprintf("%dd", days)
	case hours > 0:
		if mins > 0 {
			return fmt.Sprintf("%dh %dmin", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dmin", mins)
	}
}
