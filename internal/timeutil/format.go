// Package timeutil formats transcript timestamps for display.
package timeutil

import (
	"fmt"
	"time"
)

// FormatRelativeTime renders how long ago t was, relative to now.
// Transcript rows are always in the past; a future t falls through to
// the date form.
func FormatRelativeTime(t time.Time, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	elapsed := now.Sub(t)

	seconds := int(elapsed.Seconds())
	minutes := int(elapsed.Minutes())
	hours := int(elapsed.Hours())
	days := int(elapsed.Hours() / 24)

	switch {
	case seconds >= 0 && seconds < 30:
		return "just now"
	case seconds < 90:
		return "a minute ago"
	case minutes < 45:
		return fmt.Sprintf("%d minutes ago", minutes)
	case minutes < 90:
		return "an hour ago"
	case hours < 24:
		return fmt.Sprintf("%d hours ago", hours)
	case days == 1:
		return "yesterday"
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	default:
		return fmt.Sprintf("on %s", t.Format("Jan 2"))
	}
}
