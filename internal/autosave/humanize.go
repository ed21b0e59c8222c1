package autosave

import (
	"strconv"
	"time"
)

// Humanize describes how long ago saved was, in coarse steps
func Humanize(saved, now time.Time) string {
	if saved.IsZero() {
		return ""
	}
	diff := now.Sub(saved)
	if diff < 0 {
		diff = 0
	}
	seconds := int(diff / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case seconds < 10:
		return "a moment ago"
	case seconds < 60:
		return "less than a minute ago"
	case minutes == 1:
		return "1 minute ago"
	case minutes < 60:
		return strconv.Itoa(minutes) + " minutes ago"
	case hours == 1:
		return "1 hour ago"
	case hours < 24:
		return strconv.Itoa(hours) + " hours ago"
	case days == 1:
		return "yesterday"
	default:
		return saved.Format("1/2/2006")
	}
}
