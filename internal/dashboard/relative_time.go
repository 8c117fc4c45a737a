package dashboard

import (
	"fmt"
	"time"
)

// RelativeTime renders a timestamp the way the activity feed expects:
// under an hour, hour buckets up to a day, day buckets up to a week, then
// an absolute date.
func RelativeTime(timestamp time.Time, now time.Time) string {
	elapsed := now.Sub(timestamp)
	if elapsed < 0 {
		elapsed = 0
	}
	hours := int(elapsed.Hours())
	days := hours / 24

	switch {
	case hours < 1:
		return "less than 1 hour ago"
	case hours < 24:
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case days < 7:
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return timestamp.Format("Jan 2, 2006")
	}
}
