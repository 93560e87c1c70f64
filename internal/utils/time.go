package utils

import (
	"fmt"
	"time"
)

var intervals = []struct {
	name    string
	seconds int64
}{
	{"year", 31536000},
	{"month", 2592000},
	{"week", 604800},
	{"day", 86400},
	{"hour", 3600},
	{"minute", 60},
	{"second", 1},
}

// HumanReadableDelta renders how long ago t was, for the notifications feed.
func HumanReadableDelta(t time.Time) string {
	seconds := int64(time.Since(t).Seconds())

	if seconds < 0 {
		return "in the future"
	}

	for _, interval := range intervals {
		value := seconds / interval.seconds

		if value >= 1 {
			if value == 1 {
				return fmt.Sprintf("1 %s ago", interval.name)
			}
			return fmt.Sprintf("%d %ss ago", value, interval.name)
		}
	}

	return "Just Now"
}
