package timer

import (
	"fmt"
	"time"
)

// Format renders d as MM:SS. Sub-second remainders are dropped and minutes
// are not wrapped at the hour. Negative durations render as 00:00.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
