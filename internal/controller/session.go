package controller

import (
	"fmt"
	"time"
)

// newSessionID returns the time-derived session identifier: the first 17
// digits of the YYYYMMDDHHMMSSffffff timestamp, i.e. millisecond precision.
// Two activations within the same millisecond would collide; a controller
// only runs one session at a time, so in practice ids are unique.
func newSessionID(now time.Time) string {
	stamp := now.Format("20060102150405") + fmt.Sprintf("%06d", now.Nanosecond()/1000)
	return stamp[:17]
}
