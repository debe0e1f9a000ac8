package quota

import (
	"fmt"
	"time"
)

// Window identifies one of the three quota windows.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Windows lists the windows in check order. The first violated window in
// this order is the one reported to the client, since it is the one that
// recovers soonest.
var Windows = []Window{WindowMinute, WindowHour, WindowDay}

// BucketKey returns the counter key for a credential and window at the
// given instant. Minute and hour buckets use the epoch division; day
// buckets use the UTC calendar date so the daily reset lands on midnight.
func BucketKey(credentialID string, w Window, now time.Time) string {
	switch w {
	case WindowMinute:
		return fmt.Sprintf("quota:%s:minute:%d", credentialID, now.Unix()/60)
	case WindowHour:
		return fmt.Sprintf("quota:%s:hour:%d", credentialID, now.Unix()/3600)
	default:
		return fmt.Sprintf("quota:%s:day:%s", credentialID, now.UTC().Format("2006-01-02"))
	}
}

// ResetAt returns the wall-clock instant the active bucket rolls over.
func ResetAt(w Window, now time.Time) time.Time {
	switch w {
	case WindowMinute:
		return now.Truncate(time.Minute).Add(time.Minute)
	case WindowHour:
		return now.Truncate(time.Hour).Add(time.Hour)
	default:
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}
}

// TTL returns the counter expiry for a window: one window length past
// the bucket's end, so stale buckets never accumulate.
func TTL(w Window) time.Duration {
	switch w {
	case WindowMinute:
		return 2 * time.Minute
	case WindowHour:
		return 2 * time.Hour
	default:
		return 48 * time.Hour
	}
}
