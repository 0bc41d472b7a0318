// Package time contains time related helpers
package time

import "time"

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// jst is the fixed operational timezone every check-date is computed in,
// regardless of the host clock's zone. time.LoadLocation consults the
// system tzdata; a minimal container image may lack it, so fall back to
// a fixed +09:00 offset with no DST (Japan observes none)
var jst = loadJST()

func loadJST() *time.Location {
	if loc, err := time.LoadLocation("Asia/Tokyo"); err == nil {
		return loc
	}
	return time.FixedZone("JST", 9*60*60)
}

// JSTCheckDate returns "today+1" rendered as YYYY-MM-DD in the fixed
// operational timezone, independent of the host clock's zone
func JSTCheckDate(now time.Time) string {
	return now.In(jst).AddDate(0, 0, 1).Format("2006-01-02")
}

// JSTNow returns now converted into the fixed operational timezone
func JSTNow(now time.Time) time.Time {
	return now.In(jst)
}
