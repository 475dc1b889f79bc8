// Package clock fixes the business-day boundaries used for queues, serial
// numbers, settlement and statistics.
package clock

import (
	"fmt"
	"sync"
	"time"
)

const DayLayout = "2006-01-02"

var (
	mu       sync.RWMutex
	location = time.Local
)

// SetLocation sets the hospital time zone. It is called once at startup.
func SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	mu.Lock()
	location = loc
	mu.Unlock()
}

func Location() *time.Location {
	mu.RLock()
	defer mu.RUnlock()
	return location
}

// StartOfDay returns midnight of t's day in the hospital time zone.
func StartOfDay(t time.Time) time.Time {
	t = t.In(Location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DayBounds returns [start, end) of t's business day.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := StartOfDay(t)
	return start, start.AddDate(0, 0, 1)
}

// ParseDay parses YYYY-MM-DD in the hospital time zone. An empty string
// means today.
func ParseDay(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return StartOfDay(now), nil
	}
	d, err := time.ParseInLocation(DayLayout, s, Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

// Compact formats t's business day as yyyyMMdd for document numbers.
func Compact(t time.Time) string {
	return t.In(Location()).Format("20060102")
}
