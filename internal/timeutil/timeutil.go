// Package timeutil provides wall-clock HH:MM helpers shared by the
// detector, orchestrator and recommender. All functions are pure.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var hhmmRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ParseHHMM parses an "HH:MM" string into minutes since midnight.
// Returns ok=false for empty or malformed input; callers treat that as
// "no value" rather than an error.
func ParseHHMM(s string) (int, bool) {
	m := hhmmRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	hh, err1 := strconv.Atoi(m[1])
	mm, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil || hh > 23 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}

// FormatHHMM formats minutes since midnight as "HH:MM", wrapping past 24h.
func FormatHHMM(mins int) string {
	if mins < 0 {
		mins = 0
	}
	h := (mins / 60) % 24
	m := mins % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

// MinutesOfDay returns minutes since midnight for t in its own location.
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// HHMMFromTime formats t's wall clock as "HH:MM".
func HHMMFromTime(t time.Time) string {
	return FormatHHMM(MinutesOfDay(t))
}
