// Package normalize converts loosely formatted receipt fields into canonical
// forms. All functions are pure: callers pass the reference time so results
// are reproducible.
package normalize

import (
	"fmt"
	"regexp"
	"time"
)

var (
	isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	usDateRe  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	timeRe    = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2})?$`)
)

// Date normalizes a date string to YYYY-MM-DD.
//
// YYYY-MM-DD passes through unchanged, except the 0000-00-00 sentinel which
// some extractors emit for "no date". MM/DD/YYYY is reformatted with the
// month clamped to [1,12] and the day to [1,31]; components are clamped
// individually, calendar validity is not checked. Anything else resolves to
// the date of now.
func Date(s string, now time.Time) string {
	if s == "0000-00-00" {
		return now.Format("2006-01-02")
	}
	if isoDateRe.MatchString(s) {
		return s
	}
	if m := usDateRe.FindStringSubmatch(s); m != nil {
		month := clamp(atoi(m[1]), 1, 12)
		day := clamp(atoi(m[2]), 1, 31)
		return fmt.Sprintf("%s-%02d-%02d", m[3], month, day)
	}
	return now.Format("2006-01-02")
}

// Time normalizes a time-of-day string to zero-padded 24-hour HH:MM. Accepts
// H:MM, HH:MM and HH:MM:SS, clamping the hour to [0,23] and the minute to
// [0,59]. Any other input yields "" (time absent), never an error.
func Time(s string) string {
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	hour := clamp(atoi(m[1]), 0, 23)
	minute := clamp(atoi(m[2]), 0, 59)
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// atoi converts digit-only substrings already vetted by the regexps above.
func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
