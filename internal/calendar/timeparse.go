package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseDateOrDateTime parses a DATE ("20060102"), floating DATE-TIME
// ("20060102T150405") or UTC DATE-TIME ("20060102T150405Z") value, per
// RFC 5545 §3.3.4/§3.3.5. The bool result reports whether the value was a
// bare DATE (all-day).
func parseDateOrDateTime(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 8:
		t, err := time.Parse("20060102", s)
		return t, true, err
	case len(s) == 16 && strings.HasSuffix(s, "Z"):
		t, err := time.Parse("20060102T150405Z", s)
		return t, false, err
	case len(s) == 15:
		t, err := time.ParseInLocation("20060102T150405", s, time.UTC)
		return t, false, err
	default:
		t, err := time.Parse(time.RFC3339, s)
		return t, false, err
	}
}

// ParseICalTime parses the start/end attr values used in CALDAV:time-range
// filters (always UTC form).
func ParseICalTime(s string) (time.Time, error) {
	t, _, err := parseDateOrDateTime(s)
	return t, err
}

// ParseICalTimeSafe parses a DATE or DATE-TIME property value, also
// reporting whether it was a bare (all-day) DATE, for callers outside this
// package that need both (e.g. availability span computation).
func ParseICalTimeSafe(s string) (time.Time, bool, error) {
	return parseDateOrDateTime(s)
}

// ParseDuration exposes the RFC 5545 §3.3.6 duration parser to other
// packages (e.g. availability span computation from DTSTART/DURATION).
func ParseDuration(s string) (time.Duration, error) {
	return parseISODuration(s)
}

func parseDateOrDateTimeList(s string) ([]time.Time, error) {
	var out []time.Time
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, _, err := parseDateOrDateTime(part)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// parseISODuration parses an RFC 5545 §3.3.6 DURATION value such as
// "PT1H30M" or "P1DT2H".
func parseISODuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "+")
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("calendar: invalid duration %q", s)
	}
	var days, hours, minutes, seconds, weeks int
	inTime := false
	var num strings.Builder
	for _, r := range s[1:] {
		switch r {
		case 'T':
			inTime = true
			num.Reset()
		case 'W':
			weeks = atoiOr0(num.String())
			num.Reset()
		case 'D':
			days = atoiOr0(num.String())
			num.Reset()
		case 'H':
			hours = atoiOr0(num.String())
			num.Reset()
		case 'M':
			if inTime {
				minutes = atoiOr0(num.String())
			}
			num.Reset()
		case 'S':
			seconds = atoiOr0(num.String())
			num.Reset()
		default:
			num.WriteRune(r)
		}
	}
	d := time.Duration(weeks)*7*24*time.Hour +
		time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
	if neg {
		d = -d
	}
	return d, nil
}

func atoiOr0(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
