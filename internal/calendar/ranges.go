package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Input formats accepted for dates and date-times.
const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// parseRange resolves "today", "tomorrow", "week" (seven days from
// today) or a YYYY-MM-DD date to a half-open interval in now's zone.
// Anything unrecognized means today.
func parseRange(s string, now time.Time) (start, end time.Time) {
	today := startOfDay(now)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "today":
		return today, today.AddDate(0, 0, 1)
	case "tomorrow":
		return today.AddDate(0, 0, 1), today.AddDate(0, 0, 2)
	case "week":
		return today, today.AddDate(0, 0, 7)
	}
	if d, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), now.Location()); err == nil {
		return d, d.AddDate(0, 0, 1)
	}
	return today, today.AddDate(0, 0, 1)
}

// parseDateTime accepts "YYYY-MM-DD HH:MM:SS", "YYYY-MM-DDTHH:MM:SS",
// RFC 3339 or a bare date. Zone-less values are in loc.
func parseDateTime(s string, loc *time.Location) (t time.Time, allDay bool, err error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), false, nil
	}
	for _, layout := range []string{dateTimeLayout, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	if t, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("invalid date-time %q: use YYYY-MM-DD HH:MM:SS", s)
}
