package domain

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

const dateFormat = "2006-01-02"

// ParseDate reads a calendar date from "YYYY-MM-DD" or an RFC 3339
// timestamp. Timestamps are truncated to the date in their own offset.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: want %s or RFC 3339", s, dateFormat)
	}
	return civil.DateOf(t), nil
}

// CompareDates returns -1, 0 or +1 as a is before, equal to or after b.
func CompareDates(a, b civil.Date) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// MonthStart is the first day of d's month.
func MonthStart(d civil.Date) civil.Date {
	return civil.Date{Year: d.Year, Month: d.Month, Day: 1}
}

// MonthEnd is the last day of d's month.
func MonthEnd(d civil.Date) civil.Date {
	return civil.DateOf(time.Date(d.Year, d.Month+1, 0, 0, 0, 0, 0, time.UTC))
}

// AddMonths moves the first day of d's month by n months.
func AddMonths(d civil.Date, n int) civil.Date {
	return civil.DateOf(time.Date(d.Year, d.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

// SameMonth reports whether a and b fall in the same calendar month.
func SameMonth(a, b civil.Date) bool {
	return a.Year == b.Year && a.Month == b.Month
}
