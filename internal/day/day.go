// Package day resolves calendar days and their local hours.
package day

import (
	"fmt"
	"time"
)

const Layout = "2006-01-02"

// RelativeDate is a day relative to now
type RelativeDate int

const (
	Today RelativeDate = iota
	Tomorrow
)

func (d RelativeDate) String() string {
	if d == Tomorrow {
		return "tomorrow"
	}
	return "today"
}

// Date returns midnight of the relative day in loc
func (d RelativeDate) Date(now time.Time, loc *time.Location) time.Time {
	return Midnight(now.In(loc)).AddDate(0, 0, int(d))
}

// Midnight returns the start of t's calendar day in t's location
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Bounds returns [start, end) of the calendar day of date
func Bounds(date time.Time) (time.Time, time.Time) {
	start := Midnight(date)
	return start, start.AddDate(0, 0, 1)
}

// Hours lists the local hour starts of date's calendar day. DST days have 23
// or 25 entries.
func Hours(date time.Time) []time.Time {
	start, end := Bounds(date)
	hours := make([]time.Time, 0, 25)
	for h := start; h.Before(end); h = h.Add(time.Hour) {
		hours = append(hours, h)
	}
	return hours
}

// CurrentHour truncates now to the start of its local hour, keeping now's
// offset inside a repeated DST hour
func CurrentHour(now time.Time) time.Time {
	return now.Add(-(time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second +
		time.Duration(now.Nanosecond())))
}

// Parse parses "today", "tomorrow" or a YYYY-MM-DD date in loc
func Parse(s string, now time.Time, loc *time.Location) (time.Time, error) {
	switch s {
	case "", "today":
		return Today.Date(now, loc), nil
	case "tomorrow":
		return Tomorrow.Date(now, loc), nil
	}
	d, err := time.ParseInLocation(Layout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

// Format renders the calendar day of t as YYYY-MM-DD
func Format(t time.Time) string {
	return t.Format(Layout)
}
