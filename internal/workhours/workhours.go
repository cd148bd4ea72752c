// Package workhours measures elapsed and projected time counted only
// inside configured business hours.
package workhours

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrNoWorkingDays is returned when the calendar has no working weekday.
	ErrNoWorkingDays = errors.New("workhours: no working days configured")
	// ErrInvalidHours is returned for an empty or out-of-range daily window.
	ErrInvalidHours = errors.New("workhours: start hour must be before end hour within 0-24")
)

// Config describes the business calendar.
type Config struct {
	StartHour   int
	EndHour     int
	WorkingDays []time.Weekday
	Location    *time.Location
}

// DefaultConfig is 09:00-18:00, Monday to Friday, UTC.
func DefaultConfig() Config {
	return Config{
		StartHour: 9,
		EndHour:   18,
		WorkingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
		Location: time.UTC,
	}
}

// Clock answers working-time questions for one calendar. It is immutable
// and safe for concurrent use.
type Clock struct {
	start int
	end   int
	days  [7]bool
	loc   *time.Location
}

// New validates cfg and builds a Clock.
func New(cfg Config) (*Clock, error) {
	if cfg.StartHour < 0 || cfg.EndHour > 24 || cfg.StartHour >= cfg.EndHour {
		return nil, fmt.Errorf("%w: got %d-%d", ErrInvalidHours, cfg.StartHour, cfg.EndHour)
	}
	c := &Clock{start: cfg.StartHour, end: cfg.EndHour, loc: cfg.Location}
	if c.loc == nil {
		c.loc = time.UTC
	}
	found := false
	for _, d := range cfg.WorkingDays {
		if d < time.Sunday || d > time.Saturday {
			continue
		}
		c.days[d] = true
		found = true
	}
	if !found {
		return nil, ErrNoWorkingDays
	}
	return c, nil
}

// Default returns the clock for DefaultConfig.
func Default() *Clock {
	c, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return c
}

// DailyCapacity is the working time available on one working day.
func (c *Clock) DailyCapacity() time.Duration {
	return time.Duration(c.end-c.start) * time.Hour
}

// Location returns the calendar's time zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// IsWorkingInstant reports whether t falls on a working day inside
// [start, end).
func (c *Clock) IsWorkingInstant(t time.Time) bool {
	local := t.In(c.loc)
	if !c.days[local.Weekday()] {
		return false
	}
	h := local.Hour()
	return h >= c.start && h < c.end
}

// NextWorkingInstant returns the earliest working instant at or after from.
func (c *Clock) NextWorkingInstant(from time.Time) time.Time {
	t := from.In(c.loc)
	// One pass per weekday plus the partial starting day.
	for i := 0; i <= 7; i++ {
		if c.IsWorkingInstant(t) {
			return t
		}
		if c.days[t.Weekday()] && t.Hour() < c.start {
			return c.at(t, c.start)
		}
		t = c.at(t.AddDate(0, 0, 1), c.start)
	}
	// Unreachable for a Clock built by New.
	panic(ErrNoWorkingDays)
}

// WorkingDuration sums working time in [a, b). It is zero when a >= b.
func (c *Clock) WorkingDuration(a, b time.Time) time.Duration {
	if !a.Before(b) {
		return 0
	}
	var total time.Duration
	cur := c.NextWorkingInstant(a)
	for cur.Before(b) {
		dayEnd := c.at(cur, c.end)
		if b.Before(dayEnd) {
			total += b.Sub(cur)
			break
		}
		total += dayEnd.Sub(cur)
		cur = c.NextWorkingInstant(dayEnd)
	}
	return total
}

// WorkingHours is WorkingDuration in fractional hours rounded to 2 places.
func (c *Clock) WorkingHours(a, b time.Time) float64 {
	return RoundHours(c.WorkingDuration(a, b))
}

// AddWorkingDuration advances from by d of working time, rolling over to
// the next working day whenever a day's capacity is used up.
func (c *Clock) AddWorkingDuration(from time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return from
	}
	remaining := d
	cur := c.NextWorkingInstant(from)
	for {
		dayEnd := c.at(cur, c.end)
		available := dayEnd.Sub(cur)
		if remaining <= available {
			return cur.Add(remaining)
		}
		remaining -= available
		cur = c.NextWorkingInstant(dayEnd)
	}
}

// AddWorkingHours is AddWorkingDuration with fractional hours.
func (c *Clock) AddWorkingHours(from time.Time, hours float64) time.Time {
	return c.AddWorkingDuration(from, HoursToDuration(hours))
}

// at returns hour h (minute zero) on t's calendar day in the clock's zone.
// Hour 24 normalizes to midnight of the following day.
func (c *Clock) at(t time.Time, h int) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), h, 0, 0, 0, c.loc)
}

// RoundHours converts d to hours rounded to two decimal places.
func RoundHours(d time.Duration) float64 {
	return math.Round(d.Hours()*100) / 100
}

// HoursToDuration converts fractional hours to a Duration.
func HoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
