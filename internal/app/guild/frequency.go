package guild

import (
	"errors"
	"fmt"
	"time"
)

type FrequencyKind string

const (
	Daily   FrequencyKind = "daily"
	Weekly  FrequencyKind = "weekly"
	Monthly FrequencyKind = "monthly"
)

var ErrInvalidFrequency = errors.New("invalid frequency")

// Wall clock schedule evaluated in the guild timezone.
type Frequency struct {
	Kind    FrequencyKind `json:"kind"`
	Weekday time.Weekday  `json:"weekday"`
	Day     int           `json:"day"`
	Hour    int           `json:"hour"`
	Minute  int           `json:"minute"`
}

func DailyAt(hour int, minute int) Frequency {
	return Frequency{Kind: Daily, Hour: hour, Minute: minute}
}

func WeeklyAt(weekday time.Weekday, hour int, minute int) Frequency {
	return Frequency{Kind: Weekly, Weekday: weekday, Hour: hour, Minute: minute}
}

// Day over the length of a month is clamped to its last day.
func MonthlyAt(day int, hour int, minute int) Frequency {
	return Frequency{Kind: Monthly, Day: day, Hour: hour, Minute: minute}
}

func DefaultFrequency() Frequency {
	return WeeklyAt(time.Sunday, 0, 0)
}

func (f Frequency) Validate() error {
	if f.Hour < 0 || f.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range", ErrInvalidFrequency, f.Hour)
	}

	if f.Minute < 0 || f.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range", ErrInvalidFrequency, f.Minute)
	}

	switch f.Kind {
	case Daily:
	case Weekly:
		if f.Weekday < time.Sunday || f.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidFrequency, f.Weekday)
		}
	case Monthly:
		if f.Day < 1 || f.Day > 31 {
			return fmt.Errorf("%w: day %d out of range", ErrInvalidFrequency, f.Day)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidFrequency, f.Kind)
	}

	return nil
}

// First occurrence strictly after given moment, in location.
func (f Frequency) Next(after time.Time, location *time.Location) time.Time {
	local := after.In(location)

	switch f.Kind {
	case Daily:
		candidate := f.at(local.Year(), local.Month(), local.Day(), location)
		if !candidate.After(after) {
			candidate = f.at(local.Year(), local.Month(), local.Day()+1, location)
		}

		return candidate
	case Monthly:
		candidate := f.monthly(local.Year(), local.Month(), location)
		if !candidate.After(after) {
			candidate = f.monthly(local.Year(), local.Month()+1, location)
		}

		return candidate
	}

	days := (int(f.Weekday) - int(local.Weekday()) + 7) % 7
	candidate := f.at(local.Year(), local.Month(), local.Day()+days, location)
	if !candidate.After(after) {
		candidate = f.at(local.Year(), local.Month(), local.Day()+days+7, location)
	}

	return candidate
}

func (f Frequency) String() string {
	switch f.Kind {
	case Daily:
		return fmt.Sprintf("daily at %02d:%02d", f.Hour, f.Minute)
	case Monthly:
		return fmt.Sprintf("monthly on day %d at %02d:%02d", f.Day, f.Hour, f.Minute)
	}

	return fmt.Sprintf("weekly on %s at %02d:%02d", f.Weekday, f.Hour, f.Minute)
}

func (f Frequency) at(year int, month time.Month, day int, location *time.Location) time.Time {
	return time.Date(year, month, day, f.Hour, f.Minute, 0, 0, location)
}

func (f Frequency) monthly(year int, month time.Month, location *time.Location) time.Time {
	// day 0 of the next month is the last day of this one
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, location).Day()

	day := f.Day
	if day > lastDay {
		day = lastDay
	}

	return f.at(year, month, day, location)
}
