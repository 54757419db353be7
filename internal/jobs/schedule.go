package jobs

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/armelgeek/better-query/internal/errs"
)

// Schedule computes when a job should run next.
type Schedule interface {
	// Next returns the first run time strictly after from.
	Next(from time.Time) time.Time
}

// ParseSchedule parses a schedule string. Two forms are accepted:
//
//	"<integer><unit>"  with unit in s, m, h, d — a fixed interval
//	"m h dom mon dow"  cron-like; only the minute field (*, N, */n) and the
//	                   hour field (*, N) are evaluated, the remaining three
//	                   are accepted and ignored
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty schedule", errs.ErrScheduleParse)
	}

	if fields := strings.Fields(expr); len(fields) == 5 {
		return parseCron(expr, fields)
	}
	return parseInterval(expr)
}

// intervalSchedule adds a fixed duration to the reference time.
type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func parseInterval(expr string) (Schedule, error) {
	if len(expr) < 2 {
		return nil, fmt.Errorf("%w: %q", errs.ErrScheduleParse, expr)
	}

	unit := expr[len(expr)-1]
	n, err := strconv.Atoi(expr[:len(expr)-1])
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: %q", errs.ErrScheduleParse, expr)
	}

	var d time.Duration
	switch unit {
	case 's':
		d = time.Second
	case 'm':
		d = time.Minute
	case 'h':
		d = time.Hour
	case 'd':
		d = 24 * time.Hour
	default:
		return nil, fmt.Errorf("%w: unknown unit in %q", errs.ErrScheduleParse, expr)
	}
	return intervalSchedule{every: time.Duration(n) * d}, nil
}

// cronSchedule evaluates the minute and hour fields of a five-field cron
// expression. Day, month and weekday are parsed for well-formedness only.
type cronSchedule struct {
	minuteAny  bool
	minuteStep int
	minute     int
	hourAny    bool
	hour       int
}

func parseCron(expr string, fields []string) (Schedule, error) {
	s := cronSchedule{minute: -1, hour: -1}

	minute := fields[0]
	switch {
	case minute == "*":
		s.minuteAny = true
	case strings.HasPrefix(minute, "*/"):
		step, err := strconv.Atoi(minute[2:])
		if err != nil || step <= 0 || step > 59 {
			return nil, fmt.Errorf("%w: minute field in %q", errs.ErrScheduleParse, expr)
		}
		s.minuteStep = step
	default:
		n, err := strconv.Atoi(minute)
		if err != nil || n < 0 || n > 59 {
			return nil, fmt.Errorf("%w: minute field in %q", errs.ErrScheduleParse, expr)
		}
		s.minute = n
	}

	hour := fields[1]
	if hour == "*" {
		s.hourAny = true
	} else {
		n, err := strconv.Atoi(hour)
		if err != nil || n < 0 || n > 23 {
			return nil, fmt.Errorf("%w: hour field in %q", errs.ErrScheduleParse, expr)
		}
		s.hour = n
	}

	for _, f := range fields[2:] {
		if f == "" {
			return nil, fmt.Errorf("%w: %q", errs.ErrScheduleParse, expr)
		}
	}
	return s, nil
}

func (s cronSchedule) matches(t time.Time) bool {
	switch {
	case s.minuteAny:
	case s.minuteStep > 0:
		if t.Minute()%s.minuteStep != 0 {
			return false
		}
	default:
		if t.Minute() != s.minute {
			return false
		}
	}

	if !s.hourAny && t.Hour() != s.hour {
		return false
	}
	return true
}

func (s cronSchedule) Next(from time.Time) time.Time {
	// Scan forward minute by minute. The evaluated fields repeat within 24
	// hours, so the scan is bounded.
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(24*time.Hour + time.Minute)
	for t.Before(limit) {
		if s.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return t
}
