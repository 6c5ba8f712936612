package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDateRange parses a date range expression into inclusive bounds.
//
// Accepted forms:
//
//	<date>          the whole cycle the date names (a day, month, or year)
//	<date>..<date>  explicit start and end; either side may be empty for
//	                an open-ended bound
//
// A <date> is absolute (YYYY/MM/DD, YYYY/MM, or YYYY) or relative: one or
// more [N]d/w/m/y components counting back from now, e.g. "3d", "w"
// (current week), "1m2d". Relative dates round to the start of the cycle
// named by their last unit; a leading "+" disables rounding and uses the
// exact offset instant.
func ParseDateRange(s string, now time.Time) (DateRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateRange{}, fmt.Errorf("empty date range")
	}

	var r DateRange
	if start, end, found := strings.Cut(s, ".."); found {
		if strings.TrimSpace(start) != "" {
			from, err := parseBound(start, now, false)
			if err != nil {
				return DateRange{}, err
			}
			r.From = &from
		}
		if strings.TrimSpace(end) != "" {
			to, err := parseBound(end, now, true)
			if err != nil {
				return DateRange{}, err
			}
			r.To = &to
		}
		if r.IsZero() {
			return DateRange{}, fmt.Errorf("date range %q has no bounds", s)
		}
		return r, nil
	}

	// A single date means the full cycle it names.
	from, err := parseBound(s, now, false)
	if err != nil {
		return DateRange{}, err
	}
	to, err := parseBound(s, now, true)
	if err != nil {
		return DateRange{}, err
	}
	r.From = &from
	r.To = &to
	return r, nil
}

func parseBound(s string, now time.Time, isEnd bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if strings.ContainsRune("dwmy", rune(s[len(s)-1])) {
		return parseRelativeDate(s, now, isEnd)
	}
	return parseAbsoluteDate(s, now, isEnd)
}

// parseAbsoluteDate handles YYYY/MM/DD, YYYY/MM, and YYYY.
func parseAbsoluteDate(s string, now time.Time, isEnd bool) (time.Time, error) {
	parts := strings.Split(s, "/")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date component %q in %q", p, s)
		}
		nums[i] = n
	}

	loc := now.Location()
	var start time.Time
	var cycleEnd func(time.Time) time.Time
	switch len(nums) {
	case 3:
		start = time.Date(nums[0], time.Month(nums[1]), nums[2], 0, 0, 0, 0, loc)
		// time.Date normalizes out-of-range components; reject them.
		if start.Year() != nums[0] || int(start.Month()) != nums[1] || start.Day() != nums[2] {
			return time.Time{}, fmt.Errorf("date does not exist: %s", s)
		}
		cycleEnd = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case 2:
		if nums[1] < 1 || nums[1] > 12 {
			return time.Time{}, fmt.Errorf("invalid month in %q", s)
		}
		start = time.Date(nums[0], time.Month(nums[1]), 1, 0, 0, 0, 0, loc)
		cycleEnd = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	case 1:
		start = time.Date(nums[0], time.January, 1, 0, 0, 0, 0, loc)
		cycleEnd = func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }
	default:
		return time.Time{}, fmt.Errorf("invalid date format: %q", s)
	}

	if isEnd {
		return cycleEnd(start).Add(-time.Nanosecond), nil
	}
	return start, nil
}

// parseRelativeDate handles [N]d/w/m/y combinations counted back from
// now, with optional "+" exact mode.
func parseRelativeDate(s string, now time.Time, isEnd bool) (time.Time, error) {
	exact := strings.HasPrefix(s, "+")
	s = strings.TrimPrefix(s, "+")

	remaining := s
	days, months := 0, 0
	lastUnit := byte('d')
	for remaining != "" {
		pos := strings.IndexAny(remaining, "dwmy")
		if pos < 0 {
			return time.Time{}, fmt.Errorf("missing unit (d/w/m/y) in %q", remaining)
		}
		unit := remaining[pos]
		numStr := remaining[:pos]

		n := 0
		if numStr != "" {
			var err error
			n, err = strconv.Atoi(numStr)
			if err != nil || n < 0 {
				return time.Time{}, fmt.Errorf("invalid number %q in date", numStr)
			}
		}

		switch unit {
		case 'd':
			days += n
		case 'w':
			days += n * 7
		case 'm':
			months += n
		case 'y':
			months += n * 12
		}
		lastUnit = unit
		remaining = remaining[pos+1:]
	}

	date := now.AddDate(0, -months, -days)
	if exact {
		return date, nil
	}

	start := cycleStart(date, lastUnit)
	if isEnd {
		return cycleAdd(start, lastUnit).Add(-time.Nanosecond), nil
	}
	return start, nil
}

// cycleStart rounds down to the start of the cycle named by unit.
// Weeks start on Monday.
func cycleStart(t time.Time, unit byte) time.Time {
	loc := t.Location()
	switch unit {
	case 'w':
		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		offset := (int(midnight.Weekday()) + 6) % 7
		return midnight.AddDate(0, 0, -offset)
	case 'm':
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case 'y':
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
	default: // 'd'
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
}

func cycleAdd(t time.Time, unit byte) time.Time {
	switch unit {
	case 'w':
		return t.AddDate(0, 0, 7)
	case 'm':
		return t.AddDate(0, 1, 0)
	case 'y':
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}
