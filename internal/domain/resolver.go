package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/couchcryptid/condition-oracle/internal/expr"
)

var (
	// hourRe matches a single-hour condition, e.g. "hour13".
	hourRe = regexp.MustCompile(`^hour(\d+)$`)

	// hourRangeRe matches an inclusive hour range, e.g. "hour9_17" or the
	// midnight-wrapping "hour22_4".
	hourRangeRe = regexp.MustCompile(`^hour(\d+)_(\d+)$`)
)

// Built-in condition names that are not derived from the calendar.
const (
	CondTrue      = "true"
	CondFalse     = "false"
	CondNighttime = "nighttime"
	CondDaytime   = "daytime"
)

// FlagLookup reads operator-set flags. ok is false when the flag was never
// declared or set.
type FlagLookup interface {
	Flag(name string) (value, ok bool)
}

// Resolve answers whether the named condition holds for snap. Lookup order:
// flags, literals, day/night, month, month+day, weekday, season, earth
// position, hourN, hourN_M. Unknown names resolve to false.
//
// A name that starts with the current month but is followed by something
// other than a day number is a parse error, as is an hour number that
// overflows an int.
func Resolve(name string, snap Snapshot, flags FlagLookup) (bool, error) {
	name = strings.ToLower(name)

	if flags != nil {
		if v, ok := flags.Flag(name); ok {
			return v, nil
		}
	}

	switch name {
	case CondTrue:
		return true, nil
	case CondFalse:
		return false, nil
	}

	if (snap.Nighttime && name == CondNighttime) || (!snap.Nighttime && name == CondDaytime) {
		return true, nil
	}

	if name == snap.Month {
		return true, nil
	}

	if snap.Month != "" && strings.HasPrefix(name, snap.Month) {
		suffix := name[len(snap.Month):]
		day, err := strconv.Atoi(suffix)
		if err != nil {
			return false, &expr.ParseError{
				Expr: name,
				Pos:  len(snap.Month),
				Msg:  fmt.Sprintf("day of month %q is not a number", suffix),
			}
		}
		if day == snap.DayOfMonth {
			return true, nil
		}
	}

	if name == snap.Weekday || name == snap.Season {
		return true, nil
	}

	if snap.EarthPosition != "" && name == snap.EarthPosition {
		return true, nil
	}

	if m := hourRe.FindStringSubmatch(name); m != nil {
		hour, err := parseHour(name, m[1])
		if err != nil {
			return false, err
		}
		return hour == snap.Hour, nil
	}

	if m := hourRangeRe.FindStringSubmatch(name); m != nil {
		start, err := parseHour(name, m[1])
		if err != nil {
			return false, err
		}
		end, err := parseHour(name, m[2])
		if err != nil {
			return false, err
		}
		return hourInRange(snap.Hour, start, end), nil
	}

	return false, nil
}

// hourInRange reports whether hour falls in the inclusive range [start, end].
// When start is not below end the range wraps past midnight.
func hourInRange(hour, start, end int) bool {
	if start < end {
		return start <= hour && hour <= end
	}
	return start <= hour || hour <= end
}

func parseHour(name, digits string) (int, error) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, &expr.ParseError{
			Expr: name,
			Pos:  strings.Index(name, digits),
			Msg:  fmt.Sprintf("hour %q out of range", digits),
		}
	}
	return n, nil
}
