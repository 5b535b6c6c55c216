package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
)

// absoluteLayouts — форматы абсолютной даты, которые интерпретируются
// в часовом поясе workflow.
var absoluteLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// relativePattern — смещение вида "2 days 3 hours 10 minutes 5 seconds".
var relativePattern = regexp.MustCompile(
	`^(?:(\d+)\s*days?)?\s*(?:(\d+)\s*hours?)?\s*(?:(\d+)\s*minutes?)?\s*(?:(\d+)\s*seconds?)?$`,
)

// LoadLocation загружает часовой пояс. Пустая строка — UTC.
func LoadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidTimezone, tz, err)
	}
	return loc, nil
}

// ResolveStartDate приводит start_date к моменту времени в часовом поясе tz.
//
// Поддерживаются:
//   - time.Time — дата и время на часах сохраняются, пояс заменяется на tz;
//   - абсолютная дата: 2024-01-02, 2024-01-02T15:04:05, RFC3339;
//   - смещение назад от полуночи текущего дня: "3600" (секунды),
//     "2 days", "1 day 6 hours", "2d12h", в том числе со знаком "-1d";
//   - целое число — смещение в секундах.
func ResolveStartDate(value any, tz string, now time.Time) (time.Time, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}

	switch v := value.(type) {
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), loc), nil
	case int:
		return relativeStart(time.Duration(v)*time.Second, loc, now)
	case int64:
		return relativeStart(time.Duration(v)*time.Second, loc, now)
	case uint64:
		return relativeStart(time.Duration(v)*time.Second, loc, now)
	case string:
		return parseStartDate(v, loc, now)
	case nil:
		return time.Time{}, ErrMissingStartDate
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidStartDate, value)
	}
}

func parseStartDate(value string, loc *time.Location, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, ErrMissingStartDate
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	// Ведущий минус ("-1d") читается как "назад", как и смещение без знака.
	delta, err := ParseTimeDelta(strings.TrimPrefix(s, "-"))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrInvalidStartDate, value)
	}
	return relativeStart(delta, loc, now)
}

// relativeStart отсчитывает delta назад от полуночи дня now в поясе loc.
func relativeStart(delta time.Duration, loc *time.Location, now time.Time) (time.Time, error) {
	if delta < 0 {
		return time.Time{}, fmt.Errorf("%w: negative offset %s", ErrInvalidStartDate, delta)
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(-delta), nil
}

// ParseTimeDelta разбирает относительное смещение.
//
// Только цифры — секунды. Далее словесная форма ("2 days 3 hours")
// и компактная форма ("2d12h", "1w", "90m").
func ParseTimeDelta(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time delta")
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative time delta %q", s)
		}
		return time.Duration(secs) * time.Second, nil
	}

	if m := relativePattern.FindStringSubmatch(s); m != nil {
		units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
		var total time.Duration
		matched := false
		for i, unit := range units {
			if m[i+1] == "" {
				continue
			}
			n, err := strconv.ParseInt(m[i+1], 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse time delta %q: %w", s, err)
			}
			total += time.Duration(n) * unit
			matched = true
		}
		if matched {
			return total, nil
		}
	}

	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse time delta %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative time delta %q", s)
	}
	return d, nil
}
