package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Специальные значения расписания.
const (
	// ScheduleOnce — workflow запускается один раз.
	ScheduleOnce = "@once"

	// ScheduleNone — workflow запускается только вручную.
	ScheduleNone = "none"
)

var (
	// ErrInvalidSchedule — расписание не разбирается.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrNoNextRun — у расписания нет следующего запуска (ручное или @once).
	ErrNoNextRun = errors.New("schedule has no next run")
)

// IsManual проверяет, что расписание не задаёт периодических запусков.
func IsManual(expr string) bool {
	switch strings.TrimSpace(expr) {
	case "", ScheduleNone, "None", ScheduleOnce:
		return true
	}
	return false
}

// ValidateSchedule проверяет расписание.
//
// Допустимы пустая строка, none/None, @once, дескрипторы (@daily, @every 1h)
// и стандартные cron-выражения из пяти полей.
func ValidateSchedule(expr string) error {
	if IsManual(expr) {
		return nil
	}
	if _, err := cron.ParseStandard(strings.TrimSpace(expr)); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSchedule, expr, err)
	}
	return nil
}

// NextRun вычисляет следующее время запуска после from.
//
// Расчёт ведётся в часовом поясе tz (пусто = UTC), результат в UTC.
// Для ручных расписаний возвращает ErrNoNextRun.
func NextRun(expr, tz string, from time.Time) (time.Time, error) {
	if IsManual(expr) {
		return time.Time{}, ErrNoNextRun
	}

	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		loc = l
	}

	schedule, err := cron.ParseStandard(strings.TrimSpace(expr))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, expr, err)
	}

	return schedule.Next(from.In(loc)).UTC(), nil
}
