package engine

import (
	"fmt"
	"time"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
	"github.com/shaiso/dagfactory/internal/scheduler"
)

// DefaultMaxActiveRuns — ограничение запусков, если его нет ни в
// конфигурации workflow, ни в настройках процесса.
const DefaultMaxActiveRuns = 16

// Options — параметры разрешения workflow, не зависящие от документа.
type Options struct {
	// DefaultTimezone — пояс для workflow без default_args.timezone.
	DefaultTimezone string

	// MaxActiveRuns — значение для workflow без max_active_runs.
	MaxActiveRuns int

	// Now — текущее время для относительных start_date (nil = time.Now).
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) maxActiveRuns() int {
	if o.MaxActiveRuns > 0 {
		return o.MaxActiveRuns
	}
	return DefaultMaxActiveRuns
}

// ResolveWorkflow сливает defaults с конфигурацией workflow и приводит
// параметры уровня workflow к типизированному виду.
//
// Все ошибки возвращаются как *ConfigError с именем workflow и ключом.
func ResolveWorkflow(name string, wf *domain.WorkflowConfig, defaults domain.Params, opts Options) (*domain.ResolvedWorkflow, error) {
	merged, err := Merge(wf.Params, defaults)
	if err != nil {
		return nil, NewConfigError(name, "", nil, err)
	}

	defaultArgs, err := resolveDefaultArgs(name, merged)
	if err != nil {
		return nil, err
	}

	tz, err := resolveTimezone(name, defaultArgs, opts.DefaultTimezone)
	if err != nil {
		return nil, err
	}

	rawStart, ok := defaultArgs[domain.KeyStartDate]
	if !ok || rawStart == nil {
		return nil, NewConfigError(name, domain.KeyDefaultArgs+"."+domain.KeyStartDate, nil, ErrMissingStartDate)
	}
	startDate, err := ResolveStartDate(rawStart, tz, opts.now())
	if err != nil {
		return nil, NewConfigError(name, domain.KeyDefaultArgs+"."+domain.KeyStartDate, rawStart, err)
	}
	defaultArgs[domain.KeyStartDate] = startDate
	merged[domain.KeyDefaultArgs] = map[string]any(defaultArgs)

	if err := graph.ValidateTaskArgs(defaultArgs); err != nil {
		return nil, NewConfigError(name, domain.KeyDefaultArgs, nil, err)
	}

	schedule, err := resolveSchedule(name, merged)
	if err != nil {
		return nil, err
	}

	description, err := optionalString(name, merged, domain.KeyDescription)
	if err != nil {
		return nil, err
	}

	maxActiveRuns := opts.maxActiveRuns()
	if raw, ok := merged[domain.KeyMaxActiveRuns]; ok && raw != nil {
		n, isInt := merged.Int(domain.KeyMaxActiveRuns)
		if !isInt || n <= 0 {
			return nil, NewConfigError(name, domain.KeyMaxActiveRuns, raw, ErrInvalidMaxActiveRuns)
		}
		maxActiveRuns = n
	}

	view := domain.WorkflowConfig{Name: name, Params: merged, TaskOrder: wf.TaskOrder}
	tasks, err := view.Tasks()
	if err != nil {
		return nil, NewConfigError(name, domain.KeyTasks, nil, fmt.Errorf("%w: %v", ErrInvalidTaskConfig, err))
	}

	return &domain.ResolvedWorkflow{
		ID:            name,
		Schedule:      schedule,
		Description:   description,
		MaxActiveRuns: maxActiveRuns,
		StartDate:     startDate,
		Timezone:      tz,
		DefaultArgs:   defaultArgs,
		Tasks:         tasks,
		Params:        merged,
	}, nil
}

// resolveDefaultArgs возвращает default_args из результата слияния.
// Отсутствующий ключ даёт пустую map.
func resolveDefaultArgs(name string, merged domain.Params) (domain.Params, error) {
	raw, ok := merged[domain.KeyDefaultArgs]
	if !ok || raw == nil {
		return make(domain.Params), nil
	}
	args, isMap := domain.AsParams(raw)
	if !isMap {
		return nil, NewConfigError(name, domain.KeyDefaultArgs, raw, fmt.Errorf("%w: must be a mapping", ErrInvalidValue))
	}
	return args, nil
}

func resolveTimezone(name string, defaultArgs domain.Params, fallback string) (string, error) {
	raw, ok := defaultArgs[domain.KeyTimezone]
	if !ok || raw == nil {
		if fallback == "" {
			fallback = "UTC"
		}
		if _, err := LoadLocation(fallback); err != nil {
			return "", NewConfigError(name, domain.KeyDefaultArgs+"."+domain.KeyTimezone, fallback, err)
		}
		return fallback, nil
	}

	tz, isString := raw.(string)
	if !isString {
		return "", NewConfigError(name, domain.KeyDefaultArgs+"."+domain.KeyTimezone, raw, ErrInvalidTimezone)
	}
	if _, err := LoadLocation(tz); err != nil {
		return "", NewConfigError(name, domain.KeyDefaultArgs+"."+domain.KeyTimezone, raw, err)
	}
	return tz, nil
}

// resolveSchedule берёт schedule, а при его отсутствии schedule_interval.
func resolveSchedule(name string, merged domain.Params) (string, error) {
	key := domain.KeySchedule
	raw, ok := merged[key]
	if !ok {
		key = domain.KeyScheduleInterval
		raw, ok = merged[key]
	}
	if !ok || raw == nil {
		return "", nil
	}

	expr, isString := raw.(string)
	if !isString {
		return "", NewConfigError(name, key, raw, fmt.Errorf("%w: must be a string", ErrInvalidSchedule))
	}
	if err := scheduler.ValidateSchedule(expr); err != nil {
		return "", NewConfigError(name, key, raw, err)
	}
	return expr, nil
}

func optionalString(name string, params domain.Params, key string) (string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, isString := raw.(string)
	if !isString {
		return "", NewConfigError(name, key, raw, fmt.Errorf("%w: must be a string", ErrInvalidValue))
	}
	return s, nil
}
