package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/dagfactory/internal/scheduler"
)

// Ошибки конфигурации workflow.
var (
	// ErrMissingStartDate — в default_args нет start_date.
	ErrMissingStartDate = errors.New("start_date is required")

	// ErrInvalidStartDate — start_date не разбирается ни как дата, ни как смещение.
	ErrInvalidStartDate = errors.New("invalid start_date")

	// ErrInvalidTimezone — неизвестный часовой пояс.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrInvalidSchedule — некорректное расписание.
	ErrInvalidSchedule = scheduler.ErrInvalidSchedule

	// ErrInvalidMaxActiveRuns — max_active_runs не положительное целое.
	ErrInvalidMaxActiveRuns = errors.New("max_active_runs must be a positive integer")

	// ErrNoTasks — workflow не содержит задач.
	ErrNoTasks = errors.New("workflow has no tasks")

	// ErrInvalidTaskConfig — задача не является mapping или tasks не mapping.
	ErrInvalidTaskConfig = errors.New("invalid task config")

	// ErrMissingOperator — у задачи нет operator.
	ErrMissingOperator = errors.New("task has no operator")

	// ErrInvalidDependencies — dependencies не список строк или содержит повторы.
	ErrInvalidDependencies = errors.New("invalid dependencies")

	// ErrSelfDependency — задача зависит от самой себя.
	ErrSelfDependency = errors.New("task depends on itself")

	// ErrDuplicateTask — две задачи с одинаковым именем.
	ErrDuplicateTask = errors.New("duplicate task name")

	// ErrDuplicateWorkflow — два workflow с одинаковым именем.
	ErrDuplicateWorkflow = errors.New("duplicate workflow name")

	// ErrInvalidValue — значение ключа имеет неверный тип.
	ErrInvalidValue = errors.New("invalid value")

	// ErrMergeFailed — не удалось слить параметры.
	ErrMergeFailed = errors.New("merge failed")

	// ErrCallableLoad — не удалось загрузить функцию по callable_name + callable_file.
	ErrCallableLoad = errors.New("callable load failed")
)

// ConfigError — некорректная или неполная конфигурация workflow.
type ConfigError struct {
	Workflow string // имя workflow
	Key      string // ключ конфигурации (например, default_args.start_date)
	Value    any    // значение, вызвавшее ошибку (nil, если ключа нет)
	Err      error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ConfigError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %s", e.Workflow)
	if e.Key != "" {
		fmt.Fprintf(&b, ": %s", e.Key)
	}
	if e.Value != nil {
		fmt.Fprintf(&b, " (%v)", e.Value)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap возвращает базовую ошибку.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError создаёт ConfigError.
func NewConfigError(workflow, key string, value any, err error) *ConfigError {
	return &ConfigError{Workflow: workflow, Key: key, Value: value, Err: err}
}

// UnknownOperatorError — ссылка на тип шага не найдена в каталоге.
type UnknownOperatorError struct {
	Workflow string
	Task     string
	Operator string
	Err      error
}

// Error реализует интерфейс error.
func (e *UnknownOperatorError) Error() string {
	return fmt.Sprintf("workflow %s: task %s: unknown operator %q", e.Workflow, e.Task, e.Operator)
}

// Unwrap возвращает базовую ошибку.
func (e *UnknownOperatorError) Unwrap() error {
	return e.Err
}

// MissingCallableError — callable шаг без функции и без пары
// callable_name + callable_file.
type MissingCallableError struct {
	Workflow string
	Task     string
	Operator string
	Missing  []string // недостающие ключи
}

// Error реализует интерфейс error.
func (e *MissingCallableError) Error() string {
	return fmt.Sprintf("workflow %s: task %s: operator %s requires callable or callable_name and callable_file (missing %s)",
		e.Workflow, e.Task, e.Operator, strings.Join(e.Missing, ", "))
}

// StepConstructionError — конструктор шага вернул ошибку.
type StepConstructionError struct {
	Workflow string
	Task     string
	Operator string
	Params   map[string]any // параметры, переданные конструктору
	Err      error
}

// Error реализует интерфейс error.
func (e *StepConstructionError) Error() string {
	return fmt.Sprintf("workflow %s: task %s: construct %s with params %s: %v",
		e.Workflow, e.Task, e.Operator, formatParams(e.Params), e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *StepConstructionError) Unwrap() error {
	return e.Err
}

// UnknownDependencyError — задача зависит от задачи, которой нет в workflow.
type UnknownDependencyError struct {
	Workflow   string
	Task       string
	Dependency string
}

// Error реализует интерфейс error.
func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("workflow %s: task %s depends on unknown task %q", e.Workflow, e.Task, e.Dependency)
}

// formatParams печатает параметры с отсортированными ключами.
func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := params[k]
		if isFunc(v) {
			v = "<func>"
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
