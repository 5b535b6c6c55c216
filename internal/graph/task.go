package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shaiso/dagfactory/internal/domain"
)

// Operator — исполняемая часть задачи.
//
// Конкретные типы (bash, callable, http, ...) живут в пакете steps.
type Operator interface {
	// Kind возвращает каноническое имя типа шага.
	Kind() string

	// Execute выполняет шаг и возвращает outputs.
	// Шаг должен проверять ctx.Done() для graceful shutdown.
	Execute(ctx context.Context, tc *TaskContext) (map[string]any, error)
}

// ParamsDescriber — оператор, который может показать свои параметры
// (для снимков графа и CLI).
type ParamsDescriber interface {
	Params() map[string]any
}

// TaskContext — данные, доступные оператору во время выполнения.
type TaskContext struct {
	// RunID — идентификатор локального запуска.
	RunID string

	// Task — выполняемая задача.
	Task *Task

	// Template — контекст для рендеринга параметров.
	Template *TemplateContext

	// Logger — логгер с workflow_id и task_id.
	Logger *slog.Logger
}

// BaseArgKeys — аргументы, общие для всех типов шагов.
// Они не передаются оператору, а хранятся в самой задаче.
var BaseArgKeys = []string{
	"owner",
	"retries",
	"retry_delay",
	"email",
	"email_on_failure",
	"email_on_retry",
	"depends_on_past",
	"start_date",
	"end_date",
	"trigger_rule",
	"pool",
	"queue",
	"priority_weight",
	"execution_timeout",
	"doc",
	"doc_md",
}

// Правила запуска задачи относительно исходов её upstream.
const (
	TriggerAllSuccess = "all_success"
	TriggerAllFailed  = "all_failed"
	TriggerAllDone    = "all_done"
	TriggerOneSuccess = "one_success"
	TriggerOneFailed  = "one_failed"
	TriggerNoneFailed = "none_failed"
	TriggerAlways     = "always"
)

// Допустимые trigger_rule.
var validTriggerRules = map[string]bool{
	TriggerAllSuccess: true,
	TriggerAllFailed:  true,
	TriggerAllDone:    true,
	TriggerOneSuccess: true,
	TriggerOneFailed:  true,
	TriggerNoneFailed: true,
	TriggerAlways:     true,
}

// IsBaseArg проверяет, является ли ключ базовым аргументом задачи.
func IsBaseArg(key string) bool {
	for _, k := range BaseArgKeys {
		if k == key {
			return true
		}
	}
	return false
}

// SplitTaskArgs делит параметры задачи на базовые аргументы и
// параметры оператора. Исходная map не меняется.
func SplitTaskArgs(params domain.Params) (base domain.Params, rest domain.Params) {
	base = make(domain.Params)
	rest = make(domain.Params)
	for k, v := range params {
		if IsBaseArg(k) {
			base[k] = v
		} else {
			rest[k] = v
		}
	}
	return base, rest
}

// ValidateTaskArgs проверяет типы базовых аргументов.
func ValidateTaskArgs(args domain.Params) error {
	if _, ok := args["retries"]; ok {
		n, ok := args.Int("retries")
		if !ok || n < 0 {
			return fmt.Errorf("%w: retries must be a non-negative integer, got %v", ErrInvalidTaskArg, args["retries"])
		}
	}

	if _, ok := args["priority_weight"]; ok {
		if _, ok := args.Int("priority_weight"); !ok {
			return fmt.Errorf("%w: priority_weight must be an integer, got %v", ErrInvalidTaskArg, args["priority_weight"])
		}
	}

	if rule, ok := args["trigger_rule"]; ok {
		s, isString := rule.(string)
		if !isString || !validTriggerRules[s] {
			return fmt.Errorf("%w: unknown trigger_rule %v", ErrInvalidTaskArg, rule)
		}
	}

	for _, key := range []string{"retry_delay", "execution_timeout"} {
		if v, ok := args[key]; ok {
			if _, err := ParseArgDuration(v); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidTaskArg, key, err)
			}
		}
	}

	return nil
}

// ParseArgDuration разбирает длительность: число секунд или строку
// формата time.ParseDuration ("90s", "5m").
func ParseArgDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case int:
		return time.Duration(d) * time.Second, nil
	case int64:
		return time.Duration(d) * time.Second, nil
	case float64:
		return time.Duration(d * float64(time.Second)), nil
	case string:
		if secs, err := strconv.Atoi(d); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return time.ParseDuration(d)
	default:
		return 0, fmt.Errorf("unsupported duration value %v (%T)", v, v)
	}
}

// Task — узел workflow.
type Task struct {
	// ID — имя задачи, уникальное в пределах workflow.
	ID string

	workflow *Workflow
	operator Operator

	// args — базовые аргументы, заданные на уровне задачи.
	args domain.Params

	// upstream — задачи, которые выполняются раньше этой.
	upstream []*Task

	// downstream — задачи, которые ждут эту.
	downstream []*Task
}

// Workflow возвращает workflow, которому принадлежит задача.
func (t *Task) Workflow() *Workflow {
	return t.workflow
}

// Operator возвращает исполняемую часть задачи.
func (t *Task) Operator() Operator {
	return t.operator
}

// Upstream возвращает прямые зависимости в порядке добавления.
func (t *Task) Upstream() []*Task {
	return append([]*Task(nil), t.upstream...)
}

// Downstream возвращает задачи, зависящие от этой.
func (t *Task) Downstream() []*Task {
	return append([]*Task(nil), t.downstream...)
}

// UpstreamIDs возвращает ID прямых зависимостей.
func (t *Task) UpstreamIDs() []string {
	ids := make([]string, len(t.upstream))
	for i, u := range t.upstream {
		ids[i] = u.ID
	}
	return ids
}

// SetUpstream объявляет, что задачи others выполняются до t.
func (t *Task) SetUpstream(others ...*Task) error {
	for _, other := range others {
		if err := t.workflow.link(other, t); err != nil {
			return err
		}
	}
	return nil
}

// SetDownstream объявляет, что задачи others выполняются после t.
func (t *Task) SetDownstream(others ...*Task) error {
	for _, other := range others {
		if err := t.workflow.link(t, other); err != nil {
			return err
		}
	}
	return nil
}

// Args возвращает итоговые аргументы задачи: аргументы задачи
// поверх default_args workflow.
func (t *Task) Args() domain.Params {
	result := t.workflow.DefaultArgs.Clone()
	if result == nil {
		result = make(domain.Params)
	}
	for k, v := range t.args {
		result[k] = v
	}
	return result
}

// Owner возвращает владельца задачи.
func (t *Task) Owner() string {
	return t.Args().String("owner")
}

// TriggerRule возвращает trigger_rule задачи (по умолчанию all_success).
func (t *Task) TriggerRule() string {
	if rule := t.Args().String("trigger_rule"); rule != "" {
		return rule
	}
	return TriggerAllSuccess
}

// Retries возвращает количество повторов.
func (t *Task) Retries() int {
	n, _ := t.Args().Int("retries")
	return n
}

// ExecutionTimeout возвращает таймаут выполнения (0 — без ограничения).
func (t *Task) ExecutionTimeout() time.Duration {
	v, ok := t.Args()["execution_timeout"]
	if !ok {
		return 0
	}
	d, err := ParseArgDuration(v)
	if err != nil {
		return 0
	}
	return d
}
