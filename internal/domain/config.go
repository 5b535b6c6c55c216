package domain

import (
	"fmt"
	"sort"
)

// Ключи конфигурации workflow.
const (
	KeyTasks            = "tasks"
	KeySchedule         = "schedule"
	KeyScheduleInterval = "schedule_interval"
	KeyDescription      = "description"
	KeyMaxActiveRuns    = "max_active_runs"
	KeyDefaultArgs      = "default_args"
	KeyStartDate        = "start_date"
	KeyTimezone         = "timezone"
)

// RawConfig — десериализованный документ конфигурации.
//
// Загружается один раз и дальше только читается.
type RawConfig struct {
	// Defaults — параметры по умолчанию для всех workflow.
	Defaults Params

	// Workflows — workflow в порядке объявления в документе.
	Workflows []WorkflowConfig

	// StepTemplates — переиспользуемые шаблоны параметров задач
	// (метка → параметры). Применяются до сборки графов.
	StepTemplates map[string]Params
}

// Workflow возвращает конфигурацию workflow по имени.
func (c *RawConfig) Workflow(name string) (*WorkflowConfig, bool) {
	for i := range c.Workflows {
		if c.Workflows[i].Name == name {
			return &c.Workflows[i], true
		}
	}
	return nil, false
}

// WorkflowNames возвращает имена workflow в порядке объявления.
func (c *RawConfig) WorkflowNames() []string {
	names := make([]string, len(c.Workflows))
	for i := range c.Workflows {
		names[i] = c.Workflows[i].Name
	}
	return names
}

// WorkflowConfig — одна запись из workflows.
type WorkflowConfig struct {
	// Name — имя workflow, оно же его идентификатор.
	Name string

	// Params — все ключи workflow: tasks, schedule, description,
	// max_active_runs, default_args и любые другие.
	Params Params

	// TaskOrder — имена задач в порядке объявления.
	TaskOrder []string
}

// Tasks возвращает задачи в порядке объявления.
//
// Задачи, которых нет в TaskOrder (например, добавленные программно),
// идут следом в алфавитном порядке.
func (w *WorkflowConfig) Tasks() ([]TaskConfig, error) {
	raw, ok := w.Params[KeyTasks]
	if !ok || raw == nil {
		return nil, nil
	}
	tasks, ok := AsParams(raw)
	if !ok {
		return nil, fmt.Errorf("tasks must be a mapping, got %T", raw)
	}

	seen := make(map[string]bool, len(tasks))
	result := make([]TaskConfig, 0, len(tasks))

	appendTask := func(name string) error {
		params, ok := AsParams(tasks[name])
		if !ok {
			return fmt.Errorf("task %s must be a mapping, got %T", name, tasks[name])
		}
		result = append(result, TaskConfig{Name: name, Params: params})
		seen[name] = true
		return nil
	}

	for _, name := range w.TaskOrder {
		if _, exists := tasks[name]; !exists || seen[name] {
			continue
		}
		if err := appendTask(name); err != nil {
			return nil, err
		}
	}

	rest := make([]string, 0)
	for name := range tasks {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		if err := appendTask(name); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// TaskConfig — параметры одной задачи.
type TaskConfig struct {
	// Name — имя задачи, уникальное в пределах workflow.
	Name string

	// Params — все ключи задачи, включая operator и dependencies.
	Params Params
}

// Operator возвращает ссылку на тип шага.
func (t *TaskConfig) Operator() string {
	return t.Params.String(ParamOperator)
}

// Dependencies возвращает список зависимостей в порядке объявления.
func (t *TaskConfig) Dependencies() ([]string, error) {
	raw, ok := t.Params[ParamDependencies]
	if !ok || raw == nil {
		return nil, nil
	}

	switch deps := raw.(type) {
	case []string:
		return append([]string(nil), deps...), nil
	case []any:
		result := make([]string, 0, len(deps))
		for i, d := range deps {
			s, ok := d.(string)
			if !ok {
				return nil, fmt.Errorf("dependencies[%d] must be a string, got %T", i, d)
			}
			result = append(result, s)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("dependencies must be a list, got %T", raw)
	}
}
