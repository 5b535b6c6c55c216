package engine

import (
	"fmt"
	"strings"

	"github.com/shaiso/dagfactory/internal/domain"
)

// ValidateWorkflow проверяет структуру задач workflow до создания узлов.
//
// Проверяется:
//   - есть хотя бы одна задача, имена задач уникальны и не пусты
//   - у каждой задачи непустой строковый operator
//   - dependencies — список строк без повторов и ссылок на себя
//   - каждая зависимость ссылается на существующую задачу
//
// Висячая ссылка возвращается как *UnknownDependencyError,
// остальные ошибки как *ConfigError.
func ValidateWorkflow(wf *domain.ResolvedWorkflow) error {
	if len(wf.Tasks) == 0 {
		return NewConfigError(wf.ID, domain.KeyTasks, nil, ErrNoTasks)
	}

	names := make(map[string]bool, len(wf.Tasks))
	for _, task := range wf.Tasks {
		if strings.TrimSpace(task.Name) == "" {
			return NewConfigError(wf.ID, domain.KeyTasks, nil, fmt.Errorf("%w: empty task name", ErrInvalidTaskConfig))
		}
		if names[task.Name] {
			return NewConfigError(wf.ID, taskKey(task.Name, ""), nil, ErrDuplicateTask)
		}
		names[task.Name] = true
	}

	for i := range wf.Tasks {
		if err := validateTask(wf.ID, &wf.Tasks[i]); err != nil {
			return err
		}
	}

	return checkDependencies(wf.ID, wf.Tasks, names)
}

// validateTask проверяет operator и форму dependencies одной задачи.
func validateTask(workflow string, task *domain.TaskConfig) error {
	raw, ok := task.Params[domain.ParamOperator]
	if !ok || raw == nil {
		return NewConfigError(workflow, taskKey(task.Name, domain.ParamOperator), nil, ErrMissingOperator)
	}
	op, isString := raw.(string)
	if !isString || strings.TrimSpace(op) == "" {
		return NewConfigError(workflow, taskKey(task.Name, domain.ParamOperator), raw, ErrMissingOperator)
	}

	deps, err := task.Dependencies()
	if err != nil {
		return NewConfigError(workflow, taskKey(task.Name, domain.ParamDependencies),
			task.Params[domain.ParamDependencies], fmt.Errorf("%w: %v", ErrInvalidDependencies, err))
	}

	seen := make(map[string]bool, len(deps))
	for _, dep := range deps {
		if dep == task.Name {
			return NewConfigError(workflow, taskKey(task.Name, domain.ParamDependencies), dep, ErrSelfDependency)
		}
		if seen[dep] {
			return NewConfigError(workflow, taskKey(task.Name, domain.ParamDependencies), dep,
				fmt.Errorf("%w: %s listed twice", ErrInvalidDependencies, dep))
		}
		seen[dep] = true
	}

	return nil
}

// checkDependencies ищет ссылки на несуществующие задачи.
func checkDependencies(workflow string, tasks []domain.TaskConfig, names map[string]bool) error {
	for i := range tasks {
		deps, err := tasks[i].Dependencies()
		if err != nil {
			return NewConfigError(workflow, taskKey(tasks[i].Name, domain.ParamDependencies), nil,
				fmt.Errorf("%w: %v", ErrInvalidDependencies, err))
		}
		for _, dep := range deps {
			if !names[dep] {
				return &UnknownDependencyError{Workflow: workflow, Task: tasks[i].Name, Dependency: dep}
			}
		}
	}
	return nil
}

// taskKey формирует путь ключа задачи для ConfigError.
func taskKey(task, key string) string {
	if key == "" {
		return domain.KeyTasks + "." + task
	}
	return domain.KeyTasks + "." + task + "." + key
}
