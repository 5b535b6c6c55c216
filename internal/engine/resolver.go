package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
	"github.com/shaiso/dagfactory/internal/steps"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

// Устаревшие имена параметров callable шага.
var legacyCallableKeys = map[string]string{
	"python_callable":      steps.ParamCallable,
	"python_callable_name": steps.ParamCallableName,
	"python_callable_file": steps.ParamCallableFile,
}

// CallableLoader загружает функцию по имени из файла.
type CallableLoader interface {
	Load(name, file string) (steps.Callable, error)
}

// TaskIdentity — идентичность создаваемой задачи.
type TaskIdentity struct {
	// Name — имя задачи.
	Name string

	// Workflow — workflow, в котором регистрируется задача.
	Workflow *graph.Workflow
}

// Resolver превращает ссылку на тип шага и параметры задачи в узел графа.
type Resolver struct {
	catalog *steps.Catalog
	loader  CallableLoader
	logger  *slog.Logger
}

// NewResolver создаёт Resolver.
// loader может быть nil: тогда callable шаги работают только с
// привязанной функцией.
func NewResolver(catalog *steps.Catalog, loader CallableLoader, logger *slog.Logger) *Resolver {
	return &Resolver{
		catalog: catalog,
		loader:  loader,
		logger:  telemetry.OrDefault(logger),
	}
}

// Resolve создаёт оператор и регистрирует задачу в workflow.
//
//  1. operatorRef ищется в каталоге (*UnknownOperatorError)
//  2. из копии params удаляются operator и dependencies
//  3. для callable шагов привязывается функция (*MissingCallableError)
//  4. вызывается фабрика шага (*StepConstructionError)
//
// Базовые аргументы (owner, retries, ...) остаются в параметрах фабрики
// и дополнительно сохраняются в задаче.
func (r *Resolver) Resolve(operatorRef string, id TaskIdentity, params domain.Params) (*graph.Task, error) {
	workflowID := ""
	if id.Workflow != nil {
		workflowID = id.Workflow.ID
	}

	def, err := r.catalog.Lookup(operatorRef)
	if err != nil {
		return nil, &UnknownOperatorError{
			Workflow: workflowID,
			Task:     id.Name,
			Operator: operatorRef,
			Err:      err,
		}
	}

	stepParams := domain.StripSystemParams(params)

	if def.Callable {
		if err := r.bindCallable(def, workflowID, id.Name, stepParams); err != nil {
			return nil, err
		}
	}

	constructionError := func(err error) error {
		return &StepConstructionError{
			Workflow: workflowID,
			Task:     id.Name,
			Operator: def.Name,
			Params:   map[string]any(stepParams),
			Err:      err,
		}
	}

	op, err := def.Factory(&steps.Spec{
		TaskID:   id.Name,
		Workflow: id.Workflow,
		Params:   stepParams.Clone(),
	})
	if err != nil {
		return nil, constructionError(err)
	}
	if op == nil {
		return nil, constructionError(errors.New("factory returned no operator"))
	}
	if id.Workflow == nil {
		return nil, constructionError(errors.New("task has no workflow"))
	}

	base, _ := graph.SplitTaskArgs(stepParams)
	task, err := id.Workflow.AddTask(id.Name, op, base)
	if err != nil {
		return nil, constructionError(err)
	}

	r.logger.Debug("task resolved",
		"workflow_id", workflowID,
		"task_id", id.Name,
		"operator", def.Name,
	)

	return task, nil
}

// bindCallable кладёт функцию в params[callable].
//
// Привязанная функция имеет приоритет. Иначе нужны оба ключа
// callable_name и callable_file, функция загружается через loader.
// Ключи callable_name и callable_file удаляются из params.
func (r *Resolver) bindCallable(def *steps.Definition, workflow, task string, params domain.Params) error {
	for legacy, key := range legacyCallableKeys {
		if v, ok := params[legacy]; ok {
			if _, exists := params[key]; !exists {
				params[key] = v
			}
			delete(params, legacy)
		}
	}

	name := params.String(steps.ParamCallableName)
	file := params.String(steps.ParamCallableFile)
	delete(params, steps.ParamCallableName)
	delete(params, steps.ParamCallableFile)

	if bound, ok := params[steps.ParamCallable]; ok && bound != nil {
		return nil
	}

	var missing []string
	if name == "" {
		missing = append(missing, steps.ParamCallableName)
	}
	if file == "" {
		missing = append(missing, steps.ParamCallableFile)
	}
	if len(missing) > 0 {
		return &MissingCallableError{
			Workflow: workflow,
			Task:     task,
			Operator: def.Name,
			Missing:  missing,
		}
	}

	snapshot := map[string]any(params.Clone())
	snapshot[steps.ParamCallableName] = name
	snapshot[steps.ParamCallableFile] = file

	if r.loader == nil {
		return &StepConstructionError{
			Workflow: workflow,
			Task:     task,
			Operator: def.Name,
			Params:   snapshot,
			Err:      fmt.Errorf("%w: no callable loader configured", ErrCallableLoad),
		}
	}

	fn, err := r.loader.Load(name, file)
	if err != nil {
		return &StepConstructionError{
			Workflow: workflow,
			Task:     task,
			Operator: def.Name,
			Params:   snapshot,
			Err:      fmt.Errorf("%w: %w", ErrCallableLoad, err),
		}
	}

	params[steps.ParamCallable] = fn
	return nil
}
