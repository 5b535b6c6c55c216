package steps

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
)

// Ошибки шагов.
var (
	// ErrStepNotFound — тип шага не найден в каталоге.
	ErrStepNotFound = errors.New("step type not found")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")

	// ErrStepFailed — шаг выполнился, но завершился неуспешно.
	ErrStepFailed = errors.New("step execution failed")
)

// Callable — функция, которую вызывает CallableOperator.
//
// kwargs — отрендеренные op_kwargs задачи; результат становится outputs.
type Callable func(ctx context.Context, kwargs map[string]any) (map[string]any, error)

// Spec — всё, что нужно фабрике для создания оператора.
type Spec struct {
	// TaskID — имя задачи.
	TaskID string

	// Workflow — workflow, которому будет принадлежать задача.
	Workflow *graph.Workflow

	// Params — параметры задачи без системных ключей (operator, dependencies).
	// Базовые аргументы (owner, retries, ...) тоже здесь.
	Params domain.Params
}

// OperatorParams возвращает параметры без базовых аргументов задачи.
func (s *Spec) OperatorParams() domain.Params {
	_, rest := graph.SplitTaskArgs(s.Params)
	return rest
}

// Factory создаёт оператор из параметров задачи.
// Ошибки конфигурации оборачивают ErrInvalidConfig.
type Factory func(spec *Spec) (graph.Operator, error)

// Definition — описание типа шага в каталоге.
type Definition struct {
	// Name — каноническое имя, например dagfactory.steps.BashOperator.
	Name string

	// Aliases — дополнительные имена для ссылки из конфигурации.
	Aliases []string

	// Callable — тип шага вызывает пользовательскую функцию
	// (параметры callable или callable_name + callable_file).
	Callable bool

	// Factory — конструктор оператора.
	Factory Factory
}

// Refs возвращает каноническое имя и все алиасы.
func (d *Definition) Refs() []string {
	refs := make([]string, 0, len(d.Aliases)+1)
	refs = append(refs, d.Name)
	refs = append(refs, d.Aliases...)
	return refs
}

// decodeParams раскладывает параметры в структуру конфигурации.
// Неизвестные ключи считаются ошибкой.
func decodeParams(kind string, params map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, kind, err)
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, kind, err)
	}
	return nil
}

// renderParams рендерит параметры оператора с контекстом задачи.
func renderParams(params domain.Params, tc *graph.TaskContext) (map[string]any, error) {
	if tc == nil || tc.Template == nil {
		return map[string]any(params.Clone()), nil
	}
	return graph.RenderParams(map[string]any(params), tc.Template)
}

// checkContext возвращает ErrStepCancelled, если контекст уже отменён.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	default:
		return nil
	}
}

// describe возвращает параметры для снимка графа.
func describe(params domain.Params) map[string]any {
	return map[string]any(params.Clone())
}

// sortedKeys возвращает ключи map в отсортированном порядке.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
