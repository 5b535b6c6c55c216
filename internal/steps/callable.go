package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
)

// KindCallable — каноническое имя шага с пользовательской функцией.
const KindCallable = "dagfactory.steps.CallableOperator"

// Ключи конфигурации callable шага.
const (
	// ParamCallable — привязанная функция (Callable).
	ParamCallable = "callable"

	// ParamCallableName — имя функции в файле.
	ParamCallableName = "callable_name"

	// ParamCallableFile — путь к файлу с функцией.
	ParamCallableFile = "callable_file"
)

// CallableOperator — шаг, вызывающий Go функцию.
//
// Функция либо передаётся напрямую (ключ callable), либо загружается
// фабрикой графов по паре callable_name + callable_file.
//
// Конфигурация:
//
//	{
//	    "callable": steps.Callable,
//	    "op_kwargs": {"table": "{{ .Params.table }}"}
//	}
type CallableOperator struct {
	fn     Callable
	params domain.Params
}

// callableConfig — параметры callable шага кроме самой функции.
type callableConfig struct {
	OpKwargs map[string]any `mapstructure:"op_kwargs"`
}

// CallableDefinition возвращает определение callable шага для каталога.
func CallableDefinition() Definition {
	return Definition{
		Name: KindCallable,
		Aliases: []string{
			"callable",
			"airflow.operators.python_operator.PythonOperator",
			"airflow.operators.python.PythonOperator",
		},
		Callable: true,
		Factory:  NewCallableOperator,
	}
}

// NewCallableOperator создаёт CallableOperator.
// Параметр callable обязателен.
func NewCallableOperator(spec *Spec) (graph.Operator, error) {
	params := spec.OperatorParams()
	if params == nil {
		params = make(domain.Params)
	}

	fn, err := AsCallable(params[ParamCallable])
	if err != nil {
		return nil, err
	}
	delete(params, ParamCallable)

	if _, err := parseCallableConfig(params); err != nil {
		return nil, err
	}

	return &CallableOperator{fn: fn, params: params}, nil
}

// AsCallable приводит значение параметра callable к Callable.
func AsCallable(v any) (Callable, error) {
	switch fn := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: %s: callable is required", ErrInvalidConfig, KindCallable)
	case Callable:
		if fn == nil {
			return nil, fmt.Errorf("%w: %s: callable is nil", ErrInvalidConfig, KindCallable)
		}
		return fn, nil
	case func(context.Context, map[string]any) (map[string]any, error):
		if fn == nil {
			return nil, fmt.Errorf("%w: %s: callable is nil", ErrInvalidConfig, KindCallable)
		}
		return fn, nil
	default:
		return nil, fmt.Errorf("%w: %s: callable has unsupported type %T", ErrInvalidConfig, KindCallable, v)
	}
}

func parseCallableConfig(params map[string]any) (*callableConfig, error) {
	cfg := &callableConfig{}
	if err := decodeParams(KindCallable, params, cfg); err != nil {
		return nil, err
	}
	if cfg.OpKwargs == nil {
		cfg.OpKwargs = make(map[string]any)
	}
	return cfg, nil
}

// Kind возвращает тип шага.
func (o *CallableOperator) Kind() string {
	return KindCallable
}

// Params возвращает параметры шага (без функции).
func (o *CallableOperator) Params() map[string]any {
	return describe(o.params)
}

// Execute рендерит op_kwargs и вызывает функцию.
func (o *CallableOperator) Execute(ctx context.Context, tc *graph.TaskContext) (map[string]any, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	rendered, err := renderParams(o.params, tc)
	if err != nil {
		return nil, err
	}
	cfg, err := parseCallableConfig(rendered)
	if err != nil {
		return nil, err
	}

	outputs, err := o.fn(ctx, cfg.OpKwargs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStepFailed, err)
	}
	if outputs == nil {
		outputs = make(map[string]any)
	}
	return outputs, nil
}
