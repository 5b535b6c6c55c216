package steps

import (
	"context"

	"github.com/shaiso/dagfactory/internal/graph"
)

// KindNoop — каноническое имя пустого шага.
const KindNoop = "dagfactory.steps.NoopOperator"

// NoopOperator — шаг, который ничего не делает.
// Используется для группировки зависимостей (точки сборки веток).
type NoopOperator struct{}

// NoopDefinition возвращает определение пустого шага для каталога.
func NoopDefinition() Definition {
	return Definition{
		Name: KindNoop,
		Aliases: []string{
			"noop",
			"empty",
			"airflow.operators.dummy_operator.DummyOperator",
			"airflow.operators.empty.EmptyOperator",
		},
		Factory: NewNoopOperator,
	}
}

// NewNoopOperator создаёт NoopOperator. Параметры не допускаются.
func NewNoopOperator(spec *Spec) (graph.Operator, error) {
	var cfg struct{}
	if err := decodeParams(KindNoop, spec.OperatorParams(), &cfg); err != nil {
		return nil, err
	}
	return &NoopOperator{}, nil
}

// Kind возвращает тип шага.
func (o *NoopOperator) Kind() string {
	return KindNoop
}

// Execute ничего не делает.
func (o *NoopOperator) Execute(ctx context.Context, _ *graph.TaskContext) (map[string]any, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}
