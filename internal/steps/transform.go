package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/dagfactory/internal/graph"
)

// KindTransform — каноническое имя шага трансформации.
const KindTransform = "dagfactory.steps.TransformOperator"

// TransformOperator — шаг трансформации данных.
//
// Применяет Go templates к результатам предыдущих задач.
//
// Конфигурация:
//
//	{
//	    "mappings": {
//	        "total": "{{ len .Tasks.extract.Outputs.items }}",
//	        "day": "{{ .DS }}"
//	    }
//	}
//
// Outputs — результаты рендеринга mappings; JSON значения разбираются.
type TransformOperator struct {
	mappings map[string]string
}

type transformConfig struct {
	Mappings map[string]string `mapstructure:"mappings"`
}

// TransformDefinition возвращает определение шага трансформации для каталога.
func TransformDefinition() Definition {
	return Definition{
		Name:    KindTransform,
		Aliases: []string{"transform"},
		Factory: NewTransformOperator,
	}
}

// NewTransformOperator создаёт TransformOperator.
func NewTransformOperator(spec *Spec) (graph.Operator, error) {
	cfg := &transformConfig{}
	if err := decodeParams(KindTransform, spec.OperatorParams(), cfg); err != nil {
		return nil, err
	}
	return &TransformOperator{mappings: cfg.Mappings}, nil
}

// Kind возвращает тип шага.
func (o *TransformOperator) Kind() string {
	return KindTransform
}

// Params возвращает параметры шага.
func (o *TransformOperator) Params() map[string]any {
	mappings := make(map[string]any, len(o.mappings))
	for k, v := range o.mappings {
		mappings[k] = v
	}
	return map[string]any{"mappings": mappings}
}

// Execute рендерит каждый mapping.
func (o *TransformOperator) Execute(ctx context.Context, tc *graph.TaskContext) (map[string]any, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	outputs := make(map[string]any, len(o.mappings))
	if len(o.mappings) == 0 {
		return outputs, nil
	}

	tmplCtx := graph.NewTemplateContext("", time.Time{}, nil)
	if tc != nil && tc.Template != nil {
		tmplCtx = tc.Template
	}

	for _, key := range sortedKeys(o.mappings) {
		rendered, err := graph.Render(o.mappings[key], tmplCtx)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", key, err)
		}
		outputs[key] = parseValue(rendered)
	}

	return outputs, nil
}

// parseValue пытается распарсить строку как JSON.
// Если не получается — возвращает строку как есть.
func parseValue(value string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	switch value {
	case "true":
		return true
	case "false":
		return false
	}

	return value
}
