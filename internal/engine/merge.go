package engine

import (
	"fmt"
	"reflect"

	"github.com/mohae/deepcopy"
	"github.com/shaiso/dagfactory/internal/domain"
)

// Merge выполняет рекурсивное слияние specific поверх general.
//
// Для каждого ключа specific: если оба значения mapping, они сливаются
// рекурсивно, иначе побеждает значение из specific. Ключи, которые есть
// только в general, переносятся без изменений. Входные map не меняются.
func Merge(specific, general domain.Params) (domain.Params, error) {
	s, err := copyParams(specific)
	if err != nil {
		return nil, err
	}
	g, err := copyParams(general)
	if err != nil {
		return nil, err
	}
	return domain.Params(mergeMaps(s, g)), nil
}

func mergeMaps(specific, general map[string]any) map[string]any {
	result := make(map[string]any, len(specific)+len(general))
	for k, v := range general {
		result[k] = v
	}

	for k, sv := range specific {
		gv, exists := result[k]
		if !exists {
			result[k] = sv
			continue
		}

		sm, sIsMap := domain.AsParams(sv)
		gm, gIsMap := domain.AsParams(gv)
		if sIsMap && gIsMap {
			result[k] = mergeMaps(sm, gm)
			continue
		}
		result[k] = sv
	}

	return result
}

// copyParams возвращает глубокую копию параметров.
func copyParams(p domain.Params) (map[string]any, error) {
	if p == nil {
		return map[string]any{}, nil
	}
	copied, ok := deepcopy.Copy(map[string]any(p)).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected copy result", ErrMergeFailed)
	}
	return copied, nil
}

func isFunc(v any) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Func
}
