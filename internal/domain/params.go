package domain

import (
	"math"
	"sort"

	"github.com/mohae/deepcopy"
)

// Зарезервированные ключи задачи.
const (
	// ParamOperator — символическая ссылка на тип шага.
	ParamOperator = "operator"

	// ParamDependencies — список задач, после которых выполняется задача.
	ParamDependencies = "dependencies"
)

// SystemParams — параметры, которые использует только фабрика графов.
// В конструктор шага они не передаются.
var SystemParams = []string{ParamOperator, ParamDependencies}

// IsSystemParam проверяет, зарезервирован ли ключ.
func IsSystemParam(key string) bool {
	for _, p := range SystemParams {
		if p == key {
			return true
		}
	}
	return false
}

// Params — набор параметров без схемы (ключ → произвольное значение).
//
// Значения приходят из YAML/JSON: string, int, float64, bool, time.Time,
// []any и вложенные Params / map[string]any.
type Params map[string]any

// Clone возвращает глубокую копию параметров.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	copied, ok := deepcopy.Copy(map[string]any(p)).(map[string]any)
	if !ok {
		return nil
	}
	return Params(copied)
}

// Has проверяет наличие ключа.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String извлекает строковое значение.
func (p Params) String(key string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Int извлекает целое значение. Второй результат false, если значения нет,
// оно не числовое или не представимо как int.
func (p Params) Int(key string) (int, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		// Дробные, NaN и не влезающие в int значения не считаются целыми.
		if n != math.Trunc(n) || n < math.MinInt || n >= -math.MinInt {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// Bool извлекает булево значение.
func (p Params) Bool(key string, defaultVal bool) bool {
	if v, ok := p[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// Map извлекает вложенную map.
func (p Params) Map(key string) Params {
	if v, ok := p[key]; ok {
		if m, ok := AsParams(v); ok {
			return m
		}
	}
	return nil
}

// Keys возвращает отсортированный список ключей.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsParams приводит значение к Params, если это mapping.
func AsParams(v any) (Params, bool) {
	switch m := v.(type) {
	case Params:
		return m, true
	case map[string]any:
		return Params(m), true
	}
	return nil, false
}

// StripSystemParams возвращает копию параметров без зарезервированных ключей.
func StripSystemParams(params Params) Params {
	result := make(Params, len(params))
	for k, v := range params {
		if IsSystemParam(k) {
			continue
		}
		result[k] = v
	}
	return result
}
