package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/shaiso/dagfactory/internal/domain"
)

// TemplateContext — контекст для рендеринга параметров задач.
//
// Доступ из шаблонов:
//   - {{ .WorkflowID }}, {{ .TaskID }}, {{ .RunID }}
//   - {{ .DS }} — логическая дата в формате 2006-01-02
//   - {{ .Params.name }} — параметры запуска
//   - {{ .Tasks.extract.Outputs.rows }} — результаты завершённых задач
//   - {{ .Env.HOME }}
type TemplateContext struct {
	WorkflowID string `json:"workflow_id"`
	TaskID     string `json:"task_id"`
	RunID      string `json:"run_id"`

	// LogicalDate — дата, за которую выполняется запуск.
	LogicalDate time.Time `json:"logical_date"`

	// DS — LogicalDate в формате 2006-01-02.
	DS string `json:"ds"`

	// Params — параметры запуска.
	Params map[string]any `json:"params"`

	// Tasks — результаты выполненных задач.
	Tasks map[string]*TaskOutputs `json:"tasks"`

	// Env — переменные окружения.
	Env map[string]string `json:"env"`
}

// TaskOutputs — результат задачи для использования в шаблонах.
type TaskOutputs struct {
	// Outputs — выходные данные задачи.
	Outputs map[string]any `json:"outputs"`

	// Status — "SUCCEEDED" или "FAILED".
	Status string `json:"status"`
}

// NewTemplateContext создаёт контекст с параметрами запуска.
func NewTemplateContext(workflowID string, logicalDate time.Time, params map[string]any) *TemplateContext {
	if params == nil {
		params = make(map[string]any)
	}
	return &TemplateContext{
		WorkflowID:  workflowID,
		LogicalDate: logicalDate,
		DS:          logicalDate.Format("2006-01-02"),
		Params:      params,
		Tasks:       make(map[string]*TaskOutputs),
		Env:         make(map[string]string),
	}
}

// ForTask возвращает копию контекста с заполненным TaskID.
// Карты разделяются с исходным контекстом.
func (c *TemplateContext) ForTask(taskID string) *TemplateContext {
	cp := *c
	cp.TaskID = taskID
	return &cp
}

// AddTaskResult добавляет результат задачи в контекст.
func (c *TemplateContext) AddTaskResult(taskID string, outputs map[string]any, status string) {
	if outputs == nil {
		outputs = make(map[string]any)
	}
	c.Tasks[taskID] = &TaskOutputs{
		Outputs: outputs,
		Status:  status,
	}
}

// SetEnv устанавливает переменную окружения.
func (c *TemplateContext) SetEnv(key, value string) {
	c.Env[key] = value
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если первый аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// coalesce — возвращает первое непустое значение
	"coalesce": func(values ...any) any {
		for _, v := range values {
			if v != nil {
				if s, ok := v.(string); ok && s == "" {
					continue
				}
				return v
			}
		}
		return nil
	},

	// fromJSON — парсит JSON строку
	"fromJSON": func(s string) any {
		var result any
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return nil
		}
		return result
	},

	// dateAdd — сдвигает дату на количество дней
	"dateAdd": func(days int, t time.Time) time.Time {
		return t.AddDate(0, 0, days)
	},

	// dateFormat — форматирует дату по Go layout
	"dateFormat": func(layout string, t time.Time) string {
		return t.Format(layout)
	},

	"join":      func(sep string, items []string) string { return strings.Join(items, sep) },
	"split":     func(sep, s string) []string { return strings.Split(s, sep) },
	"contains":  strings.Contains,
	"hasPrefix": strings.HasPrefix,
	"hasSuffix": strings.HasSuffix,
	"lower":     strings.ToLower,
	"upper":     strings.ToUpper,
	"trim":      strings.TrimSpace,
	"replace":   strings.ReplaceAll,
}

// Render рендерит строковый шаблон с контекстом.
//
//	{{ .Params.table }}
//	{{ .Tasks.extract.Outputs.rows }}
//	{{ .DS }}
func Render(tmpl string, ctx *TemplateContext) (string, error) {
	// Строки без выражений возвращаем как есть
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderValue рендерит произвольное значение.
// Рекурсивно обрабатывает map и slice.
func RenderValue(value any, ctx *TemplateContext) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case string:
		return Render(v, ctx)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case domain.Params:
		return RenderValue(map[string]any(v), ctx)

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, ctx)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	case map[string]string:
		result := make(map[string]string, len(v))
		for key, val := range v {
			rendered, err := Render(val, ctx)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []string:
		result := make([]string, len(v))
		for i, val := range v {
			rendered, err := Render(val, ctx)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	default:
		// int, float, bool, time.Time и функции возвращаем как есть
		return value, nil
	}
}

// RenderParams рендерит map параметров.
func RenderParams(params map[string]any, ctx *TemplateContext) (map[string]any, error) {
	if params == nil {
		return make(map[string]any), nil
	}

	rendered, err := RenderValue(params, ctx)
	if err != nil {
		return nil, err
	}

	result, ok := rendered.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected map, got %T", ErrTemplateRender, rendered)
	}

	return result, nil
}
