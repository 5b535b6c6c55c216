package loader

import (
	"fmt"

	"dario.cat/mergo"

	"github.com/shaiso/dagfactory/internal/domain"
)

// KeyTemplate — ключ задачи с именем шаблона шага.
const KeyTemplate = "template"

// ApplyStepTemplates возвращает копию raw с применёнными шаблонами шагов.
//
// Задача получает шаблон T, если её ключ template равен T, а без этого
// ключа — если имя задачи совпадает с T. Шаблон накладывается поверх
// задачи на верхнем уровне: его ключ заменяет значение задачи целиком
// (вложенные map не сливаются), остальные ключи задачи сохраняются.
// Ключ template из задачи удаляется. raw не меняется.
func ApplyStepTemplates(raw *domain.RawConfig) (*domain.RawConfig, error) {
	result := &domain.RawConfig{
		Defaults:      raw.Defaults.Clone(),
		Workflows:     make([]domain.WorkflowConfig, 0, len(raw.Workflows)),
		StepTemplates: make(map[string]domain.Params, len(raw.StepTemplates)),
	}
	for name, tmpl := range raw.StepTemplates {
		result.StepTemplates[name] = tmpl.Clone()
	}

	for _, wf := range raw.Workflows {
		applied, err := applyToWorkflow(wf, raw.StepTemplates)
		if err != nil {
			return nil, err
		}
		result.Workflows = append(result.Workflows, applied)
	}

	return result, nil
}

func applyToWorkflow(wf domain.WorkflowConfig, templates map[string]domain.Params) (domain.WorkflowConfig, error) {
	out := domain.WorkflowConfig{
		Name:      wf.Name,
		Params:    wf.Params.Clone(),
		TaskOrder: append([]string(nil), wf.TaskOrder...),
	}

	tasks, ok := domain.AsParams(out.Params[domain.KeyTasks])
	if !ok {
		// Отсутствие или неверную форму tasks обнаружит engine.
		return out, nil
	}

	for name, rawTask := range tasks {
		task, ok := domain.AsParams(rawTask)
		if !ok {
			continue
		}

		tmplName, explicit, err := templateRef(wf.Name, name, task)
		if err != nil {
			return out, err
		}
		tmpl, found := templates[tmplName]
		if !found {
			if explicit {
				return out, fmt.Errorf("%w %q: workflow %q: task %q", ErrUnknownTemplate, tmplName, wf.Name, name)
			}
			continue
		}

		merged := map[string]any(task)
		delete(merged, KeyTemplate)
		src := map[string]any(tmpl.Clone())
		for key, value := range src {
			delete(merged, key)
			if value == nil {
				merged[key] = nil
			}
		}
		if err := mergo.Merge(&merged, src, mergo.WithOverride); err != nil {
			return out, fmt.Errorf("apply step template %q to %s.%s: %w", tmplName, wf.Name, name, err)
		}
		tasks[name] = merged
	}

	return out, nil
}

// templateRef возвращает имя шаблона для задачи и признак явной ссылки.
func templateRef(workflow, task string, params domain.Params) (string, bool, error) {
	raw, ok := params[KeyTemplate]
	if !ok || raw == nil {
		return task, false, nil
	}
	name, isString := raw.(string)
	if !isString || name == "" {
		return "", true, fmt.Errorf("%w: workflow %q: task %q: template must be a non-empty string",
			ErrInvalidDocument, workflow, task)
	}
	return name, true, nil
}
