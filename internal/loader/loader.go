package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shaiso/dagfactory/internal/domain"
)

// Ключи верхнего уровня документа.
const (
	KeyDefaults      = "defaults"
	KeyWorkflows     = "workflows"
	KeyStepTemplates = "step-templates"
)

// Алиасы ключей верхнего уровня.
var topLevelAliases = map[string]string{
	KeyDefaults:        KeyDefaults,
	"default":          KeyDefaults,
	KeyWorkflows:       KeyWorkflows,
	"dags":             KeyWorkflows,
	KeyStepTemplates:   KeyStepTemplates,
	"step_templates":   KeyStepTemplates,
	"dag-default-args": keyDefaultArgs,
}

// keyDefaultArgs — устаревший ключ: default_args всех workflow.
const keyDefaultArgs = "dag-default-args"

// Ошибки загрузки.
var (
	// ErrEmptyDocument — пустой документ.
	ErrEmptyDocument = errors.New("configuration document is empty")

	// ErrInvalidDocument — документ имеет неверную структуру.
	ErrInvalidDocument = errors.New("invalid configuration document")

	// ErrUnknownKey — неизвестный ключ верхнего уровня.
	ErrUnknownKey = errors.New("unknown top-level key")

	// ErrDuplicateKey — ключ повторяется в одном mapping.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnknownTemplate — задача ссылается на несуществующий шаблон.
	ErrUnknownTemplate = errors.New("unknown step template")
)

// Parse разбирает документ конфигурации.
func Parse(data []byte) (*domain.RawConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidDocument, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, ErrEmptyDocument
	}

	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping (line %d)", ErrInvalidDocument, doc.Line)
	}

	raw := &domain.RawConfig{
		Defaults:      make(domain.Params),
		Workflows:     make([]domain.WorkflowConfig, 0),
		StepTemplates: make(map[string]domain.Params),
	}

	var legacyDefaultArgs domain.Params
	seen := make(map[string]bool)

	for i := 0; i+1 < len(doc.Content); i += 2 {
		keyNode, valueNode := doc.Content[i], doc.Content[i+1]

		key, ok := topLevelAliases[keyNode.Value]
		if !ok {
			return nil, fmt.Errorf("%w %q (line %d)", ErrUnknownKey, keyNode.Value, keyNode.Line)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w %q (line %d)", ErrDuplicateKey, keyNode.Value, keyNode.Line)
		}
		seen[key] = true

		var err error
		switch key {
		case KeyDefaults:
			raw.Defaults, err = decodeMapping(valueNode, keyNode.Value)
		case KeyWorkflows:
			raw.Workflows, err = decodeWorkflows(valueNode)
		case KeyStepTemplates:
			raw.StepTemplates, err = decodeTemplates(valueNode)
		case keyDefaultArgs:
			legacyDefaultArgs, err = decodeMapping(valueNode, keyNode.Value)
		}
		if err != nil {
			return nil, err
		}
	}

	if legacyDefaultArgs != nil {
		if raw.Defaults.Has(domain.KeyDefaultArgs) {
			return nil, fmt.Errorf("%w: %s conflicts with %s.%s",
				ErrInvalidDocument, keyDefaultArgs, KeyDefaults, domain.KeyDefaultArgs)
		}
		raw.Defaults[domain.KeyDefaultArgs] = map[string]any(legacyDefaultArgs)
	}

	return raw, nil
}

// ParseReader читает и разбирает документ из r.
func ParseReader(r io.Reader) (*domain.RawConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("loader: read: %w", err)
	}
	return Parse(data)
}

// LoadFile читает и разбирает документ из файла.
func LoadFile(path string) (*domain.RawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	raw, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loader: %s: %w", path, err)
	}
	return raw, nil
}

// Load читает файл и применяет шаблоны шагов.
func Load(path string) (*domain.RawConfig, error) {
	raw, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	applied, err := ApplyStepTemplates(raw)
	if err != nil {
		return nil, fmt.Errorf("loader: %s: %w", path, err)
	}
	return applied, nil
}

// decodeWorkflows разбирает mapping workflows с сохранением порядка.
func decodeWorkflows(node *yaml.Node) ([]domain.WorkflowConfig, error) {
	if isNull(node) {
		return make([]domain.WorkflowConfig, 0), nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s must be a mapping (line %d)", ErrInvalidDocument, KeyWorkflows, node.Line)
	}

	result := make([]domain.WorkflowConfig, 0, len(node.Content)/2)
	seen := make(map[string]bool)

	for i := 0; i+1 < len(node.Content); i += 2 {
		nameNode, wfNode := node.Content[i], node.Content[i+1]
		name := nameNode.Value
		if seen[name] {
			return nil, fmt.Errorf("%w: workflow %q (line %d)", ErrDuplicateKey, name, nameNode.Line)
		}
		seen[name] = true

		wf, err := decodeWorkflow(name, wfNode)
		if err != nil {
			return nil, err
		}
		result = append(result, wf)
	}

	return result, nil
}

// decodeWorkflow разбирает один workflow и запоминает порядок задач.
func decodeWorkflow(name string, node *yaml.Node) (domain.WorkflowConfig, error) {
	wf := domain.WorkflowConfig{Name: name}

	if node.Kind != yaml.MappingNode {
		return wf, fmt.Errorf("%w: workflow %q must be a mapping (line %d)", ErrInvalidDocument, name, node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != domain.KeyTasks {
			continue
		}
		order, err := taskOrder(name, node.Content[i+1])
		if err != nil {
			return wf, err
		}
		wf.TaskOrder = order
	}

	params, err := decodeMapping(node, "workflow "+name)
	if err != nil {
		return wf, err
	}
	wf.Params = params

	return wf, nil
}

// taskOrder возвращает имена задач в порядке объявления.
// Повтор имени задачи — ошибка.
func taskOrder(workflow string, node *yaml.Node) ([]string, error) {
	if node.Kind != yaml.MappingNode {
		// Форму tasks проверяет engine.
		return nil, nil
	}

	order := make([]string, 0, len(node.Content)/2)
	seen := make(map[string]bool)
	for i := 0; i+1 < len(node.Content); i += 2 {
		task := node.Content[i]
		if seen[task.Value] {
			return nil, fmt.Errorf("%w: workflow %q: task %q (line %d)", ErrDuplicateKey, workflow, task.Value, task.Line)
		}
		seen[task.Value] = true
		order = append(order, task.Value)
	}
	return order, nil
}

// decodeTemplates разбирает step-templates.
func decodeTemplates(node *yaml.Node) (map[string]domain.Params, error) {
	templates := make(map[string]domain.Params)
	if isNull(node) {
		return templates, nil
	}

	params, err := decodeMapping(node, KeyStepTemplates)
	if err != nil {
		return nil, err
	}
	for name, v := range params {
		tmpl, ok := domain.AsParams(v)
		if !ok {
			return nil, fmt.Errorf("%w: step template %q must be a mapping", ErrInvalidDocument, name)
		}
		templates[name] = tmpl
	}
	return templates, nil
}

// decodeMapping декодирует mapping в Params.
func decodeMapping(node *yaml.Node, what string) (domain.Params, error) {
	if isNull(node) {
		return make(domain.Params), nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s must be a mapping (line %d)", ErrInvalidDocument, what, node.Line)
	}

	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, what, err)
	}
	if m == nil {
		m = make(map[string]any)
	}
	return domain.Params(normalize(m).(map[string]any)), nil
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}

// normalize приводит вложенные map с нестроковыми ключами к map[string]any.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case map[any]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			result[fmt.Sprint(k)] = normalize(item)
		}
		return result
	case []any:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	default:
		return v
	}
}
