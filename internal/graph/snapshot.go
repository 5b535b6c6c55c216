package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/shaiso/dagfactory/internal/domain"
)

// Snapshot — сериализуемое описание workflow.
//
// Используется для регистрации в хранилище, API и вывода CLI.
// Одинаковые графы дают одинаковый JSON.
type Snapshot struct {
	ID            string         `json:"id"`
	Schedule      string         `json:"schedule,omitempty"`
	Description   string         `json:"description,omitempty"`
	MaxActiveRuns int            `json:"max_active_runs"`
	StartDate     time.Time      `json:"start_date"`
	Timezone      string         `json:"timezone,omitempty"`
	DefaultArgs   map[string]any `json:"default_args,omitempty"`
	Tasks         []TaskSnapshot `json:"tasks"`
	Edges         []Edge         `json:"edges"`
}

// TaskSnapshot — описание задачи в снимке.
type TaskSnapshot struct {
	ID       string         `json:"id"`
	Operator string         `json:"operator"`
	Upstream []string       `json:"upstream,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// Snapshot строит снимок графа.
func (w *Workflow) Snapshot() Snapshot {
	snap := Snapshot{
		ID:            w.ID,
		Schedule:      w.Schedule,
		Description:   w.Description,
		MaxActiveRuns: w.MaxActiveRuns,
		StartDate:     w.StartDate,
		Timezone:      w.Timezone,
		DefaultArgs:   jsonSafeMap(w.DefaultArgs),
		Tasks:         make([]TaskSnapshot, 0, len(w.order)),
		Edges:         w.Edges(),
	}

	for _, task := range w.Tasks() {
		ts := TaskSnapshot{
			ID:       task.ID,
			Upstream: task.UpstreamIDs(),
			Args:     jsonSafeMap(task.args),
		}
		if task.operator != nil {
			ts.Operator = task.operator.Kind()
			if d, ok := task.operator.(ParamsDescriber); ok {
				ts.Params = jsonSafeMap(d.Params())
			}
		}
		snap.Tasks = append(snap.Tasks, ts)
	}

	return snap
}

// Checksum возвращает sha256 от JSON снимка.
func (w *Workflow) Checksum() (string, error) {
	_, sum, err := w.Snapshot().Encode()
	return sum, err
}

// Encode возвращает JSON снимка и его sha256 в hex.
func (s Snapshot) Encode() ([]byte, string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, "", fmt.Errorf("marshal snapshot: %w", err)
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// jsonSafeMap копирует map, заменяя несериализуемые значения (функции,
// каналы) их текстовым описанием.
func jsonSafeMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = jsonSafe(v)
	}
	return result
}

func jsonSafe(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return jsonSafeMap(val)
	case domain.Params:
		return jsonSafeMap(val)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = jsonSafe(item)
		}
		return result
	case time.Duration:
		return val.String()
	}

	switch reflect.TypeOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("<%T>", v)
	}
	return v
}
