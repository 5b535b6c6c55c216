package steps

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
)

func newSpec(params domain.Params) *Spec {
	return &Spec{
		TaskID:   "test",
		Workflow: graph.NewWorkflow("wf", graph.WorkflowOptions{}),
		Params:   params,
	}
}

func taskContext(params map[string]any) *graph.TaskContext {
	tmpl := graph.NewTemplateContext("wf", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), params)
	return &graph.TaskContext{RunID: "run-1", Template: tmpl.ForTask("test")}
}

// Catalog Tests

func TestCatalog(t *testing.T) {
	c := NewCatalog()

	if c.Count() != 0 {
		t.Errorf("expected empty catalog")
	}

	c.Register(DelayDefinition())
	if c.Count() != 1 {
		t.Errorf("expected 1 definition, got %d", c.Count())
	}

	// Поиск по каноническому имени и по алиасу
	for _, ref := range []string{KindDelay, "delay"} {
		def, err := c.Lookup(ref)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", ref, err)
		}
		if def.Name != KindDelay {
			t.Errorf("expected %s, got %s", KindDelay, def.Name)
		}
	}

	_, err := c.Lookup("unknown")
	if !errors.Is(err, ErrStepNotFound) {
		t.Errorf("expected ErrStepNotFound, got %v", err)
	}

	c.Unregister(KindDelay)
	if c.Has(KindDelay) || c.Has("delay") {
		t.Error("name and aliases should be removed after unregister")
	}
}

func TestCatalog_RegisterOverwrites(t *testing.T) {
	c := NewCatalog()
	c.Register(Definition{Name: "x", Aliases: []string{"old"}, Factory: NewNoopOperator})
	c.Register(Definition{Name: "x", Aliases: []string{"new"}, Factory: NewNoopOperator})

	if c.Has("old") {
		t.Error("stale alias should be removed")
	}
	if !c.Has("new") || c.Count() != 1 {
		t.Error("new definition should replace old one")
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	expected := []string{KindBash, KindCallable, KindDelay, KindHTTP, KindNoop, KindTransform}
	names := c.Names()
	if len(names) != len(expected) {
		t.Fatalf("expected %d names, got %v", len(expected), names)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("names[%d] = %s, want %s", i, names[i], expected[i])
		}
	}

	aliases := map[string]string{
		"bash":                                KindBash,
		"airflow.operators.bash.BashOperator": KindBash,
		"airflow.operators.python.PythonOperator": KindCallable,
		"airflow.operators.empty.EmptyOperator":   KindNoop,
		"http":                                    KindHTTP,
	}
	for ref, kind := range aliases {
		def, err := c.Lookup(ref)
		if err != nil {
			t.Errorf("Lookup(%s): %v", ref, err)
			continue
		}
		if def.Name != kind {
			t.Errorf("Lookup(%s) = %s, want %s", ref, def.Name, kind)
		}
	}

	def, _ := c.Lookup("callable")
	if !def.Callable {
		t.Error("callable definition should be marked Callable")
	}
}

// Noop Tests

func TestNoopOperator(t *testing.T) {
	op, err := NewNoopOperator(newSpec(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.Kind() != KindNoop {
		t.Errorf("kind = %s", op.Kind())
	}

	outputs, err := op.Execute(context.Background(), nil)
	if err != nil || len(outputs) != 0 {
		t.Errorf("unexpected result: %v, %v", outputs, err)
	}

	// Лишние параметры запрещены
	_, err = NewNoopOperator(newSpec(domain.Params{"bash_command": "echo"}))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// Bash Tests

func TestBashOperator_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		params domain.Params
	}{
		{name: "missing command", params: domain.Params{}},
		{name: "blank command", params: domain.Params{"bash_command": "  "}},
		{name: "unknown key", params: domain.Params{"bash_command": "echo", "shell": "zsh"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBashOperator(newSpec(tt.params))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestBashOperator_Execute(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	op, err := NewBashOperator(newSpec(domain.Params{
		"bash_command": "echo start; echo {{ .DS }}-$STAGE",
		"env":          map[string]any{"STAGE": "prod"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outputs, err := op.Execute(context.Background(), taskContext(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["return_value"] != "2024-03-15-prod" {
		t.Errorf("return_value = %v", outputs["return_value"])
	}
	if outputs["exit_code"] != 0 {
		t.Errorf("exit_code = %v", outputs["exit_code"])
	}
}

func TestBashOperator_ExitCode(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	op, err := NewBashOperator(newSpec(domain.Params{"bash_command": "exit 3"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outputs, err := op.Execute(context.Background(), taskContext(nil))
	if !errors.Is(err, ErrStepFailed) {
		t.Errorf("expected ErrStepFailed, got %v", err)
	}
	if outputs["exit_code"] != 3 {
		t.Errorf("exit_code = %v", outputs["exit_code"])
	}
}

// Callable Tests

func TestCallableOperator(t *testing.T) {
	var got map[string]any
	fn := Callable(func(ctx context.Context, kwargs map[string]any) (map[string]any, error) {
		got = kwargs
		return map[string]any{"ok": true}, nil
	})

	op, err := NewCallableOperator(newSpec(domain.Params{
		"callable":  fn,
		"op_kwargs": map[string]any{"table": "{{ .Params.table }}"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outputs, err := op.Execute(context.Background(), taskContext(map[string]any{"table": "events"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["ok"] != true {
		t.Errorf("outputs = %v", outputs)
	}
	if got["table"] != "events" {
		t.Errorf("kwargs = %v", got)
	}

	// Функция не попадает в описание параметров
	if _, ok := op.(graph.ParamsDescriber).Params()["callable"]; ok {
		t.Error("callable must not be part of params")
	}
}

func TestCallableOperator_PlainFunc(t *testing.T) {
	fn := func(ctx context.Context, kwargs map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	}

	op, err := NewCallableOperator(newSpec(domain.Params{"callable": fn}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outputs, err := op.Execute(context.Background(), nil)
	if !errors.Is(err, ErrStepFailed) {
		t.Errorf("expected ErrStepFailed, got %v (%v)", err, outputs)
	}
}

func TestCallableOperator_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		params domain.Params
	}{
		{name: "missing callable", params: domain.Params{}},
		{name: "wrong type", params: domain.Params{"callable": "main.Run"}},
		{name: "unresolved pair", params: domain.Params{
			"callable":      Callable(func(context.Context, map[string]any) (map[string]any, error) { return nil, nil }),
			"callable_name": "Run",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCallableOperator(newSpec(tt.params))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

// Delay Tests

func TestDelayOperator_Execute(t *testing.T) {
	op, err := NewDelayOperator(newSpec(domain.Params{"duration_ms": 50}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	outputs, err := op.Execute(context.Background(), nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("delay was too short: %v", elapsed)
	}
	if outputs["duration_ms"] != int64(50) {
		t.Errorf("duration_ms = %v", outputs["duration_ms"])
	}
}

func TestDelayOperator_Durations(t *testing.T) {
	tests := []struct {
		params domain.Params
		want   time.Duration
	}{
		{params: domain.Params{"duration_sec": 2}, want: 2 * time.Second},
		{params: domain.Params{"duration_ms": 250}, want: 250 * time.Millisecond},
		{params: domain.Params{"duration": "1m30s"}, want: 90 * time.Second},
	}

	for _, tt := range tests {
		op, err := NewDelayOperator(newSpec(tt.params))
		if err != nil {
			t.Fatalf("NewDelayOperator(%v): %v", tt.params, err)
		}
		if got := op.(*DelayOperator).Duration(); got != tt.want {
			t.Errorf("duration = %v, want %v", got, tt.want)
		}
	}
}

func TestDelayOperator_Cancellation(t *testing.T) {
	op, err := NewDelayOperator(newSpec(domain.Params{"duration_sec": 1}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = op.Execute(ctx, nil)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

func TestDelayOperator_InvalidConfig(t *testing.T) {
	for _, params := range []domain.Params{{}, {"duration": "soon"}} {
		if _, err := NewDelayOperator(newSpec(params)); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("params %v: expected ErrInvalidConfig, got %v", params, err)
		}
	}
}

// HTTP Tests

func TestHTTPOperator_GET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if r.URL.Query().Get("ds") != "2024-03-15" {
			t.Errorf("expected rendered query, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	}))
	defer server.Close()

	op, err := NewHTTPOperator(newSpec(domain.Params{
		"url": server.URL + "/?ds={{ .DS }}",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outputs, err := op.Execute(context.Background(), taskContext(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["status_code"] != 200 {
		t.Errorf("expected status_code 200, got %v", outputs["status_code"])
	}
	body, ok := outputs["body"].(map[string]any)
	if !ok || body["status"] != "ok" {
		t.Errorf("unexpected body: %v", outputs["body"])
	}
}

func TestHTTPOperator_POST_JSON(t *testing.T) {
	var receivedBody map[string]any
	var receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json")
		}
		json.NewDecoder(r.Body).Decode(&receivedBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	op, err := NewHTTPOperator(newSpec(domain.Params{
		"method":  "post",
		"url":     server.URL,
		"headers": map[string]any{"Authorization": "Bearer {{ .Params.token }}"},
		"body":    map[string]any{"name": "test", "value": 42},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outputs, err := op.Execute(context.Background(), taskContext(map[string]any{"token": "secret"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["status_code"] != 201 {
		t.Errorf("expected status_code 201, got %v", outputs["status_code"])
	}
	if receivedBody["name"] != "test" {
		t.Errorf("expected name 'test', got %v", receivedBody["name"])
	}
	if receivedAuth != "Bearer secret" {
		t.Errorf("expected rendered auth header, got %s", receivedAuth)
	}
}

func TestHTTPOperator_FailOnStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	op, _ := NewHTTPOperator(newSpec(domain.Params{"url": server.URL}))
	_, err := op.Execute(context.Background(), nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected HTTPError 502, got %v", err)
	}
	if !errors.Is(err, ErrStepFailed) {
		t.Errorf("expected ErrStepFailed, got %v", err)
	}

	op, _ = NewHTTPOperator(newSpec(domain.Params{"url": server.URL, "fail_on_status": false}))
	outputs, err := op.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["status_code"] != http.StatusBadGateway {
		t.Errorf("status_code = %v", outputs["status_code"])
	}
}

func TestHTTPOperator_InvalidConfig(t *testing.T) {
	for _, params := range []domain.Params{
		{},
		{"url": "http://x", "verb": "GET"},
		{"url": "http://x", "timeout_sec": -1},
	} {
		if _, err := NewHTTPOperator(newSpec(params)); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("params %v: expected ErrInvalidConfig, got %v", params, err)
		}
	}
}

func TestHTTPOperator_Cancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	op, _ := NewHTTPOperator(newSpec(domain.Params{"url": server.URL}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := op.Execute(ctx, nil)
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
}

// Transform Tests

func TestTransformOperator_Execute(t *testing.T) {
	op, err := NewTransformOperator(newSpec(domain.Params{
		"mappings": map[string]any{
			"total":  "{{ .Tasks.extract.Outputs.count }}",
			"status": "{{ .Tasks.extract.Status }}",
			"day":    "{{ .DS }}",
		},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tc := taskContext(nil)
	tc.Template.AddTaskResult("extract", map[string]any{"count": 2}, "SUCCEEDED")

	outputs, err := op.Execute(context.Background(), tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outputs["status"] != "SUCCEEDED" {
		t.Errorf("expected status SUCCEEDED, got %v", outputs["status"])
	}
	// total парсится как int64 из "2"
	if outputs["total"] != int64(2) {
		t.Errorf("expected total 2, got %v (type %T)", outputs["total"], outputs["total"])
	}
	if outputs["day"] != "2024-03-15" {
		t.Errorf("day = %v", outputs["day"])
	}
}

func TestTransformOperator_EmptyMappings(t *testing.T) {
	op, err := NewTransformOperator(newSpec(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outputs, err := op.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outputs) != 0 {
		t.Errorf("expected empty outputs, got %v", outputs)
	}
}

func TestTransformOperator_Cancellation(t *testing.T) {
	op, _ := NewTransformOperator(newSpec(domain.Params{
		"mappings": map[string]any{"test": "value"},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := op.Execute(ctx, nil); !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{in: "42", want: int64(42)},
		{in: "1.5", want: 1.5},
		{in: "true", want: true},
		{in: "plain", want: "plain"},
	}
	for _, tt := range tests {
		if got := parseValue(tt.in); got != tt.want {
			t.Errorf("parseValue(%q) = %v (%T), want %v", tt.in, got, got, tt.want)
		}
	}
}
