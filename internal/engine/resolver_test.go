package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
	"github.com/shaiso/dagfactory/internal/steps"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

// recorder запоминает Spec, с которыми вызывалась фабрика шага.
type recorder struct {
	specs []*steps.Spec
	err   error
}

func (r *recorder) definition(name string) steps.Definition {
	return steps.Definition{
		Name: name,
		Factory: func(spec *steps.Spec) (graph.Operator, error) {
			r.specs = append(r.specs, spec)
			if r.err != nil {
				return nil, r.err
			}
			return &steps.NoopOperator{}, nil
		},
	}
}

// stubLoader — CallableLoader для тестов.
type stubLoader struct {
	fn    steps.Callable
	err   error
	calls []string
}

func (l *stubLoader) Load(name, file string) (steps.Callable, error) {
	l.calls = append(l.calls, name+"@"+file)
	if l.err != nil {
		return nil, l.err
	}
	return l.fn, nil
}

func echoCallable(_ context.Context, kwargs map[string]any) (map[string]any, error) {
	return map[string]any{"echo": kwargs["value"]}, nil
}

func newTestResolver(loader CallableLoader, defs ...steps.Definition) *Resolver {
	catalog := steps.DefaultCatalog()
	for _, def := range defs {
		catalog.Register(def)
	}
	return NewResolver(catalog, loader, telemetry.Discard())
}

func newTestWorkflow() *graph.Workflow {
	return graph.NewWorkflow("wf", graph.WorkflowOptions{})
}

func TestResolver_StripsReservedKeys(t *testing.T) {
	rec := &recorder{}
	resolver := newTestResolver(nil, rec.definition("x.y.Step"))
	wf := newTestWorkflow()

	params := domain.Params{
		"operator":     "x.y.Step",
		"dependencies": []any{"t1"},
		"retries":      2,
	}
	task, err := resolver.Resolve("x.y.Step", TaskIdentity{Name: "t2", Workflow: wf}, params)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(rec.specs) != 1 {
		t.Fatalf("factory called %d times, want 1", len(rec.specs))
	}
	spec := rec.specs[0]
	if !reflect.DeepEqual(spec.Params, domain.Params{"retries": 2}) {
		t.Errorf("constructor params = %v, want {retries: 2}", spec.Params)
	}
	if spec.TaskID != "t2" || spec.Workflow != wf {
		t.Errorf("identity = %q/%p, want t2/%p", spec.TaskID, spec.Workflow, wf)
	}

	if wf.Task("t2") != task {
		t.Error("task not registered in workflow")
	}
	if task.Retries() != 2 {
		t.Errorf("Retries() = %d, want 2", task.Retries())
	}
	if _, ok := params["operator"]; !ok {
		t.Error("input params were mutated")
	}
}

func TestResolver_UnknownOperator(t *testing.T) {
	resolver := newTestResolver(nil)
	wf := newTestWorkflow()

	_, err := resolver.Resolve("x.y.Missing", TaskIdentity{Name: "a", Workflow: wf}, domain.Params{"operator": "x.y.Missing"})

	var opErr *UnknownOperatorError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected UnknownOperatorError, got %T: %v", err, err)
	}
	if opErr.Workflow != "wf" || opErr.Task != "a" || opErr.Operator != "x.y.Missing" {
		t.Errorf("unexpected fields: %+v", opErr)
	}
	if !errors.Is(err, steps.ErrStepNotFound) {
		t.Errorf("expected ErrStepNotFound, got %v", err)
	}
	if wf.Size() != 0 {
		t.Errorf("workflow has %d tasks, want 0", wf.Size())
	}
}

func TestResolver_MissingCallable(t *testing.T) {
	tests := []struct {
		name        string
		params      domain.Params
		wantMissing []string
	}{
		{
			name:        "nothing",
			params:      domain.Params{"operator": "callable"},
			wantMissing: []string{"callable_name", "callable_file"},
		},
		{
			name:        "only name",
			params:      domain.Params{"callable_name": "Extract"},
			wantMissing: []string{"callable_file"},
		},
		{
			name:        "only file",
			params:      domain.Params{"callable_file": "extract.go"},
			wantMissing: []string{"callable_name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &stubLoader{fn: echoCallable}
			resolver := newTestResolver(loader)

			_, err := resolver.Resolve("callable", TaskIdentity{Name: "a", Workflow: newTestWorkflow()}, tt.params)

			var missErr *MissingCallableError
			if !errors.As(err, &missErr) {
				t.Fatalf("expected MissingCallableError, got %T: %v", err, err)
			}
			if !reflect.DeepEqual(missErr.Missing, tt.wantMissing) {
				t.Errorf("Missing = %v, want %v", missErr.Missing, tt.wantMissing)
			}
			if missErr.Operator != steps.KindCallable {
				t.Errorf("Operator = %q", missErr.Operator)
			}
			if len(loader.calls) != 0 {
				t.Errorf("loader called: %v", loader.calls)
			}
		})
	}
}

func TestResolver_BoundCallable(t *testing.T) {
	loader := &stubLoader{}
	resolver := newTestResolver(loader)

	params := domain.Params{
		"operator":  "callable",
		"callable":  steps.Callable(echoCallable),
		"op_kwargs": map[string]any{"value": "hi"},
	}
	task, err := resolver.Resolve("callable", TaskIdentity{Name: "a", Workflow: newTestWorkflow()}, params)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(loader.calls) != 0 {
		t.Errorf("loader called for bound callable: %v", loader.calls)
	}

	outputs, err := task.Operator().Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if outputs["echo"] != "hi" {
		t.Errorf("outputs = %v", outputs)
	}
}

func TestResolver_LoadedCallable(t *testing.T) {
	tests := []struct {
		name   string
		params domain.Params
	}{
		{
			name: "callable keys",
			params: domain.Params{
				"callable_name": "Echo",
				"callable_file": "funcs.go",
				"op_kwargs":     map[string]any{"value": 1},
			},
		},
		{
			name: "legacy keys",
			params: domain.Params{
				"python_callable_name": "Echo",
				"python_callable_file": "funcs.go",
				"op_kwargs":            map[string]any{"value": 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &stubLoader{fn: echoCallable}
			resolver := newTestResolver(loader)

			task, err := resolver.Resolve(
				"airflow.operators.python_operator.PythonOperator",
				TaskIdentity{Name: "a", Workflow: newTestWorkflow()},
				tt.params,
			)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if !reflect.DeepEqual(loader.calls, []string{"Echo@funcs.go"}) {
				t.Errorf("loader calls = %v", loader.calls)
			}

			outputs, err := task.Operator().Execute(context.Background(), nil)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if outputs["echo"] != 1 {
				t.Errorf("outputs = %v", outputs)
			}
		})
	}
}

func TestResolver_CallableLoadError(t *testing.T) {
	loadErr := errors.New("no such symbol")
	resolver := newTestResolver(&stubLoader{err: loadErr})

	_, err := resolver.Resolve("callable", TaskIdentity{Name: "a", Workflow: newTestWorkflow()}, domain.Params{
		"callable_name": "Echo",
		"callable_file": "funcs.go",
	})

	var stepErr *StepConstructionError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepConstructionError, got %T: %v", err, err)
	}
	if !errors.Is(err, ErrCallableLoad) || !errors.Is(err, loadErr) {
		t.Errorf("expected ErrCallableLoad wrapping load error, got %v", err)
	}
	if stepErr.Params["callable_name"] != "Echo" {
		t.Errorf("snapshot = %v", stepErr.Params)
	}
}

func TestResolver_CallableWithoutLoader(t *testing.T) {
	resolver := newTestResolver(nil)

	_, err := resolver.Resolve("callable", TaskIdentity{Name: "a", Workflow: newTestWorkflow()}, domain.Params{
		"callable_name": "Echo",
		"callable_file": "funcs.go",
	})
	if !errors.Is(err, ErrCallableLoad) {
		t.Errorf("expected ErrCallableLoad, got %v", err)
	}
}

func TestResolver_ConstructionError(t *testing.T) {
	errBadParam := errors.New("bad param")
	rec := &recorder{err: errBadParam}
	resolver := newTestResolver(nil, rec.definition("x.y.Broken"))
	wf := newTestWorkflow()

	_, err := resolver.Resolve("x.y.Broken", TaskIdentity{Name: "a", Workflow: wf}, domain.Params{
		"operator":     "x.y.Broken",
		"dependencies": []any{},
		"size":         3,
	})

	var stepErr *StepConstructionError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepConstructionError, got %T: %v", err, err)
	}
	if stepErr.Operator != "x.y.Broken" || stepErr.Task != "a" || stepErr.Workflow != "wf" {
		t.Errorf("unexpected fields: %+v", stepErr)
	}
	if !reflect.DeepEqual(stepErr.Params, map[string]any{"size": 3}) {
		t.Errorf("Params = %v, want {size: 3}", stepErr.Params)
	}
	if !errors.Is(err, errBadParam) {
		t.Errorf("cause not wrapped: %v", err)
	}
	if wf.Size() != 0 {
		t.Errorf("workflow has %d tasks, want 0", wf.Size())
	}
}

func TestResolver_OperatorRejectsUnknownParam(t *testing.T) {
	resolver := newTestResolver(nil)

	_, err := resolver.Resolve("noop", TaskIdentity{Name: "a", Workflow: newTestWorkflow()}, domain.Params{"bogus": 1})

	var stepErr *StepConstructionError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepConstructionError, got %T: %v", err, err)
	}
	if stepErr.Operator != steps.KindNoop {
		t.Errorf("Operator = %q, want canonical name", stepErr.Operator)
	}
	if !errors.Is(err, steps.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestResolver_DuplicateTask(t *testing.T) {
	resolver := newTestResolver(nil)
	wf := newTestWorkflow()
	id := TaskIdentity{Name: "a", Workflow: wf}

	if _, err := resolver.Resolve("noop", id, domain.Params{}); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	_, err := resolver.Resolve("noop", id, domain.Params{})
	if !errors.Is(err, graph.ErrDuplicateTask) {
		t.Errorf("expected ErrDuplicateTask, got %v", err)
	}
}
