package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/shaiso/dagfactory/internal/domain"
)

// stubOperator — оператор для тестов графа.
type stubOperator struct {
	kind    string
	outputs map[string]any
	err     error
	calls   int
	run     func(ctx context.Context, tc *TaskContext) (map[string]any, error)
}

func (s *stubOperator) Kind() string {
	if s.kind == "" {
		return "stub"
	}
	return s.kind
}

func (s *stubOperator) Execute(ctx context.Context, tc *TaskContext) (map[string]any, error) {
	s.calls++
	if s.run != nil {
		return s.run(ctx, tc)
	}
	return s.outputs, s.err
}

func mustAddTask(t *testing.T, w *Workflow, id string) *Task {
	t.Helper()
	task, err := w.AddTask(id, &stubOperator{}, nil)
	if err != nil {
		t.Fatalf("AddTask(%s): %v", id, err)
	}
	return task
}

func taskIDs(tasks []*Task) []string {
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWorkflow_AddTask(t *testing.T) {
	w := NewWorkflow("etl", WorkflowOptions{})

	task := mustAddTask(t, w, "extract")
	if task.Workflow() != w {
		t.Error("task should belong to workflow")
	}
	if w.Size() != 1 {
		t.Errorf("expected 1 task, got %d", w.Size())
	}
	if w.Task("extract") != task {
		t.Error("Task(extract) should return registered task")
	}
	if w.Task("missing") != nil {
		t.Error("Task(missing) should be nil")
	}
}

func TestWorkflow_AddTask_Errors(t *testing.T) {
	w := NewWorkflow("etl", WorkflowOptions{})
	mustAddTask(t, w, "extract")

	tests := []struct {
		name    string
		id      string
		args    domain.Params
		wantErr error
	}{
		{name: "duplicate", id: "extract", wantErr: ErrDuplicateTask},
		{name: "empty id", id: "", wantErr: ErrEmptyTaskID},
		{name: "negative retries", id: "a", args: domain.Params{"retries": -1}, wantErr: ErrInvalidTaskArg},
		{name: "string retries", id: "b", args: domain.Params{"retries": "many"}, wantErr: ErrInvalidTaskArg},
		{name: "bad trigger rule", id: "c", args: domain.Params{"trigger_rule": "sometimes"}, wantErr: ErrInvalidTaskArg},
		{name: "bad timeout", id: "d", args: domain.Params{"execution_timeout": "forever"}, wantErr: ErrInvalidTaskArg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.AddTask(tt.id, &stubOperator{}, tt.args)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if w.Size() != 1 {
		t.Errorf("failed AddTask must not register tasks, got %d", w.Size())
	}
}

func TestWorkflow_Link(t *testing.T) {
	w := NewWorkflow("etl", WorkflowOptions{})
	a := mustAddTask(t, w, "a")
	b := mustAddTask(t, w, "b")
	c := mustAddTask(t, w, "c")

	if err := b.SetUpstream(a); err != nil {
		t.Fatalf("SetUpstream: %v", err)
	}
	if err := a.SetDownstream(c); err != nil {
		t.Fatalf("SetDownstream: %v", err)
	}
	// Повторное ребро не задваивается
	if err := b.SetUpstream(a); err != nil {
		t.Fatalf("SetUpstream (repeat): %v", err)
	}

	if got := b.UpstreamIDs(); !equalStrings(got, []string{"a"}) {
		t.Errorf("b upstream = %v", got)
	}
	if got := taskIDs(a.Downstream()); !equalStrings(got, []string{"b", "c"}) {
		t.Errorf("a downstream = %v", got)
	}

	edges := w.Edges()
	want := []Edge{{From: "a", To: "b"}, {From: "a", To: "c"}}
	if len(edges) != len(want) {
		t.Fatalf("expected %d edges, got %v", len(want), edges)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Errorf("edge %d = %v, want %v", i, edges[i], want[i])
		}
	}
}

func TestWorkflow_Link_Errors(t *testing.T) {
	w := NewWorkflow("etl", WorkflowOptions{})
	a := mustAddTask(t, w, "a")

	other := NewWorkflow("other", WorkflowOptions{})
	foreign := mustAddTask(t, other, "x")

	if err := a.SetUpstream(a); !errors.Is(err, ErrSelfDependency) {
		t.Errorf("expected ErrSelfDependency, got %v", err)
	}
	if err := a.SetUpstream(foreign); !errors.Is(err, ErrForeignTask) {
		t.Errorf("expected ErrForeignTask, got %v", err)
	}
}

func TestWorkflow_RootsAndLeaves(t *testing.T) {
	// a → c, b → c, c → d
	w := NewWorkflow("etl", WorkflowOptions{})
	a := mustAddTask(t, w, "a")
	b := mustAddTask(t, w, "b")
	c := mustAddTask(t, w, "c")
	d := mustAddTask(t, w, "d")
	_ = c.SetUpstream(a, b)
	_ = d.SetUpstream(c)

	if got := taskIDs(w.Roots()); !equalStrings(got, []string{"a", "b"}) {
		t.Errorf("roots = %v", got)
	}
	if got := taskIDs(w.Leaves()); !equalStrings(got, []string{"d"}) {
		t.Errorf("leaves = %v", got)
	}
}

func TestWorkflow_TopologicalOrder(t *testing.T) {
	// Задачи объявлены в "неудобном" порядке: load зависит от transform
	w := NewWorkflow("etl", WorkflowOptions{})
	load := mustAddTask(t, w, "load")
	extract := mustAddTask(t, w, "extract")
	transform := mustAddTask(t, w, "transform")
	_ = transform.SetUpstream(extract)
	_ = load.SetUpstream(transform)

	order, err := w.TopologicalOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := taskIDs(order); !equalStrings(got, []string{"extract", "transform", "load"}) {
		t.Errorf("order = %v", got)
	}

	// Tasks() сохраняет порядок объявления
	if got := taskIDs(w.Tasks()); !equalStrings(got, []string{"load", "extract", "transform"}) {
		t.Errorf("declared order = %v", got)
	}
}

func TestWorkflow_TopologicalOrder_Cycle(t *testing.T) {
	w := NewWorkflow("etl", WorkflowOptions{})
	a := mustAddTask(t, w, "a")
	b := mustAddTask(t, w, "b")
	c := mustAddTask(t, w, "c")
	_ = b.SetUpstream(a)
	_ = c.SetUpstream(b)
	_ = a.SetUpstream(c)

	if _, err := w.TopologicalOrder(); !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
	if err := w.Validate(); !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("Validate: expected ErrCyclicDependency, got %v", err)
	}
}

func TestTask_Args(t *testing.T) {
	w := NewWorkflow("etl", WorkflowOptions{
		DefaultArgs: domain.Params{"owner": "data", "retries": 1},
	})
	task, err := w.AddTask("a", &stubOperator{}, domain.Params{"retries": 3, "execution_timeout": "90s"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	if task.Owner() != "data" {
		t.Errorf("owner = %q, want data", task.Owner())
	}
	if task.Retries() != 3 {
		t.Errorf("retries = %d, want 3", task.Retries())
	}
	if task.ExecutionTimeout().Seconds() != 90 {
		t.Errorf("execution_timeout = %v", task.ExecutionTimeout())
	}

	// Args возвращает копию
	task.Args()["owner"] = "changed"
	if task.Owner() != "data" {
		t.Error("Args() must return a copy")
	}
}

func TestSplitTaskArgs(t *testing.T) {
	params := domain.Params{"owner": "x", "retries": 2, "bash_command": "echo"}
	base, rest := SplitTaskArgs(params)

	if len(base) != 2 || base["owner"] != "x" || base["retries"] != 2 {
		t.Errorf("base = %v", base)
	}
	if len(rest) != 1 || rest["bash_command"] != "echo" {
		t.Errorf("rest = %v", rest)
	}
	if len(params) != 3 {
		t.Error("input must not be modified")
	}
}

func TestParseArgDuration(t *testing.T) {
	tests := []struct {
		value   any
		seconds float64
		wantErr bool
	}{
		{value: 30, seconds: 30},
		{value: int64(5), seconds: 5},
		{value: 1.5, seconds: 1.5},
		{value: "120", seconds: 120},
		{value: "2m", seconds: 120},
		{value: "soon", wantErr: true},
		{value: true, wantErr: true},
	}

	for _, tt := range tests {
		d, err := ParseArgDuration(tt.value)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseArgDuration(%v): expected error", tt.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseArgDuration(%v): %v", tt.value, err)
			continue
		}
		if d.Seconds() != tt.seconds {
			t.Errorf("ParseArgDuration(%v) = %v, want %vs", tt.value, d, tt.seconds)
		}
	}
}

func TestWorkflow_SnapshotAndChecksum(t *testing.T) {
	build := func(desc string) *Workflow {
		w := NewWorkflow("etl", WorkflowOptions{
			Schedule:    "@daily",
			Description: desc,
			DefaultArgs: domain.Params{"owner": "data"},
		})
		a, _ := w.AddTask("a", &stubOperator{kind: "noop"}, nil)
		b, _ := w.AddTask("b", &stubOperator{kind: "noop"}, domain.Params{"retries": 2})
		_ = b.SetUpstream(a)
		return w
	}

	snap := build("first").Snapshot()
	if snap.ID != "etl" || snap.Schedule != "@daily" {
		t.Errorf("unexpected snapshot header: %+v", snap)
	}
	if len(snap.Tasks) != 2 || snap.Tasks[1].ID != "b" {
		t.Fatalf("unexpected tasks: %+v", snap.Tasks)
	}
	if !equalStrings(snap.Tasks[1].Upstream, []string{"a"}) {
		t.Errorf("b upstream = %v", snap.Tasks[1].Upstream)
	}
	if snap.Tasks[0].Operator != "noop" {
		t.Errorf("operator = %q", snap.Tasks[0].Operator)
	}

	sum1, err := build("first").Checksum()
	if err != nil {
		t.Fatalf("Checksum: %v", err)
	}
	sum2, _ := build("first").Checksum()
	sum3, _ := build("second").Checksum()

	if sum1 != sum2 {
		t.Error("identical workflows must have identical checksums")
	}
	if sum1 == sum3 {
		t.Error("different workflows must have different checksums")
	}
}

func TestSnapshot_NonSerializableValues(t *testing.T) {
	w := NewWorkflow("etl", WorkflowOptions{
		DefaultArgs: domain.Params{"on_failure": func() {}},
	})
	mustAddTask(t, w, "a")

	if _, err := w.Checksum(); err != nil {
		t.Fatalf("Checksum with func value: %v", err)
	}
}
