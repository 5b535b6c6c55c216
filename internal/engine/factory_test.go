package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/steps"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

func validWorkflow(name string) domain.WorkflowConfig {
	return domain.WorkflowConfig{
		Name: name,
		Params: domain.Params{
			"schedule": "@daily",
			"tasks": map[string]any{
				"extract": map[string]any{"operator": "noop"},
				"load":    map[string]any{"operator": "noop", "dependencies": []any{"extract"}},
			},
		},
		TaskOrder: []string{"extract", "load"},
	}
}

func invalidWorkflow(name string) domain.WorkflowConfig {
	return domain.WorkflowConfig{
		Name: name,
		Params: domain.Params{
			"tasks": map[string]any{
				"a": map[string]any{"operator": "x.y.Missing"},
			},
		},
		TaskOrder: []string{"a"},
	}
}

func newTestFactory(policy FailurePolicy, parallelism int) *Factory {
	return NewFactory(FactoryConfig{
		Catalog:     steps.DefaultCatalog(),
		Options:     fixedNow(),
		Policy:      policy,
		Parallelism: parallelism,
		Logger:      telemetry.Discard(),
	})
}

func TestFactory_TwoTaskScenario(t *testing.T) {
	raw := &domain.RawConfig{
		Defaults: twoTaskDefaults(),
		Workflows: []domain.WorkflowConfig{{
			Name: "wf1",
			Params: domain.Params{
				"schedule": "@daily",
				"tasks": map[string]any{
					"t1": map[string]any{"operator": "noop"},
					"t2": map[string]any{"operator": "noop", "dependencies": []any{"t1"}},
				},
			},
			TaskOrder: []string{"t1", "t2"},
		}},
	}

	workflows, err := newTestFactory(FailFast, 1).BuildAll(context.Background(), raw)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(workflows) != 1 {
		t.Fatalf("got %d workflows, want 1", len(workflows))
	}

	wf := workflows["wf1"]
	if wf == nil {
		t.Fatal("wf1 not built")
	}
	if wf.Size() != 2 || len(wf.Edges()) != 1 {
		t.Errorf("size/edges = %d/%d, want 2/1", wf.Size(), len(wf.Edges()))
	}
	for _, task := range wf.Tasks() {
		if task.Args().String("owner") != "ops" {
			t.Errorf("task %s default_args.owner = %v", task.ID, task.Args()["owner"])
		}
	}
}

func TestFactory_MissingStartDate(t *testing.T) {
	raw := &domain.RawConfig{
		Defaults:  domain.Params{"default_args": map[string]any{"owner": "ops"}},
		Workflows: []domain.WorkflowConfig{validWorkflow("nightly")},
	}

	_, err := newTestFactory(FailFast, 1).BuildAll(context.Background(), raw)

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
	if cfgErr.Workflow != "nightly" {
		t.Errorf("Workflow = %q, want nightly", cfgErr.Workflow)
	}
}

func TestFactory_FailFast(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			raw := &domain.RawConfig{
				Defaults: twoTaskDefaults(),
				Workflows: []domain.WorkflowConfig{
					validWorkflow("good"),
					invalidWorkflow("bad1"),
					invalidWorkflow("bad2"),
				},
			}

			result, err := newTestFactory(FailFast, parallelism).Build(context.Background(), raw)
			if result != nil {
				t.Errorf("result returned on failure: %v", result.IDs())
			}

			var opErr *UnknownOperatorError
			if !errors.As(err, &opErr) {
				t.Fatalf("expected UnknownOperatorError, got %T: %v", err, err)
			}
			if opErr.Workflow != "bad1" {
				t.Errorf("Workflow = %q, want first declared failure bad1", opErr.Workflow)
			}
		})
	}
}

func TestFactory_SkipInvalid(t *testing.T) {
	raw := &domain.RawConfig{
		Defaults: twoTaskDefaults(),
		Workflows: []domain.WorkflowConfig{
			invalidWorkflow("bad"),
			validWorkflow("good"),
		},
	}

	result, err := newTestFactory(SkipInvalid, 1).Build(context.Background(), raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !reflect.DeepEqual(result.IDs(), []string{"good"}) {
		t.Errorf("IDs = %v, want [good]", result.IDs())
	}
	if len(result.Failed) != 1 || result.Failed[0].Workflow != "bad" {
		t.Fatalf("Failed = %+v", result.Failed)
	}
	var opErr *UnknownOperatorError
	if !errors.As(result.Failed[0].Err, &opErr) {
		t.Errorf("failure error = %T", result.Failed[0].Err)
	}
}

func TestFactory_ParallelMatchesSequential(t *testing.T) {
	raw := &domain.RawConfig{Defaults: twoTaskDefaults()}
	for i := 0; i < 8; i++ {
		raw.Workflows = append(raw.Workflows, validWorkflow(fmt.Sprintf("wf%d", i)))
	}

	sequential, err := newTestFactory(FailFast, 1).Build(context.Background(), raw)
	if err != nil {
		t.Fatalf("sequential Build: %v", err)
	}
	parallel, err := newTestFactory(FailFast, 3).Build(context.Background(), raw)
	if err != nil {
		t.Fatalf("parallel Build: %v", err)
	}

	if !reflect.DeepEqual(sequential.IDs(), parallel.IDs()) {
		t.Fatalf("IDs differ: %v vs %v", sequential.IDs(), parallel.IDs())
	}
	for _, id := range sequential.IDs() {
		a, err := sequential.Workflows[id].Checksum()
		if err != nil {
			t.Fatalf("checksum: %v", err)
		}
		b, err := parallel.Workflows[id].Checksum()
		if err != nil {
			t.Fatalf("checksum: %v", err)
		}
		if a != b {
			t.Errorf("workflow %s differs between sequential and parallel builds", id)
		}
	}
}

func TestFactory_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	raw := &domain.RawConfig{
		Defaults:  twoTaskDefaults(),
		Workflows: []domain.WorkflowConfig{validWorkflow("wf")},
	}

	for _, parallelism := range []int{1, 2} {
		_, err := newTestFactory(FailFast, parallelism).Build(ctx, raw)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("parallelism=%d: expected context.Canceled, got %v", parallelism, err)
		}
	}
}

func TestFactory_DuplicateWorkflow(t *testing.T) {
	raw := &domain.RawConfig{
		Defaults:  twoTaskDefaults(),
		Workflows: []domain.WorkflowConfig{validWorkflow("wf"), validWorkflow("wf")},
	}

	_, err := newTestFactory(SkipInvalid, 1).Build(context.Background(), raw)
	if !errors.Is(err, ErrDuplicateWorkflow) {
		t.Errorf("expected ErrDuplicateWorkflow, got %v", err)
	}
}

func TestFactory_InputsReusable(t *testing.T) {
	raw := &domain.RawConfig{
		Defaults:  twoTaskDefaults(),
		Workflows: []domain.WorkflowConfig{validWorkflow("a"), validWorkflow("b")},
	}
	before := raw.Defaults.Clone()

	factory := newTestFactory(FailFast, 1)
	first, err := factory.BuildAll(context.Background(), raw)
	if err != nil {
		t.Fatalf("first BuildAll: %v", err)
	}
	second, err := factory.BuildAll(context.Background(), raw)
	if err != nil {
		t.Fatalf("second BuildAll: %v", err)
	}

	if !reflect.DeepEqual(raw.Defaults, before) {
		t.Errorf("defaults mutated: %v", raw.Defaults)
	}
	if first["a"] == second["a"] {
		t.Error("factory runs share graph objects")
	}
}

func TestParseFailurePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FailurePolicy
		wantErr bool
	}{
		{"", FailFast, false},
		{"fail_fast", FailFast, false},
		{"FAIL-FAST", FailFast, false},
		{"skip", SkipInvalid, false},
		{"skip_invalid", SkipInvalid, false},
		{"ignore", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFailurePolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
