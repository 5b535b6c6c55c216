package registrar

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

// memoryStore хранит последний checksum по имени.
type memoryStore struct {
	versions map[string]domain.Registration
	fail     map[string]error
	calls    []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		versions: make(map[string]domain.Registration),
		fail:     make(map[string]error),
	}
}

func (s *memoryStore) Register(_ context.Context, snap graph.Snapshot) (*domain.Registration, error) {
	s.calls = append(s.calls, snap.ID)
	if err := s.fail[snap.ID]; err != nil {
		return nil, err
	}

	_, checksum, err := snap.Encode()
	if err != nil {
		return nil, err
	}

	last, ok := s.versions[snap.ID]
	if ok && last.Checksum == checksum {
		last.Created = false
		return &last, nil
	}

	reg := domain.Registration{Name: snap.ID, Version: last.Version + 1, Checksum: checksum, Created: true}
	s.versions[snap.ID] = reg
	return &reg, nil
}

type recordingNotifier struct {
	events []string
	err    error
}

func (n *recordingNotifier) PublishWorkflowRegistered(_ context.Context, reg *domain.Registration, _ int) error {
	n.events = append(n.events, reg.Name)
	return n.err
}

func testWorkflows(t *testing.T, ids ...string) map[string]*graph.Workflow {
	t.Helper()
	m := make(map[string]*graph.Workflow, len(ids))
	for _, id := range ids {
		m[id] = graph.NewWorkflow(id, graph.WorkflowOptions{Schedule: "@daily"})
	}
	return m
}

func TestRegistrar_NewAndUnchanged(t *testing.T) {
	store := newMemoryStore()
	notifier := &recordingNotifier{}
	metrics := telemetry.NewMetrics()
	r := New(Config{Store: store, Notifier: notifier, Metrics: metrics, Logger: telemetry.Discard()})

	workflows := testWorkflows(t, "b", "a")

	first, err := r.Register(context.Background(), workflows)
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if !reflect.DeepEqual(store.calls, []string{"a", "b"}) {
		t.Errorf("store calls = %v, want sorted [a b]", store.calls)
	}
	for _, reg := range first {
		if !reg.Created || reg.Version != 1 {
			t.Errorf("%s: Created/Version = %v/%d", reg.Name, reg.Created, reg.Version)
		}
	}

	second, err := r.Register(context.Background(), workflows)
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	for _, reg := range second {
		if reg.Created {
			t.Errorf("%s registered again without changes", reg.Name)
		}
	}

	if !reflect.DeepEqual(notifier.events, []string{"a", "b"}) {
		t.Errorf("events = %v, want one per new version", notifier.events)
	}

	expected := `
# HELP dagfactory_registrations_total Workflow registrations by result
# TYPE dagfactory_registrations_total counter
dagfactory_registrations_total{result="created"} 2
dagfactory_registrations_total{result="unchanged"} 2
`
	if err := testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "dagfactory_registrations_total"); err != nil {
		t.Errorf("metrics: %v", err)
	}
}

func TestRegistrar_NotifierFailureIsNotFatal(t *testing.T) {
	store := newMemoryStore()
	notifier := &recordingNotifier{err: errors.New("broker down")}
	r := New(Config{Store: store, Notifier: notifier, Logger: telemetry.Discard()})

	regs, err := r.Register(context.Background(), testWorkflows(t, "wf"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(regs) != 1 || !regs[0].Created {
		t.Errorf("registrations = %+v", regs)
	}
}

func TestRegistrar_StoreFailure(t *testing.T) {
	store := newMemoryStore()
	dbErr := errors.New("db down")
	store.fail["b"] = dbErr
	r := New(Config{Store: store, Logger: telemetry.Discard()})

	regs, err := r.Register(context.Background(), testWorkflows(t, "a", "b", "c"))
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(regs) != 2 || regs[0].Name != "a" || regs[1].Name != "c" {
		t.Errorf("registrations = %+v, want a and c", regs)
	}
}

func TestRegistrar_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(Config{Store: newMemoryStore(), Logger: telemetry.Discard()})
	if _, err := r.Register(ctx, testWorkflows(t, "a")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
