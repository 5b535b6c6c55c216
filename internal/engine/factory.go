package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
	"github.com/shaiso/dagfactory/internal/steps"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

// FailurePolicy — реакция фабрики на ошибку сборки одного workflow.
type FailurePolicy string

const (
	// FailFast — первая ошибка прерывает весь запуск, workflow не возвращаются.
	FailFast FailurePolicy = "fail_fast"

	// SkipInvalid — workflow с ошибкой пропускается и попадает в Result.Failed.
	SkipInvalid FailurePolicy = "skip"
)

// ParseFailurePolicy разбирает политику из строки настроек.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FailFast), "fail-fast":
		return FailFast, nil
	case string(SkipInvalid), "skip_invalid", "skip-invalid":
		return SkipInvalid, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", s)
}

// FactoryConfig — зависимости и настройки Factory.
type FactoryConfig struct {
	// Catalog — каталог типов шагов (nil = steps.DefaultCatalog()).
	Catalog *steps.Catalog

	// Loader — загрузчик функций для callable шагов (опционально).
	Loader CallableLoader

	// Options — параметры разрешения workflow.
	Options Options

	// Policy — политика ошибок (по умолчанию FailFast).
	Policy FailurePolicy

	// Parallelism — число workflow, собираемых одновременно (<= 1 — последовательно).
	Parallelism int

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Factory собирает все workflow документа конфигурации.
type Factory struct {
	builder     *Builder
	policy      FailurePolicy
	parallelism int
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

// NewFactory создаёт Factory.
func NewFactory(cfg FactoryConfig) *Factory {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = steps.DefaultCatalog()
	}
	logger := telemetry.OrDefault(cfg.Logger)
	policy := cfg.Policy
	if policy == "" {
		policy = FailFast
	}

	resolver := NewResolver(catalog, cfg.Loader, logger)
	return &Factory{
		builder:     NewBuilder(resolver, cfg.Options, cfg.Metrics, logger),
		policy:      policy,
		parallelism: cfg.Parallelism,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// Failure — workflow, пропущенный политикой SkipInvalid.
type Failure struct {
	Workflow string
	Err      error
}

// Result — результат запуска фабрики.
type Result struct {
	// Workflows — собранные графы по ID workflow.
	Workflows map[string]*graph.Workflow

	// Failed — пропущенные workflow в порядке объявления.
	Failed []Failure
}

// IDs возвращает отсортированные ID собранных workflow.
func (r *Result) IDs() []string {
	ids := make([]string, 0, len(r.Workflows))
	for id := range r.Workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// buildOutcome — результат сборки одного workflow.
type buildOutcome struct {
	id       string
	workflow *graph.Workflow
	err      error
}

// Build собирает все workflow из raw.
//
// При FailFast первая (в порядке объявления) ошибка возвращается как есть,
// и ни один workflow не возвращается. При SkipInvalid ошибки собираются в
// Result.Failed. Результат не зависит от Parallelism.
func (f *Factory) Build(ctx context.Context, raw *domain.RawConfig) (*Result, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: no configuration", ErrInvalidTaskConfig)
	}

	if err := checkWorkflowNames(raw); err != nil {
		return nil, err
	}

	outcomes, err := f.buildEach(ctx, raw)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Workflows: make(map[string]*graph.Workflow, len(outcomes)),
		Failed:    make([]Failure, 0),
	}
	for i, out := range outcomes {
		name := raw.Workflows[i].Name
		if out.err != nil {
			if f.policy == FailFast {
				return nil, out.err
			}
			f.logger.Warn("skipping invalid workflow", "workflow_id", name, "error", out.err)
			f.metrics.SkipBuild()
			result.Failed = append(result.Failed, Failure{Workflow: name, Err: out.err})
			continue
		}
		result.Workflows[out.id] = out.workflow
	}

	f.logger.Debug("factory run completed",
		"workflows", len(result.Workflows),
		"failed", len(result.Failed),
	)
	return result, nil
}

// BuildAll собирает все workflow и возвращает только map ID → граф.
func (f *Factory) BuildAll(ctx context.Context, raw *domain.RawConfig) (map[string]*graph.Workflow, error) {
	result, err := f.Build(ctx, raw)
	if err != nil {
		return nil, err
	}
	return result.Workflows, nil
}

// buildEach собирает workflow последовательно или параллельно.
// outcomes[i] соответствует raw.Workflows[i].
func (f *Factory) buildEach(ctx context.Context, raw *domain.RawConfig) ([]buildOutcome, error) {
	outcomes := make([]buildOutcome, len(raw.Workflows))

	build := func(i int) {
		wf := &raw.Workflows[i]
		id, built, err := f.builder.Build(wf.Name, wf, raw.Defaults)
		outcomes[i] = buildOutcome{id: id, workflow: built, err: err}
	}

	if f.parallelism <= 1 {
		for i := range raw.Workflows {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("factory run cancelled: %w", err)
			}
			build(i)
			if outcomes[i].err != nil && f.policy == FailFast {
				return outcomes[:i+1], nil
			}
		}
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallelism)
	for i := range raw.Workflows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			build(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("factory run cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("factory run cancelled: %w", err)
	}
	return outcomes, nil
}

// checkWorkflowNames проверяет, что имена workflow заданы и уникальны.
func checkWorkflowNames(raw *domain.RawConfig) error {
	seen := make(map[string]bool, len(raw.Workflows))
	for _, wf := range raw.Workflows {
		if strings.TrimSpace(wf.Name) == "" {
			return NewConfigError("", "workflows", nil, fmt.Errorf("%w: empty workflow name", ErrInvalidValue))
		}
		if seen[wf.Name] {
			return NewConfigError(wf.Name, "workflows", nil, ErrDuplicateWorkflow)
		}
		seen[wf.Name] = true
	}
	return nil
}
