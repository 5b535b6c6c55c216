package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

// Builder собирает граф одного workflow.
type Builder struct {
	resolver *Resolver
	opts     Options
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// NewBuilder создаёт Builder. metrics может быть nil.
func NewBuilder(resolver *Resolver, opts Options, metrics *telemetry.Metrics, logger *slog.Logger) *Builder {
	return &Builder{
		resolver: resolver,
		opts:     opts,
		metrics:  metrics,
		logger:   telemetry.OrDefault(logger),
	}
}

// Build собирает граф workflow name.
//
// Порядок:
//  1. слияние с defaults и разрешение параметров workflow
//  2. проверка задач и зависимостей (ни один узел ещё не создан)
//  3. проход 1: узлы в порядке объявления задач
//  4. проход 2: рёбра от зависимостей к зависимым задачам
//  5. проверка на циклы
//
// При ошибке граф не возвращается.
func (b *Builder) Build(name string, wf *domain.WorkflowConfig, defaults domain.Params) (string, *graph.Workflow, error) {
	started := time.Now()
	logger := telemetry.WithWorkflowID(b.logger, name)
	logger.Debug("building workflow")

	built, err := b.build(name, wf, defaults)

	tasks := 0
	if built != nil {
		tasks = built.Size()
	}
	b.metrics.ObserveBuild(time.Since(started), tasks, err)

	if err != nil {
		logger.Debug("workflow build failed", "error", err)
		return "", nil, err
	}

	logger.Debug("workflow built",
		"tasks", tasks,
		"edges", len(built.Edges()),
		"duration", time.Since(started),
	)
	return built.ID, built, nil
}

func (b *Builder) build(name string, wf *domain.WorkflowConfig, defaults domain.Params) (*graph.Workflow, error) {
	if wf == nil {
		return nil, NewConfigError(name, "", nil, ErrInvalidTaskConfig)
	}

	resolved, err := ResolveWorkflow(name, wf, defaults, b.opts)
	if err != nil {
		return nil, err
	}
	if err := ValidateWorkflow(resolved); err != nil {
		return nil, err
	}

	workflow := graph.NewWorkflow(resolved.ID, graph.WorkflowOptions{
		Schedule:      resolved.Schedule,
		Description:   resolved.Description,
		MaxActiveRuns: resolved.MaxActiveRuns,
		StartDate:     resolved.StartDate,
		Timezone:      resolved.Timezone,
		DefaultArgs:   resolved.DefaultArgs,
	})

	// Проход 1: узлы.
	lookup := make(map[string]*graph.Task, len(resolved.Tasks))
	for i := range resolved.Tasks {
		cfg := &resolved.Tasks[i]
		task, err := b.resolver.Resolve(cfg.Operator(), TaskIdentity{Name: cfg.Name, Workflow: workflow}, cfg.Params)
		if err != nil {
			return nil, err
		}
		lookup[cfg.Name] = task
	}

	// Проход 2: рёбра.
	for i := range resolved.Tasks {
		cfg := &resolved.Tasks[i]
		deps, err := cfg.Dependencies()
		if err != nil {
			return nil, NewConfigError(name, taskKey(cfg.Name, domain.ParamDependencies), nil, err)
		}

		task := lookup[cfg.Name]
		for _, dep := range deps {
			upstream, ok := lookup[dep]
			if !ok {
				return nil, &UnknownDependencyError{Workflow: name, Task: cfg.Name, Dependency: dep}
			}
			if err := task.SetUpstream(upstream); err != nil {
				return nil, NewConfigError(name, taskKey(cfg.Name, domain.ParamDependencies), dep, err)
			}
		}
	}

	if _, err := workflow.TopologicalOrder(); err != nil {
		if errors.Is(err, graph.ErrCyclicDependency) {
			return nil, NewConfigError(name, domain.ParamDependencies, nil, err)
		}
		return nil, NewConfigError(name, "", nil, err)
	}

	return workflow, nil
}
