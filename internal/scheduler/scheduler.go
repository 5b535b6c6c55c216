package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shaiso/dagfactory/internal/graph"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

// DefaultInterval — период обновления по умолчанию.
const DefaultInterval = 30 * time.Second

var (
	// ErrNotLoaded — набор workflow ещё не собран.
	ErrNotLoaded = errors.New("workflows are not loaded yet")

	// ErrNotFound — workflow нет в активном наборе.
	ErrNotFound = errors.New("workflow not found")
)

// Compiler перечитывает конфигурацию и собирает все workflow.
type Compiler interface {
	Compile(ctx context.Context) (map[string]*graph.Workflow, error)
}

// CompilerFunc — адаптер функции к Compiler.
type CompilerFunc func(ctx context.Context) (map[string]*graph.Workflow, error)

// Compile вызывает f(ctx).
func (f CompilerFunc) Compile(ctx context.Context) (map[string]*graph.Workflow, error) {
	return f(ctx)
}

// Snapshot — набор workflow, собранный за один тик.
// После публикации не меняется.
type Snapshot struct {
	Workflows map[string]*graph.Workflow
	LoadedAt  time.Time
}

// IDs возвращает идентификаторы workflow в алфавитном порядке.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Workflows))
	for id := range s.Workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Refresher — периодическая пересборка workflow.
//
// Каждый тик целиком пересобирает набор. Новый набор публикуется
// атомарно; при ошибке остаётся предыдущий.
type Refresher struct {
	compiler  Compiler
	interval  time.Duration
	onRefresh func(ctx context.Context, snap *Snapshot)
	metrics   *telemetry.Metrics
	logger    *slog.Logger
	now       func() time.Time

	current atomic.Pointer[Snapshot]
}

// Config — конфигурация Refresher.
type Config struct {
	Compiler Compiler
	Interval time.Duration // default: DefaultInterval
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger

	// OnRefresh вызывается после успешной публикации набора (опционально).
	OnRefresh func(ctx context.Context, snap *Snapshot)
}

// New создаёт Refresher.
func New(cfg Config) *Refresher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Refresher{
		compiler:  cfg.Compiler,
		interval:  interval,
		onRefresh: cfg.OnRefresh,
		metrics:   cfg.Metrics,
		logger:    telemetry.OrDefault(cfg.Logger),
		now:       time.Now,
	}
}

// Tick выполняет одну пересборку.
func (r *Refresher) Tick(ctx context.Context) error {
	started := r.now()

	workflows, err := r.compiler.Compile(ctx)
	if err != nil {
		r.metrics.ObserveRefresh(started, 0, err)
		r.logger.Error("refresh failed, keeping previous workflows",
			"error", err,
			"loaded", r.loadedCount(),
		)
		return fmt.Errorf("refresh: %w", err)
	}

	snap := &Snapshot{Workflows: workflows, LoadedAt: started}
	r.current.Store(snap)
	r.metrics.ObserveRefresh(started, len(workflows), nil)

	r.logger.Info("workflows refreshed",
		"count", len(workflows),
		"duration", r.now().Sub(started),
	)

	if r.onRefresh != nil {
		r.onRefresh(ctx, snap)
	}
	return nil
}

// Run выполняет Tick сразу и затем каждые interval до отмены ctx.
// Ошибки тиков логируются и не останавливают цикл.
func (r *Refresher) Run(ctx context.Context) error {
	_ = r.Tick(ctx)

	tk := time.NewTicker(r.interval)
	defer tk.Stop()

	for {
		select {
		case <-tk.C:
			_ = r.Tick(ctx)
		case <-ctx.Done():
			r.logger.Info("refresher stopped")
			return nil
		}
	}
}

// Current возвращает активный набор или nil, если сборок ещё не было.
func (r *Refresher) Current() *Snapshot {
	return r.current.Load()
}

// Workflow возвращает workflow из активного набора.
func (r *Refresher) Workflow(id string) (*graph.Workflow, error) {
	snap := r.current.Load()
	if snap == nil {
		return nil, ErrNotLoaded
	}
	wf, ok := snap.Workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %q: %w", id, ErrNotFound)
	}
	return wf, nil
}

func (r *Refresher) loadedCount() int {
	if snap := r.current.Load(); snap != nil {
		return len(snap.Workflows)
	}
	return 0
}
