package registrar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

// Store сохраняет снимки workflow.
type Store interface {
	Register(ctx context.Context, snap graph.Snapshot) (*domain.Registration, error)
}

// Notifier оповещает о новой версии workflow.
type Notifier interface {
	PublishWorkflowRegistered(ctx context.Context, reg *domain.Registration, tasks int) error
}

// Registrar регистрирует набор workflow.
type Registrar struct {
	store    Store
	notifier Notifier
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// Config — конфигурация Registrar.
type Config struct {
	Store    Store
	Notifier Notifier // опционально
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// New создаёт Registrar.
func New(cfg Config) *Registrar {
	return &Registrar{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   telemetry.OrDefault(cfg.Logger),
	}
}

// Register сохраняет все workflow и возвращает результаты в порядке id.
//
// Ошибка хранилища для одного workflow не останавливает остальные;
// все такие ошибки возвращаются вместе.
func (r *Registrar) Register(ctx context.Context, workflows map[string]*graph.Workflow) ([]domain.Registration, error) {
	ids := make([]string, 0, len(workflows))
	for id := range workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]domain.Registration, 0, len(ids))
	var errs []error

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("registration cancelled: %w", err)
		}

		wf := workflows[id]
		logger := telemetry.WithWorkflowID(r.logger, id)

		reg, err := r.store.Register(ctx, wf.Snapshot())
		if err != nil {
			r.metrics.ObserveRegistration(telemetry.ResultFailure)
			logger.Error("registration failed", "error", err)
			errs = append(errs, fmt.Errorf("workflow %s: %w", id, err))
			continue
		}
		result = append(result, *reg)

		if !reg.Created {
			r.metrics.ObserveRegistration(telemetry.ResultUnchanged)
			logger.Debug("workflow unchanged", "version", reg.Version)
			continue
		}

		r.metrics.ObserveRegistration(telemetry.ResultCreated)
		logger.Info("workflow version registered",
			"version", reg.Version,
			"checksum", reg.Checksum,
		)

		if r.notifier == nil {
			continue
		}
		if err := r.notifier.PublishWorkflowRegistered(ctx, reg, wf.Size()); err != nil {
			logger.Warn("failed to publish registration event",
				"version", reg.Version,
				"error", err,
			)
		}
	}

	return result, errors.Join(errs...)
}
