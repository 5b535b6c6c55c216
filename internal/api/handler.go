package api

import (
	"log/slog"
	"time"

	"github.com/shaiso/dagfactory/internal/scheduler"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

// Source — источник текущего набора workflow.
type Source interface {
	// Current возвращает активный набор или nil до первой сборки.
	Current() *scheduler.Snapshot
}

// Handler — обработчик API с зависимостями.
type Handler struct {
	source  Source
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Source  Source
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		source:  cfg.Source,
		metrics: cfg.Metrics,
		logger:  telemetry.OrDefault(cfg.Logger),
		now:     time.Now,
	}
}
