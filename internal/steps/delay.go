package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/graph"
)

// KindDelay — каноническое имя шага задержки.
const KindDelay = "dagfactory.steps.DelayOperator"

// DelayOperator — шаг задержки.
//
// Приостанавливает выполнение на указанное время.
// Поддерживает graceful shutdown через context cancellation.
//
// Конфигурация:
//
//	{"duration_sec": 10}     // задержка в секундах
//	{"duration_ms": 5000}    // задержка в миллисекундах
//	{"duration": "1m30s"}    // формат time.ParseDuration
type DelayOperator struct {
	duration time.Duration
	params   domain.Params
}

type delayConfig struct {
	DurationSec int    `mapstructure:"duration_sec"`
	DurationMs  int    `mapstructure:"duration_ms"`
	Duration    string `mapstructure:"duration"`
}

// DelayDefinition возвращает определение шага задержки для каталога.
func DelayDefinition() Definition {
	return Definition{
		Name:    KindDelay,
		Aliases: []string{"delay"},
		Factory: NewDelayOperator,
	}
}

// NewDelayOperator создаёт DelayOperator.
func NewDelayOperator(spec *Spec) (graph.Operator, error) {
	duration, err := parseDelay(spec.OperatorParams())
	if err != nil {
		return nil, err
	}
	return &DelayOperator{duration: duration, params: spec.OperatorParams()}, nil
}

// parseDelay извлекает длительность из конфигурации.
func parseDelay(params map[string]any) (time.Duration, error) {
	cfg := &delayConfig{}
	if err := decodeParams(KindDelay, params, cfg); err != nil {
		return 0, err
	}

	switch {
	case cfg.DurationSec > 0:
		return time.Duration(cfg.DurationSec) * time.Second, nil
	case cfg.DurationMs > 0:
		return time.Duration(cfg.DurationMs) * time.Millisecond, nil
	case cfg.Duration != "":
		d, err := time.ParseDuration(cfg.Duration)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("%w: %s: invalid duration %q", ErrInvalidConfig, KindDelay, cfg.Duration)
		}
		return d, nil
	}

	return 0, fmt.Errorf("%w: %s: duration_sec, duration_ms or duration required",
		ErrInvalidConfig, KindDelay)
}

// Kind возвращает тип шага.
func (o *DelayOperator) Kind() string {
	return KindDelay
}

// Params возвращает параметры шага.
func (o *DelayOperator) Params() map[string]any {
	return describe(o.params)
}

// Duration возвращает длительность задержки.
func (o *DelayOperator) Duration() time.Duration {
	return o.duration
}

// Execute выполняет задержку.
func (o *DelayOperator) Execute(ctx context.Context, _ *graph.TaskContext) (map[string]any, error) {
	timer := time.NewTimer(o.duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	case <-timer.C:
		return map[string]any{
			"duration_ms": o.duration.Milliseconds(),
		}, nil
	}
}
