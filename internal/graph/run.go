package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/dagfactory/internal/domain"
	"github.com/shaiso/dagfactory/internal/telemetry"
)

// RunOptions — параметры локального запуска.
type RunOptions struct {
	// RunID — идентификатор запуска (по умолчанию генерируется).
	RunID string

	// LogicalDate — дата, за которую выполняется запуск (по умолчанию сейчас).
	LogicalDate time.Time

	// Params — параметры запуска, доступные как {{ .Params.* }}.
	Params map[string]any

	// Env — переменные окружения для шаблонов.
	Env map[string]string

	// Logger — логгер (по умолчанию из ctx, затем slog.Default()).
	Logger *slog.Logger
}

// TaskResult — результат выполнения одной задачи.
type TaskResult struct {
	TaskID   string            `json:"task_id"`
	Status   domain.TaskStatus `json:"status"`
	Outputs  map[string]any    `json:"outputs,omitempty"`
	Error    string            `json:"error,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// RunResult — результат локального запуска workflow.
type RunResult struct {
	RunID      string           `json:"run_id"`
	WorkflowID string           `json:"workflow_id"`
	Status     domain.RunStatus `json:"status"`
	Tasks      []TaskResult     `json:"tasks"`
}

// Result возвращает результат задачи по ID.
func (r *RunResult) Result(taskID string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.TaskID == taskID {
			return t, true
		}
	}
	return TaskResult{}, false
}

// Run выполняет workflow локально, задача за задачей в топологическом порядке.
//
// Запускать ли задачу, решает её trigger_rule по статусам upstream:
// при all_success (по умолчанию) падение задачи пропускает (SKIPPED) её
// транзитивных потомков, а all_done или always позволяют, например,
// выполнить очистку после сбоя. Независимые ветки продолжают выполняться.
// Запуск считается FAILED, если упала хотя бы одна задача. Повторы
// (retries) не выполняются. execution_timeout задачи ограничивает её
// контекст.
func (w *Workflow) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	order, err := w.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logicalDate := opts.LogicalDate
	if logicalDate.IsZero() {
		logicalDate = time.Now()
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.FromContext(ctx)
	}
	logger = telemetry.WithRunID(telemetry.WithWorkflowID(logger, w.ID), runID)

	tmplCtx := NewTemplateContext(w.ID, logicalDate, opts.Params)
	tmplCtx.RunID = runID
	for k, v := range opts.Env {
		tmplCtx.SetEnv(k, v)
	}

	result := &RunResult{
		RunID:      runID,
		WorkflowID: w.ID,
		Status:     domain.RunStatusRunning,
		Tasks:      make([]TaskResult, 0, len(order)),
	}

	statuses := make(map[string]domain.TaskStatus, len(order))
	anyFailed := false
	cancelled := false

	logger.Info("run started", "tasks", len(order))

	for _, task := range order {
		if cancelled || ctx.Err() != nil {
			cancelled = true
			result.Tasks = append(result.Tasks, TaskResult{TaskID: task.ID, Status: domain.TaskStatusSkipped})
			continue
		}

		if !triggerSatisfied(task, statuses) {
			statuses[task.ID] = domain.TaskStatusSkipped
			result.Tasks = append(result.Tasks, TaskResult{TaskID: task.ID, Status: domain.TaskStatusSkipped})
			logger.Warn("task skipped", "task_id", task.ID, "trigger_rule", task.TriggerRule())
			continue
		}

		tr := w.runTask(ctx, task, tmplCtx, runID, logger)
		result.Tasks = append(result.Tasks, tr)
		statuses[task.ID] = tr.Status

		if tr.Status == domain.TaskStatusFailed {
			anyFailed = true
			if ctx.Err() != nil {
				cancelled = true
			}
		}
		tmplCtx.AddTaskResult(task.ID, tr.Outputs, string(tr.Status))
	}

	switch {
	case cancelled:
		result.Status = domain.RunStatusCancelled
	case anyFailed:
		result.Status = domain.RunStatusFailed
	default:
		result.Status = domain.RunStatusSucceeded
	}

	logger.Info("run finished", "status", result.Status)
	return result, nil
}

// runTask выполняет одну задачу с учётом execution_timeout.
func (w *Workflow) runTask(ctx context.Context, task *Task, tmplCtx *TemplateContext, runID string, logger *slog.Logger) TaskResult {
	taskLogger := telemetry.WithTaskID(logger, task.ID)
	start := time.Now()

	if task.operator == nil {
		return TaskResult{
			TaskID: task.ID,
			Status: domain.TaskStatusFailed,
			Error:  fmt.Sprintf("task %s has no operator", task.ID),
		}
	}

	taskCtx := ctx
	if timeout := task.ExecutionTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	taskLogger.Info("task started", "operator", task.operator.Kind())

	outputs, err := task.operator.Execute(taskCtx, &TaskContext{
		RunID:    runID,
		Task:     task,
		Template: tmplCtx.ForTask(task.ID),
		Logger:   taskLogger,
	})
	duration := time.Since(start)

	if err != nil {
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("execution timeout %s exceeded: %w", task.ExecutionTimeout(), err)
		}
		taskLogger.Error("task failed", "error", err, "duration", duration)
		return TaskResult{
			TaskID:   task.ID,
			Status:   domain.TaskStatusFailed,
			Error:    err.Error(),
			Duration: duration,
		}
	}

	taskLogger.Info("task succeeded", "duration", duration)
	return TaskResult{
		TaskID:   task.ID,
		Status:   domain.TaskStatusSucceeded,
		Outputs:  outputs,
		Duration: duration,
	}
}

// triggerSatisfied проверяет trigger_rule задачи по статусам её upstream.
// Upstream к этому моменту уже завершены: обход идёт в топологическом порядке.
func triggerSatisfied(task *Task, statuses map[string]domain.TaskStatus) bool {
	if len(task.upstream) == 0 {
		return true
	}

	var succeeded, failed int
	for _, up := range task.upstream {
		switch statuses[up.ID] {
		case domain.TaskStatusSucceeded:
			succeeded++
		case domain.TaskStatusFailed:
			failed++
		}
	}
	total := len(task.upstream)

	switch task.TriggerRule() {
	case TriggerAllFailed:
		return failed == total
	case TriggerAllDone, TriggerAlways:
		return true
	case TriggerOneSuccess:
		return succeeded > 0
	case TriggerOneFailed:
		return failed > 0
	case TriggerNoneFailed:
		return failed == 0
	default:
		return succeeded == total
	}
}
