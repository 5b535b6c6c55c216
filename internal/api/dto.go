package api

import (
	"time"

	"github.com/shaiso/dagfactory/internal/graph"
	"github.com/shaiso/dagfactory/internal/scheduler"
)

// WorkflowSummary — краткое описание workflow для списка.
type WorkflowSummary struct {
	ID            string     `json:"id"`
	Schedule      string     `json:"schedule,omitempty"`
	Description   string     `json:"description,omitempty"`
	Timezone      string     `json:"timezone,omitempty"`
	MaxActiveRuns int        `json:"max_active_runs"`
	StartDate     time.Time  `json:"start_date"`
	Tasks         int        `json:"tasks"`
	NextRun       *time.Time `json:"next_run,omitempty"`
}

// SummaryFromWorkflow строит WorkflowSummary.
// NextRun считается не раньше StartDate; для ручных расписаний пуст.
func SummaryFromWorkflow(wf *graph.Workflow, now time.Time) WorkflowSummary {
	s := WorkflowSummary{
		ID:            wf.ID,
		Schedule:      wf.Schedule,
		Description:   wf.Description,
		Timezone:      wf.Timezone,
		MaxActiveRuns: wf.MaxActiveRuns,
		StartDate:     wf.StartDate,
		Tasks:         wf.Size(),
	}

	from := now
	if wf.StartDate.After(from) {
		// Первый запуск возможен ровно в StartDate.
		from = wf.StartDate.Add(-time.Nanosecond)
	}
	if next, err := scheduler.NextRun(wf.Schedule, wf.Timezone, from); err == nil {
		s.NextRun = &next
	}

	return s
}

// ReadyResponse — ответ /readyz.
type ReadyResponse struct {
	Workflows int       `json:"workflows"`
	LoadedAt  time.Time `json:"loaded_at"`
}
