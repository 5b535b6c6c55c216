package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResolvedWorkflow — параметры workflow после слияния с defaults.
type ResolvedWorkflow struct {
	// ID — идентификатор workflow (совпадает с именем в конфигурации).
	ID string

	// Schedule — расписание: cron-выражение, дескриптор (@daily) или пусто.
	Schedule string

	// Description — описание workflow.
	Description string

	// MaxActiveRuns — ограничение одновременных запусков.
	MaxActiveRuns int

	// StartDate — дата начала с учётом часового пояса.
	StartDate time.Time

	// Timezone — часовой пояс workflow.
	Timezone string

	// DefaultArgs — аргументы по умолчанию для всех задач.
	// start_date здесь уже приведён к time.Time.
	DefaultArgs Params

	// Tasks — задачи в порядке объявления.
	Tasks []TaskConfig

	// Params — полный результат слияния.
	Params Params
}

// Registration — запись о регистрации скомпилированного workflow.
type Registration struct {
	// WorkflowID — ID строки workflows.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Name — имя workflow.
	Name string `json:"name"`

	// Version — номер версии снимка.
	Version int `json:"version"`

	// Checksum — sha256 снимка графа.
	Checksum string `json:"checksum"`

	// Created — true, если версия создана этим вызовом.
	Created bool `json:"created"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`
}
