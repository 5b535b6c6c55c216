package domain

// RunStatus — статус локального запуска workflow.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED
//	        ↘ CANCELLED (контекст отменён)
type RunStatus string

const (
	// RunStatusRunning — запуск в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все задачи успешно завершены.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — хотя бы одна задача завершилась с ошибкой.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — запуск прерван.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskStatus — статус задачи в локальном запуске.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	PENDING → SKIPPED (trigger_rule не выполнен по статусам upstream)
type TaskStatus string

const (
	// TaskStatusPending — задача ждёт своей очереди.
	TaskStatusPending TaskStatus = "PENDING"

	// TaskStatusRunning — задача выполняется.
	TaskStatusRunning TaskStatus = "RUNNING"

	// TaskStatusSucceeded — задача успешно завершена.
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"

	// TaskStatusFailed — задача завершилась с ошибкой.
	TaskStatusFailed TaskStatus = "FAILED"

	// TaskStatusSkipped — задача не запускалась из-за upstream ошибки.
	TaskStatusSkipped TaskStatus = "SKIPPED"
)

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}
