package graph

import "errors"

// Ошибки построения графа.
var (
	// ErrDuplicateTask — задача с таким ID уже зарегистрирована в workflow.
	ErrDuplicateTask = errors.New("duplicate task id")

	// ErrEmptyTaskID — задача без ID.
	ErrEmptyTaskID = errors.New("task has empty id")

	// ErrForeignTask — попытка связать задачи из разных workflow.
	ErrForeignTask = errors.New("task belongs to another workflow")

	// ErrSelfDependency — задача зависит от самой себя.
	ErrSelfDependency = errors.New("task depends on itself")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrInvalidTaskArg — невалидный базовый аргумент задачи (retries, trigger_rule, ...).
	ErrInvalidTaskArg = errors.New("invalid task argument")
)

// Ошибки рендеринга шаблонов.
var (
	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render failed")

	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse failed")
)
