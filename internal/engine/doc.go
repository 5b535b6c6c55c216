// Package engine превращает документ конфигурации в графы workflow.
//
// Включает:
//   - merge.go    — рекурсивное слияние параметров (defaults → workflow)
//   - dates.go    — разбор start_date: абсолютные даты и смещения
//   - params.go   — разрешение параметров workflow (ResolveWorkflow)
//   - validate.go — проверка задач и зависимостей до создания узлов
//   - resolver.go — ссылка на тип шага + параметры → узел графа
//   - builder.go  — сборка одного графа в два прохода (узлы, затем рёбра)
//   - factory.go  — сборка всех workflow документа
//   - errors.go   — ConfigError, UnknownOperatorError, MissingCallableError,
//     StepConstructionError, UnknownDependencyError
//
// Использование:
//
//	factory := engine.NewFactory(engine.FactoryConfig{
//	    Catalog: steps.DefaultCatalog(),
//	    Loader:  callable.NewLoader(baseDir),
//	    Logger:  logger,
//	})
//
//	workflows, err := factory.BuildAll(ctx, raw)
//
// Сборка детерминирована и не выполняет I/O, кроме загрузки функций
// callable шагов.
package engine
