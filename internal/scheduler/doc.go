// Package scheduler отвечает за расписания и периодическую пересборку workflow.
//
// Структура:
//   - cron.go      — проверка cron-выражений и вычисление следующего запуска
//   - scheduler.go — Refresher: пересборка набора workflow по таймеру
//
// Использование:
//
//	refresher := scheduler.New(scheduler.Config{
//	    Compiler: compiler,           // перечитывает конфиг и собирает графы
//	    Interval: 30 * time.Second,
//	    Metrics:  metrics,            // опционально
//	    Logger:   logger,
//	})
//
//	go refresher.Run(ctx)
//
//	snap := refresher.Current() // nil до первой успешной сборки
//
// Ошибка сборки не сбрасывает активный набор: API продолжает отдавать
// последние успешно собранные workflow.
package scheduler
