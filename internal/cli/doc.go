// Package cli реализует инструмент командной строки dagfactory.
//
// # Обзор
//
// CLI собирает workflow из YAML-документа и работает с результатом:
// проверяет, показывает, запускает локально, регистрирует в PostgreSQL
// и раздаёт по HTTP.
//
// # Ключевые компоненты
//
// ## App
//
// Состояние одного запуска. PersistentPreRunE корневой команды
// загружает Settings (koanf, переменные DAGFACTORY_*), применяет поверх
// них флаги и создаёт логгер, метрики и Output.
//
//	result, err := app.Compile(ctx)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr:
//
//	dagfactory list --json | jq '.[].id'
//
// ## Client
//
// HTTP-клиент для API команды serve. Используется командами list и show
// с флагом --api-url.
//
// ## Commands
//
//   - validate: собрать все workflow и вывести ошибки
//   - list, show: сводка и детали workflow
//   - run: локальный запуск workflow
//   - register: сохранить снимки в PostgreSQL, оповестить RabbitMQ
//   - serve: периодическая пересборка и HTTP API
//   - watch: печать событий workflow.registered
package cli
