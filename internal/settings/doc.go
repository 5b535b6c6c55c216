// Package settings загружает настройки процесса dagfactory.
//
// Порядок источников (каждый следующий перекрывает предыдущий):
//   - значения по умолчанию (Default)
//   - переменные окружения с префиксом DAGFACTORY_
//   - флаги CLI (применяются в internal/cli)
//
// Пример:
//
//	DAGFACTORY_CONFIG_PATH=/etc/dagfactory/workflows.yaml
//	DAGFACTORY_MAX_ACTIVE_RUNS=32
//	DAGFACTORY_REFRESH_INTERVAL=1m
//	DAGFACTORY_FAILURE_POLICY=skip
package settings
