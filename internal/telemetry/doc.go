// Package telemetry — логирование и метрики dagfactory.
//
// logging.go настраивает slog (уровень и формат из настроек) и
// передаёт логгер через context. Поля workflow_id, task_id и run_id
// добавляются хелперами With*.
//
// metrics.go держит собственный prometheus.Registry: сборки workflow,
// пересборки набора, регистрации и HTTP-запросы. Все методы Metrics
// допускают nil-получатель, поэтому метрики необязательны для
// потребителей.
//
//	m := telemetry.NewMetrics()
//	m.ObserveBuild(time.Since(start), wf.Size(), err)
//	http.Handle("/metrics", m.Handler())
package telemetry
