// Package api содержит HTTP API только для чтения над текущим набором workflow.
//
// Структура:
//   - handler.go          — Handler и источник набора (Source)
//   - routes.go           — регистрация маршрутов и http.Server
//   - middleware.go       — logging, metrics, recovery
//   - response.go         — унифицированные JSON-ответы
//   - dto.go              — WorkflowSummary и ответы
//   - workflow_handler.go — обработчики /healthz, /readyz, /api/v1/workflows
//
// Маршруты:
//
//	GET /healthz
//	GET /readyz                 503, пока набор не собран
//	GET /metrics
//	GET /api/v1/workflows       список (id, расписание, следующий запуск)
//	GET /api/v1/workflows/{id}  снимок графа, 404 для неизвестного id
package api
