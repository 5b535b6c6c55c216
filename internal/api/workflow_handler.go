package api

import (
	"net/http"
)

// Healthz — проверка живости процесса.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz — готовность: набор workflow собран хотя бы раз.
// GET /readyz
func (h *Handler) Readyz(w http.ResponseWriter, _ *http.Request) {
	snap := h.source.Current()
	if snap == nil {
		Error(w, http.StatusServiceUnavailable, ErrCodeNotReady, "workflows are not loaded yet")
		return
	}
	Success(w, ReadyResponse{Workflows: len(snap.Workflows), LoadedAt: snap.LoadedAt})
}

// ListWorkflows возвращает краткое описание всех workflow.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, _ *http.Request) {
	snap := h.source.Current()
	if snap == nil {
		Error(w, http.StatusServiceUnavailable, ErrCodeNotReady, "workflows are not loaded yet")
		return
	}

	now := h.now()
	ids := snap.IDs()
	result := make([]WorkflowSummary, len(ids))
	for i, id := range ids {
		result[i] = SummaryFromWorkflow(snap.Workflows[id], now)
	}

	List(w, result, len(result))
}

// GetWorkflow возвращает снимок графа workflow.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap := h.source.Current()
	if snap == nil {
		Error(w, http.StatusServiceUnavailable, ErrCodeNotReady, "workflows are not loaded yet")
		return
	}

	wf, ok := snap.Workflows[id]
	if !ok {
		NotFound(w, "workflow "+id+" not found")
		return
	}

	Success(w, wf.Snapshot())
}
