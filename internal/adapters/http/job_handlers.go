package httpadapter

import (
	"net/http"
	"strconv"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

const defaultNotificationLimit = 50

func (rt *Router) enqueueBatchReview(kind domain.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var payload domain.BatchReviewPayload
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, err)
			return
		}
		if len(payload.DocumentIDs) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_ids is required"})
			return
		}
		rt.enqueue(w, r, kind, actor, payload)
	}
}

func (rt *Router) enqueueImport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var payload domain.ImportTransmittalsPayload
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &payload); err != nil {
			writeError(w, err)
			return
		}
	}
	rt.enqueue(w, r, domain.JobImportTransmittals, actor, payload)
}

func (rt *Router) enqueue(w http.ResponseWriter, r *http.Request, kind domain.JobKind, actor string, payload any) {
	job, err := rt.deps.Jobs.Enqueue(r.Context(), kind, actor, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.deps.Recorder != nil {
		rt.deps.Recorder.RecordJobEnqueued(serviceName, string(kind))
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) jobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := rt.deps.Jobs.Status(r.Context(), r.PathValue("job_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	items, err := rt.deps.Notifications.List(r.Context(), r.PathValue("user_id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}
