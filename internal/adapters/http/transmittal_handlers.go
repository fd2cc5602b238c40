package httpadapter

import (
	"net/http"

	"github.com/kirillkom/phase-edms/internal/core/ports"
)

func (rt *Router) acceptTransmittal(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	job, err := rt.deps.Transmittals.Accept(r.Context(), actor, r.PathValue("id"))
	rt.record("transmittal.accept", err)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.deps.Recorder != nil {
		rt.deps.Recorder.RecordJobEnqueued(serviceName, string(job.Kind))
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) rejectTransmittal(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	trs, err := rt.deps.Transmittals.Reject(r.Context(), actor, r.PathValue("id"))
	rt.record("transmittal.reject", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trs)
}

func (rt *Router) transmittalActivity(w http.ResponseWriter, r *http.Request) {
	rt.writeActivity(w, r, "transmittal", r.PathValue("id"))
}

func (rt *Router) reviewStagingLine(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Accepted *bool  `json:"accepted"`
		Comment  string `json:"comment"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Accepted == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "accepted is required"})
		return
	}

	err := rt.deps.Transmittals.ReviewLine(r.Context(), actor, r.PathValue("line_id"), *req.Accepted, req.Comment)
	rt.record("transmittal.review_line", err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) buildOutgoing(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req ports.OutgoingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	trs, err := rt.deps.Outgoing.Build(r.Context(), actor, req)
	rt.record("outgoing.build", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trs)
}

func (rt *Router) getOutgoing(w http.ResponseWriter, r *http.Request) {
	trs, err := rt.deps.OutgoingRead.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trs)
}
