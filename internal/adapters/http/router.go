package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/phase-edms/internal/config"
	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

const (
	actorHeader = "X-Phase-User"
	serviceName = "api"
)

// WorkflowRecorder receives per-action outcomes, typically metrics.
type WorkflowRecorder interface {
	RecordWorkflowAction(service, action string, err error)
	RecordJobEnqueued(service, kind string)
}

type Dependencies struct {
	Reviews       ports.ReviewOrchestrator
	Revisions     ports.RevisionReader
	Registry      *domain.TypeRegistry
	Transmittals  ports.TransmittalManager
	Outgoing      ports.OutgoingBuilder
	OutgoingRead  ports.OutgoingReader
	Jobs          ports.JobSubmitter
	Notifications ports.NotificationReader
	Activities    ports.ActivityReader
	Recorder      WorkflowRecorder
}

type Router struct {
	cfg    config.Config
	deps   Dependencies
	logger *slog.Logger
}

func NewRouter(cfg config.Config, deps Dependencies, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = domain.NewTypeRegistry(domain.DefaultDocumentTypes()...)
	}
	return &Router{cfg: cfg, deps: deps, logger: logger}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/jobs/review-start", rt.enqueueBatchReview(domain.JobStartReviews))
	mux.HandleFunc("POST /v1/jobs/review-cancel", rt.enqueueBatchReview(domain.JobCancelReviews))
	mux.HandleFunc("POST /v1/jobs/import", rt.enqueueImport)
	mux.HandleFunc("GET /v1/jobs/{job_id}", rt.jobStatus)

	mux.HandleFunc("GET /v1/revisions/{document_id}/{revision}", rt.getRevision)
	mux.HandleFunc("GET /v1/revisions/{document_id}/{revision}/reviews", rt.listReviews)
	mux.HandleFunc("GET /v1/revisions/{document_id}/{revision}/activity", rt.revisionActivity)
	mux.HandleFunc("POST /v1/revisions/{document_id}/{revision}/review/{action}", rt.reviewAction)
	mux.HandleFunc("POST /v1/revisions/{document_id}/{revision}/submit", rt.submitReview)
	mux.HandleFunc("PUT /v1/revisions/{document_id}/{revision}/distribution", rt.updateDistribution)

	mux.HandleFunc("POST /v1/transmittals/{id}/accept", rt.acceptTransmittal)
	mux.HandleFunc("POST /v1/transmittals/{id}/reject", rt.rejectTransmittal)
	mux.HandleFunc("GET /v1/transmittals/{id}/activity", rt.transmittalActivity)
	mux.HandleFunc("POST /v1/staging/{line_id}", rt.reviewStagingLine)

	mux.HandleFunc("POST /v1/outgoing", rt.buildOutgoing)
	mux.HandleFunc("GET /v1/outgoing/{id}", rt.getOutgoing)

	mux.HandleFunc("GET /v1/notifications/{user_id}", rt.listNotifications)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIBackpressureMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) record(action string, err error) {
	if rt.deps.Recorder != nil {
		rt.deps.Recorder.RecordWorkflowAction(serviceName, action, err)
	}
}

func actorFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(actorHeader))
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := actorFromRequest(r)
	if actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": actorHeader + " header is required"})
		return "", false
	}
	return actor, true
}

func revisionKeyFromPath(r *http.Request) (domain.RevisionKey, error) {
	documentID := r.PathValue("document_id")
	revision, err := strconv.Atoi(r.PathValue("revision"))
	if documentID == "" || err != nil || revision < 0 {
		return domain.RevisionKey{}, domain.WrapError(domain.ErrInvalidInput, "parse revision path",
			fmt.Errorf("invalid revision %q of document %q", r.PathValue("revision"), documentID))
	}
	return domain.RevisionKey{DocumentID: documentID, Revision: revision}, nil
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json"))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
