package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/phase-edms/internal/config"
	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/core/ports"
)

type jobsFake struct {
	enqueued []domain.JobKind
	payloads []any
	err      error
}

func (f *jobsFake) Enqueue(_ context.Context, kind domain.JobKind, requestedBy string, payload any) (*domain.JobRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.enqueued = append(f.enqueued, kind)
	f.payloads = append(f.payloads, payload)
	return &domain.JobRequest{ID: "job-1", Kind: kind, RequestedBy: requestedBy}, nil
}

func (f *jobsFake) Status(_ context.Context, id string) (*domain.JobStatus, error) {
	if id == "missing" {
		return nil, domain.WrapError(domain.ErrNotFound, "get job status", errors.New("id=missing"))
	}
	return &domain.JobStatus{ID: id, State: domain.JobRunning, Progress: 40}, nil
}

type outgoingFake struct {
	err error
}

func (f outgoingFake) Build(_ context.Context, _ string, req ports.OutgoingRequest) (*domain.OutgoingTransmittal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.OutgoingTransmittal{ID: "out-1", Recipient: req.Recipient}, nil
}

type transmittalsFake struct {
	err error
}

func (f transmittalsFake) Accept(_ context.Context, actor, id string) (*domain.JobRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.JobRequest{ID: "job-2", Kind: domain.JobProcessTransmittal, RequestedBy: actor}, nil
}

func (f transmittalsFake) Reject(_ context.Context, _, id string) (*domain.Transmittal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Transmittal{ID: id, Status: domain.TransmittalRejected}, nil
}

func (f transmittalsFake) ReviewLine(context.Context, string, string, bool, string) error {
	return f.err
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrNotFound, "op", errors.New("x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrConflict, "op", errors.New("x")), http.StatusConflict},
		{domain.WrapError(domain.ErrPrecondition, "op", errors.New("x")), http.StatusPreconditionFailed},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestJobStatusReturns404ForUnknownJob(t *testing.T) {
	handler := NewRouter(config.Config{}, Dependencies{Jobs: &jobsFake{}}, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/jobs/missing", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestEnqueueBatchReviewPublishesJob(t *testing.T) {
	jobs := &jobsFake{}
	handler := NewRouter(config.Config{}, Dependencies{Jobs: jobs}, nil).Handler()

	payload, _ := json.Marshal(map[string]any{"document_ids": []string{"doc-1", "doc-2"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/review-start", bytes.NewReader(payload))
	req.Header.Set(actorHeader, "dc")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if len(jobs.enqueued) != 1 || jobs.enqueued[0] != domain.JobStartReviews {
		t.Fatalf("unexpected enqueued jobs %v", jobs.enqueued)
	}
	got := jobs.payloads[0].(domain.BatchReviewPayload)
	if len(got.DocumentIDs) != 2 {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestEnqueueRequiresActor(t *testing.T) {
	handler := NewRouter(config.Config{}, Dependencies{Jobs: &jobsFake{}}, nil).Handler()

	payload, _ := json.Marshal(map[string]any{"document_ids": []string{"doc-1"}})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/jobs/review-cancel", bytes.NewReader(payload)))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestEnqueueMapsQueueOutageTo503(t *testing.T) {
	jobs := &jobsFake{err: domain.WrapError(domain.ErrTemporary, "publish job", errors.New("nats down"))}
	handler := NewRouter(config.Config{}, Dependencies{Jobs: jobs}, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/import", nil)
	req.Header.Set(actorHeader, "dc")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestBuildOutgoingMapsNotReviewedTo412(t *testing.T) {
	err := domain.WrapError(domain.ErrPrecondition, "check revision", domain.ErrNotReviewed)
	handler := NewRouter(config.Config{}, Dependencies{Outgoing: outgoingFake{err: err}}, nil).Handler()

	payload, _ := json.Marshal(map[string]any{
		"revisions": []map[string]any{{"document_id": "doc-1", "revision": 1}},
		"category":  "clt-outgoing",
		"recipient": "CTR",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/outgoing", bytes.NewReader(payload))
	req.Header.Set(actorHeader, "dc")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", res.Code)
	}
}

func TestAcceptTransmittalReturnsJob(t *testing.T) {
	handler := NewRouter(config.Config{}, Dependencies{Transmittals: transmittalsFake{}}, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/transmittals/trs-1/accept", nil)
	req.Header.Set(actorHeader, "dc")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	var job domain.JobRequest
	if err := json.NewDecoder(res.Body).Decode(&job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Kind != domain.JobProcessTransmittal || job.RequestedBy != "dc" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestRejectTransmittalFromWrongStatusReturns412(t *testing.T) {
	err := domain.WrapError(domain.ErrPrecondition, "reject transmittal", errors.New("status accepted"))
	handler := NewRouter(config.Config{}, Dependencies{Transmittals: transmittalsFake{err: err}}, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/transmittals/trs-1/reject", nil)
	req.Header.Set(actorHeader, "dc")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412, got %d", res.Code)
	}
}

func TestReviewStagingLineRequiresDecision(t *testing.T) {
	handler := NewRouter(config.Config{}, Dependencies{Transmittals: transmittalsFake{}}, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/staging/line-1", bytes.NewReader([]byte(`{"comment":"x"}`)))
	req.Header.Set(actorHeader, "dc")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/staging/line-1", bytes.NewReader([]byte(`{"accepted":false,"comment":"wrong revision"}`)))
	req.Header.Set(actorHeader, "dc")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
}
