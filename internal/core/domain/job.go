package domain

import (
	"encoding/json"
	"time"
)

type JobKind string

const (
	JobStartReviews       JobKind = "review.start"
	JobCancelReviews      JobKind = "review.cancel"
	JobImportTransmittals JobKind = "transmittal.import"
	JobProcessTransmittal JobKind = "transmittal.process"
)

type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCanceled  JobState = "canceled"
)

// JobRequest is the message carried from the api to workers.
type JobRequest struct {
	ID          string          `json:"id"`
	Kind        JobKind         `json:"kind"`
	RequestedBy string          `json:"requested_by"`
	Payload     json.RawMessage `json:"payload"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// JobStatus is the pollable state of a job.
type JobStatus struct {
	ID        string          `json:"id"`
	Kind      JobKind         `json:"kind"`
	State     JobState        `json:"state"`
	Progress  float64         `json:"progress"`
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s JobState) Finished() bool {
	return s == JobSucceeded || s == JobFailed || s == JobCanceled
}

// BatchReviewPayload selects documents for a batch review job.
type BatchReviewPayload struct {
	DocumentIDs []string `json:"document_ids"`
}

// ProcessTransmittalPayload selects the transmittal to process.
type ProcessTransmittalPayload struct {
	TransmittalID string `json:"transmittal_id"`
}

// BatchResult lists per-document outcomes of a batch job.
type BatchResult struct {
	OK  []BatchItem `json:"ok"`
	NOK []BatchItem `json:"nok"`
}

type BatchItem struct {
	DocumentID  string `json:"document_id"`
	DocumentKey string `json:"document_key,omitempty"`
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// ImportTransmittalsPayload selects incoming directories to import. Empty means
// every directory under the incoming root.
type ImportTransmittalsPayload struct {
	Basenames []string `json:"basenames,omitempty"`
}

// ImportSummary lists the outcome of each imported directory.
type ImportSummary struct {
	Imported []string          `json:"imported"`
	Rejected map[string]string `json:"rejected"`
}
