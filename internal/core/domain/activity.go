package domain

import "time"

const (
	VerbReviewStarted       = "review_started"
	VerbReviewCanceled      = "review_canceled"
	VerbReviewersStepClosed = "reviewers_step_closed"
	VerbLeaderStepClosed    = "leader_step_closed"
	VerbReviewClosed        = "review_closed"
	VerbReviewSubmitted     = "review_submitted"
	VerbDistributionEdited  = "distribution_list_edited"
	VerbTransmittalImported = "transmittal_imported"
	VerbTransmittalAccepted = "transmittal_accepted"
	VerbTransmittalRejected = "transmittal_rejected"
	VerbOutgoingCreated     = "outgoing_transmittal_created"
)

// Activity is one audit trail entry.
type Activity struct {
	ID         string    `json:"id" db:"id"`
	Actor      string    `json:"actor" db:"actor"`
	Verb       string    `json:"verb" db:"verb"`
	TargetType string    `json:"target_type" db:"target_type"`
	TargetID   string    `json:"target_id" db:"target_id"`
	Detail     string    `json:"detail,omitempty" db:"detail"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Notification is a user-visible message.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Body      string    `json:"body" db:"body"`
	Seen      bool      `json:"seen" db:"seen"`
	CreatedOn time.Time `json:"created_on" db:"created_on"`
}

type IndexOp string

const (
	IndexOpIndex  IndexOp = "index"
	IndexOpDelete IndexOp = "delete"
)

// IndexAction is one search index operation keyed by Revision.IndexID.
type IndexAction struct {
	Op   IndexOp        `json:"op"`
	ID   string         `json:"id"`
	Body map[string]any `json:"body,omitempty"`
}

// ChoiceEntry is one value of a configurable choice list.
type ChoiceEntry struct {
	ID        string `json:"id" db:"id"`
	ListIndex int    `json:"list_index" db:"list_index"`
	Index     string `json:"index" db:"value"`
	Label     string `json:"label" db:"label"`
}
