package domain

import (
	"fmt"
	"time"
)

type ReviewStep string

const (
	StepPending  ReviewStep = "pending"
	StepReviewer ReviewStep = "reviewer"
	StepLeader   ReviewStep = "leader"
	StepApprover ReviewStep = "approver"
	StepClosed   ReviewStep = "closed"
)

// RevisionKey identifies a revision of a document.
type RevisionKey struct {
	DocumentID string `json:"document_id"`
	Revision   int    `json:"revision"`
}

func (k RevisionKey) String() string {
	return fmt.Sprintf("%s#%02d", k.DocumentID, k.Revision)
}

// ReviewState holds the review dates of a revision.
type ReviewState struct {
	ReviewStartDate     *time.Time `json:"review_start_date,omitempty" db:"review_start_date"`
	ReviewDueDate       *time.Time `json:"review_due_date,omitempty" db:"review_due_date"`
	ReviewersStepClosed *time.Time `json:"reviewers_step_closed,omitempty" db:"reviewers_step_closed"`
	LeaderStepClosed    *time.Time `json:"leader_step_closed,omitempty" db:"leader_step_closed"`
	ReviewEndDate       *time.Time `json:"review_end_date,omitempty" db:"review_end_date"`
}

// TransmittalState holds the outgoing transmittal fields of a revision.
type TransmittalState struct {
	TransmittalID         string     `json:"transmittal_id,omitempty" db:"transmittal_id"`
	TransmittalSentDate   *time.Time `json:"transmittal_sent_date,omitempty" db:"transmittal_sent_date"`
	ExternalReviewDueDate *time.Time `json:"external_review_due_date,omitempty" db:"external_review_due_date"`
}

// Revision is one dated version of a document.
type Revision struct {
	ID           string            `json:"id"`
	DocumentID   string            `json:"document_id"`
	DocumentKey  string            `json:"document_key"`
	DocumentType string            `json:"document_type"`
	Category     string            `json:"category"`
	Revision     int               `json:"revision"`
	Title        string            `json:"title"`
	Status       string            `json:"status"`
	ReturnCode   string            `json:"return_code,omitempty"`
	Docclass     int               `json:"docclass"`
	Fields       map[string]string `json:"fields,omitempty"`
	Distribution DistributionList  `json:"distribution"`
	ReviewState
	TransmittalState
	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

func (r *Revision) Key() RevisionKey {
	return RevisionKey{DocumentID: r.DocumentID, Revision: r.Revision}
}

// IndexID is the stable search identifier of the revision.
func (r *Revision) IndexID() string {
	return fmt.Sprintf("%s_%02d", r.DocumentKey, r.Revision)
}

// CanBeReviewed reports whether a review may be started.
func (r *Revision) CanBeReviewed() bool {
	return r.Distribution.Leader != "" && r.ReviewStartDate == nil
}

// IsUnderReview is true iff the review started and has not ended.
func (r *Revision) IsUnderReview() bool {
	return (r.ReviewStartDate != nil) != (r.ReviewEndDate != nil)
}

// IsReviewed reports whether a review actually ran to its end.
func (r *Revision) IsReviewed() bool {
	return r.ReviewStartDate != nil && r.ReviewEndDate != nil
}

// IsOverdue compares the review due date with today.
func (r *Revision) IsOverdue(today time.Time) bool {
	if r.ReviewDueDate == nil {
		return false
	}
	return r.ReviewDueDate.Before(Day(today))
}

// CurrentReviewStep derives the step from the first unset date.
func (r *Revision) CurrentReviewStep() ReviewStep {
	switch {
	case r.ReviewStartDate == nil:
		return StepPending
	case r.ReviewersStepClosed == nil:
		return StepReviewer
	case r.LeaderStepClosed == nil:
		return StepLeader
	case r.ReviewEndDate == nil:
		return StepApprover
	default:
		return StepClosed
	}
}

// IsReviewer reports whether userID is a named reviewer of the revision.
func (r *Revision) IsReviewer(userID string) bool {
	return r.Distribution.HasReviewer(userID)
}

// ResetReview nulls every review date.
func (r *Revision) ResetReview() {
	r.ReviewState = ReviewState{}
}

// Reviewable is a revision type that supports the review protocol.
type Reviewable interface {
	Key() RevisionKey
	CanBeReviewed() bool
	IsUnderReview() bool
	CurrentReviewStep() ReviewStep
}

// Transmittable is a reviewable revision that can be embedded in an outgoing transmittal.
type Transmittable interface {
	Reviewable
	IsReviewed() bool
	Transmitted() bool
}

// Transmitted reports whether the revision already left in an outgoing transmittal.
func (r *Revision) Transmitted() bool {
	return r.TransmittalID != ""
}

var (
	_ Reviewable    = (*Revision)(nil)
	_ Transmittable = (*Revision)(nil)
)
