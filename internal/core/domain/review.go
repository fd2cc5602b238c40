package domain

import "time"

type Role string

const (
	RoleReviewer Role = "reviewer"
	RoleLeader   Role = "leader"
	RoleApprover Role = "approver"
)

func (r Role) Valid() bool {
	switch r {
	case RoleReviewer, RoleLeader, RoleApprover:
		return true
	default:
		return false
	}
}

// Review is one participant's slot in a revision review.
// (ReviewerID, DocumentID, Revision, Role) is unique.
type Review struct {
	ID         string     `json:"id" db:"id"`
	ReviewerID string     `json:"reviewer_id" db:"reviewer_id"`
	DocumentID string     `json:"document_id" db:"document_id"`
	Revision   int        `json:"revision" db:"revision"`
	Role       Role       `json:"role" db:"role"`
	DueDate    *time.Time `json:"due_date,omitempty" db:"due_date"`
	Docclass   int        `json:"docclass" db:"docclass"`
	ReviewedOn *time.Time `json:"reviewed_on,omitempty" db:"reviewed_on"`
	Closed     bool       `json:"closed" db:"closed"`
	Comments   string     `json:"comments,omitempty" db:"comments"`
	ReturnCode string     `json:"return_code,omitempty" db:"return_code"`
}

// Submitted reports whether the participant posted their review.
func (r Review) Submitted() bool {
	return r.ReviewedOn != nil
}

// Submission is a participant's posted review.
type Submission struct {
	ReviewerID string
	Role       Role
	Comments   string
	ReturnCode string
}
