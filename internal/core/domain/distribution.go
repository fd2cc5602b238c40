package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DistributionList is the set of participants of a revision review.
type DistributionList struct {
	Reviewers []string `json:"reviewers"`
	Leader    string   `json:"leader"`
	Approver  string   `json:"approver,omitempty"`
}

// Validate rejects a list where one user holds more than one of leader, approver or reviewer.
func (l DistributionList) Validate() error {
	if l.Leader == "" && (l.Approver != "" || len(l.Reviewers) > 0) {
		return WrapError(ErrInvalidInput, "validate distribution list", errors.New("a leader is required when reviewers or an approver are set"))
	}

	seen := make(map[string]string, len(l.Reviewers)+2)
	var dups []string
	mark := func(user, role string) {
		if user == "" {
			return
		}
		if prev, ok := seen[user]; ok {
			dups = append(dups, fmt.Sprintf("%s (%s, %s)", user, prev, role))
			return
		}
		seen[user] = role
	}
	mark(l.Leader, string(RoleLeader))
	mark(l.Approver, string(RoleApprover))
	for _, r := range l.Reviewers {
		mark(r, string(RoleReviewer))
	}
	if len(dups) > 0 {
		return WrapError(ErrInvalidInput, "validate distribution list",
			fmt.Errorf("users appear more than once in the distribution list: %s", strings.Join(dups, ", ")))
	}
	return nil
}

// HasReviewer reports whether userID is a named reviewer.
func (l DistributionList) HasReviewer(userID string) bool {
	for _, r := range l.Reviewers {
		if r == userID {
			return true
		}
	}
	return false
}
