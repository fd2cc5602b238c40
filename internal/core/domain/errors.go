package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrPrecondition = errors.New("precondition failed")
	ErrConflict     = errors.New("conflict")
	ErrTemporary    = errors.New("temporary failure")

	ErrReviewNotFound = errors.New("review not found")

	ErrNoRevisions      = errors.New("no revisions to transmit")
	ErrNotTransmittable = errors.New("revision type cannot be transmitted")
	ErrNotReviewed      = errors.New("revision review not completed")
	ErrCategoryMismatch = errors.New("revision category mismatch")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
