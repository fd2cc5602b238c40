// Package trsimport validates and imports incoming transmittal directories.
//
// A directory named CONTRACT-ORIGINATOR-RECIPIENT-TRS-NNNNN holds one CSV
// manifest named after the directory, one PDF per CSV line and optional native
// files sharing a PDF's base name. Validation findings are data: they are
// collected into a domain.ImportReport and never returned as errors.
package trsimport

import (
	"context"

	"github.com/kirillkom/phase-edms/internal/core/domain"
)

// Validator checks one subject. A nil or empty result means the check passed.
type Validator[T any] interface {
	Validate(ctx context.Context, subject T) domain.ValidationErrors
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc[T any] func(ctx context.Context, subject T) domain.ValidationErrors

func (f ValidatorFunc[T]) Validate(ctx context.Context, subject T) domain.ValidationErrors {
	return f(ctx, subject)
}

// AndValidator stops at the first failing validator.
type AndValidator[T any] []Validator[T]

func (v AndValidator[T]) Validate(ctx context.Context, subject T) domain.ValidationErrors {
	for _, validator := range v {
		if errs := validator.Validate(ctx, subject); len(errs) > 0 {
			return errs
		}
	}
	return nil
}

// CompositeValidator runs every validator and merges their findings.
type CompositeValidator[T any] []Validator[T]

func (v CompositeValidator[T]) Validate(ctx context.Context, subject T) domain.ValidationErrors {
	var out domain.ValidationErrors
	for _, validator := range v {
		for code, detail := range validator.Validate(ctx, subject) {
			if out == nil {
				out = domain.ValidationErrors{}
			}
			out[code] = detail
		}
	}
	return out
}

// fail builds a single-entry finding.
func fail(code, detail string) domain.ValidationErrors {
	return domain.ValidationErrors{code: detail}
}
