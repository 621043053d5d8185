package domain

import (
	"errors"
	"fmt"
)

var (
	ErrVideoNotFound           = errors.New("video not found")
	ErrEvaluationNotFound      = errors.New("evaluation not found")
	ErrRubricNotFound          = errors.New("rubric not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidStatusTransition = errors.New("invalid evaluation status transition")
	ErrConflict                = errors.New("conflict")
	ErrMissingDependency       = errors.New("missing dependency")
	ErrTimeout                 = errors.New("timeout")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrTemporary               = errors.New("temporary failure")
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

// IsNotFound reports whether err is any of the not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrVideoNotFound) ||
		errors.Is(err, ErrEvaluationNotFound) ||
		errors.Is(err, ErrRubricNotFound)
}
