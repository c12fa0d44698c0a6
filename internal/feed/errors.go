package feed

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("viewer is not authenticated")
	ErrPostNotFound    = errors.New("post is not in the feed")
)

// ValidationError rejects a draft before any repository call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// QueryError is a rejection of the base page query.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("fetch page: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
