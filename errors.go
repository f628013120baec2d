package cinefusion

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation  = errors.New("cinefusion: invalid query")
	ErrRateLimited = errors.New("cinefusion: rate limited")
	ErrBuild       = errors.New("cinefusion: build failed")
)

// ValidationError reports a query parameter that cannot be executed.
type ValidationError struct {
	Field    string
	Provided any
	Expected string
}

func (e *ValidationError) Error() string {
	if e.Provided == nil {
		return fmt.Sprintf("cinefusion: invalid %s: expected %s", e.Field, e.Expected)
	}
	return fmt.Sprintf("cinefusion: invalid %s %v: expected %s", e.Field, e.Provided, e.Expected)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field string, provided any, expected string) *ValidationError {
	return &ValidationError{Field: field, Provided: provided, Expected: expected}
}

// RateLimitedError carries the instant a rejected client may retry.
type RateLimitedError struct {
	Limit   int
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("cinefusion: rate limit of %d exceeded, retry at %s", e.Limit, e.ResetAt.Format(time.RFC3339))
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// BuildError identifies the input record that stopped an index build.
type BuildError struct {
	Index  int
	ID     uint32
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("cinefusion: record %d (id %d): %s", e.Index, e.ID, e.Reason)
}

func (e *BuildError) Is(target error) bool { return target == ErrBuild }
