package worker

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/jdholdren/webtrack/internal/webtrack"
)

// Error types
//
// These are error types in the temporal sense, not the general "go" error types sense.
// They are used since between activities error types are marshaled and type information is lost.
const (
	errTypeInternal         = "internal"
	errTypeRequestFinalized = "requestFinalized"
	errTypeRequestNotFound  = "requestNotFound"
)

// Converts a job error into an application error carrying its type.
//
// A request that is gone or already finished can never be processed, so those aren't retried.
func activityError(err error) error {
	switch {
	case errors.Is(err, webtrack.ErrRequestFinalized):
		return temporal.NewNonRetryableApplicationError("request already finished", errTypeRequestFinalized, err)
	case errors.Is(err, webtrack.ErrProcessingRequestNotFound):
		return temporal.NewNonRetryableApplicationError("request not found", errTypeRequestNotFound, err)
	default:
		return temporal.NewApplicationErrorWithCause(err.Error(), errTypeInternal, err)
	}
}

// Returns the temporal error type carried by the error, or an empty string.
func errType(err error) string {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		return ""
	}

	return appErr.Type()
}
