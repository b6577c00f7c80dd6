// Package errors defines fern's error taxonomy on top of HTTP-status-carrying
// errors: validation (400), policy violation (403), not found (404),
// conflict (409). Per-recipient transient store failures are collected into
// the fan-out summary instead of surfacing here.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/fern/pkg/models"
)

// NewValidationErrorf returns a 400 for malformed input, rejected before any
// store access.
func NewValidationErrorf(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusBadRequest, format, args...)
}

// NewNotFoundErrorf returns a 404 for write paths that require existence.
// Read paths return (nil, nil) instead.
func NewNotFoundErrorf(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusNotFound, format, args...)
}

// NewConflictErrorf returns a 409, e.g. for deciding a non-Pending request.
func NewConflictErrorf(format string, args ...any) error {
	return httperror.NewHTTPErrorf(http.StatusConflict, format, args...)
}

func IsValidation(err error) bool {
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusBadRequest
}

func IsNotFound(err error) bool {
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound
}

func IsConflict(err error) bool {
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusConflict
}

// PolicyViolationError aborts an entire fan-out: one of the activity's
// actor/targets/owner is not targetable under the governance policy.
type PolicyViolationError struct {
	Entity models.EntityRef
	Reason string
}

func NewPolicyViolation(entity models.EntityRef, reason string) *PolicyViolationError {
	return &PolicyViolationError{
		Entity: entity,
		Reason: reason,
	}
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("entity %s is not targetable: %s", e.Entity.Key(), e.Reason)
}

func (e *PolicyViolationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusForbidden, e.Error()).
		AddMetaValue("entity_key", e.Entity.Key()).
		AddMetaValue("reason", e.Reason)
}

func IsPolicyViolation(err error) bool {
	var pv *PolicyViolationError
	return errors.As(err, &pv)
}
