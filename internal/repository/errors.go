package repository

import (
	"errors"
	"strings"
)

// ErrPortalNotFound is returned by lookups for a portal that does not exist.
var ErrPortalNotFound = errors.New("portal not found")

// Messages raised by the review and portal procedures.
const (
	MsgInvalidPortalID  = "Invalid portal_id"
	MsgRatingRange      = "Rating must be between 1 and 5"
	MsgInvalidMetadata  = "Invalid metadata fields"
	MsgFreePlanLimit    = "Free plan users can only create one portal"
	MsgPortalNameNeeded = "Portal name is required"
	MsgInvalidEmail     = "Invalid email address"
	MsgDuplicateEmail   = "Duplicate email address"
	MsgInvalidAccess    = "Invalid access level"
)

// ProcedureError is a business rule violation. Its message is shown to
// callers verbatim.
type ProcedureError struct {
	Message string
}

func (e *ProcedureError) Error() string { return e.Message }

func procErr(msg string, detail ...string) error {
	if len(detail) > 0 {
		msg += ": " + strings.Join(detail, ", ")
	}
	return &ProcedureError{Message: msg}
}

// AsProcedureError reports whether err is (or wraps) a rule violation and
// returns its message.
func AsProcedureError(err error) (string, bool) {
	var pe *ProcedureError
	if errors.As(err, &pe) {
		return pe.Message, true
	}
	return "", false
}
