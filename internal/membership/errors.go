package membership

import (
	"errors"
	"fmt"
)

var (
	ErrNotMember            = errors.New("not a member of this household")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrAlreadyMember        = errors.New("already a member or request pending")
	ErrSelfRemovalForbidden = errors.New("the household admin cannot be removed")
	ErrNotFound             = errors.New("not found")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrInvalidDecision      = errors.New("decision must be approve or deny")
	ErrInvalidName          = errors.New("household name is required")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// Outcome names the result of a policy call for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, ErrSelfRemovalForbidden):
		return "self_removal_forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrInvalidDecision), errors.Is(err, ErrInvalidName):
		return "invalid"
	default:
		return "error"
	}
}
