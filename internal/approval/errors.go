package approval

import "errors"

// Action errors. Everything except notification delivery aborts the mutation
// and leaves persisted state untouched; handlers map these onto HTTP statuses.
var (
	// ErrNotFound means the referenced document or step does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the document or step is not in the state the
	// action requires (e.g. approving an already approved step). The wrap
	// site includes the actual current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrForbidden means the caller is not the drafter/approver the action
	// is reserved for. Distinct from ErrInvalidState so clients can render
	// "not your turn" differently from "already processed".
	ErrForbidden = errors.New("forbidden")

	// ErrValidation means a required field is missing or malformed. Raised
	// before any mutation is attempted.
	ErrValidation = errors.New("validation failed")

	// ErrConcurrentModification means a precondition held at read time but
	// no longer held at commit time. Retryable by the caller; never retried
	// here.
	ErrConcurrentModification = errors.New("concurrent modification")
)
