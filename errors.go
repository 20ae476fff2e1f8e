package pilot

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("pilot: no store configured")
	ErrStoreClosed = errors.New("pilot: store closed")

	// Not found errors.
	ErrRunNotFound      = errors.New("pilot: run not found")
	ErrSelectorNotFound = errors.New("pilot: cached selector not found")
	ErrPersonaNotFound  = errors.New("pilot: persona not found")
	ErrEventNotFound    = errors.New("pilot: event not found")

	// Conflict errors.
	ErrRunAlreadyExists = errors.New("pilot: run already exists")

	// Validation errors. These are caller bugs: fatal, never retried.
	ErrBlankGoal = errors.New("pilot: goal text is blank")
	ErrBlankURL  = errors.New("pilot: url is blank")

	// State errors.
	ErrInvalidTransition = errors.New("pilot: invalid run state transition")
	ErrRunTerminal       = errors.New("pilot: run already terminal")

	// Admission errors. Rejected fast at submission, never queued.
	ErrConcurrencyLimit = errors.New("pilot: global concurrency limit reached")
	ErrTenantLimit      = errors.New("pilot: tenant concurrency limit reached")
	ErrPoolSaturated    = errors.New("pilot: worker pool saturated")

	// Execution errors.
	ErrNoSelector       = errors.New("pilot: no selector candidate found")
	ErrPlanGeneration   = errors.New("pilot: plan generation failed")
	ErrMalformedPayload = errors.New("pilot: malformed AI response payload")
	ErrBridgeClosed     = errors.New("pilot: browser bridge connection closed")
)
