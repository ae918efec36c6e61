package contract

import "errors"

// Model boundary failures.
var (
	ErrModelUnavailable = errors.New("model unavailable")
	ErrSchemaViolation  = errors.New("model response violates schema")
	ErrUnsupportedTool  = errors.New("unsupported tool")
	ErrPromptMissing    = errors.New("required prompt is missing")
)

// Business-rule violations. Recovered locally and routed back to the model as
// tool errors; they never terminate the dialogue loop.
var (
	ErrUnknownMenuItem = errors.New("unknown menu item")
	ErrInvalidOption   = errors.New("invalid option")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrItemNotFound    = errors.New("item not found in order")
	ErrEmptyOrder      = errors.New("order is empty")
	ErrInvalidState    = errors.New("order state does not allow this operation")
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrMemoryUnavailable = errors.New("memory store unavailable")
)
