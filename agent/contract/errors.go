package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	ErrUnhandledMessage = errors.New("message kind not handled by agent")
	ErrAgentNotFound    = errors.New("agent type is not registered")
	ErrBusClosed        = errors.New("message bus is closed")
	ErrHandoffLimit     = errors.New("handoff hop limit exceeded")
)
