package routernode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type GraphInput struct {
	SessionID string
	Message   contractx.EndUserMessage
}

type GraphOutput struct {
	Route Route
}

type GraphState struct {
	SessionID string
	Message   contractx.EndUserMessage
	Now       time.Time

	History []contractx.EndUserMessage
	Plan    contractx.Plan
	// ClassifyErr is kept for logging; a failed classification routes as an empty plan.
	ClassifyErr error
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	if strings.TrimSpace(in.Message.Content) == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		Message:   in.Message,
		Now:       nowFn().UTC(),
	}, nil
}
