package routernode

import (
	"fmt"

	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

type RouteKind string

const (
	RouteGreeting RouteKind = "greeting"
	RouteNone     RouteKind = "noop"
	RouteSingle   RouteKind = "single"
	RouteMulti    RouteKind = "multi"
)

// Route is what the router does with one user message.
type Route struct {
	Kind      RouteKind
	SessionID string
	Message   contractx.EndUserMessage
	Plan      contractx.Plan
	// Target is the specialist for RouteSingle and the coordinator for RouteMulti.
	Target      contractx.AgentType
	ClassifyErr error
}

func ResolveRoute(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	route := Route{
		SessionID:   in.SessionID,
		Message:     in.Message,
		Plan:        in.Plan,
		ClassifyErr: in.ClassifyErr,
	}
	switch {
	case in.Plan.IsGreeting:
		route.Kind = RouteGreeting
	case len(in.Plan.Subtasks) == 0:
		route.Kind = RouteNone
	case len(in.Plan.Subtasks) == 1:
		route.Kind = RouteSingle
		route.Target = in.Plan.Subtasks[0].AssignedAgent
	default:
		route.Kind = RouteMulti
		route.Target = contractx.AgentTypeCoordinator
	}
	return GraphOutput{Route: route}, nil
}
