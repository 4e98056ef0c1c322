package contract

import (
	"encoding/json"
	"fmt"
	"strings"
)

type AgentType string

const (
	AgentTypeFlight      AgentType = "flight_booking"
	AgentTypeHotel       AgentType = "hotel_booking"
	AgentTypeCarRental   AgentType = "car_rental"
	AgentTypeActivities  AgentType = "activities_booking"
	AgentTypeDestination AgentType = "destination_info"
	AgentTypeDefault     AgentType = "default_agent"

	AgentTypeRouter      AgentType = "router"
	AgentTypeCoordinator AgentType = "coordinator"
	AgentTypeUserProxy   AgentType = "user_proxy"
)

// SourceUser is the source recorded on messages typed by the end user.
const SourceUser = "User"

// Specialists lists the closed set of agents a plan may assign work to, in canonical order.
var Specialists = []AgentType{
	AgentTypeFlight,
	AgentTypeHotel,
	AgentTypeCarRental,
	AgentTypeActivities,
	AgentTypeDestination,
	AgentTypeDefault,
}

func (t AgentType) IsSpecialist() bool {
	for _, s := range Specialists {
		if s == t {
			return true
		}
	}
	return false
}

func (t AgentType) String() string {
	return string(t)
}

// TopicID addresses type-level subscribers. Source is the session id.
type TopicID struct {
	Type   AgentType `json:"type"`
	Source string    `json:"source"`
}

// AgentID addresses one agent instance. Key is the session id.
type AgentID struct {
	Type AgentType `json:"type"`
	Key  string    `json:"key"`
}

func (id AgentID) String() string {
	return fmt.Sprintf("%s/%s", id.Type, id.Key)
}

// MessageContext describes how a message reached a handler.
type MessageContext struct {
	Topic  TopicID
	Sender string
	// Direct is true for point-to-point sends whose reply goes back to the caller.
	Direct bool
}

// SessionID returns the session the message belongs to.
func (mc MessageContext) SessionID() string {
	return mc.Topic.Source
}

type Kind string

const (
	KindEndUser  Kind = "end_user_message"
	KindDispatch Kind = "dispatch_request"
	KindResult   Kind = "specialist_result"
	KindHandoff  Kind = "handoff_message"
	KindPlan     Kind = "plan"
)

// Message is the closed set of payloads exchanged over the bus.
type Message interface {
	Kind() Kind
	sealed()
}

type EndUserMessage struct {
	Source  string `json:"source"`
	Content string `json:"content"`
	// Hops counts how many times this text has been handed back to the router.
	Hops int `json:"hops,omitempty"`
}

type DispatchRequest struct {
	Source       string `json:"source"`
	Content      string `json:"content"`
	OriginalTask string `json:"original_task,omitempty"`
}

type HandoffMessage struct {
	Source    string `json:"source"`
	Requester string `json:"requester,omitempty"`
	Content   string `json:"content"`
	Complete  bool   `json:"complete,omitempty"`
	Hops      int    `json:"hops,omitempty"`
}

type SubTask struct {
	TaskDetails   string    `json:"task_details"`
	AssignedAgent AgentType `json:"assigned_agent"`
}

type Plan struct {
	MainTask   string    `json:"main_task"`
	Subtasks   []SubTask `json:"subtasks"`
	IsGreeting bool      `json:"is_greeting"`
}

// Validate checks that every subtask names a known specialist. A greeting
// plan is valid whatever its subtasks hold; they are never dispatched.
func (p Plan) Validate() error {
	if p.IsGreeting {
		return nil
	}
	for i, st := range p.Subtasks {
		if !st.AssignedAgent.IsSpecialist() {
			return fmt.Errorf("%w: subtask %d assigned to unknown agent %q", ErrSchemaViolation, i, st.AssignedAgent)
		}
		if strings.TrimSpace(st.TaskDetails) == "" {
			return fmt.Errorf("%w: subtask %d has empty task_details", ErrSchemaViolation, i)
		}
	}
	return nil
}

func (EndUserMessage) Kind() Kind   { return KindEndUser }
func (DispatchRequest) Kind() Kind  { return KindDispatch }
func (SpecialistResult) Kind() Kind { return KindResult }
func (HandoffMessage) Kind() Kind   { return KindHandoff }
func (Plan) Kind() Kind             { return KindPlan }

func (EndUserMessage) sealed()   {}
func (DispatchRequest) sealed()  {}
func (SpecialistResult) sealed() {}
func (HandoffMessage) sealed()   {}
func (Plan) sealed()             {}

// DecodeMessage rebuilds a Message from its kind tag and JSON payload.
func DecodeMessage(kind Kind, payload []byte) (Message, error) {
	switch kind {
	case KindEndUser:
		var m EndUserMessage
		err := json.Unmarshal(payload, &m)
		return m, wrapDecode(kind, err)
	case KindDispatch:
		var m DispatchRequest
		err := json.Unmarshal(payload, &m)
		return m, wrapDecode(kind, err)
	case KindResult:
		var m SpecialistResult
		err := json.Unmarshal(payload, &m)
		return m, wrapDecode(kind, err)
	case KindHandoff:
		var m HandoffMessage
		err := json.Unmarshal(payload, &m)
		return m, wrapDecode(kind, err)
	case KindPlan:
		var m Plan
		err := json.Unmarshal(payload, &m)
		return m, wrapDecode(kind, err)
	default:
		return nil, fmt.Errorf("%w: unknown message kind %q", ErrValidation, kind)
	}
}

func wrapDecode(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: decode %s: %v", ErrValidation, kind, err)
}

type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
