package specialist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	logx "github.com/tanpawarit/chative-travel/pkg/logger"
)

type Config struct {
	// HandoffPhrases mark requests a single specialist cannot serve. They go
	// back to the router instead.
	HandoffPhrases []string `split_words:"true" default:"travel plan"`
}

// Task is one unit of specialist work, either typed by the user or carved
// out of a plan by the coordinator.
type Task struct {
	SessionID    string
	Content      string
	OriginalTask string
}

// Worker does the domain work behind an Agent.
type Worker interface {
	Type() contractx.AgentType
	Perform(ctx context.Context, task Task) (contractx.SpecialistResult, error)
}

// Ledger records confirmed bookings. Failures are logged, never surfaced.
type Ledger interface {
	Record(ctx context.Context, sessionID string, res contractx.SpecialistResult) error
}

type noopLedger struct{}

func (noopLedger) Record(context.Context, string, contractx.SpecialistResult) error { return nil }

type Option func(*Agent)

func WithLedger(l Ledger) Option {
	return func(a *Agent) {
		if l != nil {
			a.ledger = l
		}
	}
}

// Agent adapts a Worker to the bus. A user message is answered on the
// session's user_proxy topic; a dispatch request is answered to the caller.
type Agent struct {
	worker  Worker
	bus     contractx.Bus
	ledger  Ledger
	phrases []string
	logger  zerolog.Logger
}

var _ contractx.Agent = (*Agent)(nil)

func NewAgent(bus contractx.Bus, worker Worker, cfg Config, opts ...Option) (*Agent, error) {
	if bus == nil {
		return nil, errors.New("message bus is required")
	}
	if worker == nil {
		return nil, errors.New("worker is required")
	}
	if !worker.Type().IsSpecialist() {
		return nil, fmt.Errorf("%w: %q is not a specialist", contractx.ErrValidation, worker.Type())
	}

	phrases := make([]string, 0, len(cfg.HandoffPhrases))
	for _, p := range cfg.HandoffPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}

	a := &Agent{
		worker:  worker,
		bus:     bus,
		ledger:  noopLedger{},
		phrases: phrases,
		logger:  logx.Component("specialist").With().Str("agent_type", worker.Type().String()).Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Agent) Type() contractx.AgentType {
	return a.worker.Type()
}

func (a *Agent) HandleMessage(ctx context.Context, msg contractx.Message, mc contractx.MessageContext) (contractx.Message, error) {
	sessionID := mc.SessionID()
	switch m := msg.(type) {
	case contractx.EndUserMessage:
		return nil, a.handleUser(ctx, sessionID, m)
	case contractx.DispatchRequest:
		return a.perform(ctx, Task{
			SessionID:    sessionID,
			Content:      m.Content,
			OriginalTask: m.OriginalTask,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %s got %s", contractx.ErrUnhandledMessage, a.Type(), msg.Kind())
	}
}

func (a *Agent) handleUser(ctx context.Context, sessionID string, m contractx.EndUserMessage) error {
	if a.outOfScope(m.Content) {
		a.logger.Info().Str("session_id", sessionID).Int("hops", m.Hops+1).Msg("handing off to router")
		return a.bus.Publish(ctx, contractx.HandoffMessage{
			Source:    a.Type().String(),
			Requester: m.Source,
			Content:   m.Content,
			Hops:      m.Hops + 1,
		}, contractx.TopicID{Type: contractx.AgentTypeRouter, Source: sessionID})
	}

	res := a.perform(ctx, Task{SessionID: sessionID, Content: m.Content})
	return a.bus.Publish(ctx, res, contractx.TopicID{Type: contractx.AgentTypeUserProxy, Source: sessionID})
}

func (a *Agent) outOfScope(content string) bool {
	lower := strings.ToLower(content)
	for _, p := range a.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// perform never fails: worker errors become an apology with Error set.
func (a *Agent) perform(ctx context.Context, task Task) contractx.SpecialistResult {
	logger := a.logger.With().Str("session_id", task.SessionID).Logger()

	res, err := a.worker.Perform(ctx, task)
	if err != nil {
		logger.Error().Err(err).Msg("specialist failed")
		return apology(a.Type(), err)
	}
	res.Source = a.Type().String()
	res.AgentType = a.Type()

	if err := a.ledger.Record(ctx, task.SessionID, res); err != nil {
		logger.Warn().Err(err).Msg("booking not recorded")
	}
	logger.Debug().Msg("specialist answered")
	return res
}

func apology(agentType contractx.AgentType, err error) contractx.SpecialistResult {
	text := fmt.Sprintf("Sorry, I could not complete the %s request right now.", strings.ReplaceAll(agentType.String(), "_", " "))
	return contractx.SpecialistResult{
		Source:    agentType.String(),
		AgentType: agentType,
		Content:   text,
		Message:   text,
		Data:      contractx.TextReply{Text: text},
		Error:     err.Error(),
	}
}
