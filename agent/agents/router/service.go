package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	nodex "github.com/tanpawarit/chative-travel/agent/nodes/router"
	statex "github.com/tanpawarit/chative-travel/agent/state"
	logx "github.com/tanpawarit/chative-travel/pkg/logger"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

const (
	DefaultGreeting = "Hello, traveller! I can book flights, hotels, rental cars and activities, " +
		"or tell you about a destination. Where would you like to go?"
	DefaultHandoffApology = "Sorry, I could not find the right specialist for that request. " +
		"Could you rephrase it or ask for one thing at a time?"
)

type Config struct {
	// MaxHandoffHops bounds how often one piece of text may bounce back from a specialist.
	MaxHandoffHops int    `split_words:"true" default:"2"`
	Greeting       string `split_words:"true"`
}

// Observer receives one decision per handled message.
type Observer interface {
	RouteDecided(decision string)
}

type noopObserver struct{}

func (noopObserver) RouteDecided(string) {}

type Option func(*Router)

func WithObserver(o Observer) Option {
	return func(r *Router) {
		if o != nil {
			r.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// Router classifies user messages and dispatches them. It holds no
// per-session fields, so one Router can back every router instance.
type Router struct {
	bus        contractx.Bus
	store      statex.Store
	classifier contractx.Classifier
	observer   Observer
	logger     zerolog.Logger

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	maxHops  int
	greeting string

	now func() time.Time
}

var _ contractx.Agent = (*Router)(nil)

func New(
	bus contractx.Bus,
	store statex.Store,
	classifier contractx.Classifier,
	cfg Config,
	opts ...Option,
) (*Router, error) {
	if bus == nil {
		return nil, errors.New("message bus is required")
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}

	maxHops := cfg.MaxHandoffHops
	if maxHops < 0 {
		maxHops = 0
	}
	greeting := strings.TrimSpace(cfg.Greeting)
	if greeting == "" {
		greeting = DefaultGreeting
	}

	r := &Router{
		bus:        bus,
		store:      store,
		classifier: classifier,
		observer:   noopObserver{},
		logger:     logx.Component("router"),
		maxHops:    maxHops,
		greeting:   greeting,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	graphRunner, err := r.compileRouteGraph(context.Background())
	if err != nil {
		return nil, err
	}
	r.graphRunner = graphRunner

	return r, nil
}

func (r *Router) HandleMessage(ctx context.Context, msg contractx.Message, mc contractx.MessageContext) (contractx.Message, error) {
	switch m := msg.(type) {
	case contractx.EndUserMessage:
		return nil, r.route(ctx, mc.SessionID(), m)
	case contractx.HandoffMessage:
		return nil, r.handoff(ctx, mc.SessionID(), m)
	default:
		return nil, fmt.Errorf("%w: router got %s", contractx.ErrUnhandledMessage, msg.Kind())
	}
}

func (r *Router) route(ctx context.Context, sessionID string, msg contractx.EndUserMessage) error {
	out, err := r.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Message:   msg,
	})
	if err != nil {
		return err
	}
	route := out.Route

	logger := r.logger.With().Str("session_id", sessionID).Str("route", string(route.Kind)).Logger()
	if route.ClassifyErr != nil {
		logger.Error().Err(route.ClassifyErr).Msg("classification failed, nothing routed")
	}
	r.observer.RouteDecided(string(route.Kind))

	switch route.Kind {
	case nodex.RouteGreeting:
		logger.Info().Msg("greeting detected")
		return r.bus.Publish(ctx, contractx.SpecialistResult{
			Source:    string(contractx.AgentTypeRouter),
			AgentType: contractx.AgentTypeDefault,
			Content:   r.greeting,
			Message:   "User greeting detected: " + msg.Content,
			Data:      contractx.Greeting{Greeting: r.greeting},
		}, contractx.TopicID{Type: contractx.AgentTypeUserProxy, Source: sessionID})

	case nodex.RouteNone:
		logger.Info().Msg("no agents selected")
		return nil

	case nodex.RouteSingle:
		if err := r.bus.Publish(ctx, msg, contractx.TopicID{Type: route.Target, Source: sessionID}); err != nil {
			return err
		}
		r.store.SetActiveAgent(sessionID, route.Target)
		logger.Info().Str("agent_type", route.Target.String()).Msg("routed to specialist")
		return nil

	case nodex.RouteMulti:
		if err := r.bus.Publish(ctx, route.Plan, contractx.TopicID{Type: contractx.AgentTypeCoordinator, Source: sessionID}); err != nil {
			return err
		}
		r.store.SetActiveAgent(sessionID, contractx.AgentTypeCoordinator)
		logger.Info().Int("subtasks", len(route.Plan.Subtasks)).Msg("routed to coordinator")
		return nil

	default:
		return fmt.Errorf("%w: unknown route %q", contractx.ErrValidation, route.Kind)
	}
}

func (r *Router) handoff(ctx context.Context, sessionID string, msg contractx.HandoffMessage) error {
	logger := r.logger.With().Str("session_id", sessionID).Str("from", msg.Source).Int("hops", msg.Hops).Logger()

	if msg.Complete {
		r.store.Clear(sessionID)
		r.observer.RouteDecided("complete")
		logger.Info().Msg("conversation complete, session cleared")
		return nil
	}

	if msg.Hops > r.maxHops {
		r.observer.RouteDecided("handoff_limit")
		logger.Warn().Int("max_hops", r.maxHops).Msg("handoff limit reached")
		return r.bus.Publish(ctx, contractx.SpecialistResult{
			Source:    string(contractx.AgentTypeRouter),
			AgentType: contractx.AgentTypeDefault,
			Content:   DefaultHandoffApology,
			Message:   DefaultHandoffApology,
			Data:      contractx.TextReply{Text: DefaultHandoffApology},
			Error:     contractx.ErrHandoffLimit.Error(),
		}, contractx.TopicID{Type: contractx.AgentTypeUserProxy, Source: sessionID})
	}

	source := msg.Requester
	if source == "" {
		source = msg.Source
	}
	logger.Info().Msg("re-routing handed off message")
	return r.route(ctx, sessionID, contractx.EndUserMessage{
		Source:  source,
		Content: msg.Content,
		Hops:    msg.Hops,
	})
}
