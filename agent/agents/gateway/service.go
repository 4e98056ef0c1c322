package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	logx "github.com/tanpawarit/chative-travel/pkg/logger"
)

// Outbound writes a payload to the connection that owns sessionID.
type Outbound interface {
	Send(sessionID string, payload []byte) error
}

// Gateway is the user_proxy agent. It passes user text and the session end on
// to the router and delivers every result for the session to its connection.
type Gateway struct {
	bus    contractx.Bus
	out    Outbound
	logger zerolog.Logger
}

var _ contractx.Agent = (*Gateway)(nil)

func New(bus contractx.Bus, out Outbound) (*Gateway, error) {
	if bus == nil {
		return nil, errors.New("message bus is required")
	}
	if out == nil {
		return nil, errors.New("outbound writer is required")
	}
	return &Gateway{
		bus:    bus,
		out:    out,
		logger: logx.Component("gateway"),
	}, nil
}

func (g *Gateway) HandleMessage(ctx context.Context, msg contractx.Message, mc contractx.MessageContext) (contractx.Message, error) {
	sessionID := mc.SessionID()
	switch m := msg.(type) {
	case contractx.EndUserMessage:
		return nil, g.bus.Publish(ctx, m, contractx.TopicID{Type: contractx.AgentTypeRouter, Source: sessionID})
	case contractx.HandoffMessage:
		// Only the session end arrives here, queued behind the user's last
		// message. The session is usually closed by now but the router still
		// has to clear it.
		if !m.Complete {
			return nil, fmt.Errorf("%w: gateway got an open handoff", contractx.ErrUnhandledMessage)
		}
		return nil, g.bus.Publish(context.WithoutCancel(ctx), m, contractx.TopicID{Type: contractx.AgentTypeRouter, Source: sessionID})
	case contractx.SpecialistResult:
		g.deliver(sessionID, m)
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: gateway got %s", contractx.ErrUnhandledMessage, msg.Kind())
	}
}

// deliver drops the result when the session has no live connection.
func (g *Gateway) deliver(sessionID string, res contractx.SpecialistResult) {
	logger := g.logger.With().Str("session_id", sessionID).Str("agent_type", res.AgentType.String()).Logger()

	payload, err := json.Marshal(res)
	if err != nil {
		logger.Error().Err(err).Msg("encode result")
		return
	}
	if err := g.out.Send(sessionID, payload); err != nil {
		logger.Warn().Err(err).Msg("result dropped")
		return
	}
	logger.Debug().Int("bytes", len(payload)).Msg("result delivered")
}
