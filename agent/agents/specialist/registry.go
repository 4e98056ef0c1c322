package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	promptx "github.com/tanpawarit/chative-travel/agent/prompt"
	"github.com/tanpawarit/chative-travel/agent/tool"
)

// Models holds the optional model clients. Nil fields select the built-in
// fallbacks.
type Models struct {
	Tools     einomodel.ToolCallingChatModel
	Chat      ChatCompleter
	ChatModel string
}

// Registry is the fixed set of workers, one per specialist type.
type Registry struct {
	workers map[contractx.AgentType]Worker
}

func NewRegistry(workers ...Worker) (*Registry, error) {
	r := &Registry{workers: make(map[contractx.AgentType]Worker, len(workers))}
	for _, w := range workers {
		t := w.Type()
		if !t.IsSpecialist() {
			return nil, fmt.Errorf("%w: %q is not a specialist", contractx.ErrValidation, t)
		}
		if _, dup := r.workers[t]; dup {
			return nil, fmt.Errorf("%w: duplicate worker for %s", contractx.ErrValidation, t)
		}
		r.workers[t] = w
	}
	return r, nil
}

// Build creates a worker for every specialist type.
func Build(ctx context.Context, models Models, prompts promptx.PromptSet, sim *tool.Simulator) (*Registry, error) {
	workers := make([]Worker, 0, len(contractx.Specialists))
	for _, t := range []contractx.AgentType{
		contractx.AgentTypeFlight,
		contractx.AgentTypeHotel,
		contractx.AgentTypeCarRental,
		contractx.AgentTypeActivities,
	} {
		b, err := NewBooking(ctx, t, sim, models.Tools, prompts.Booking)
		if err != nil {
			return nil, err
		}
		workers = append(workers, b)
	}

	var base einomodel.BaseChatModel
	if models.Tools != nil {
		base = models.Tools
	}
	dest, err := NewDestination(ctx, base, prompts.Destination)
	if err != nil {
		return nil, err
	}
	workers = append(workers, dest, NewGeneral(models.Chat, models.ChatModel, prompts.General))

	return NewRegistry(workers...)
}

func (r *Registry) Worker(t contractx.AgentType) (Worker, bool) {
	w, ok := r.workers[t]
	return w, ok
}

// Types lists the registered specialists in canonical order.
func (r *Registry) Types() []contractx.AgentType {
	out := make([]contractx.AgentType, 0, len(r.workers))
	for _, t := range contractx.Specialists {
		if _, ok := r.workers[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
