package classifier

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
	llmx "github.com/tanpawarit/chative-travel/agent/llm"
)

// LLM asks a chat model for the dispatch plan.
type LLM struct {
	runner compose.Runnable[map[string]any, contractx.Plan]
}

var _ contractx.Classifier = (*LLM)(nil)

func NewLLM(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*LLM, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: chat model is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, contractx.ErrPromptMissing
	}
	runner, err := llmx.CompileStructuredGraph[contractx.Plan](ctx, chatModel, systemPrompt, "router.classify_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile classifier graph: %v", contractx.ErrModelInvoke, err)
	}
	return &LLM{runner: runner}, nil
}

func (c *LLM) Classify(ctx context.Context, text string, history []contractx.EndUserMessage) (contractx.Plan, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return contractx.Plan{}, fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	previous := make([]string, 0, len(history))
	for _, m := range history {
		previous = append(previous, m.Content)
	}
	input, err := llmx.Input(map[string]any{
		"user_message": content,
		"history":      previous,
	})
	if err != nil {
		return contractx.Plan{}, err
	}

	plan, err := c.runner.Invoke(ctx, input)
	if err != nil {
		return contractx.Plan{}, fmt.Errorf("%w: classifier invoke: %v", contractx.ErrModelInvoke, err)
	}
	plan.MainTask = strings.TrimSpace(plan.MainTask)
	if plan.IsGreeting {
		return contractx.Plan{MainTask: plan.MainTask, IsGreeting: true}, nil
	}
	if err := plan.Validate(); err != nil {
		return contractx.Plan{}, err
	}

	if !plan.IsGreeting && IsGreeting(content) && onlyChitChat(plan) {
		plan = contractx.Plan{MainTask: "Greeting", IsGreeting: true}
	}
	return plan, nil
}

// onlyChitChat is true when the plan asks nothing of a booking or info specialist.
func onlyChitChat(plan contractx.Plan) bool {
	for _, st := range plan.Subtasks {
		if st.AssignedAgent != contractx.AgentTypeDefault {
			return false
		}
	}
	return true
}
