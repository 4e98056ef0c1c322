package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	contractx "github.com/tanpawarit/chative-travel/agent/contract"
)

const HelpText = "I can book flights, hotels, rental cars and activities, and tell you about destinations. " +
	"Try \"Book me a flight to Paris\" or \"Make me a travel plan for Rome\"."

// ChatCompleter is satisfied by &client.Chat.Completions.
type ChatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// General answers anything no other specialist owns.
type General struct {
	client       ChatCompleter
	model        string
	systemPrompt string
}

var _ Worker = (*General)(nil)

// NewGeneral returns a worker that replies with HelpText when client is nil.
func NewGeneral(client ChatCompleter, model, systemPrompt string) *General {
	return &General{
		client:       client,
		model:        strings.TrimSpace(model),
		systemPrompt: strings.TrimSpace(systemPrompt),
	}
}

func (g *General) Type() contractx.AgentType {
	return contractx.AgentTypeDefault
}

func (g *General) Perform(ctx context.Context, task Task) (contractx.SpecialistResult, error) {
	text := HelpText
	if g.client != nil {
		var err error
		if text, err = g.complete(ctx, task.Content); err != nil {
			return contractx.SpecialistResult{}, err
		}
	}
	return contractx.SpecialistResult{
		Content: text,
		Message: text,
		Data:    contractx.TextReply{Text: text},
	}, nil
}

func (g *General) complete(ctx context.Context, content string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if g.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(g.systemPrompt))
	}
	messages = append(messages, openai.UserMessage(content))

	resp, err := g.client.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("%w: chat completion: %v", contractx.ErrModelInvoke, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat completion has no choices", contractx.ErrSchemaViolation)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: chat completion is empty", contractx.ErrSchemaViolation)
	}
	return text, nil
}
