// Package anthropic adapts the Claude Messages API to llm.LLMProvider.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"filings-rag-be/pkg/llm"
)

const defaultMaxTokens = 1024

// MessagesClient is the part of the SDK the provider uses. *sdk.MessageService
// satisfies it.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

type Provider struct {
	msg   MessagesClient
	model string
}

var _ llm.LLMProvider = (*Provider)(nil)

func New(msg MessagesClient, model string) (*Provider, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if model == "" {
		return nil, errors.New("anthropic: model is required")
	}
	return &Provider{msg: msg, model: model}, nil
}

func NewFromAPIKey(apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, model)
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	opts := llm.Apply(llm.Options{Model: p.model, MaxTokens: defaultMaxTokens}, options...)

	msgs, system := encodeMessages(history)
	if len(msgs) == 0 {
		return "", errors.New("anthropic: at least one user message is required")
	}
	if opts.JSON {
		system = append(system, sdk.TextBlockParam{Text: "Respond with a single JSON object and nothing else."})
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(opts.MaxTokens),
		Messages:  msgs,
		Model:     sdk.Model(opts.Model),
	}
	if len(system) > 0 {
		params.System = system
	}
	if opts.Temperature > 0 {
		params.Temperature = sdk.Float(opts.Temperature)
	}

	resp, err := p.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages.new: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", llm.ErrEmptyResponse
	}
	return b.String(), nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, options...)
}

// encodeMessages splits system prompts out of the history; Claude takes them
// as a separate parameter.
func encodeMessages(history []llm.Message) ([]sdk.MessageParam, []sdk.TextBlockParam) {
	msgs := make([]sdk.MessageParam, 0, len(history))
	var system []sdk.TextBlockParam
	for _, m := range history {
		switch m.Role {
		case "system":
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case "assistant", "model":
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return msgs, system
}
