package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIModel calls an OpenAI-compatible chat completions endpoint.
type OpenAIModel struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// OpenAIOption configures an OpenAIModel.
type OpenAIOption func(*OpenAIModel)

// WithTemperature sets the sampling temperature. Default 0.
func WithTemperature(t float32) OpenAIOption {
	return func(m *OpenAIModel) { m.temperature = t }
}

// WithMaxTokens caps the completion length. Zero leaves it to the server.
func WithMaxTokens(n int) OpenAIOption {
	return func(m *OpenAIModel) { m.maxTokens = n }
}

// NewOpenAIModel creates a chat model. baseURL may be empty for the public API.
func NewOpenAIModel(apiKey, baseURL, model string, opts ...OpenAIOption) (*OpenAIModel, error) {
	if model == "" {
		return nil, fmt.Errorf("chat model is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	m := &OpenAIModel{client: openai.NewClientWithConfig(cfg), model: model}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Name returns the configured model name.
func (m *OpenAIModel) Name() string {
	return m.model
}

// Decide sends the prompt and maps the first choice to a Decision. When the model returns
// several tool calls only the first is used.
func (m *OpenAIModel) Decide(ctx context.Context, req *Request) (*Decision, error) {
	creq := openai.ChatCompletionRequest{
		Model:       m.model,
		Messages:    toOpenAIMessages(req),
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}
	for _, t := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := m.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		return &Decision{
			Kind:    DecisionToolCall,
			Content: msg.Content,
			ToolCall: &ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		}, nil
	}
	return &Decision{Kind: DecisionFinal, Content: msg.Content}, nil
}

func toOpenAIMessages(req *Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		cm := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		if m.ToolCall != nil {
			cm.ToolCalls = []openai.ToolCall{{
				ID:   m.ToolCall.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      m.ToolCall.Name,
					Arguments: m.ToolCall.Arguments,
				},
			}}
		}
		out = append(out, cm)
	}
	return out
}
