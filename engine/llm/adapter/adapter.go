// Package adapter normalizes LLM backends behind a single completion
// contract. Providers are driven through langchaingo; token counts come
// from provider metadata when reported and a chars/4 estimate otherwise.
package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/aionlabs/aion/engine/core"
)

// Request is one completion call.
type Request struct {
	Messages    []core.Message `json:"messages"`
	Temperature float64        `json:"temperature"`
	MaxTokens   int            `json:"max_tokens"`
	JSONMode    bool           `json:"json_mode"`
}

// Response is the normalized completion result.
type Response struct {
	Content      string            `json:"content"`
	Model        string            `json:"model"`
	Provider     core.ProviderName `json:"provider"`
	InputTokens  int               `json:"input_tokens"`
	OutputTokens int               `json:"output_tokens"`
	TotalTokens  int               `json:"total_tokens"`
	FinishReason string            `json:"finish_reason"`
}

// Client is the uniform provider contract the router consumes.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// LangchainClient adapts a langchaingo model to the Client contract.
type LangchainClient struct {
	provider core.ProviderName
	model    string
	llm      llms.Model
}

func NewLangchainClient(provider core.ProviderName, model string, llm llms.Model) (*LangchainClient, error) {
	if llm == nil {
		return nil, core.NewError(errors.New("llm model is required"), "MISSING_DEPENDENCY",
			map[string]any{"provider": provider, "model": model})
	}
	return &LangchainClient{provider: provider, model: model, llm: llm}, nil
}

func (c *LangchainClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	messages := convertMessages(req.Messages)
	opts := buildCallOptions(req)
	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("adapter: %s generate content: %w", c.provider, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, core.NewError(errors.New("empty response from provider"), "EMPTY_LLM_RESPONSE",
			map[string]any{"provider": c.provider, "model": c.model})
	}
	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Content,
		Model:        c.model,
		Provider:     c.provider,
		FinishReason: choice.StopReason,
	}
	fillTokenCounts(out, choice.GenerationInfo, req.Messages)
	return out, nil
}

func convertMessages(messages []core.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		out = append(out, llms.TextParts(mapRole(msg.Role), msg.Content))
	}
	return out
}

func mapRole(role core.MessageRole) llms.ChatMessageType {
	switch role {
	case core.RoleSystem:
		return llms.ChatMessageTypeSystem
	case core.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func buildCallOptions(req *Request) []llms.CallOption {
	var opts []llms.CallOption
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}
	return opts
}

// fillTokenCounts reads provider usage metadata; the key casing differs per
// backend. Missing counts fall back to the chars/4 estimate.
func fillTokenCounts(resp *Response, info map[string]any, prompt []core.Message) {
	resp.InputTokens = intFromInfo(info, "InputTokens", "PromptTokens", "input_tokens", "prompt_tokens")
	resp.OutputTokens = intFromInfo(info, "OutputTokens", "CompletionTokens", "output_tokens", "completion_tokens")
	resp.TotalTokens = intFromInfo(info, "TotalTokens", "total_tokens")
	if resp.InputTokens == 0 {
		var chars int
		for _, msg := range prompt {
			chars += len(msg.Content)
		}
		resp.InputTokens = chars / 4
	}
	if resp.OutputTokens == 0 {
		resp.OutputTokens = len(resp.Content) / 4
	}
	if resp.TotalTokens == 0 {
		resp.TotalTokens = resp.InputTokens + resp.OutputTokens
	}
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
