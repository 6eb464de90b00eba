package adapter

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicAdapter talks to the Anthropic Messages API using the native SDK.
type AnthropicAdapter struct{}

func NewAnthropicAdapter() *AnthropicAdapter { return &AnthropicAdapter{} }

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) client(creds Credentials) anthropic.Client {
	opts := []option.RequestOption{option.WithAPIKey(creds.APIKey)}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(creds.BaseURL))
	}
	return anthropic.NewClient(opts...)
}

func (a *AnthropicAdapter) messageParams(req *Request) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}

func (a *AnthropicAdapter) Invoke(ctx context.Context, creds Credentials, req *Request) (*Response, error) {
	client := a.client(creds)
	resp, err := client.Messages.New(ctx, a.messageParams(req))
	if err != nil {
		return nil, wrapAnthropicError(err)
	}

	out := &Response{
		Role: "assistant",
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += b.Text
		case anthropic.ToolUseBlock:
			args, _ := json.Marshal(b.Input)
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      b.Name,
					Arguments: string(args),
				},
			})
		}
	}
	return out, nil
}

func (a *AnthropicAdapter) InvokeStream(ctx context.Context, creds Credentials, req *Request) (<-chan NativeChunk, error) {
	client := a.client(creds)
	stream := client.Messages.NewStreaming(ctx, a.messageParams(req))

	out := make(chan NativeChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		var usage Usage
		sentRole := false

		for stream.Next() {
			event := stream.Current()
			var chunk NativeChunk

			switch ev := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.PromptTokens = int(ev.Message.Usage.InputTokens)
				continue
			case anthropic.ContentBlockStartEvent:
				if tu, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					chunk.ToolCalls = append(chunk.ToolCalls, ToolCallFragment{
						Index: int(ev.Index),
						ID:    tu.ID,
						Name:  tu.Name,
					})
				} else {
					continue
				}
			case anthropic.ContentBlockDeltaEvent:
				switch d := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					chunk.Content = d.Text
				case anthropic.InputJSONDelta:
					chunk.ToolCalls = append(chunk.ToolCalls, ToolCallFragment{
						Index:     int(ev.Index),
						Arguments: d.PartialJSON,
					})
				default:
					continue
				}
			case anthropic.MessageDeltaEvent:
				usage.CompletionTokens = int(ev.Usage.OutputTokens)
				continue
			default:
				continue
			}

			if !sentRole {
				chunk.Role = "assistant"
				sentRole = true
			}
			if !emit(ctx, out, chunk) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			emit(ctx, out, NativeChunk{Err: wrapAnthropicError(err)})
			return
		}

		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		emit(ctx, out, NativeChunk{Usage: &usage})
	}()
	return out, nil
}

// Embed is not offered by the Anthropic API.
func (a *AnthropicAdapter) Embed(ctx context.Context, creds Credentials, req *EmbedRequest) (*EmbedResponse, error) {
	return nil, ErrNotSupported
}

// GenerateImage is not offered by the Anthropic API.
func (a *AnthropicAdapter) GenerateImage(ctx context.Context, creds Credentials, req *ImageRequest) (*ImageResponse, error) {
	return nil, ErrNotSupported
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return err
}
