package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to OpenAI and any OpenAI-compatible endpoint
// (OpenRouter, vLLM, LM Studio, ...). The registered name is configurable so
// the same implementation can serve several provider records.
type OpenAIAdapter struct {
	name           string
	defaultBaseURL string
}

func NewOpenAIAdapter(name, defaultBaseURL string) *OpenAIAdapter {
	return &OpenAIAdapter{name: name, defaultBaseURL: defaultBaseURL}
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) client(creds Credentials) *openai.Client {
	cfg := openai.DefaultConfig(creds.APIKey)
	if creds.BaseURL != "" {
		cfg.BaseURL = creds.BaseURL
	} else if a.defaultBaseURL != "" {
		cfg.BaseURL = a.defaultBaseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func (a *OpenAIAdapter) chatRequest(req *Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolType(tc.Type),
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		messages = append(messages, msg)
	}

	var tools []openai.Tool
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolType(t.Type),
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  json.RawMessage(t.Function.Parameters),
			},
		})
	}

	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Tools:    tools,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		out.Temperature = float32(req.Temperature)
	}
	return out
}

func (a *OpenAIAdapter) Invoke(ctx context.Context, creds Credentials, req *Request) (*Response, error) {
	resp, err := a.client(creds).CreateChatCompletion(ctx, a.chatRequest(req))
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &APIError{StatusCode: 502, Message: "empty response from provider"}
	}

	choice := resp.Choices[0].Message
	out := &Response{
		Role:    choice.Role,
		Content: choice.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out, nil
}

func (a *OpenAIAdapter) InvokeStream(ctx context.Context, creds Credentials, req *Request) (<-chan NativeChunk, error) {
	chatReq := a.chatRequest(req)
	chatReq.Stream = true
	chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := a.client(creds).CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	out := make(chan NativeChunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				emit(ctx, out, NativeChunk{Err: wrapOpenAIError(err)})
				return
			}

			var chunk NativeChunk
			if resp.Usage != nil {
				chunk.Usage = &Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				}
			}
			if len(resp.Choices) > 0 {
				delta := resp.Choices[0].Delta
				chunk.Role = delta.Role
				chunk.Content = delta.Content
				for _, tc := range delta.ToolCalls {
					frag := ToolCallFragment{
						ID:        tc.ID,
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					}
					if tc.Index != nil {
						frag.Index = *tc.Index
					}
					chunk.ToolCalls = append(chunk.ToolCalls, frag)
				}
			}
			if !emit(ctx, out, chunk) {
				return
			}
		}
	}()
	return out, nil
}

func (a *OpenAIAdapter) Embed(ctx context.Context, creds Credentials, req *EmbedRequest) (*EmbedResponse, error) {
	resp, err := a.client(creds).CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(req.Model),
		Input: req.Input,
	})
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	out := &EmbedResponse{
		Usage: Usage{
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	for _, d := range resp.Data {
		out.Vectors = append(out.Vectors, d.Embedding)
	}
	return out, nil
}

func (a *OpenAIAdapter) GenerateImage(ctx context.Context, creds Credentials, req *ImageRequest) (*ImageResponse, error) {
	imgReq := openai.ImageRequest{
		Prompt: req.Prompt,
		Model:  req.Model,
		N:      req.N,
		Size:   req.Size,
	}
	if imgReq.N == 0 {
		imgReq.N = 1
	}

	resp, err := a.client(creds).CreateImage(ctx, imgReq)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	out := &ImageResponse{}
	for _, d := range resp.Data {
		if d.URL != "" {
			out.URLs = append(out.URLs, d.URL)
		}
		if d.B64JSON != "" {
			out.B64 = append(out.B64, d.B64JSON)
		}
	}
	return out, nil
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return err
}

// emit delivers a chunk unless the consumer has gone away.
func emit(ctx context.Context, ch chan<- NativeChunk, chunk NativeChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
