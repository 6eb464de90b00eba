package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const ollamaDefaultBaseURL = "http://localhost:11434"

// OllamaAdapter talks to a self-hosted Ollama instance. Ollama has no API
// keys; the credential only contributes the base URL.
type OllamaAdapter struct{}

func NewOllamaAdapter() *OllamaAdapter { return &OllamaAdapter{} }

func (a *OllamaAdapter) Name() string { return "ollama" }

func (a *OllamaAdapter) client(creds Credentials) (*api.Client, error) {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}
	return api.NewClient(u, http.DefaultClient), nil
}

func (a *OllamaAdapter) chatRequest(req *Request, stream bool) *api.ChatRequest {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	options := map[string]interface{}{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	return &api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
}

func (a *OllamaAdapter) Invoke(ctx context.Context, creds Credentials, req *Request) (*Response, error) {
	client, err := a.client(creds)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	var usage Usage
	err = client.Chat(ctx, a.chatRequest(req, false), func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			usage.PromptTokens = resp.Metrics.PromptEvalCount
			usage.CompletionTokens = resp.Metrics.EvalCount
			usage.TotalTokens = resp.Metrics.PromptEvalCount + resp.Metrics.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, wrapOllamaError(err)
	}

	return &Response{Role: "assistant", Content: content.String(), Usage: usage}, nil
}

func (a *OllamaAdapter) InvokeStream(ctx context.Context, creds Credentials, req *Request) (<-chan NativeChunk, error) {
	client, err := a.client(creds)
	if err != nil {
		return nil, err
	}

	out := make(chan NativeChunk)
	go func() {
		defer close(out)

		sentRole := false
		err := client.Chat(ctx, a.chatRequest(req, true), func(resp api.ChatResponse) error {
			if resp.Done {
				usage := &Usage{
					PromptTokens:     resp.Metrics.PromptEvalCount,
					CompletionTokens: resp.Metrics.EvalCount,
					TotalTokens:      resp.Metrics.PromptEvalCount + resp.Metrics.EvalCount,
				}
				if !emit(ctx, out, NativeChunk{Usage: usage}) {
					return context.Canceled
				}
				return nil
			}
			if resp.Message.Content == "" {
				return nil
			}
			chunk := NativeChunk{Content: resp.Message.Content}
			if !sentRole {
				chunk.Role = "assistant"
				sentRole = true
			}
			if !emit(ctx, out, chunk) {
				return context.Canceled
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			emit(ctx, out, NativeChunk{Err: wrapOllamaError(err)})
		}
	}()
	return out, nil
}

func (a *OllamaAdapter) Embed(ctx context.Context, creds Credentials, req *EmbedRequest) (*EmbedResponse, error) {
	client, err := a.client(creds)
	if err != nil {
		return nil, err
	}

	resp, err := client.Embed(ctx, &api.EmbedRequest{Model: req.Model, Input: req.Input})
	if err != nil {
		return nil, wrapOllamaError(err)
	}

	return &EmbedResponse{
		Vectors: resp.Embeddings,
		Usage: Usage{
			PromptTokens: resp.PromptEvalCount,
			TotalTokens:  resp.PromptEvalCount,
		},
	}, nil
}

// GenerateImage is not offered by Ollama.
func (a *OllamaAdapter) GenerateImage(ctx context.Context, creds Credentials, req *ImageRequest) (*ImageResponse, error) {
	return nil, ErrNotSupported
}

func wrapOllamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &APIError{StatusCode: statusErr.StatusCode, Message: statusErr.Error()}
	}
	return err
}
