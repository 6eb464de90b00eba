package adapter

import (
	"context"
	"errors"

	"google.golang.org/genai"
)

// GoogleAdapter talks to the Gemini API using the native SDK.
type GoogleAdapter struct{}

func NewGoogleAdapter() *GoogleAdapter { return &GoogleAdapter{} }

func (a *GoogleAdapter) Name() string { return "google" }

func (a *GoogleAdapter) client(ctx context.Context, creds Credentials) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  creds.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, wrapGoogleError(err)
	}
	return client, nil
}

// contents splits canonical messages into Gemini contents plus an optional
// system instruction; Gemini uses "model" where everyone else says "assistant".
func (a *GoogleAdapter) contents(req *Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			cfg.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
		case "assistant":
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	return contents, cfg
}

func googleUsage(meta *genai.GenerateContentResponseUsageMetadata) *Usage {
	if meta == nil {
		return nil
	}
	return &Usage{
		PromptTokens:     int(meta.PromptTokenCount),
		CompletionTokens: int(meta.CandidatesTokenCount),
		TotalTokens:      int(meta.TotalTokenCount),
	}
}

func (a *GoogleAdapter) Invoke(ctx context.Context, creds Credentials, req *Request) (*Response, error) {
	client, err := a.client(ctx, creds)
	if err != nil {
		return nil, err
	}

	contents, cfg := a.contents(req)
	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, wrapGoogleError(err)
	}

	out := &Response{Role: "assistant", Content: resp.Text()}
	if u := googleUsage(resp.UsageMetadata); u != nil {
		out.Usage = *u
	}
	return out, nil
}

func (a *GoogleAdapter) InvokeStream(ctx context.Context, creds Credentials, req *Request) (<-chan NativeChunk, error) {
	client, err := a.client(ctx, creds)
	if err != nil {
		return nil, err
	}

	contents, cfg := a.contents(req)

	out := make(chan NativeChunk)
	go func() {
		defer close(out)

		var usage *Usage
		sentRole := false
		for resp, err := range client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				emit(ctx, out, NativeChunk{Err: wrapGoogleError(err)})
				return
			}
			if u := googleUsage(resp.UsageMetadata); u != nil {
				usage = u
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			chunk := NativeChunk{Content: text}
			if !sentRole {
				chunk.Role = "assistant"
				sentRole = true
			}
			if !emit(ctx, out, chunk) {
				return
			}
		}
		if usage != nil {
			emit(ctx, out, NativeChunk{Usage: usage})
		}
	}()
	return out, nil
}

func (a *GoogleAdapter) Embed(ctx context.Context, creds Credentials, req *EmbedRequest) (*EmbedResponse, error) {
	client, err := a.client(ctx, creds)
	if err != nil {
		return nil, err
	}

	var contents []*genai.Content
	for _, text := range req.Input {
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: text}},
		})
	}

	resp, err := client.Models.EmbedContent(ctx, req.Model, contents, nil)
	if err != nil {
		return nil, wrapGoogleError(err)
	}

	out := &EmbedResponse{}
	for _, emb := range resp.Embeddings {
		out.Vectors = append(out.Vectors, emb.Values)
	}
	return out, nil
}

// GenerateImage is not wired for Gemini; image traffic routes to providers
// with a dedicated image API.
func (a *GoogleAdapter) GenerateImage(ctx context.Context, creds Credentials, req *ImageRequest) (*ImageResponse, error) {
	return nil, ErrNotSupported
}

func wrapGoogleError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	return err
}
