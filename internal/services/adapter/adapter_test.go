package adapter

import (
	"context"
	"testing"
)

type stubAdapter struct {
	name string
}

func (a *stubAdapter) Name() string { return a.name }
func (a *stubAdapter) Invoke(ctx context.Context, creds Credentials, req *Request) (*Response, error) {
	return nil, ErrNotSupported
}
func (a *stubAdapter) InvokeStream(ctx context.Context, creds Credentials, req *Request) (<-chan NativeChunk, error) {
	return nil, ErrNotSupported
}
func (a *stubAdapter) Embed(ctx context.Context, creds Credentials, req *EmbedRequest) (*EmbedResponse, error) {
	return nil, ErrNotSupported
}
func (a *stubAdapter) GenerateImage(ctx context.Context, creds Credentials, req *ImageRequest) (*ImageResponse, error) {
	return nil, ErrNotSupported
}

func TestRegistry_ExactMatchOnly(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAdapter{name: "openai"})
	r.Register(&stubAdapter{name: "openrouter"})

	if _, ok := r.Get("openai"); !ok {
		t.Error("exact name should resolve")
	}
	if _, ok := r.Get("OpenAI"); !ok {
		t.Error("lookup should be case-insensitive")
	}
	// "open" is a prefix of two registered names; substring matching would
	// be ambiguous and must not happen.
	if _, ok := r.Get("open"); ok {
		t.Error("prefix lookup should not resolve")
	}
	if _, ok := r.Get("unknown"); ok {
		t.Error("unknown name should not resolve")
	}
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{StatusCode: 429, Message: "rate limited"}
	want := "upstream error (status 429): rate limited"
	if err.Error() != want {
		t.Errorf("Error() = %q, expected %q", err.Error(), want)
	}
}
