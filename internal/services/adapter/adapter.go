package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Credentials is the decrypted secret material handed to an adapter for a
// single call. BaseURL overrides the adapter default when set.
type Credentials struct {
	APIKey   string
	SecretID string // second half of a key pair, when the provider needs one
	BaseURL  string
	Region   string
}

// Message is one turn of a chat conversation in canonical shape.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a fully assembled tool invocation emitted by a model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is a caller-supplied tool definition, passed through to providers
// that accept OpenAI-style tool schemas.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Request is the canonical chat request an adapter translates for its provider.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Tools       []Tool
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a complete non-streaming chat result.
type Response struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// ToolCallFragment is a partial tool call carried by one native chunk.
// Fragments with the same Index belong to the same call; Arguments pieces
// concatenate in arrival order.
type ToolCallFragment struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// NativeChunk is one increment of a provider stream after the adapter has
// translated its wire format. A chunk may carry a content delta, tool-call
// fragments, a usage summary, a terminal error, or any combination the
// provider happens to batch together.
type NativeChunk struct {
	Role      string
	Content   string
	ToolCalls []ToolCallFragment
	Usage     *Usage
	Err       error
}

type EmbedRequest struct {
	Model string
	Input []string
}

type EmbedResponse struct {
	Vectors [][]float32
	Usage   Usage
}

type ImageRequest struct {
	Model  string
	Prompt string
	Size   string
	N      int
}

type ImageResponse struct {
	URLs []string
	B64  []string
}

// Adapter is the uniform invoke contract one upstream provider satisfies.
// Adding a provider means implementing this and registering it; nothing
// else in the gateway changes.
type Adapter interface {
	Name() string
	Invoke(ctx context.Context, creds Credentials, req *Request) (*Response, error)
	InvokeStream(ctx context.Context, creds Credentials, req *Request) (<-chan NativeChunk, error)
	Embed(ctx context.Context, creds Credentials, req *EmbedRequest) (*EmbedResponse, error)
	GenerateImage(ctx context.Context, creds Credentials, req *ImageRequest) (*ImageResponse, error)
}

// ErrNotSupported is returned by adapters for call kinds their provider
// does not offer.
var ErrNotSupported = errors.New("operation not supported by this provider")

// APIError is an upstream failure with a provider-style HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Message)
}

// Registry maps provider names to adapters. Lookup is an exact
// case-insensitive match on the registered name; substring matching is
// deliberately not supported because one provider's name may be a prefix
// of another's.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToLower(a.Name())] = a
}

func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToLower(name)]
	return a, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
