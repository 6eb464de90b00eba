package services

import (
	"context"
	"sort"

	"github.com/loopgate/loopgate/internal/services/adapter"
)

// Delta is the incremental content frame of the canonical stream protocol.
type Delta struct {
	Role      string             `json:"role,omitempty"`
	Content   string             `json:"content,omitempty"`
	ToolCalls []adapter.ToolCall `json:"tool_calls,omitempty"`
}

// ChunkError is the terminal error frame.
type ChunkError struct {
	Message string `json:"message"`
}

// CanonicalChunk is exactly one of a delta, a usage summary, or a terminal
// error, regardless of which provider produced the underlying stream.
type CanonicalChunk struct {
	Delta *Delta         `json:"delta,omitempty"`
	Usage *adapter.Usage `json:"usage,omitempty"`
	Error *ChunkError    `json:"error,omitempty"`
}

// toolCallAccumulator merges tool-call fragments that arrive split across
// native chunks. Fragments with the same index belong to one call; argument
// pieces concatenate in arrival order.
type toolCallAccumulator struct {
	calls map[int]*adapter.ToolCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[int]*adapter.ToolCall)}
}

func (a *toolCallAccumulator) add(frags []adapter.ToolCallFragment) {
	for _, f := range frags {
		call, ok := a.calls[f.Index]
		if !ok {
			call = &adapter.ToolCall{Type: "function"}
			a.calls[f.Index] = call
		}
		if f.ID != "" {
			call.ID = f.ID
		}
		if f.Name != "" {
			call.Function.Name = f.Name
		}
		call.Function.Arguments += f.Arguments
	}
}

// snapshot returns the full accumulated array in index order. Consumers
// always receive the superset, never partial or duplicate entries.
func (a *toolCallAccumulator) snapshot() []adapter.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]adapter.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, *a.calls[idx])
	}
	return out
}

// NormalizeStream converts a native adapter stream into the canonical chunk
// protocol. It is provider-agnostic: it only understands NativeChunk.
//
// Rules: tool-call fragments are accumulated and the full array re-emitted
// on every chunk carrying new tool content; usage-only chunks never produce
// an empty delta; a mid-stream upstream error becomes exactly one terminal
// error frame followed by stream close, never a panic or late error return.
// The stream is pull-based; consumer cancellation propagates through ctx to
// stop draining the provider.
func NormalizeStream(ctx context.Context, native <-chan adapter.NativeChunk) <-chan CanonicalChunk {
	out := make(chan CanonicalChunk)

	go func() {
		defer close(out)
		acc := newToolCallAccumulator()

		for {
			select {
			case <-ctx.Done():
				return
			case nc, ok := <-native:
				if !ok {
					return
				}

				if nc.Err != nil {
					sendChunk(ctx, out, CanonicalChunk{Error: &ChunkError{Message: nc.Err.Error()}})
					return
				}

				if nc.Role != "" || nc.Content != "" || len(nc.ToolCalls) > 0 {
					delta := &Delta{Role: nc.Role, Content: nc.Content}
					if len(nc.ToolCalls) > 0 {
						acc.add(nc.ToolCalls)
						delta.ToolCalls = acc.snapshot()
					}
					if !sendChunk(ctx, out, CanonicalChunk{Delta: delta}) {
						return
					}
				}

				if nc.Usage != nil {
					u := *nc.Usage
					if !sendChunk(ctx, out, CanonicalChunk{Usage: &u}) {
						return
					}
				}
			}
		}
	}()

	return out
}

func sendChunk(ctx context.Context, out chan<- CanonicalChunk, chunk CanonicalChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
