package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/loopgate/loopgate/internal/services/adapter"
)

func collect(t *testing.T, ch <-chan CanonicalChunk) []CanonicalChunk {
	t.Helper()
	var out []CanonicalChunk
	timeout := time.After(2 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, chunk)
		case <-timeout:
			t.Fatal("timed out draining canonical stream")
		}
	}
}

func feed(chunks ...adapter.NativeChunk) <-chan adapter.NativeChunk {
	ch := make(chan adapter.NativeChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestNormalizeStream_ContentDeltas(t *testing.T) {
	out := NormalizeStream(context.Background(), feed(
		adapter.NativeChunk{Role: "assistant", Content: "Hel"},
		adapter.NativeChunk{Content: "lo"},
		adapter.NativeChunk{Usage: &adapter.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}},
	))

	chunks := collect(t, out)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, expected 3", len(chunks))
	}
	if chunks[0].Delta == nil || chunks[0].Delta.Content != "Hel" || chunks[0].Delta.Role != "assistant" {
		t.Errorf("first chunk = %+v, expected assistant delta \"Hel\"", chunks[0])
	}
	if chunks[1].Delta == nil || chunks[1].Delta.Content != "lo" {
		t.Errorf("second chunk = %+v, expected delta \"lo\"", chunks[1])
	}
	if chunks[2].Usage == nil || chunks[2].Usage.TotalTokens != 12 {
		t.Errorf("third chunk = %+v, expected usage with 12 total tokens", chunks[2])
	}
	if chunks[2].Delta != nil {
		t.Error("usage-only chunk carried an empty delta")
	}
}

func TestNormalizeStream_ToolCallFragmentsMerge(t *testing.T) {
	out := NormalizeStream(context.Background(), feed(
		adapter.NativeChunk{ToolCalls: []adapter.ToolCallFragment{
			{Index: 0, ID: "call_1", Name: "get_weather", Arguments: `{"cit`},
		}},
		adapter.NativeChunk{ToolCalls: []adapter.ToolCallFragment{
			{Index: 0, Arguments: `y":"Paris"}`},
			{Index: 1, ID: "call_2", Name: "get_time", Arguments: `{}`},
		}},
	))

	chunks := collect(t, out)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, expected 2", len(chunks))
	}

	// Every tool chunk re-emits the full accumulated array.
	first := chunks[0].Delta
	if first == nil || len(first.ToolCalls) != 1 {
		t.Fatalf("first chunk tool calls = %+v, expected 1", first)
	}

	second := chunks[1].Delta
	if second == nil || len(second.ToolCalls) != 2 {
		t.Fatalf("second chunk tool calls = %+v, expected full array of 2", second)
	}
	call := second.ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "get_weather" {
		t.Errorf("merged call = %+v, expected id call_1 name get_weather", call)
	}
	if call.Function.Arguments != `{"city":"Paris"}` {
		t.Errorf("merged arguments = %q, fragments did not concatenate", call.Function.Arguments)
	}
	if second.ToolCalls[1].ID != "call_2" {
		t.Errorf("second call = %+v, expected call_2", second.ToolCalls[1])
	}
}

func TestNormalizeStream_MidStreamErrorIsTerminal(t *testing.T) {
	out := NormalizeStream(context.Background(), feed(
		adapter.NativeChunk{Content: "partial"},
		adapter.NativeChunk{Err: errors.New("upstream reset")},
		adapter.NativeChunk{Content: "never delivered"},
	))

	chunks := collect(t, out)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, expected delta + terminal error", len(chunks))
	}
	if chunks[1].Error == nil || chunks[1].Error.Message != "upstream reset" {
		t.Errorf("terminal chunk = %+v, expected error frame", chunks[1])
	}
}

func TestNormalizeStream_ConsumerCancelStopsDraining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	native := make(chan adapter.NativeChunk)

	out := NormalizeStream(ctx, native)
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("received a chunk after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("canonical stream did not close after cancellation")
	}
	close(native)
}
