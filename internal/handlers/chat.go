package handlers

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/middleware"
	"github.com/loopgate/loopgate/internal/services"
	"github.com/loopgate/loopgate/internal/services/adapter"
	"github.com/loopgate/loopgate/pkg/logger"
	"github.com/loopgate/loopgate/pkg/response"
)

// ChatHandler exposes the chat completion endpoint, streaming and not.
type ChatHandler struct {
	gateway *services.GatewayService
}

func NewChatHandler(gateway *services.GatewayService) *ChatHandler {
	return &ChatHandler{gateway: gateway}
}

type ChatCompletionRequest struct {
	Model       string            `json:"model" binding:"required"`
	Messages    []adapter.Message `json:"messages" binding:"required"`
	MaxTokens   int               `json:"max_tokens"`
	Temperature float64           `json:"temperature"`
	Stream      bool              `json:"stream"`
	Tools       []adapter.Tool    `json:"tools"`
}

// CreateCompletion dispatches a chat call. With "stream": true the reply is
// an SSE stream of canonical chunks terminated by a [DONE] sentinel.
func (h *ChatHandler) CreateCompletion(c *gin.Context) {
	var req ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	scopeID := middleware.GetScopeID(c)
	gwReq := &adapter.Request{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Tools:       req.Tools,
	}

	if req.Stream {
		h.streamCompletion(c, scopeID, gwReq)
		return
	}

	result, err := h.gateway.Chat(c.Request.Context(), scopeID, gwReq)
	if err != nil {
		response.Error(c, services.ToResponseError(err))
		return
	}
	response.Success(c, result)
}

func (h *ChatHandler) streamCompletion(c *gin.Context, scopeID string, req *adapter.Request) {
	chunks, err := h.gateway.ChatStream(c.Request.Context(), scopeID, req)
	if err != nil {
		response.Error(c, services.ToResponseError(err))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				fmt.Fprint(w, "data: [DONE]\n\n")
				c.Writer.Flush()
				return false
			}
			data, err := json.Marshal(chunk)
			if err != nil {
				logger.Errorf("[Chat] Failed to marshal stream chunk: %v", err)
				return true
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
