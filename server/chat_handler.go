package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/parley/ai/events"
	"github.com/hrygo/parley/ai/orchestrator"
)

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Utterance string `json:"utterance"`
	HasMedia  bool   `json:"has_media"`
	CallerID  string `json:"caller_id"`
	// Stream selects SSE streaming over a buffered JSON reply.
	Stream bool `json:"stream"`
}

// ChatResponse is the buffered reply shape.
type ChatResponse struct {
	TurnID     string           `json:"turn_id"`
	Reply      string           `json:"reply"`
	Class      string           `json:"class"`
	Confidence float32          `json:"confidence"`
	Decomposed bool             `json:"decomposed"`
	Tool       *ToolSummary     `json:"tool,omitempty"`
	TimingsMs  map[string]int64 `json:"timings_ms,omitempty"`
}

// ToolSummary reports the executed tool of a single-shot turn.
type ToolSummary struct {
	Name      string `json:"name"`
	Source    string `json:"source"`
	Success   bool   `json:"success"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Utterance) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "utterance is required")
	}
	if req.CallerID == "" {
		req.CallerID = "anonymous"
	}

	if !s.limiter.Allow(req.CallerID) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded, slow down")
	}

	turnReq := orchestrator.Request{
		Utterance: req.Utterance,
		HasMedia:  req.HasMedia,
		CallerID:  req.CallerID,
	}

	if req.Stream {
		return s.streamChat(c, turnReq)
	}

	turn := s.processor.ProcessTurn(c.Request().Context(), turnReq, events.NoopCallback)
	return c.JSON(http.StatusOK, toChatResponse(turn))
}

// streamChat multiplexes the turn's event stream over SSE. Sub-task
// events arrive from concurrent goroutines, so writes are serialized.
func (s *Server) streamChat(c echo.Context, req orchestrator.Request) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var mu sync.Mutex
	cb := func(eventType string, eventData any) error {
		mu.Lock()
		defer mu.Unlock()

		payload, err := json.Marshal(eventData)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
			return err
		}
		w.Flush()
		return nil
	}

	s.processor.ProcessTurn(c.Request().Context(), req, cb)
	return nil
}

func toChatResponse(turn *orchestrator.Turn) *ChatResponse {
	resp := &ChatResponse{
		TurnID:     turn.ID,
		Reply:      turn.FinalReply,
		Class:      string(turn.Classification.Class),
		Confidence: turn.Classification.Confidence,
		Decomposed: turn.Decomposed,
		TimingsMs:  turn.Timings,
	}
	if turn.Result != nil {
		resp.Tool = &ToolSummary{
			Name:      turn.Result.Invocation.Tool,
			Source:    string(turn.Result.Invocation.Source),
			Success:   turn.Result.Success,
			ErrorKind: string(turn.Result.ErrorKind),
		}
	}
	return resp
}
