package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/parley/ai/events"
	"github.com/hrygo/parley/ai/orchestrator"
	"github.com/hrygo/parley/ai/routing"
	"github.com/hrygo/parley/internal/profile"
)

// stubProcessor returns a canned turn and replays a fixed event stream.
type stubProcessor struct {
	turn *orchestrator.Turn
}

func (p *stubProcessor) ProcessTurn(_ context.Context, req orchestrator.Request, cb events.Callback) *orchestrator.Turn {
	if cb != nil {
		_ = cb(events.TypeClassification, events.ClassificationEvent{
			Class:      string(p.turn.Classification.Class),
			Confidence: p.turn.Classification.Confidence,
		})
		_ = cb(events.TypeDelta, events.DeltaEvent{Text: p.turn.FinalReply})
		_ = cb(events.TypeDone, events.DoneEvent{Reply: p.turn.FinalReply})
	}
	p.turn.Request = req
	return p.turn
}

func newTestServer(t *testing.T) (*Server, *stubProcessor) {
	t.Helper()

	turn := &orchestrator.Turn{
		ID:         "turn-1",
		FinalReply: "Added bread to your shopping list.",
		Classification: routing.Result{
			Class:      routing.ClassToolUsing,
			Confidence: 0.75,
		},
		State: orchestrator.StateDone,
	}
	p := &stubProcessor{turn: turn}
	s := NewServer(&profile.Profile{Mode: "dev", Port: 0, Version: "0.1.0-test"}, p, nil)
	return s, p
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0.1.0-test")
}

func TestChat_Buffered(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"utterance":"Add bread to shopping list","caller_id":"user-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "turn-1", resp.TurnID)
	assert.Equal(t, "Added bread to your shopping list.", resp.Reply)
	assert.Equal(t, "tool_using", resp.Class)
}

func TestChat_MissingUtterance(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"caller_id":"u"}`))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_Streaming(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"utterance":"Add bread to shopping list","caller_id":"user-2","stream":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set(echoContentType, "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	stream := rec.Body.String()
	assert.Contains(t, stream, "event: classification")
	assert.Contains(t, stream, "event: delta")
	assert.Contains(t, stream, "event: done")
	assert.Contains(t, stream, "Added bread to your shopping list.")
}

func TestChat_RateLimited(t *testing.T) {
	s, _ := newTestServer(t)

	var lastCode int
	for i := 0; i < 10; i++ {
		body := `{"utterance":"hi","caller_id":"hammer"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
		req.Header.Set(echoContentType, "application/json")
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}

const echoContentType = "Content-Type"
