package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cellmind/agentcore/config"
	"github.com/cellmind/agentcore/runtime/session"
)

// flushRecorder adds http.Flusher to httptest.ResponseRecorder, which does
// not implement it by default.
type flushRecorder struct {
	*httptest.ResponseRecorder
	flushes int
}

func (f *flushRecorder) Flush() {
	f.flushes++
}

func TestMessageHandlerRoundTripsThroughSession(t *testing.T) {
	deps := &Deps{
		Chat:     &fakeLLM{responses: []string{"hello there"}},
		Sessions: session.New(""),
		Config:   NewConfigStore("", config.Default()),
	}
	mux := NewMux(deps)

	body, _ := json.Marshal(map[string]any{"message": "hi", "conversationId": "conv-1"})
	req := httptest.NewRequest(http.MethodPost, "/chat/message", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Response       string `json:"response"`
		ConversationID string `json:"conversationId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Response != "hello there" {
		t.Fatalf("expected echoed model response, got %q", resp.Response)
	}

	history := deps.Sessions.Recent("conv-1", 0)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages recorded, got %d", len(history))
	}
}

func TestMessageHandlerRejectsEmptyMessage(t *testing.T) {
	deps := &Deps{
		Chat:     &fakeLLM{},
		Sessions: session.New(""),
		Config:   NewConfigStore("", config.Default()),
	}
	mux := NewMux(deps)

	body, _ := json.Marshal(map[string]any{"message": ""})
	req := httptest.NewRequest(http.MethodPost, "/chat/message", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStreamHandlerWritesSSEFramesAndPersistsFullReply(t *testing.T) {
	deps := &Deps{
		Chat:     &fakeLLM{responses: []string{"streamed reply"}},
		Sessions: session.New(""),
		Config:   NewConfigStore("", config.Default()),
	}
	mux := NewMux(deps)

	body, _ := json.Marshal(map[string]any{"message": "go", "conversationId": "conv-2"})
	req := httptest.NewRequest(http.MethodPost, "/chat/stream", bytes.NewReader(body))
	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "data: ") {
		t.Fatalf("expected at least one SSE frame, got body %q", rec.Body.String())
	}
	if rec.flushes == 0 {
		t.Fatalf("expected Flush to be called at least once")
	}

	history := deps.Sessions.Recent("conv-2", 0)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages recorded, got %d", len(history))
	}
	if history[1].Content != "streamed reply" {
		t.Fatalf("expected assistant message to be the full accumulated reply, got %q", history[1].Content)
	}
}

func TestMessageHandlerPersistsSessionStoreToConfiguredPath(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "sessions.json")
	deps := &Deps{
		Chat:     &fakeLLM{responses: []string{"hello there"}},
		Sessions: session.New(storePath),
		Config:   NewConfigStore("", config.Default()),
	}
	mux := NewMux(deps)

	body, _ := json.Marshal(map[string]any{"message": "hi", "conversationId": "conv-persist"})
	req := httptest.NewRequest(http.MethodPost, "/chat/message", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	reloaded := session.New(storePath)
	history := reloaded.Recent("conv-persist", 0)
	if len(history) != 2 {
		t.Fatalf("expected the request handler to have flushed 2 messages to disk, got %d", len(history))
	}
	if history[0].Content != "hi" || history[1].Content != "hello there" {
		t.Fatalf("unexpected persisted history: %+v", history)
	}
}
