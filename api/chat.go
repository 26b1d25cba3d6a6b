package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cellmind/agentcore/runtime/condenser"
	"github.com/cellmind/agentcore/runtime/model"
)

// defaultChatContextTokens bounds how much session history chat handlers
// fold into a single request before the Context Condenser trims it.
const defaultChatContextTokens = 8000

type chatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	Model          string `json:"model"`
}

func (d *Deps) messageHandler(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, errors.Join(errInvalidInput, errors.New("message is required")))
		return
	}

	sess := d.Sessions.GetOrCreate(req.ConversationID)
	messages := d.historyPlus(sess.ID, req.Message)

	condensed, _ := condenser.Condense(r.Context(), condenser.Input{
		Messages:     messages,
		TargetTokens: defaultChatContextTokens,
	}, d.summarizeViaChat)

	_ = d.Sessions.Append(sess.ID, model.RoleUser, req.Message)
	d.saveSession(r.Context())

	resp, err := d.Chat.Generate(r.Context(), &model.Request{Model: req.Model, Messages: condensed})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	_ = d.Sessions.Append(sess.ID, model.RoleAssistant, resp.Text)
	d.saveSession(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"response":       resp.Text,
		"conversationId": sess.ID,
		"model":          req.Model,
	})
}

func (d *Deps) historyPlus(sessionID, userMessage string) []model.Message {
	history := d.Sessions.Recent(sessionID, 0)
	messages := make([]model.Message, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, model.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: userMessage})
	return messages
}

// summarizeViaChat lets the Context Condenser's Summarize strategy fall back
// to the same gateway the request is headed for, rather than a dedicated
// small-model client, since this system has no per-purpose model routing
// table of its own.
func (d *Deps) summarizeViaChat(ctx context.Context, messages []model.Message) (string, error) {
	resp, err := d.Chat.Generate(ctx, &model.Request{
		Class:    model.ClassSmall,
		System:   "Summarize the following conversation history concisely, preserving any facts a later turn might need.",
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

type sseEvent struct {
	Content        string `json:"content"`
	Done           bool   `json:"done"`
	ConversationID string `json:"conversationId,omitempty"`
}

func (d *Deps) streamHandler(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, errors.Join(errInvalidInput, errors.New("message is required")))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported by this response writer"))
		return
	}

	sess := d.Sessions.GetOrCreate(req.ConversationID)
	messages := d.historyPlus(sess.ID, req.Message)
	_ = d.Sessions.Append(sess.ID, model.RoleUser, req.Message)
	d.saveSession(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var full string
	streamErr := d.Chat.Stream(r.Context(), &model.Request{Model: req.Model, Messages: messages}, func(chunk model.Chunk) error {
		full += chunk.Delta
		return writeSSE(w, flusher, sseEvent{Content: chunk.Delta, Done: chunk.Done, ConversationID: sess.ID})
	})
	if streamErr != nil {
		_ = writeSSE(w, flusher, map[string]any{"error": streamErr.Error(), "done": true})
		return
	}

	_ = d.Sessions.Append(sess.ID, model.RoleAssistant, full)
	d.saveSession(r.Context())
}

// saveSession persists the session store to SessionStorePath so a restart
// doesn't lose conversation history. Save is a no-op when no path was
// configured; a real write failure is logged rather than surfaced to the
// caller, since the in-memory conversation state is already correct and a
// failed flush shouldn't turn a successful chat turn into an error response.
func (d *Deps) saveSession(ctx context.Context) {
	if err := d.Sessions.Save(); err != nil {
		d.logger().Error(ctx, "failed to persist session store", "err", err.Error())
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
