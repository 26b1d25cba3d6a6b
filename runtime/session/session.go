// Package session implements the Session Store: an in-memory, optionally
// file-persisted map from session id to conversation history, with bounded
// context-building for the Prompt Assembler and Context Condenser.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cellmind/agentcore/runtime/model"
)

// Message is one turn in a session's history, timestamped for ordering and
// for the updated_at-is-max-of-message-timestamps invariant.
type Message struct {
	Role      model.ConversationRole `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
}

// Session is one conversation's append-only history.
type Session struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []Message         `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type document struct {
	Sessions []Session `json:"sessions"`
}

// Store is the process-scoped conversation store. It is a single logical
// object with writes serialized behind one lock: this system has no need
// for per-session concurrency, only causal-order-preserving append across
// the whole store.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	path     string
}

// New builds a Store. If path is non-empty, an initial Load is attempted
// (a missing or corrupted file starts the store empty rather than failing)
// and Save persists to that path.
func New(path string) *Store {
	s := &Store{sessions: map[string]*Session{}, path: path}
	if path != "" {
		_ = s.Load()
	}
	return s
}

// GetOrCreate returns the session for id, allocating a new session (with a
// freshly generated id if id is empty, or under id itself if id is unknown)
// when none exists yet.
func (s *Store) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			return sess
		}
	} else {
		id = uuid.NewString()
	}
	now := time.Now()
	sess := &Session{ID: id, CreatedAt: now, UpdatedAt: now}
	s.sessions[id] = sess
	return sess
}

// Append adds one message to a session and advances its updated_at.
func (s *Store) Append(sessionID string, role model.ConversationRole, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %q not found", sessionID)
	}
	now := time.Now()
	sess.Messages = append(sess.Messages, Message{Role: role, Content: content, Timestamp: now})
	sess.UpdatedAt = now
	return nil
}

// Recent returns up to the last limit messages for a session, oldest first.
// limit <= 0 returns the full history.
func (s *Store) Recent(sessionID string, limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return lastN(sess.Messages, limit)
}

func lastN(messages []Message, limit int) []Message {
	if limit <= 0 || limit >= len(messages) {
		out := make([]Message, len(messages))
		copy(out, messages)
		return out
	}
	out := make([]Message, limit)
	copy(out, messages[len(messages)-limit:])
	return out
}

// BuildContext concatenates the last limit messages as "User: ...\n
// Assistant: ..." lines, one per message, oldest first.
func (s *Store) BuildContext(sessionID string, limit int) string {
	messages := s.Recent(sessionID, limit)
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", roleLabel(m.Role), m.Content))
	}
	return strings.Join(lines, "\n")
}

func roleLabel(role model.ConversationRole) string {
	switch role {
	case model.RoleUser:
		return "User"
	case model.RoleAssistant:
		return "Assistant"
	case model.RoleSystem:
		return "System"
	default:
		return string(role)
	}
}

// List returns a snapshot of every session, ordered by updated_at descending.
func (s *Store) List() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Save serializes the store to its configured path via write-then-rename,
// so a reader never observes a partially written file. A no-op if the
// Store was built without a path.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	doc := document{Sessions: make([]Session, 0, len(s.sessions))}
	for _, sess := range s.sessions {
		doc.Sessions = append(doc.Sessions, *sess)
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session store: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".session-store-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load replaces the in-memory state from the configured path. A missing or
// corrupted file leaves the store empty rather than raising, since a fresh
// deployment with no prior state is a normal starting point, not a fault.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*Session, len(doc.Sessions))
	for i := range doc.Sessions {
		sess := doc.Sessions[i]
		s.sessions[sess.ID] = &sess
	}
	return nil
}
