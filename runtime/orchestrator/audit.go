package orchestrator

import (
	"sync"
	"time"

	"github.com/cellmind/agentcore/runtime/plan"
)

// OverrideEvent records one occasion where the Orchestrator discarded an
// LLM-influenced recovery decision in favor of the deterministic
// classifier result, because the error kind was ModuleNotFoundError or
// ImportError and the two disagreed.
type OverrideEvent struct {
	Time          time.Time
	StepNumber    int
	ErrorKind     string
	Deterministic plan.RecoveryDecision
	LLMInfluenced plan.RecoveryDecision
	Reason        string
}

// AuditLog is an append-only, concurrency-safe record of decision
// overrides for one orchestrator (or one run, at the caller's choosing).
// Unlike runtime/verifier's bounded ring buffer, entries here are never
// dropped: an audit trail that silently loses events defeats its purpose.
type AuditLog struct {
	mu     sync.Mutex
	events []OverrideEvent
}

// NewAuditLog returns an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Record appends one override event.
func (a *AuditLog) Record(e OverrideEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

// List returns a copy of every recorded event, oldest first.
func (a *AuditLog) List() []OverrideEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]OverrideEvent, len(a.events))
	copy(out, a.events)
	return out
}
