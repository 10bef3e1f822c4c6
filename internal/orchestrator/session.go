package orchestrator

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidTransition is wrapped by every rejected lifecycle move.
var ErrInvalidTransition = errors.New("invalid session transition")

// Status is the live lifecycle state of a call session.
type Status string

const (
	StatusRinging      Status = "ringing"
	StatusInProgress   Status = "in_progress"
	StatusOnHold       Status = "on_hold"
	StatusTransferring Status = "transferring"
	StatusCompleted    Status = "completed"
)

// validTransitions encodes the lifecycle graph. completed is terminal and
// reachable from every non-terminal state.
var validTransitions = map[Status][]Status{
	StatusRinging:      {StatusInProgress, StatusCompleted},
	StatusInProgress:   {StatusOnHold, StatusTransferring, StatusCompleted},
	StatusOnHold:       {StatusInProgress, StatusCompleted},
	StatusTransferring: {StatusCompleted},
	StatusCompleted:    {},
}

// Turn is one utterance in the conversation history.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionMeta carries the agent persona and tenant context resolved when
// the session was created. Extra holds provider oddities that have no
// first-class field.
type SessionMeta struct {
	TenantID         string
	AgentID          string
	AgentName        string
	Persona          string
	Greeting         string
	VoiceID          string
	EscalationTarget string
	Extra            map[string]string
}

// CallSession is the in-memory state of one live call. All mutation goes
// through methods holding the session mutex; the mutex is never held
// across store or responder calls.
type CallSession struct {
	mu sync.Mutex

	ID            string
	CorrelationID string
	Counterpart   string
	Direction     string
	Meta          SessionMeta

	status       Status
	history      []Turn
	noInputCount int
	startedAt    time.Time
	lastActivity time.Time
}

func NewCallSession(id, correlationID, counterpart, direction string, meta SessionMeta) *CallSession {
	now := time.Now().UTC()
	return &CallSession{
		ID:            id,
		CorrelationID: correlationID,
		Counterpart:   counterpart,
		Direction:     direction,
		Meta:          meta,
		status:        StatusRinging,
		startedAt:     now,
		lastActivity:  now,
	}
}

// TransitionTo moves the session to next if the lifecycle graph allows it.
// Transitioning to the current state is a no-op so retried webhooks don't
// error.
func (s *CallSession) TransitionTo(next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(next)
}

func (s *CallSession) transitionLocked(next Status) error {
	if s.status == next {
		return nil
	}
	for _, allowed := range validTransitions[s.status] {
		if allowed == next {
			s.status = next
			s.lastActivity = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.status, next)
}

// Complete moves the session to its terminal state. It returns true only
// on the first call so end-of-call persistence runs exactly once no matter
// how many completion webhooks arrive.
func (s *CallSession) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusCompleted {
		return false
	}
	s.status = StatusCompleted
	s.lastActivity = time.Now().UTC()
	return true
}

// AppendTurn adds an utterance to the history and refreshes activity.
func (s *CallSession) AppendTurn(role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Turn{Role: role, Text: text, Timestamp: time.Now().UTC()})
	s.lastActivity = time.Now().UTC()
}

// LastAssistantText returns the most recent assistant utterance, used to
// repeat the prompt on request.
func (s *CallSession) LastAssistantText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Role == "assistant" {
			return s.history[i].Text
		}
	}
	return ""
}

// BumpNoInput advances the consecutive-silence counter. The provider echoes
// its own attempt number; the effective count is the max of both so a
// provider that restarts its counter cannot reset ours.
func (s *CallSession) BumpNoInput(providerAttempt int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noInputCount++
	if providerAttempt > s.noInputCount {
		s.noInputCount = providerAttempt
	}
	s.lastActivity = time.Now().UTC()
	return s.noInputCount
}

// ResetNoInput clears the silence counter after real input arrives.
func (s *CallSession) ResetNoInput() {
	s.mu.Lock()
	s.noInputCount = 0
	s.mu.Unlock()
}

// Touch refreshes the activity clock without other mutation.
func (s *CallSession) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()
}

func (s *CallSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IdleSince reports how long the session has been without activity.
func (s *CallSession) IdleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// Snapshot is an immutable copy of session state taken under the lock so
// callers can do I/O without holding it.
type Snapshot struct {
	ID            string      `json:"id"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Counterpart   string      `json:"counterpart"`
	Direction     string      `json:"direction"`
	Status        Status      `json:"status"`
	Meta          SessionMeta `json:"-"`
	History       []Turn      `json:"history"`
	NoInputCount  int         `json:"no_input_count"`
	StartedAt     time.Time   `json:"started_at"`
	LastActivity  time.Time   `json:"last_activity"`
}

func (s *CallSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]Turn, len(s.history))
	copy(history, s.history)
	return Snapshot{
		ID:            s.ID,
		CorrelationID: s.CorrelationID,
		Counterpart:   s.Counterpart,
		Direction:     s.Direction,
		Status:        s.status,
		Meta:          s.Meta,
		History:       history,
		NoInputCount:  s.noInputCount,
		StartedAt:     s.startedAt,
		LastActivity:  s.lastActivity,
	}
}

// SetCorrelationID records the provider leg id once known.
func (s *CallSession) SetCorrelationID(id string) {
	s.mu.Lock()
	s.CorrelationID = id
	s.mu.Unlock()
}
