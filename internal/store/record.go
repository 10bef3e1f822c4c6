package store

import (
	"context"
	"time"
)

// Call direction values
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Durable call record statuses. These shadow the live session states plus
// the terminal outcomes only the provider can report.
const (
	CallStatusRinging      = "ringing"
	CallStatusInProgress   = "in_progress"
	CallStatusOnHold       = "on_hold"
	CallStatusTransferring = "transferring"
	CallStatusCompleted    = "completed"
	CallStatusFailed       = "failed"
)

// LiveStatuses are the non-terminal call statuses.
var LiveStatuses = []string{
	CallStatusRinging,
	CallStatusInProgress,
	CallStatusOnHold,
	CallStatusTransferring,
}

// CallRecord is the persisted, queryable row representing a call
// independent of whether it is still live.
type CallRecord struct {
	ID            string    `bson:"_id" json:"id"`
	TenantID      string    `bson:"tenant_id" json:"tenant_id"`
	AgentID       string    `bson:"agent_id,omitempty" json:"agent_id,omitempty"`
	Counterpart   string    `bson:"counterpart" json:"counterpart"`
	Direction     string    `bson:"direction" json:"direction"`
	Status        string    `bson:"status" json:"status"`
	CorrelationID string    `bson:"correlation_id" json:"correlation_id"`
	StartedAt     time.Time `bson:"started_at" json:"started_at"`
	EndedAt       time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	DurationSec   int       `bson:"duration_sec,omitempty" json:"duration_sec,omitempty"`
	RecordingURL  string    `bson:"recording_url,omitempty" json:"recording_url,omitempty"`
	Transcript    string    `bson:"transcript,omitempty" json:"transcript,omitempty"`
	Summary       string    `bson:"summary,omitempty" json:"summary,omitempty"`
	Sentiment     string    `bson:"sentiment,omitempty" json:"sentiment,omitempty"`
	Tags          []string  `bson:"tags,omitempty" json:"tags,omitempty"`
	CostCents     int       `bson:"cost_cents,omitempty" json:"cost_cents,omitempty"`
}

// CallEvent is one entry in a call's append-only status history.
type CallEvent struct {
	CallID    string    `bson:"call_id" json:"call_id"`
	Status    string    `bson:"status" json:"status"`
	Detail    string    `bson:"detail,omitempty" json:"detail,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// CallbackRequest is a durable follow-up row written when a caller asks to
// be called back or leaves a voicemail. Rows are removed once an operator
// completes the follow-up.
type CallbackRequest struct {
	ID            string    `bson:"_id" json:"id"`
	CallID        string    `bson:"call_id" json:"call_id"`
	TenantID      string    `bson:"tenant_id" json:"tenant_id"`
	Counterpart   string    `bson:"counterpart" json:"counterpart"`
	PreferredTime string    `bson:"preferred_time,omitempty" json:"preferred_time,omitempty"`
	Notes         string    `bson:"notes,omitempty" json:"notes,omitempty"`
	Reason        string    `bson:"reason" json:"reason"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

// Escalation records a transfer that was answered by a human.
type Escalation struct {
	CallID        string    `bson:"call_id" json:"call_id"`
	CorrelationID string    `bson:"correlation_id" json:"correlation_id"`
	TenantID      string    `bson:"tenant_id" json:"tenant_id"`
	Target        string    `bson:"target" json:"target"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

// Agent is the persona configuration answering calls for a tenant.
type Agent struct {
	ID               string `bson:"_id" json:"id"`
	TenantID         string `bson:"tenant_id" json:"tenant_id"`
	Name             string `bson:"name" json:"name"`
	Persona          string `bson:"persona" json:"persona"`
	Greeting         string `bson:"greeting" json:"greeting"`
	VoiceID          string `bson:"voice_id,omitempty" json:"voice_id,omitempty"`
	InboundAddress   string `bson:"inbound_address,omitempty" json:"inbound_address,omitempty"`
	EscalationTarget string `bson:"escalation_target,omitempty" json:"escalation_target,omitempty"`
}

// CallQuery filters ListCallRecords. Zero-valued fields are ignored.
type CallQuery struct {
	TenantID string
	Status   string
	Since    time.Time
	Until    time.Time
	Limit    int64
}

// Store is the durable persistence surface the orchestrator and the
// call-control adapter write through. All methods are possibly-failing I/O;
// callers log failures and keep the live call going.
type Store interface {
	CreateCallRecord(ctx context.Context, rec *CallRecord) (string, error)
	UpdateCallStatus(ctx context.Context, id string, fields map[string]interface{}) error
	AppendTranscript(ctx context.Context, id, transcript string) error
	GetCallRecord(ctx context.Context, id string) (*CallRecord, error)

	// ListCallRecords returns recent calls newest first, transcripts
	// omitted. CountActiveCalls counts calls in a non-terminal status.
	ListCallRecords(ctx context.Context, q CallQuery) ([]*CallRecord, error)
	CountActiveCalls(ctx context.Context, tenantID string) (int64, error)

	AppendCallEvent(ctx context.Context, ev CallEvent) error
	ListCallEvents(ctx context.Context, callID string) ([]CallEvent, error)

	CreateCallbackRequest(ctx context.Context, cb *CallbackRequest) error
	ListCallbackRequests(ctx context.Context, tenantID string) ([]*CallbackRequest, error)
	DeleteCallbackRequest(ctx context.Context, id string) error

	// CreateEscalation is idempotent per correlation id: repeated transfer
	// webhooks must not produce duplicate escalation rows.
	CreateEscalation(ctx context.Context, esc *Escalation) error

	GetAgent(ctx context.Context, tenantID, agentID string) (*Agent, error)
	FindAgentByAddress(ctx context.Context, address string) (*Agent, error)
}
