package ai

import (
	"context"
)

// Provider is the base interface for all AI responder providers
type Provider interface {
	// Respond generates the assistant's next conversational turn
	Respond(ctx context.Context, req *RespondRequest) (*RespondResponse, error)

	// SummarizeCall generates a summary from a call transcript
	SummarizeCall(ctx context.Context, req *SummarizeRequest) (*SummarizeResponse, error)

	// IsAvailable checks if the provider is available/configured
	IsAvailable() bool

	// Name returns the provider name
	Name() string
}

// Action is a structured instruction the responder may attach to a reply,
// interpreted by the orchestrator (transfer, voicemail, callback, end).
type Action struct {
	Type   string            `json:"type"`
	Target string            `json:"target,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// Action types the orchestrator understands.
const (
	ActionTransfer  = "transfer"
	ActionVoicemail = "voicemail"
	ActionCallback  = "schedule_callback"
	ActionEndCall   = "end_call"
)

// HistoryTurn is one prior conversation turn
type HistoryTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// RespondRequest represents a conversational turn request
type RespondRequest struct {
	UserText           string
	CounterpartAddress string
	AgentPersona       string
	TenantContext      map[string]string
	Channel            string
	History            []HistoryTurn
}

// RespondResponse represents the assistant's reply plus optional actions
type RespondResponse struct {
	ReplyText string   `json:"reply_text"`
	Actions   []Action `json:"actions,omitempty"`
	Provider  string   `json:"provider"`
}

// SummarizeRequest represents a call summarization request
type SummarizeRequest struct {
	CallID     string
	Transcript string
}

// SummarizeResponse represents a call summarization response
type SummarizeResponse struct {
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
	Sentiment string   `json:"sentiment"`
	Provider  string   `json:"provider"`
}
