package callcontrol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/troikatech/voice-orchestrator/internal/store"
	"github.com/troikatech/voice-orchestrator/pkg/logger"
	"github.com/troikatech/voice-orchestrator/pkg/validation"
)

// ErrInvalidAddress is returned when a destination number fails E.164
// validation before any provider call is attempted.
var ErrInvalidAddress = errors.New("destination is not a valid E.164 address")

const (
	defaultVoice       = "en-US-Standard-C"
	transferTimeoutSec = 45
	holdMusicURL       = "https://cdn.troikatech.in/audio/hold-loop.mp3"
)

// Adapter turns orchestrator decisions into provider instruction lists and
// outbound API calls. All webhook callback URLs it emits carry the call id
// so retried deliveries stay attributable.
type Adapter struct {
	provider    ProviderClient
	store       store.Store
	webhookBase string
	callerID    string
	log         *zap.Logger
}

func NewAdapter(provider ProviderClient, st store.Store, webhookBase, callerID string) *Adapter {
	return &Adapter{
		provider:    provider,
		store:       st,
		webhookBase: webhookBase,
		callerID:    callerID,
		log:         logger.Log,
	}
}

// PlaceCallRequest describes an operator-initiated outbound call.
type PlaceCallRequest struct {
	TenantID string
	AgentID  string
	To       string
	From     string
	Greeting string
}

// PlaceOutboundCall validates the destination, writes the durable record
// first, then asks the provider to dial. The record exists with status
// ringing before the provider request goes out so a crash mid-dial still
// leaves an auditable row; provider failure flips it to failed.
func (a *Adapter) PlaceOutboundCall(ctx context.Context, req PlaceCallRequest) (*store.CallRecord, error) {
	to, err := validation.NormalizeE164(req.To)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, req.To)
	}
	from := req.From
	if from == "" {
		from = a.callerID
	}

	rec := &store.CallRecord{
		ID:          uuid.New().String(),
		TenantID:    req.TenantID,
		AgentID:     req.AgentID,
		Counterpart: to,
		Direction:   store.DirectionOutbound,
		Status:      store.CallStatusRinging,
		StartedAt:   time.Now().UTC(),
	}
	if _, err := a.store.CreateCallRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist call record: %w", err)
	}

	resp, err := a.provider.CreateCall(ctx, CreateCallRequest{
		To:               []Endpoint{{Type: "phone", Number: to}},
		From:             Endpoint{Type: "phone", Number: from},
		AnswerURL:        []string{a.answerURL(rec.ID)},
		EventURL:         []string{a.eventURL(rec.ID)},
		MachineDetection: "continue",
	})
	if err != nil {
		a.log.Error("outbound dial failed",
			zap.String("call_id", rec.ID),
			logger.MaskPhone("to", to),
			zap.Error(err))
		if uerr := a.store.UpdateCallStatus(ctx, rec.ID, map[string]interface{}{
			"status": store.CallStatusFailed,
		}); uerr != nil {
			a.log.Error("failed to mark call failed", zap.String("call_id", rec.ID), zap.Error(uerr))
		}
		return nil, fmt.Errorf("provider rejected outbound call: %w", err)
	}

	rec.CorrelationID = resp.UUID
	if err := a.store.UpdateCallStatus(ctx, rec.ID, map[string]interface{}{
		"correlation_id": resp.UUID,
	}); err != nil {
		a.log.Warn("failed to store correlation id", zap.String("call_id", rec.ID), zap.Error(err))
	}

	a.log.Info("outbound call placed",
		zap.String("call_id", rec.ID),
		zap.String("correlation_id", resp.UUID),
		logger.MaskPhone("to", to))
	return rec, nil
}

// BuildInitialInstructions is the answer-webhook response: greet, then
// open the floor for the first utterance.
func (a *Adapter) BuildInitialInstructions(callID, greeting, voice string) Instructions {
	if voice == "" {
		voice = defaultVoice
	}
	return Instructions{
		Talk(greeting, voice),
		Listen(a.inputURL(callID, 1)),
	}
}

// SpeakAndListen responds with the assistant's reply and re-arms input
// capture for the next turn. attempt seeds the no-input counter echoed
// back by the provider.
func (a *Adapter) SpeakAndListen(callID, text, voice string, attempt int) Instructions {
	if voice == "" {
		voice = defaultVoice
	}
	if attempt < 1 {
		attempt = 1
	}
	return Instructions{
		Talk(text, voice),
		Listen(a.inputURL(callID, attempt)),
	}
}

// RePrompt nudges an unresponsive caller, carrying the incremented attempt
// number in the next input callback.
func (a *Adapter) RePrompt(callID string, attempt int) Instructions {
	prompt := "Sorry, I didn't catch that. Could you say that again?"
	if attempt > 2 {
		prompt = "I still can't hear you. Are you there? Please speak after the tone."
	}
	return Instructions{
		Talk(prompt, defaultVoice),
		Listen(a.inputURL(callID, attempt)),
	}
}

// HoldMusic loops wait audio until the call is updated.
func (a *Adapter) HoldMusic() Instructions {
	return Instructions{
		Talk("Please hold for a moment.", defaultVoice),
		Stream(holdMusicURL),
	}
}

// ConnectTo bridges the caller to a human target with a whisper leg.
func (a *Adapter) ConnectTo(callID, target, whisper string) Instructions {
	return Instructions{
		Talk("Connecting you now, please hold.", defaultVoice),
		Connect(target, a.callerID, whisper, transferTimeoutSec),
	}
}

// RecordVoicemail invites a message and records it.
func (a *Adapter) RecordVoicemail(callID, prompt string) Instructions {
	if prompt == "" {
		prompt = "Please leave a message after the tone."
	}
	return Instructions{
		Talk(prompt, defaultVoice),
		Record(a.voicemailURL(callID)),
	}
}

// Goodbye speaks a closing line and lets the call run off the end of the
// instruction list, which hangs up.
func (a *Adapter) Goodbye(text string) Instructions {
	if text == "" {
		text = "Thank you for calling. Goodbye."
	}
	return Instructions{Talk(text, defaultVoice)}
}

// Fallback is the degraded-path response when the responder cannot answer:
// apologize and keep listening rather than dropping the call.
func (a *Adapter) Fallback(callID string, attempt int) Instructions {
	return Instructions{
		Talk("I'm sorry, I'm having trouble right now. Could you say that again?", defaultVoice),
		Listen(a.inputURL(callID, attempt)),
	}
}

// TransferLiveCall replaces the running flow on the provider side with a
// connect to the target. Used when a transfer is decided mid-turn rather
// than as a webhook response.
func (a *Adapter) TransferLiveCall(ctx context.Context, correlationID, callID, target, whisper string) error {
	return a.provider.UpdateCall(ctx, correlationID, UpdateCallRequest{
		Action:      "transfer",
		Destination: a.ConnectTo(callID, target, whisper),
	})
}

// ReplaceFlow swaps the instruction list running on a live call, used for
// operator-driven hold and resume.
func (a *Adapter) ReplaceFlow(ctx context.Context, correlationID string, ins Instructions) error {
	return a.provider.UpdateCall(ctx, correlationID, UpdateCallRequest{
		Action:      "transfer",
		Destination: ins,
	})
}

// Hangup ends the provider leg of a live call.
func (a *Adapter) Hangup(ctx context.Context, correlationID string) error {
	return a.provider.UpdateCall(ctx, correlationID, UpdateCallRequest{Action: "hangup"})
}

func (a *Adapter) answerURL(callID string) string {
	return fmt.Sprintf("%s/webhooks/voice/answer?call_id=%s", a.webhookBase, callID)
}

func (a *Adapter) eventURL(callID string) string {
	return fmt.Sprintf("%s/webhooks/voice/event/%s", a.webhookBase, callID)
}

func (a *Adapter) inputURL(callID string, attempt int) string {
	return fmt.Sprintf("%s/webhooks/voice/input/%s?attempt=%d", a.webhookBase, callID, attempt)
}

func (a *Adapter) voicemailURL(callID string) string {
	return fmt.Sprintf("%s/webhooks/voice/voicemail/%s", a.webhookBase, callID)
}
