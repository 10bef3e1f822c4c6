package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/troikatech/voice-orchestrator/internal/callcontrol"
	"github.com/troikatech/voice-orchestrator/internal/store"
	"github.com/troikatech/voice-orchestrator/pkg/ai"
	"github.com/troikatech/voice-orchestrator/pkg/logger"
	"github.com/troikatech/voice-orchestrator/pkg/retry"
	"github.com/troikatech/voice-orchestrator/pkg/storage"
)

// ErrSessionNotFound is returned by operations addressing a call with no
// live session.
var ErrSessionNotFound = errors.New("no live session for call")

// Responder is the conversational surface the orchestrator consumes.
// Satisfied by ai.Manager; faked in tests.
type Responder interface {
	Respond(ctx context.Context, req *ai.RespondRequest) (*ai.RespondResponse, error)
	SummarizeCall(ctx context.Context, req *ai.SummarizeRequest) (*ai.SummarizeResponse, error)
}

// Config tunes the orchestrator's timing behavior.
type Config struct {
	MaxNoInputAttempts int
	IdleTimeout        time.Duration
	AITimeout          time.Duration
	SummarizeOnEnd     bool
}

// Orchestrator owns the live session registry and drives every call's
// lifecycle from webhook deliveries and operator commands.
type Orchestrator struct {
	registry *Registry
	store    store.Store
	adapter  *callcontrol.Adapter
	ai       Responder
	storage  storage.Driver
	cfg      Config
	log      *zap.Logger
}

func New(st store.Store, adapter *callcontrol.Adapter, responder Responder, recordings storage.Driver, cfg Config) *Orchestrator {
	if cfg.MaxNoInputAttempts <= 0 {
		cfg.MaxNoInputAttempts = 3
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = 8 * time.Second
	}
	return &Orchestrator{
		registry: NewRegistry(),
		store:    st,
		adapter:  adapter,
		ai:       responder,
		storage:  recordings,
		cfg:      cfg,
		log:      logger.Log,
	}
}

// StartParams identifies the call a new session belongs to.
type StartParams struct {
	CallID        string
	CorrelationID string
	From          string
	To            string
	Direction     string
}

// CreateSession installs a session for the call if none exists. Duplicate
// deliveries of the answer webhook land on the same session; the bool
// reports whether this delivery created it.
func (o *Orchestrator) CreateSession(ctx context.Context, p StartParams) (*CallSession, bool, error) {
	meta, counterpart, err := o.resolveMeta(ctx, p)
	if err != nil {
		return nil, false, err
	}

	sess, created := o.registry.GetOrCreate(p.CallID, func() *CallSession {
		return NewCallSession(p.CallID, p.CorrelationID, counterpart, p.Direction, meta)
	})
	if !created {
		sess.Touch()
		return sess, false, nil
	}

	if p.Direction == store.DirectionInbound {
		snap := sess.Snapshot()
		_, err := o.store.CreateCallRecord(ctx, &store.CallRecord{
			ID:            snap.ID,
			TenantID:      meta.TenantID,
			AgentID:       meta.AgentID,
			Counterpart:   counterpart,
			Direction:     store.DirectionInbound,
			Status:        store.CallStatusRinging,
			CorrelationID: p.CorrelationID,
			StartedAt:     snap.StartedAt,
		})
		if err != nil {
			o.log.Error("failed to persist inbound call record",
				zap.String("call_id", p.CallID), zap.Error(err))
		}
	}
	o.appendEvent(ctx, p.CallID, string(StatusRinging), "session created")
	return sess, true, nil
}

func (o *Orchestrator) resolveMeta(ctx context.Context, p StartParams) (SessionMeta, string, error) {
	if p.Direction == store.DirectionInbound {
		counterpart := p.From
		agent, err := o.store.FindAgentByAddress(ctx, p.To)
		if err != nil {
			o.log.Warn("agent lookup failed", zap.String("address", p.To), zap.Error(err))
		}
		if agent == nil {
			return SessionMeta{
				Greeting: "Hello, thanks for calling. How can I help you today?",
			}, counterpart, nil
		}
		return metaFromAgent(agent), counterpart, nil
	}

	// Outbound: the durable record was written when the call was placed.
	rec, err := o.store.GetCallRecord(ctx, p.CallID)
	if err != nil || rec == nil {
		return SessionMeta{}, p.To, fmt.Errorf("unknown outbound call %s", p.CallID)
	}
	meta := SessionMeta{TenantID: rec.TenantID, AgentID: rec.AgentID}
	if rec.AgentID != "" {
		if agent, aerr := o.store.GetAgent(ctx, rec.TenantID, rec.AgentID); aerr == nil && agent != nil {
			meta = metaFromAgent(agent)
		}
	}
	if meta.Greeting == "" {
		meta.Greeting = "Hello, this is an automated call. Do you have a moment?"
	}
	return meta, rec.Counterpart, nil
}

func metaFromAgent(agent *store.Agent) SessionMeta {
	return SessionMeta{
		TenantID:         agent.TenantID,
		AgentID:          agent.ID,
		AgentName:        agent.Name,
		Persona:          agent.Persona,
		Greeting:         agent.Greeting,
		VoiceID:          agent.VoiceID,
		EscalationTarget: agent.EscalationTarget,
	}
}

// OnAnswer handles the answer webhook: create (or find) the session, move
// it to in_progress, and return the greeting flow. Safe to deliver twice.
func (o *Orchestrator) OnAnswer(ctx context.Context, p StartParams) (callcontrol.Instructions, error) {
	sess, _, err := o.CreateSession(ctx, p)
	if err != nil {
		return nil, err
	}
	if p.CorrelationID != "" && sess.Snapshot().CorrelationID == "" {
		sess.SetCorrelationID(p.CorrelationID)
		o.updateStatus(ctx, p.CallID, map[string]interface{}{"correlation_id": p.CorrelationID})
	}

	prev := sess.Status()
	if err := sess.TransitionTo(StatusInProgress); err != nil {
		// Answered after the call already ended; nothing to say.
		return o.adapter.Goodbye(""), nil
	}

	meta := sess.Snapshot().Meta
	// Side effects only on the first answer; retried deliveries get the
	// same greeting flow back without re-growing the history.
	if prev == StatusRinging {
		o.updateStatus(ctx, p.CallID, map[string]interface{}{"status": store.CallStatusInProgress})
		o.appendEvent(ctx, p.CallID, string(StatusInProgress), "call answered")
		sess.AppendTurn("assistant", meta.Greeting)
	}
	return o.adapter.BuildInitialInstructions(p.CallID, meta.Greeting, meta.VoiceID), nil
}

// RecordTurn appends an utterance to a live session's history. A turn for
// an unknown or ended call is dropped, not an error: webhook retries can
// outlive the session.
func (o *Orchestrator) RecordTurn(ctx context.Context, callID, role, text string) {
	sess, ok := o.registry.Get(callID)
	if !ok {
		o.log.Debug("turn for unknown session dropped", zap.String("call_id", callID))
		return
	}
	sess.AppendTurn(role, text)
}

// OnInput handles the input webhook: speech, a DTMF digit, or silence.
// It always returns a playable instruction list; responder failure degrades
// to an apology, never a dropped call.
func (o *Orchestrator) OnInput(ctx context.Context, callID, speech, dtmf string, providerAttempt int) callcontrol.Instructions {
	sess, ok := o.registry.Get(callID)
	if !ok {
		o.log.Warn("input for unknown session", zap.String("call_id", callID))
		return o.adapter.Goodbye("")
	}

	switch {
	case dtmf != "":
		return o.handleDTMF(ctx, sess, dtmf)
	case strings.TrimSpace(speech) == "":
		return o.handleNoInput(ctx, sess, providerAttempt)
	default:
		return o.handleSpeech(ctx, sess, speech)
	}
}

// DTMF menu: 9 transfers to a human, 0 repeats the last prompt. Any other
// digit gets the prompt repeated too, since the menu was not understood.
func (o *Orchestrator) handleDTMF(ctx context.Context, sess *CallSession, digit string) callcontrol.Instructions {
	sess.ResetNoInput()
	switch digit {
	case "9":
		ins, err := o.Transfer(ctx, sess.ID, "")
		if err != nil {
			o.log.Warn("dtmf transfer failed", zap.String("call_id", sess.ID), zap.Error(err))
			return o.adapter.Fallback(sess.ID, 1)
		}
		return ins
	case "0":
		last := sess.LastAssistantText()
		if last == "" {
			last = sess.Snapshot().Meta.Greeting
		}
		return o.adapter.SpeakAndListen(sess.ID, last, sess.Snapshot().Meta.VoiceID, 1)
	default:
		return o.adapter.RePrompt(sess.ID, 1)
	}
}

func (o *Orchestrator) handleSpeech(ctx context.Context, sess *CallSession, speech string) callcontrol.Instructions {
	sess.ResetNoInput()
	sess.AppendTurn("user", speech)
	snap := sess.Snapshot()

	switch sess.Status() {
	case StatusInProgress:
	case StatusOnHold:
		// Input raced an operator hold; keep the caller in the hold flow.
		return o.adapter.HoldMusic()
	default:
		return o.adapter.Goodbye("")
	}

	aiCtx, cancel := context.WithTimeout(ctx, o.cfg.AITimeout)
	defer cancel()
	resp, err := o.ai.Respond(aiCtx, &ai.RespondRequest{
		UserText:           speech,
		CounterpartAddress: snap.Counterpart,
		AgentPersona:       snap.Meta.Persona,
		Channel:            "voice",
		History:            historyForResponder(snap.History),
	})
	if err != nil {
		o.log.Error("responder failed, degrading to apology",
			zap.String("call_id", sess.ID), zap.Error(err))
		return o.adapter.Fallback(sess.ID, 1)
	}

	// Re-check after the slow call: the session may have ended meanwhile.
	if sess.Status() == StatusCompleted {
		return o.adapter.Goodbye("")
	}

	if ins := o.applyActions(ctx, sess, resp); ins != nil {
		return ins
	}

	sess.AppendTurn("assistant", resp.ReplyText)
	return o.adapter.SpeakAndListen(sess.ID, resp.ReplyText, snap.Meta.VoiceID, 1)
}

// applyActions executes the first recognized responder action. Returns nil
// when the reply is purely conversational.
func (o *Orchestrator) applyActions(ctx context.Context, sess *CallSession, resp *ai.RespondResponse) callcontrol.Instructions {
	for _, action := range resp.Actions {
		switch action.Type {
		case ai.ActionTransfer:
			if resp.ReplyText != "" {
				sess.AppendTurn("assistant", resp.ReplyText)
			}
			ins, err := o.Transfer(ctx, sess.ID, action.Target)
			if err != nil {
				o.log.Warn("responder-initiated transfer failed",
					zap.String("call_id", sess.ID), zap.Error(err))
				return o.adapter.Fallback(sess.ID, 1)
			}
			return ins
		case ai.ActionVoicemail:
			return o.SendToVoicemail(ctx, sess.ID, resp.ReplyText)
		case ai.ActionCallback:
			return o.scheduleCallback(ctx, sess, resp, action)
		case ai.ActionEndCall:
			goodbye := resp.ReplyText
			if goodbye != "" {
				sess.AppendTurn("assistant", goodbye)
			}
			o.EndSession(ctx, sess.ID, "responder ended call")
			return o.adapter.Goodbye(goodbye)
		}
	}
	return nil
}

func (o *Orchestrator) scheduleCallback(ctx context.Context, sess *CallSession, resp *ai.RespondResponse, action ai.Action) callcontrol.Instructions {
	snap := sess.Snapshot()
	err := o.store.CreateCallbackRequest(ctx, &store.CallbackRequest{
		CallID:        sess.ID,
		TenantID:      snap.Meta.TenantID,
		Counterpart:   snap.Counterpart,
		PreferredTime: action.Params["preferred_time"],
		Notes:         action.Params["notes"],
		Reason:        "caller requested callback",
	})
	if err != nil {
		o.log.Error("failed to save callback request",
			zap.String("call_id", sess.ID), zap.Error(err))
		text := "I'm sorry, I couldn't schedule that callback. Is there anything else I can help with?"
		sess.AppendTurn("assistant", text)
		return o.adapter.SpeakAndListen(sess.ID, text, snap.Meta.VoiceID, 1)
	}

	text := resp.ReplyText
	if text == "" {
		text = "You're all set, we'll call you back. Anything else?"
	}
	sess.AppendTurn("assistant", text)
	return o.adapter.SpeakAndListen(sess.ID, text, snap.Meta.VoiceID, 1)
}

func (o *Orchestrator) handleNoInput(ctx context.Context, sess *CallSession, providerAttempt int) callcontrol.Instructions {
	count := sess.BumpNoInput(providerAttempt)
	if count >= o.cfg.MaxNoInputAttempts {
		o.log.Info("ending silent call",
			zap.String("call_id", sess.ID), zap.Int("attempts", count))
		o.EndSession(ctx, sess.ID, "no input")
		return o.adapter.Goodbye("It seems you're no longer there, so I'll hang up now. Goodbye.")
	}
	return o.adapter.RePrompt(sess.ID, count+1)
}

// Transfer hands the call to a human. The target defaults to the agent's
// escalation number; the escalation row itself is written when the transfer
// result webhook confirms a human answered.
func (o *Orchestrator) Transfer(ctx context.Context, callID, target string) (callcontrol.Instructions, error) {
	sess, ok := o.registry.Get(callID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, callID)
	}
	snap := sess.Snapshot()
	if target == "" {
		target = snap.Meta.EscalationTarget
	}
	if target == "" {
		return nil, fmt.Errorf("no escalation target configured for call %s", callID)
	}
	if err := sess.TransitionTo(StatusTransferring); err != nil {
		return nil, err
	}
	o.updateStatus(ctx, callID, map[string]interface{}{"status": store.CallStatusTransferring})
	o.appendEvent(ctx, callID, string(StatusTransferring), "transfer to "+logger.MaskPhoneNumber(target))

	whisper := fmt.Sprintf("Transferred caller from %s", snap.Meta.AgentName)
	return o.adapter.ConnectTo(callID, target, whisper), nil
}

// OnTransferResult records the outcome of a transfer attempt. An answered
// transfer writes the escalation row (deduped on the provider leg id) but
// leaves the session in transferring; the bridged call keeps running until
// a terminal status event resolves it. Only a completed or failed leg ends
// the session here.
func (o *Orchestrator) OnTransferResult(ctx context.Context, callID, outcome, legID string) {
	sess, ok := o.registry.Get(callID)
	if !ok {
		return
	}
	snap := sess.Snapshot()

	switch outcome {
	case "answered":
		err := o.store.CreateEscalation(ctx, &store.Escalation{
			CallID:        callID,
			CorrelationID: legID,
			TenantID:      snap.Meta.TenantID,
			Target:        snap.Meta.EscalationTarget,
			CreatedAt:     time.Now().UTC(),
		})
		if err != nil {
			o.log.Error("failed to record escalation",
				zap.String("call_id", callID), zap.Error(err))
		}
		o.appendEvent(ctx, callID, "transfer_answered", legID)
		sess.Touch()
	case "completed":
		o.EndSession(ctx, callID, "transferred to human")
	case "failed", "busy", "timeout", "unanswered", "rejected", "cancelled":
		o.appendEvent(ctx, callID, "transfer_failed", outcome)
		o.EndSession(ctx, callID, "transfer failed: "+outcome)
	default:
		// interim leg status (started, ringing), nothing to resolve yet
		sess.Touch()
	}
}

// Hold pauses the conversation and pushes wait audio to the live call.
func (o *Orchestrator) Hold(ctx context.Context, callID string) error {
	sess, ok := o.registry.Get(callID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, callID)
	}
	if err := sess.TransitionTo(StatusOnHold); err != nil {
		return err
	}
	o.updateStatus(ctx, callID, map[string]interface{}{"status": store.CallStatusOnHold})
	o.appendEvent(ctx, callID, string(StatusOnHold), "")

	snap := sess.Snapshot()
	if snap.CorrelationID != "" {
		if err := o.adapter.ReplaceFlow(ctx, snap.CorrelationID, o.adapter.HoldMusic()); err != nil {
			o.log.Warn("failed to push hold audio", zap.String("call_id", callID), zap.Error(err))
		}
	}
	return nil
}

// Resume takes the call off hold and re-opens the conversation.
func (o *Orchestrator) Resume(ctx context.Context, callID string) error {
	sess, ok := o.registry.Get(callID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, callID)
	}
	if err := sess.TransitionTo(StatusInProgress); err != nil {
		return err
	}
	o.updateStatus(ctx, callID, map[string]interface{}{"status": store.CallStatusInProgress})
	o.appendEvent(ctx, callID, string(StatusInProgress), "resumed from hold")

	snap := sess.Snapshot()
	text := "Thanks for holding. Where were we?"
	sess.AppendTurn("assistant", text)
	if snap.CorrelationID != "" {
		ins := o.adapter.SpeakAndListen(callID, text, snap.Meta.VoiceID, 1)
		if err := o.adapter.ReplaceFlow(ctx, snap.CorrelationID, ins); err != nil {
			o.log.Warn("failed to resume live flow", zap.String("call_id", callID), zap.Error(err))
		}
	}
	return nil
}

// SendToVoicemail records a message from the caller and writes the
// follow-up row once the recording lands.
func (o *Orchestrator) SendToVoicemail(ctx context.Context, callID, prompt string) callcontrol.Instructions {
	sess, ok := o.registry.Get(callID)
	if ok && prompt != "" {
		sess.AppendTurn("assistant", prompt)
	}
	o.appendEvent(ctx, callID, "voicemail_offered", "")
	return o.adapter.RecordVoicemail(callID, prompt)
}

// OnVoicemailRecording persists the voicemail artifact and the callback
// row, then ends the session.
func (o *Orchestrator) OnVoicemailRecording(ctx context.Context, callID, recordingURL string) {
	o.OnRecording(ctx, callID, recordingURL)

	if sess, ok := o.registry.Get(callID); ok {
		snap := sess.Snapshot()
		err := o.store.CreateCallbackRequest(ctx, &store.CallbackRequest{
			CallID:      callID,
			TenantID:    snap.Meta.TenantID,
			Counterpart: snap.Counterpart,
			Notes:       recordingURL,
			Reason:      "voicemail left",
		})
		if err != nil {
			o.log.Error("failed to save voicemail follow-up",
				zap.String("call_id", callID), zap.Error(err))
		}
	}
	o.EndSession(ctx, callID, "voicemail recorded")
}

// OnRecording stores the call recording location. When the provider omits
// the URL the storage driver derives one.
func (o *Orchestrator) OnRecording(ctx context.Context, callID, recordingURL string) {
	if recordingURL == "" {
		derived, err := o.storage.RecordingURL(callID)
		if err != nil {
			o.log.Warn("no recording URL available", zap.String("call_id", callID), zap.Error(err))
			return
		}
		recordingURL = derived
	}
	o.updateStatus(ctx, callID, map[string]interface{}{"recording_url": recordingURL})
	o.appendEvent(ctx, callID, "recording_available", recordingURL)
}

// OnMachine handles answering-machine detection on outbound calls: leave a
// short message and end the session.
func (o *Orchestrator) OnMachine(ctx context.Context, callID string) callcontrol.Instructions {
	message := "Hello, sorry we missed you. We'll try to reach you again later. Goodbye."
	if sess, ok := o.registry.Get(callID); ok {
		snap := sess.Snapshot()
		if snap.Meta.Greeting != "" {
			message = snap.Meta.Greeting + " Sorry we missed you; we'll call again. Goodbye."
		}
		sess.AppendTurn("assistant", message)
	}
	o.appendEvent(ctx, callID, "machine_detected", "")
	o.EndSession(ctx, callID, "answering machine")
	return o.adapter.Goodbye(message)
}

// OnProviderEvent folds an asynchronous status callback into the session.
// Terminal provider statuses end the session with the provider's reason;
// the billed cost arrives on the terminal event and is stamped onto the
// durable record.
func (o *Orchestrator) OnProviderEvent(ctx context.Context, callID, status, detail string, costCents int) {
	o.appendEvent(ctx, callID, status, detail)

	switch status {
	case "completed", "failed", "busy", "cancelled", "rejected", "timeout", "unanswered":
		if costCents > 0 {
			o.updateStatus(ctx, callID, map[string]interface{}{"cost_cents": costCents})
		}
		o.EndSession(ctx, callID, "provider reported "+status)
	case "ringing", "started", "answered":
		if sess, ok := o.registry.Get(callID); ok {
			sess.Touch()
		}
	}
}

// EndSession finalizes a call: flush the transcript, stamp the durable
// record, drop the live session, and kick off summarization. Calling it
// again for the same call is a no-op, so at-least-once completion webhooks
// write the transcript exactly once.
func (o *Orchestrator) EndSession(ctx context.Context, callID, reason string) {
	sess, ok := o.registry.Get(callID)
	if !ok {
		return
	}
	if !sess.Complete() {
		return
	}

	snap := sess.Snapshot()
	transcript := flattenTranscript(snap.History)
	endedAt := time.Now().UTC()
	duration := int(endedAt.Sub(snap.StartedAt).Seconds())

	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		if err := o.store.UpdateCallStatus(ctx, callID, map[string]interface{}{
			"status":       store.CallStatusCompleted,
			"ended_at":     endedAt,
			"duration_sec": duration,
		}); err != nil {
			return err
		}
		if transcript == "" {
			return nil
		}
		return o.store.AppendTranscript(ctx, callID, transcript)
	})
	if err != nil {
		o.log.Error("failed to finalize call record",
			zap.String("call_id", callID), zap.Error(err))
	}
	o.appendEvent(ctx, callID, string(StatusCompleted), reason)

	o.registry.Remove(callID)
	o.log.Info("session ended",
		zap.String("call_id", callID),
		zap.String("reason", reason),
		zap.Int("duration_sec", duration),
		zap.Int("turns", len(snap.History)))

	if o.cfg.SummarizeOnEnd && transcript != "" {
		go o.summarize(callID, transcript)
	}
}

func (o *Orchestrator) summarize(callID, transcript string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := o.ai.SummarizeCall(ctx, &ai.SummarizeRequest{
		CallID:     callID,
		Transcript: transcript,
	})
	if err != nil {
		o.log.Warn("call summarization failed", zap.String("call_id", callID), zap.Error(err))
		return
	}
	if err := o.store.UpdateCallStatus(ctx, callID, map[string]interface{}{
		"summary":   resp.Summary,
		"sentiment": resp.Sentiment,
		"tags":      resp.Tags,
	}); err != nil {
		o.log.Error("failed to store call summary", zap.String("call_id", callID), zap.Error(err))
	}
}

// ReapStale ends sessions idle past the configured timeout, hanging up the
// provider leg best-effort first. Returns the number reaped.
func (o *Orchestrator) ReapStale(ctx context.Context) int {
	now := time.Now().UTC()
	reaped := 0
	for _, sess := range o.registry.List() {
		if sess.IdleSince(now) < o.cfg.IdleTimeout {
			continue
		}
		snap := sess.Snapshot()
		o.log.Warn("reaping stale session",
			zap.String("call_id", snap.ID),
			zap.Duration("idle", sess.IdleSince(now)))
		if snap.CorrelationID != "" {
			if err := o.adapter.Hangup(ctx, snap.CorrelationID); err != nil {
				o.log.Warn("hangup of stale call failed",
					zap.String("call_id", snap.ID), zap.Error(err))
			}
		}
		o.EndSession(ctx, snap.ID, "stale session reaped")
		reaped++
	}
	return reaped
}

// GetSession returns a snapshot of a live session.
func (o *Orchestrator) GetSession(callID string) (Snapshot, bool) {
	sess, ok := o.registry.Get(callID)
	if !ok {
		return Snapshot{}, false
	}
	return sess.Snapshot(), true
}

// ListSessions snapshots every live session.
func (o *Orchestrator) ListSessions() []Snapshot {
	sessions := o.registry.List()
	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Hangup ends a live call on operator request, provider leg included.
func (o *Orchestrator) Hangup(ctx context.Context, callID string) error {
	sess, ok := o.registry.Get(callID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, callID)
	}
	snap := sess.Snapshot()
	if snap.CorrelationID != "" {
		if err := o.adapter.Hangup(ctx, snap.CorrelationID); err != nil {
			o.log.Warn("provider hangup failed", zap.String("call_id", callID), zap.Error(err))
		}
	}
	o.EndSession(ctx, callID, "operator hangup")
	return nil
}

func (o *Orchestrator) updateStatus(ctx context.Context, callID string, fields map[string]interface{}) {
	if err := o.store.UpdateCallStatus(ctx, callID, fields); err != nil {
		o.log.Error("failed to update call record",
			zap.String("call_id", callID), zap.Error(err))
	}
}

func (o *Orchestrator) appendEvent(ctx context.Context, callID, status, detail string) {
	err := o.store.AppendCallEvent(ctx, store.CallEvent{
		CallID:    callID,
		Status:    status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		o.log.Warn("failed to append call event",
			zap.String("call_id", callID), zap.Error(err))
	}
}

func historyForResponder(history []Turn) []ai.HistoryTurn {
	out := make([]ai.HistoryTurn, 0, len(history))
	for _, t := range history {
		out = append(out, ai.HistoryTurn{Role: t.Role, Text: t.Text})
	}
	return out
}

func flattenTranscript(history []Turn) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for i, t := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}
