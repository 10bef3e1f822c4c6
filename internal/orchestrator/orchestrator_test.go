package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/troikatech/voice-orchestrator/internal/callcontrol"
	"github.com/troikatech/voice-orchestrator/internal/store"
	"github.com/troikatech/voice-orchestrator/pkg/ai"
	"github.com/troikatech/voice-orchestrator/pkg/storage"
)

// mockResponder is a scriptable Responder for testing
type mockResponder struct {
	mu        sync.Mutex
	reply     string
	actions   []ai.Action
	shouldErr bool
	calls     int
}

func (m *mockResponder) Respond(ctx context.Context, req *ai.RespondRequest) (*ai.RespondResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.shouldErr {
		return nil, errors.New("mock responder error")
	}
	return &ai.RespondResponse{
		ReplyText: m.reply,
		Actions:   m.actions,
		Provider:  "mock",
	}, nil
}

func (m *mockResponder) SummarizeCall(ctx context.Context, req *ai.SummarizeRequest) (*ai.SummarizeResponse, error) {
	return &ai.SummarizeResponse{Summary: "summary", Sentiment: "neutral", Provider: "mock"}, nil
}

// mockProvider records UpdateCall invocations and never fails
type mockProvider struct {
	mu          sync.Mutex
	updateCalls []string
	createErr   error
}

func (m *mockProvider) CreateCall(ctx context.Context, req callcontrol.CreateCallRequest) (*callcontrol.CreateCallResponse, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &callcontrol.CreateCallResponse{UUID: "leg-123", Status: "started"}, nil
}

func (m *mockProvider) UpdateCall(ctx context.Context, correlationID string, req callcontrol.UpdateCallRequest) error {
	m.mu.Lock()
	m.updateCalls = append(m.updateCalls, req.Action)
	m.mu.Unlock()
	return nil
}

type testEnv struct {
	orch      *Orchestrator
	store     *store.MemoryStore
	responder *mockResponder
	provider  *mockProvider
}

func newTestEnv(cfg Config) *testEnv {
	st := store.NewMemoryStore()
	provider := &mockProvider{}
	adapter := callcontrol.NewAdapter(provider, st, "https://hooks.example.com", "+15550100000")
	responder := &mockResponder{reply: "Happy to help with that."}
	driver, _ := storage.NewDriver("provider-proxy", "https://api.example.com", "")
	return &testEnv{
		orch:      New(st, adapter, responder, driver, cfg),
		store:     st,
		responder: responder,
		provider:  provider,
	}
}

func inboundAnswer(t *testing.T, env *testEnv, callID string) callcontrol.Instructions {
	t.Helper()
	ins, err := env.orch.OnAnswer(context.Background(), StartParams{
		CallID:        callID,
		CorrelationID: "leg-" + callID,
		From:          "+14155550123",
		To:            "+15550100000",
		Direction:     store.DirectionInbound,
	})
	if err != nil {
		t.Fatalf("OnAnswer failed: %v", err)
	}
	return ins
}

func TestOnAnswer_DuplicateDeliveryCreatesOneSession(t *testing.T) {
	env := newTestEnv(Config{})

	inboundAnswer(t, env, "call-1")
	inboundAnswer(t, env, "call-1")

	if got := len(env.orch.ListSessions()); got != 1 {
		t.Fatalf("expected 1 session after duplicate answer, got %d", got)
	}

	// The durable record is written once for the first delivery.
	if got := len(env.store.Calls); got != 1 {
		t.Fatalf("expected 1 call record, got %d", got)
	}
	rec := env.store.Calls["call-1"]
	if rec.Status != store.CallStatusInProgress {
		t.Errorf("expected status in_progress, got %s", rec.Status)
	}

	// The retried delivery must not re-append the greeting.
	snap, _ := env.orch.GetSession("call-1")
	if len(snap.History) != 1 {
		t.Errorf("expected a single greeting turn, got %d", len(snap.History))
	}
}

func TestOnAnswer_ReturnsGreetingThenListen(t *testing.T) {
	env := newTestEnv(Config{})

	ins := inboundAnswer(t, env, "call-1")

	if len(ins) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(ins))
	}
	if ins[0].Action != "talk" {
		t.Errorf("expected first action talk, got %s", ins[0].Action)
	}
	if ins[1].Action != "input" {
		t.Errorf("expected second action input, got %s", ins[1].Action)
	}
}

func TestOnInput_SpeechAppendsTurnsAndResponds(t *testing.T) {
	env := newTestEnv(Config{})
	inboundAnswer(t, env, "call-1")

	ins := env.orch.OnInput(context.Background(), "call-1", "I need help with my order", "", 0)

	if !ins.HasAction("talk") || !ins.HasAction("input") {
		t.Fatalf("expected talk + input, got %+v", ins)
	}
	talk, _ := ins.FirstAction("talk")
	if talk.Text != "Happy to help with that." {
		t.Errorf("unexpected reply text: %s", talk.Text)
	}

	snap, _ := env.orch.GetSession("call-1")
	// greeting, user utterance, assistant reply
	if len(snap.History) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(snap.History))
	}
	if snap.History[1].Role != "user" || snap.History[2].Role != "assistant" {
		t.Errorf("unexpected turn roles: %+v", snap.History)
	}
}

func TestOnInput_HistoryGrowsMonotonically(t *testing.T) {
	env := newTestEnv(Config{})
	inboundAnswer(t, env, "call-1")

	var prev int
	for i := 0; i < 3; i++ {
		env.orch.OnInput(context.Background(), "call-1", "another question", "", 0)
		snap, _ := env.orch.GetSession("call-1")
		if len(snap.History) <= prev {
			t.Fatalf("history shrank: %d -> %d", prev, len(snap.History))
		}
		prev = len(snap.History)
	}
}

func TestOnInput_ResponderFailureDegradesToApology(t *testing.T) {
	env := newTestEnv(Config{})
	env.responder.shouldErr = true
	inboundAnswer(t, env, "call-1")

	ins := env.orch.OnInput(context.Background(), "call-1", "hello?", "", 0)

	if !ins.HasAction("talk") || !ins.HasAction("input") {
		t.Fatalf("expected apology + re-listen, got %+v", ins)
	}
	snap, ok := env.orch.GetSession("call-1")
	if !ok {
		t.Fatal("session dropped after responder failure")
	}
	if snap.Status != StatusInProgress {
		t.Errorf("expected in_progress, got %s", snap.Status)
	}
}

func TestNoInput_RepromptsThenEndsCall(t *testing.T) {
	env := newTestEnv(Config{MaxNoInputAttempts: 3})
	inboundAnswer(t, env, "call-1")

	// First two silences re-prompt.
	for attempt := 1; attempt <= 2; attempt++ {
		ins := env.orch.OnInput(context.Background(), "call-1", "", "", attempt)
		if !ins.HasAction("input") {
			t.Fatalf("attempt %d: expected re-prompt with input, got %+v", attempt, ins)
		}
	}

	// Third silence ends the call.
	ins := env.orch.OnInput(context.Background(), "call-1", "", "", 3)
	if ins.HasAction("input") {
		t.Fatalf("expected terminal goodbye, got %+v", ins)
	}
	if !ins.HasAction("talk") {
		t.Fatalf("expected spoken goodbye, got %+v", ins)
	}
	if _, ok := env.orch.GetSession("call-1"); ok {
		t.Error("session should be removed after silence hangup")
	}
	if env.store.Calls["call-1"].Status != store.CallStatusCompleted {
		t.Errorf("expected completed, got %s", env.store.Calls["call-1"].Status)
	}
}

func TestNoInput_ServerCountSurvivesProviderReset(t *testing.T) {
	env := newTestEnv(Config{MaxNoInputAttempts: 3})
	inboundAnswer(t, env, "call-1")

	// Provider keeps sending attempt=1; the server-side counter still
	// reaches the threshold.
	env.orch.OnInput(context.Background(), "call-1", "", "", 1)
	env.orch.OnInput(context.Background(), "call-1", "", "", 1)
	env.orch.OnInput(context.Background(), "call-1", "", "", 1)

	if _, ok := env.orch.GetSession("call-1"); ok {
		t.Error("session should end after three consecutive silences")
	}
}

func TestNoInput_SpeechResetsCounter(t *testing.T) {
	env := newTestEnv(Config{MaxNoInputAttempts: 3})
	inboundAnswer(t, env, "call-1")

	env.orch.OnInput(context.Background(), "call-1", "", "", 1)
	env.orch.OnInput(context.Background(), "call-1", "", "", 2)
	env.orch.OnInput(context.Background(), "call-1", "still here", "", 0)
	env.orch.OnInput(context.Background(), "call-1", "", "", 1)

	if _, ok := env.orch.GetSession("call-1"); !ok {
		t.Error("session ended although the silence counter was reset by speech")
	}
}

func TestEndSession_IdempotentSingleTranscriptWrite(t *testing.T) {
	env := newTestEnv(Config{})
	inboundAnswer(t, env, "call-1")
	env.orch.OnInput(context.Background(), "call-1", "hi there", "", 0)

	env.orch.EndSession(context.Background(), "call-1", "caller hung up")
	env.orch.EndSession(context.Background(), "call-1", "provider retry")
	env.orch.EndSession(context.Background(), "call-1", "another retry")

	if got := env.store.TranscriptWrites["call-1"]; got != 1 {
		t.Fatalf("expected exactly 1 transcript write, got %d", got)
	}
	if _, ok := env.orch.GetSession("call-1"); ok {
		t.Error("session should be gone after end")
	}
	rec := env.store.Calls["call-1"]
	if rec.Status != store.CallStatusCompleted {
		t.Errorf("record status = %q, want completed", rec.Status)
	}
	if rec.EndedAt.IsZero() {
		t.Error("ended_at not persisted")
	}
	if rec.Transcript == "" {
		t.Error("transcript not persisted")
	}
}

func TestEndSession_UnknownCallIsNoOp(t *testing.T) {
	env := newTestEnv(Config{})
	env.orch.EndSession(context.Background(), "never-existed", "retry after end")

	if got := env.store.TranscriptWrites["never-existed"]; got != 0 {
		t.Fatalf("expected no transcript writes, got %d", got)
	}
}

func TestTransfer_MovesToTransferringAndConnects(t *testing.T) {
	env := newTestEnv(Config{})
	env.store.Agents["agent-1"] = &store.Agent{
		ID:               "agent-1",
		TenantID:         "tenant-1",
		Name:             "Ava",
		Greeting:         "Hi, this is Ava.",
		InboundAddress:   "+15550100000",
		EscalationTarget: "+15550109999",
	}
	inboundAnswer(t, env, "call-1")

	ins, err := env.orch.Transfer(context.Background(), "call-1", "")
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if !ins.HasAction("connect") {
		t.Fatalf("expected connect action, got %+v", ins)
	}
	connect, _ := ins.FirstAction("connect")
	if connect.Endpoint[0].Number != "+15550109999" {
		t.Errorf("expected escalation target, got %s", connect.Endpoint[0].Number)
	}

	snap, _ := env.orch.GetSession("call-1")
	if snap.Status != StatusTransferring {
		t.Errorf("expected transferring, got %s", snap.Status)
	}
}

func TestTransfer_WithoutTargetFails(t *testing.T) {
	env := newTestEnv(Config{})
	inboundAnswer(t, env, "call-1")

	if _, err := env.orch.Transfer(context.Background(), "call-1", ""); err == nil {
		t.Fatal("expected error when no escalation target is configured")
	}
}

func TestOnTransferResult_EscalationRecordedOnce(t *testing.T) {
	env := newTestEnv(Config{})
	env.store.Agents["agent-1"] = &store.Agent{
		ID:               "agent-1",
		TenantID:         "tenant-1",
		InboundAddress:   "+15550100000",
		EscalationTarget: "+15550109999",
	}
	inboundAnswer(t, env, "call-1")
	if _, err := env.orch.Transfer(context.Background(), "call-1", ""); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	env.orch.OnTransferResult(context.Background(), "call-1", "answered", "xfer-leg-1")
	env.orch.OnTransferResult(context.Background(), "call-1", "answered", "xfer-leg-1")

	if got := len(env.store.Escalations); got != 1 {
		t.Fatalf("expected 1 escalation row, got %d", got)
	}
	sess, ok := env.orch.GetSession("call-1")
	if !ok {
		t.Fatal("session should stay live while the bridged call runs")
	}
	if sess.Status != StatusTransferring {
		t.Errorf("status = %q, want %q", sess.Status, StatusTransferring)
	}

	env.orch.OnTransferResult(context.Background(), "call-1", "completed", "xfer-leg-1")
	if _, ok := env.orch.GetSession("call-1"); ok {
		t.Error("session should end once the transfer leg completes")
	}
}

func TestResponderAction_EndCall(t *testing.T) {
	env := newTestEnv(Config{})
	env.responder.reply = "Glad I could help. Goodbye!"
	env.responder.actions = []ai.Action{{Type: ai.ActionEndCall}}
	inboundAnswer(t, env, "call-1")

	ins := env.orch.OnInput(context.Background(), "call-1", "that's all, thanks", "", 0)

	if ins.HasAction("input") {
		t.Fatalf("call should not keep listening after end_call, got %+v", ins)
	}
	if _, ok := env.orch.GetSession("call-1"); ok {
		t.Error("session should end when the responder says end_call")
	}
}

func TestResponderAction_ScheduleCallback(t *testing.T) {
	env := newTestEnv(Config{})
	env.responder.reply = "Sure, we'll call you tomorrow morning."
	env.responder.actions = []ai.Action{{
		Type:   ai.ActionCallback,
		Params: map[string]string{"preferred_time": "tomorrow morning"},
	}}
	inboundAnswer(t, env, "call-1")

	ins := env.orch.OnInput(context.Background(), "call-1", "call me back tomorrow", "", 0)

	if !ins.HasAction("input") {
		t.Fatalf("conversation should continue after scheduling, got %+v", ins)
	}
	if got := len(env.store.Callbacks); got != 1 {
		t.Fatalf("expected 1 callback row, got %d", got)
	}
	if env.store.Callbacks[0].PreferredTime != "tomorrow morning" {
		t.Errorf("unexpected preferred time: %s", env.store.Callbacks[0].PreferredTime)
	}
}

func TestDTMF_NineStartsTransfer(t *testing.T) {
	env := newTestEnv(Config{})
	env.store.Agents["agent-1"] = &store.Agent{
		ID:               "agent-1",
		TenantID:         "tenant-1",
		InboundAddress:   "+15550100000",
		EscalationTarget: "+15550109999",
	}
	inboundAnswer(t, env, "call-1")

	ins := env.orch.OnInput(context.Background(), "call-1", "", "9", 0)

	if !ins.HasAction("connect") {
		t.Fatalf("expected connect after pressing 9, got %+v", ins)
	}
}

func TestDTMF_ZeroRepeatsLastPrompt(t *testing.T) {
	env := newTestEnv(Config{})
	inboundAnswer(t, env, "call-1")
	env.orch.OnInput(context.Background(), "call-1", "what are your hours", "", 0)

	ins := env.orch.OnInput(context.Background(), "call-1", "", "0", 0)

	talk, ok := ins.FirstAction("talk")
	if !ok {
		t.Fatalf("expected spoken repeat, got %+v", ins)
	}
	if talk.Text != "Happy to help with that." {
		t.Errorf("expected last assistant text repeated, got %q", talk.Text)
	}
}

func TestHoldAndResume(t *testing.T) {
	env := newTestEnv(Config{})
	inboundAnswer(t, env, "call-1")

	if err := env.orch.Hold(context.Background(), "call-1"); err != nil {
		t.Fatalf("Hold failed: %v", err)
	}
	snap, _ := env.orch.GetSession("call-1")
	if snap.Status != StatusOnHold {
		t.Fatalf("expected on_hold, got %s", snap.Status)
	}

	// Input racing the hold keeps the caller in the hold flow rather
	// than going silent or talking over it.
	ins := env.orch.OnInput(context.Background(), "call-1", "hello?", "", 0)
	if !ins.HasAction("stream") {
		t.Errorf("expected hold audio while on hold, got %+v", ins)
	}
	if ins.HasAction("input") {
		t.Errorf("held call should not re-arm listening, got %+v", ins)
	}

	if err := env.orch.Resume(context.Background(), "call-1"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	snap, _ = env.orch.GetSession("call-1")
	if snap.Status != StatusInProgress {
		t.Fatalf("expected in_progress after resume, got %s", snap.Status)
	}
}

func TestHold_FromRingingRejected(t *testing.T) {
	env := newTestEnv(Config{})
	env.orch.CreateSession(context.Background(), StartParams{
		CallID:    "call-1",
		From:      "+14155550123",
		To:        "+15550100000",
		Direction: store.DirectionInbound,
	})

	if err := env.orch.Hold(context.Background(), "call-1"); err == nil {
		t.Fatal("expected hold of a ringing call to be rejected")
	}
}

func TestReapStale_EndsIdleSessionsOnly(t *testing.T) {
	env := newTestEnv(Config{IdleTimeout: 20 * time.Millisecond})
	inboundAnswer(t, env, "stale-call")

	time.Sleep(30 * time.Millisecond)
	inboundAnswer(t, env, "fresh-call")

	if got := env.orch.ReapStale(context.Background()); got != 1 {
		t.Fatalf("expected 1 reaped session, got %d", got)
	}
	if _, ok := env.orch.GetSession("stale-call"); ok {
		t.Error("stale session should be gone")
	}
	if _, ok := env.orch.GetSession("fresh-call"); !ok {
		t.Error("fresh session should survive the sweep")
	}
}

func TestRecordTurn_UnknownSessionIsNoOp(t *testing.T) {
	env := newTestEnv(Config{})
	env.orch.RecordTurn(context.Background(), "missing", "user", "hello")

	if got := len(env.orch.ListSessions()); got != 0 {
		t.Fatalf("no session should appear, got %d", got)
	}
}

func TestOnProviderEvent_TerminalStatusEndsSession(t *testing.T) {
	env := newTestEnv(Config{})
	inboundAnswer(t, env, "call-1")

	env.orch.OnProviderEvent(context.Background(), "call-1", "completed", "caller hung up", 23)

	if _, ok := env.orch.GetSession("call-1"); ok {
		t.Error("session should end on terminal provider status")
	}
	if got := env.store.Calls["call-1"].CostCents; got != 23 {
		t.Errorf("cost_cents = %d, want 23", got)
	}
}

func TestOnMachine_LeavesMessageAndEnds(t *testing.T) {
	env := newTestEnv(Config{})
	inboundAnswer(t, env, "call-1")

	ins := env.orch.OnMachine(context.Background(), "call-1")

	if !ins.HasAction("talk") || ins.HasAction("input") {
		t.Fatalf("expected message without listen, got %+v", ins)
	}
	if _, ok := env.orch.GetSession("call-1"); ok {
		t.Error("session should end after machine detection")
	}
}
