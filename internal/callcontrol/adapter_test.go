package callcontrol

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/troikatech/voice-orchestrator/internal/store"
)

type fakeProvider struct {
	createReqs []CreateCallRequest
	createErr  error
	updateReqs []UpdateCallRequest
}

func (f *fakeProvider) CreateCall(ctx context.Context, req CreateCallRequest) (*CreateCallResponse, error) {
	f.createReqs = append(f.createReqs, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &CreateCallResponse{UUID: "leg-abc", Status: "started"}, nil
}

func (f *fakeProvider) UpdateCall(ctx context.Context, correlationID string, req UpdateCallRequest) error {
	f.updateReqs = append(f.updateReqs, req)
	return nil
}

func newTestAdapter() (*Adapter, *fakeProvider, *store.MemoryStore) {
	provider := &fakeProvider{}
	st := store.NewMemoryStore()
	return NewAdapter(provider, st, "https://hooks.example.com", "+15550100000"), provider, st
}

func TestPlaceOutboundCall_PersistsBeforeDialing(t *testing.T) {
	adapter, provider, st := newTestAdapter()

	rec, err := adapter.PlaceOutboundCall(context.Background(), PlaceCallRequest{
		TenantID: "tenant-1",
		To:       "+14155550123",
	})
	if err != nil {
		t.Fatalf("PlaceOutboundCall failed: %v", err)
	}

	stored := st.Calls[rec.ID]
	if stored == nil {
		t.Fatal("call record not persisted")
	}
	if stored.Direction != store.DirectionOutbound {
		t.Errorf("direction = %s", stored.Direction)
	}
	if rec.CorrelationID != "leg-abc" {
		t.Errorf("correlation id = %s", rec.CorrelationID)
	}
	if len(provider.createReqs) != 1 {
		t.Fatalf("expected 1 provider dial, got %d", len(provider.createReqs))
	}
	// Answer URL must carry the call id so the webhook can find the record.
	if !strings.Contains(provider.createReqs[0].AnswerURL[0], rec.ID) {
		t.Errorf("answer URL missing call id: %s", provider.createReqs[0].AnswerURL[0])
	}
}

func TestPlaceOutboundCall_InvalidAddressFailsFast(t *testing.T) {
	adapter, provider, st := newTestAdapter()

	_, err := adapter.PlaceOutboundCall(context.Background(), PlaceCallRequest{
		TenantID: "tenant-1",
		To:       "not-a-number",
	})
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if len(provider.createReqs) != 0 {
		t.Error("provider should not be called for an invalid address")
	}
	if len(st.Calls) != 0 {
		t.Error("no record should be written for an invalid address")
	}
}

func TestPlaceOutboundCall_ProviderFailureMarksRecordFailed(t *testing.T) {
	adapter, provider, st := newTestAdapter()
	provider.createErr = errors.New("provider down")

	_, err := adapter.PlaceOutboundCall(context.Background(), PlaceCallRequest{
		TenantID: "tenant-1",
		To:       "+14155550123",
	})
	if err == nil {
		t.Fatal("expected error when the provider rejects the dial")
	}

	if len(st.Calls) != 1 {
		t.Fatalf("expected the record to survive the failure, got %d", len(st.Calls))
	}
	for _, rec := range st.Calls {
		if rec.Status != store.CallStatusFailed {
			t.Errorf("status = %s, want failed", rec.Status)
		}
	}
}

func TestSpeakAndListen_EmbedsAttemptInCallback(t *testing.T) {
	adapter, _, _ := newTestAdapter()

	ins := adapter.SpeakAndListen("call-1", "hello", "", 2)

	input, ok := ins.FirstAction("input")
	if !ok {
		t.Fatalf("no input action: %+v", ins)
	}
	if !strings.Contains(input.EventURL[0], "attempt=2") {
		t.Errorf("callback URL missing attempt: %s", input.EventURL[0])
	}
	if !strings.Contains(input.EventURL[0], "/webhooks/voice/input/call-1") {
		t.Errorf("unexpected callback path: %s", input.EventURL[0])
	}
}

func TestRePrompt_SpeaksBeforeListening(t *testing.T) {
	adapter, _, _ := newTestAdapter()

	ins := adapter.RePrompt("call-1", 3)
	if len(ins) != 2 || ins[0].Action != "talk" || ins[1].Action != "input" {
		t.Fatalf("unexpected instructions: %+v", ins)
	}
	if !strings.Contains(ins[1].EventURL[0], "attempt=3") {
		t.Errorf("attempt not carried: %s", ins[1].EventURL[0])
	}
	if first := adapter.RePrompt("call-1", 2); first[0].Text == ins[0].Text {
		t.Error("later attempts should use a more direct prompt")
	}
}

func TestGoodbye_HasNoListen(t *testing.T) {
	adapter, _, _ := newTestAdapter()

	ins := adapter.Goodbye("")
	if ins.HasAction("input") {
		t.Fatalf("goodbye must not re-listen: %+v", ins)
	}
	talk, _ := ins.FirstAction("talk")
	if talk.Text == "" {
		t.Error("default goodbye text missing")
	}
}

func TestConnectTo_UsesConfiguredCallerID(t *testing.T) {
	adapter, _, _ := newTestAdapter()

	ins := adapter.ConnectTo("call-1", "+15550109999", "whisper text")
	connect, ok := ins.FirstAction("connect")
	if !ok {
		t.Fatalf("no connect action: %+v", ins)
	}
	if connect.From != "+15550100000" {
		t.Errorf("caller id = %s", connect.From)
	}
	if connect.Endpoint[0].WhisperText != "whisper text" {
		t.Errorf("whisper = %s", connect.Endpoint[0].WhisperText)
	}
}

func TestHangup_SendsHangupAction(t *testing.T) {
	adapter, provider, _ := newTestAdapter()

	if err := adapter.Hangup(context.Background(), "leg-abc"); err != nil {
		t.Fatalf("Hangup failed: %v", err)
	}
	if len(provider.updateReqs) != 1 || provider.updateReqs[0].Action != "hangup" {
		t.Fatalf("unexpected update: %+v", provider.updateReqs)
	}
}
