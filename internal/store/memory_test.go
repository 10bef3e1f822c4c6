package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_EscalationDedupedByCorrelationID(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	esc := &Escalation{CallID: "c1", CorrelationID: "leg-1", Target: "+15550109999"}
	if err := st.CreateEscalation(ctx, esc); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateEscalation(ctx, esc); err != nil {
		t.Fatal(err)
	}

	if len(st.Escalations) != 1 {
		t.Fatalf("expected 1 escalation, got %d", len(st.Escalations))
	}

	// A different leg is a different escalation.
	if err := st.CreateEscalation(ctx, &Escalation{CallID: "c1", CorrelationID: "leg-2"}); err != nil {
		t.Fatal(err)
	}
	if len(st.Escalations) != 2 {
		t.Fatalf("expected 2 escalations, got %d", len(st.Escalations))
	}
}

func TestMemoryStore_UpdateCallStatusAppliesAllFields(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	st.CreateCallRecord(ctx, &CallRecord{ID: "c1", Status: CallStatusInProgress})

	endedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	err := st.UpdateCallStatus(ctx, "c1", map[string]interface{}{
		"status":       CallStatusCompleted,
		"ended_at":     endedAt,
		"duration_sec": 42,
		"summary":      "caller asked about hours",
		"sentiment":    "positive",
		"tags":         []string{"hours", "faq"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := st.Calls["c1"]
	if rec.Status != CallStatusCompleted {
		t.Errorf("status = %q", rec.Status)
	}
	if !rec.EndedAt.Equal(endedAt) {
		t.Errorf("ended_at = %v, want %v", rec.EndedAt, endedAt)
	}
	if rec.DurationSec != 42 {
		t.Errorf("duration_sec = %d", rec.DurationSec)
	}
	if len(rec.Tags) != 2 || rec.Tags[0] != "hours" {
		t.Errorf("tags = %v", rec.Tags)
	}
}

func TestMemoryStore_UpdateMissingCallIsNoOp(t *testing.T) {
	st := NewMemoryStore()
	err := st.UpdateCallStatus(context.Background(), "missing", map[string]interface{}{"status": CallStatusCompleted})
	if err != nil {
		t.Fatalf("update of missing call should not error: %v", err)
	}
}

func TestMemoryStore_GetCallRecordReturnsCopy(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	st.CreateCallRecord(ctx, &CallRecord{
		ID: "c1", Counterpart: "+14155550123", Status: CallStatusRinging, StartedAt: time.Now(),
	})

	rec, err := st.GetCallRecord(ctx, "c1")
	if err != nil || rec == nil {
		t.Fatalf("get failed: %v", err)
	}
	rec.Status = "tampered"

	fresh, _ := st.GetCallRecord(ctx, "c1")
	if fresh.Status != CallStatusRinging {
		t.Error("caller mutation leaked into the store")
	}
}

func TestMemoryStore_ListCallRecordsFiltersAndSorts(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	st.CreateCallRecord(ctx, &CallRecord{ID: "c1", TenantID: "t1", Status: CallStatusCompleted, StartedAt: base, Transcript: "secret"})
	st.CreateCallRecord(ctx, &CallRecord{ID: "c2", TenantID: "t1", Status: CallStatusInProgress, StartedAt: base.Add(time.Hour)})
	st.CreateCallRecord(ctx, &CallRecord{ID: "c3", TenantID: "t2", Status: CallStatusCompleted, StartedAt: base.Add(2 * time.Hour)})

	records, err := st.ListCallRecords(ctx, CallQuery{TenantID: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records for t1, got %d", len(records))
	}
	if records[0].ID != "c2" {
		t.Errorf("listing not newest first: %s", records[0].ID)
	}
	if records[1].Transcript != "" {
		t.Error("transcript should be omitted from listings")
	}

	records, _ = st.ListCallRecords(ctx, CallQuery{Since: base.Add(90 * time.Minute)})
	if len(records) != 1 || records[0].ID != "c3" {
		t.Errorf("since filter returned %v", records)
	}
	records, _ = st.ListCallRecords(ctx, CallQuery{Until: base.Add(time.Minute), Limit: 10})
	if len(records) != 1 || records[0].ID != "c1" {
		t.Errorf("until filter returned %v", records)
	}

	active, err := st.CountActiveCalls(ctx, "")
	if err != nil || active != 1 {
		t.Errorf("active = %d, want 1", active)
	}
}

func TestMemoryStore_CallbackLifecycle(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	cb := &CallbackRequest{CallID: "c1", TenantID: "t1", Counterpart: "+14155550123", Reason: "voicemail left"}
	if err := st.CreateCallbackRequest(ctx, cb); err != nil {
		t.Fatal(err)
	}
	if cb.ID == "" {
		t.Fatal("callback id not assigned")
	}

	pending, err := st.ListCallbackRequests(ctx, "t1")
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, err = %v", pending, err)
	}
	if other, _ := st.ListCallbackRequests(ctx, "t2"); len(other) != 0 {
		t.Error("tenant filter leaked rows")
	}

	if err := st.DeleteCallbackRequest(ctx, cb.ID); err != nil {
		t.Fatal(err)
	}
	if pending, _ = st.ListCallbackRequests(ctx, "t1"); len(pending) != 0 {
		t.Errorf("callback not removed: %v", pending)
	}
}

func TestMemoryStore_FindAgentByAddress(t *testing.T) {
	st := NewMemoryStore()
	st.Agents["a1"] = &Agent{ID: "a1", TenantID: "t1", InboundAddress: "+15550100000"}

	agent, err := st.FindAgentByAddress(context.Background(), "+15550100000")
	if err != nil || agent == nil {
		t.Fatalf("agent not found: %v", err)
	}
	if agent.ID != "a1" {
		t.Errorf("id = %s", agent.ID)
	}

	missing, _ := st.FindAgentByAddress(context.Background(), "+19999999999")
	if missing != nil {
		t.Error("unknown address should return nil agent")
	}
}
