package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/troikatech/voice-orchestrator/pkg/mongo"
)

const (
	collCalls       = "calls"
	collCallEvents  = "call_events"
	collCallbacks   = "callbacks"
	collEscalations = "escalations"
	collAgents      = "agents"
)

// MongoStore persists call records through the shared Mongo client.
type MongoStore struct {
	client *mongo.Client
	logger *zap.Logger
}

func NewMongoStore(client *mongo.Client, logger *zap.Logger) *MongoStore {
	return &MongoStore{client: client, logger: logger}
}

// Ping reports whether the backing database is reachable.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *MongoStore) CreateCallRecord(ctx context.Context, rec *CallRecord) (string, error) {
	doc := map[string]interface{}{
		"_id":            rec.ID,
		"tenant_id":      rec.TenantID,
		"agent_id":       rec.AgentID,
		"counterpart":    rec.Counterpart,
		"direction":      rec.Direction,
		"status":         rec.Status,
		"correlation_id": rec.CorrelationID,
		"started_at":     rec.StartedAt.Format(time.RFC3339),
	}
	mongo.AddTimestamps(doc)

	if _, err := s.client.NewQuery(collCalls).Insert(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to create call record: %w", err)
	}
	return rec.ID, nil
}

func (s *MongoStore) UpdateCallStatus(ctx context.Context, id string, fields map[string]interface{}) error {
	update := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			v = t.Format(time.RFC3339)
		}
		update[k] = v
	}
	mongo.UpdateTimestamp(update)

	_, err := s.client.NewQuery(collCalls).Eq("_id", id).UpdateOne(ctx, update)
	if err != nil {
		return fmt.Errorf("failed to update call %s: %w", id, err)
	}
	return nil
}

func (s *MongoStore) AppendTranscript(ctx context.Context, id, transcript string) error {
	update := map[string]interface{}{"transcript": transcript}
	mongo.UpdateTimestamp(update)

	_, err := s.client.NewQuery(collCalls).Eq("_id", id).UpdateOne(ctx, update)
	if err != nil {
		return fmt.Errorf("failed to append transcript for call %s: %w", id, err)
	}
	return nil
}

func (s *MongoStore) GetCallRecord(ctx context.Context, id string) (*CallRecord, error) {
	doc, err := s.client.NewQuery(collCalls).Eq("_id", id).FindOne(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get call %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	return decodeCallRecord(doc), nil
}

func (s *MongoStore) ListCallRecords(ctx context.Context, q CallQuery) ([]*CallRecord, error) {
	query := s.client.NewQuery(collCalls).
		Select("_id", "tenant_id", "agent_id", "counterpart", "direction",
			"status", "correlation_id", "started_at", "ended_at",
			"duration_sec", "summary", "sentiment", "cost_cents").
		Sort("started_at", false)
	if q.TenantID != "" {
		query = query.Eq("tenant_id", q.TenantID)
	}
	if q.Status != "" {
		query = query.Eq("status", q.Status)
	}
	if !q.Since.IsZero() {
		query = query.Gte("started_at", q.Since.Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		query = query.Lt("started_at", q.Until.Format(time.RFC3339))
	}
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	docs, err := query.Limit(limit).Find(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	records := make([]*CallRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, decodeCallRecord(doc))
	}
	return records, nil
}

func (s *MongoStore) CountActiveCalls(ctx context.Context, tenantID string) (int64, error) {
	query := s.client.NewQuery(collCalls).In("status", LiveStatuses)
	if tenantID != "" {
		query = query.Eq("tenant_id", tenantID)
	}
	count, err := query.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count active calls: %w", err)
	}
	return count, nil
}

func (s *MongoStore) AppendCallEvent(ctx context.Context, ev CallEvent) error {
	ts := ev.Timestamp.Format(time.RFC3339)
	doc := map[string]interface{}{
		"call_id":   ev.CallID,
		"status":    ev.Status,
		"detail":    ev.Detail,
		"timestamp": ts,
	}

	if _, err := s.client.NewQuery(collCallEvents).Insert(ctx, doc); err != nil {
		return fmt.Errorf("failed to append call event: %w", err)
	}

	// Mirror a compact entry onto the call document so a single read
	// returns the status history alongside the record.
	entry := map[string]interface{}{"status": ev.Status, "timestamp": ts}
	if _, err := s.client.NewQuery(collCalls).Eq("_id", ev.CallID).Push(ctx, "status_history", entry); err != nil {
		return fmt.Errorf("failed to push status history for call %s: %w", ev.CallID, err)
	}
	return nil
}

func (s *MongoStore) ListCallEvents(ctx context.Context, callID string) ([]CallEvent, error) {
	docs, err := s.client.NewQuery(collCallEvents).
		Eq("call_id", callID).
		Sort("timestamp", true).
		Find(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list events for call %s: %w", callID, err)
	}
	events := make([]CallEvent, 0, len(docs))
	for _, doc := range docs {
		events = append(events, CallEvent{
			CallID:    asString(doc["call_id"]),
			Status:    asString(doc["status"]),
			Detail:    asString(doc["detail"]),
			Timestamp: asTime(doc["timestamp"]),
		})
	}
	return events, nil
}

func (s *MongoStore) CreateCallbackRequest(ctx context.Context, cb *CallbackRequest) error {
	if cb.ID == "" {
		cb.ID = uuid.New().String()
	}
	doc := map[string]interface{}{
		"_id":            cb.ID,
		"call_id":        cb.CallID,
		"tenant_id":      cb.TenantID,
		"counterpart":    cb.Counterpart,
		"preferred_time": cb.PreferredTime,
		"notes":          cb.Notes,
		"reason":         cb.Reason,
		"created_at":     time.Now().Format(time.RFC3339),
	}

	_, err := s.client.NewQuery(collCallbacks).Insert(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create callback request: %w", err)
	}
	return nil
}

func (s *MongoStore) ListCallbackRequests(ctx context.Context, tenantID string) ([]*CallbackRequest, error) {
	query := s.client.NewQuery(collCallbacks).Sort("created_at", true)
	if tenantID != "" {
		query = query.Eq("tenant_id", tenantID)
	}
	docs, err := query.Find(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list callback requests: %w", err)
	}
	callbacks := make([]*CallbackRequest, 0, len(docs))
	for _, doc := range docs {
		callbacks = append(callbacks, &CallbackRequest{
			ID:            asString(doc["_id"]),
			CallID:        asString(doc["call_id"]),
			TenantID:      asString(doc["tenant_id"]),
			Counterpart:   asString(doc["counterpart"]),
			PreferredTime: asString(doc["preferred_time"]),
			Notes:         asString(doc["notes"]),
			Reason:        asString(doc["reason"]),
			CreatedAt:     asTime(doc["created_at"]),
		})
	}
	return callbacks, nil
}

func (s *MongoStore) DeleteCallbackRequest(ctx context.Context, id string) error {
	if _, err := s.client.NewQuery(collCallbacks).Eq("_id", id).DeleteOne(ctx); err != nil {
		return fmt.Errorf("failed to delete callback request %s: %w", id, err)
	}
	return nil
}

func (s *MongoStore) CreateEscalation(ctx context.Context, esc *Escalation) error {
	existing, err := s.client.NewQuery(collEscalations).
		Eq("correlation_id", esc.CorrelationID).
		FindOne(ctx)
	if err != nil {
		return fmt.Errorf("failed to check escalation: %w", err)
	}
	if existing != nil {
		return nil
	}

	doc := map[string]interface{}{
		"call_id":        esc.CallID,
		"correlation_id": esc.CorrelationID,
		"tenant_id":      esc.TenantID,
		"target":         esc.Target,
		"created_at":     time.Now().Format(time.RFC3339),
	}

	if _, err := s.client.NewQuery(collEscalations).Insert(ctx, doc); err != nil {
		return fmt.Errorf("failed to create escalation: %w", err)
	}
	return nil
}

func (s *MongoStore) GetAgent(ctx context.Context, tenantID, agentID string) (*Agent, error) {
	q := s.client.NewQuery(collAgents).Eq("tenant_id", tenantID)
	if agentID != "" {
		q = q.Eq("_id", agentID)
	}
	doc, err := q.FindOne(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	return decodeAgent(doc), nil
}

func (s *MongoStore) FindAgentByAddress(ctx context.Context, address string) (*Agent, error) {
	doc, err := s.client.NewQuery(collAgents).Eq("inbound_address", address).FindOne(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find agent by address: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	return decodeAgent(doc), nil
}

func decodeCallRecord(doc map[string]interface{}) *CallRecord {
	rec := &CallRecord{
		ID:            asString(doc["_id"]),
		TenantID:      asString(doc["tenant_id"]),
		AgentID:       asString(doc["agent_id"]),
		Counterpart:   asString(doc["counterpart"]),
		Direction:     asString(doc["direction"]),
		Status:        asString(doc["status"]),
		CorrelationID: asString(doc["correlation_id"]),
		RecordingURL:  asString(doc["recording_url"]),
		Transcript:    asString(doc["transcript"]),
		Summary:       asString(doc["summary"]),
		Sentiment:     asString(doc["sentiment"]),
	}
	rec.StartedAt = asTime(doc["started_at"])
	rec.EndedAt = asTime(doc["ended_at"])
	rec.DurationSec = asInt(doc["duration_sec"])
	rec.CostCents = asInt(doc["cost_cents"])
	return rec
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func decodeAgent(doc map[string]interface{}) *Agent {
	return &Agent{
		ID:               asString(doc["_id"]),
		TenantID:         asString(doc["tenant_id"]),
		Name:             asString(doc["name"]),
		Persona:          asString(doc["persona"]),
		Greeting:         asString(doc["greeting"]),
		VoiceID:          asString(doc["voice_id"]),
		InboundAddress:   asString(doc["inbound_address"]),
		EscalationTarget: asString(doc["escalation_target"]),
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asTime(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
