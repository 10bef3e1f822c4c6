package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local development.
type MemoryStore struct {
	mu          sync.Mutex
	Calls       map[string]*CallRecord
	Events      []CallEvent
	Callbacks   []*CallbackRequest
	Escalations []*Escalation
	Agents      map[string]*Agent

	// TranscriptWrites counts AppendTranscript calls per call id so tests
	// can assert the transcript is flushed exactly once.
	TranscriptWrites map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Calls:            make(map[string]*CallRecord),
		Agents:           make(map[string]*Agent),
		TranscriptWrites: make(map[string]int),
	}
}

func (s *MemoryStore) CreateCallRecord(ctx context.Context, rec *CallRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	s.Calls[rec.ID] = &copied
	return rec.ID, nil
}

func (s *MemoryStore) UpdateCallStatus(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.Calls[id]
	if !ok {
		return nil
	}
	for k, v := range fields {
		switch k {
		case "status":
			if sv, ok := v.(string); ok {
				rec.Status = sv
			}
		case "ended_at":
			if tv, ok := v.(time.Time); ok {
				rec.EndedAt = tv
			}
		case "duration_sec":
			if d, ok := v.(int); ok {
				rec.DurationSec = d
			}
		case "recording_url":
			if sv, ok := v.(string); ok {
				rec.RecordingURL = sv
			}
		case "summary":
			if sv, ok := v.(string); ok {
				rec.Summary = sv
			}
		case "sentiment":
			if sv, ok := v.(string); ok {
				rec.Sentiment = sv
			}
		case "tags":
			if tags, ok := v.([]string); ok {
				rec.Tags = tags
			}
		case "cost_cents":
			if n, ok := v.(int); ok {
				rec.CostCents = n
			}
		}
	}
	return nil
}

func (s *MemoryStore) AppendTranscript(ctx context.Context, id, transcript string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TranscriptWrites[id]++
	if rec, ok := s.Calls[id]; ok {
		rec.Transcript = transcript
	}
	return nil
}

func (s *MemoryStore) GetCallRecord(ctx context.Context, id string) (*CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.Calls[id]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *MemoryStore) ListCallRecords(ctx context.Context, q CallQuery) ([]*CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []*CallRecord
	for _, rec := range s.Calls {
		if q.TenantID != "" && rec.TenantID != q.TenantID {
			continue
		}
		if q.Status != "" && rec.Status != q.Status {
			continue
		}
		if !q.Since.IsZero() && rec.StartedAt.Before(q.Since) {
			continue
		}
		if !q.Until.IsZero() && !rec.StartedAt.Before(q.Until) {
			continue
		}
		copied := *rec
		copied.Transcript = ""
		records = append(records, &copied)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if q.Limit > 0 && int64(len(records)) > q.Limit {
		records = records[:q.Limit]
	}
	return records, nil
}

func (s *MemoryStore) CountActiveCalls(ctx context.Context, tenantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, rec := range s.Calls {
		if tenantID != "" && rec.TenantID != tenantID {
			continue
		}
		for _, live := range LiveStatuses {
			if rec.Status == live {
				count++
				break
			}
		}
	}
	return count, nil
}

func (s *MemoryStore) AppendCallEvent(ctx context.Context, ev CallEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	return nil
}

func (s *MemoryStore) ListCallEvents(ctx context.Context, callID string) ([]CallEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []CallEvent
	for _, ev := range s.Events {
		if ev.CallID == callID {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (s *MemoryStore) CreateCallbackRequest(ctx context.Context, cb *CallbackRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb.ID == "" {
		cb.ID = uuid.New().String()
	}
	copied := *cb
	s.Callbacks = append(s.Callbacks, &copied)
	return nil
}

func (s *MemoryStore) ListCallbackRequests(ctx context.Context, tenantID string) ([]*CallbackRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var callbacks []*CallbackRequest
	for _, cb := range s.Callbacks {
		if tenantID != "" && cb.TenantID != tenantID {
			continue
		}
		copied := *cb
		callbacks = append(callbacks, &copied)
	}
	return callbacks, nil
}

func (s *MemoryStore) DeleteCallbackRequest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cb := range s.Callbacks {
		if cb.ID == id {
			s.Callbacks = append(s.Callbacks[:i], s.Callbacks[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) CreateEscalation(ctx context.Context, esc *Escalation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.Escalations {
		if existing.CorrelationID == esc.CorrelationID {
			return nil
		}
	}
	copied := *esc
	s.Escalations = append(s.Escalations, &copied)
	return nil
}

func (s *MemoryStore) GetAgent(ctx context.Context, tenantID, agentID string) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agentID != "" {
		if a, ok := s.Agents[agentID]; ok && a.TenantID == tenantID {
			copied := *a
			return &copied, nil
		}
		return nil, nil
	}
	for _, a := range s.Agents {
		if a.TenantID == tenantID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindAgentByAddress(ctx context.Context, address string) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.Agents {
		if a.InboundAddress == address {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}
