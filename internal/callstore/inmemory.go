package callstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemoryStore keeps call records in process memory. It is the default
// backend for local runs and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]CallRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]CallRecord)}
}

func (s *InMemoryStore) CreateCall(_ context.Context, record CallRecord) error {
	if record.CallID == "" {
		return fmt.Errorf("create call: empty call id")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.CallID]; exists {
		return fmt.Errorf("create call: record %s already exists", record.CallID)
	}
	s.records[record.CallID] = record
	return nil
}

func (s *InMemoryStore) UpdatePatient(_ context.Context, callID string, update PatientUpdate) error {
	if update.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[callID]
	if !ok {
		return fmt.Errorf("update patient fields for %s: %w", callID, ErrNotFound)
	}
	if update.FirstName != nil {
		record.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		record.LastName = *update.LastName
	}
	if update.Phone != nil {
		record.Phone = *update.Phone
	}
	if update.VisitReason != nil {
		record.VisitReason = *update.VisitReason
	}
	if update.ChosenSlot != nil {
		record.ChosenSlot = *update.ChosenSlot
	}
	if update.SlotConfirmed != nil {
		record.SlotConfirmed = *update.SlotConfirmed
	}
	if update.IsComplete != nil {
		record.IsComplete = *update.IsComplete
	}
	record.UpdatedAt = time.Now().UTC()
	s.records[callID] = record
	return nil
}

func (s *InMemoryStore) FinishCall(_ context.Context, callID string, droppedFrames uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[callID]
	if !ok {
		return fmt.Errorf("finish call %s: %w", callID, ErrNotFound)
	}
	now := time.Now().UTC()
	record.DroppedFrames = droppedFrames
	record.UpdatedAt = now
	record.EndedAt = &now
	s.records[callID] = record
	return nil
}

func (s *InMemoryStore) GetCall(_ context.Context, callID string) (CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[callID]
	if !ok {
		return CallRecord{}, fmt.Errorf("get call %s: %w", callID, ErrNotFound)
	}
	return record, nil
}

func (s *InMemoryStore) ListCalls(_ context.Context, limit int) ([]CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]CallRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CallID > out[j].CallID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
