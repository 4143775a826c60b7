package callstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestCreateAndGetCall(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	record := CallRecord{
		CallID:        "547",
		ChosenLatency: "7.000",
		CallerID:      "4915123456789",
	}
	if err := store.CreateCall(ctx, record); err != nil {
		t.Fatalf("CreateCall() error = %v", err)
	}

	got, err := store.GetCall(ctx, "547")
	if err != nil {
		t.Fatalf("GetCall() error = %v", err)
	}
	if got.ChosenLatency != "7.000" {
		t.Errorf("ChosenLatency = %q, want %q", got.ChosenLatency, "7.000")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not filled in on create")
	}
	if got.EndedAt != nil {
		t.Errorf("EndedAt = %v before FinishCall, want nil", got.EndedAt)
	}

	if err := store.CreateCall(ctx, record); err == nil {
		t.Error("CreateCall() with duplicate id succeeded, want error")
	}
	if err := store.CreateCall(ctx, CallRecord{}); err == nil {
		t.Error("CreateCall() with empty id succeeded, want error")
	}
}

func TestGetCallNotFound(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.GetCall(context.Background(), "999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetCall() error = %v, want ErrNotFound", err)
	}
}

func TestUpdatePatientPartial(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	if err := store.CreateCall(ctx, CallRecord{CallID: "612"}); err != nil {
		t.Fatalf("CreateCall() error = %v", err)
	}

	err := store.UpdatePatient(ctx, "612", PatientUpdate{
		FirstName:   strPtr("Max"),
		VisitReason: strPtr("Rueckenschmerzen"),
	})
	if err != nil {
		t.Fatalf("UpdatePatient() error = %v", err)
	}
	err = store.UpdatePatient(ctx, "612", PatientUpdate{
		LastName:      strPtr("Mustermann"),
		SlotConfirmed: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("UpdatePatient() error = %v", err)
	}

	got, err := store.GetCall(ctx, "612")
	if err != nil {
		t.Fatalf("GetCall() error = %v", err)
	}
	if got.FirstName != "Max" || got.LastName != "Mustermann" {
		t.Errorf("name = %q %q, want Max Mustermann", got.FirstName, got.LastName)
	}
	if got.VisitReason != "Rueckenschmerzen" {
		t.Errorf("VisitReason = %q, second update must not clear it", got.VisitReason)
	}
	if !got.SlotConfirmed {
		t.Error("SlotConfirmed = false, want true")
	}
	if got.IsComplete {
		t.Error("IsComplete = true, was never set")
	}
}

func TestUpdatePatientMissingRecord(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	// An empty update is a no-op and must not fail, even for unknown ids.
	if err := store.UpdatePatient(ctx, "999", PatientUpdate{}); err != nil {
		t.Fatalf("UpdatePatient() with empty update error = %v", err)
	}

	err := store.UpdatePatient(ctx, "999", PatientUpdate{FirstName: strPtr("Micki")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdatePatient() error = %v, want ErrNotFound", err)
	}
}

func TestFinishCall(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	if err := store.CreateCall(ctx, CallRecord{CallID: "701"}); err != nil {
		t.Fatalf("CreateCall() error = %v", err)
	}

	if err := store.FinishCall(ctx, "701", 42); err != nil {
		t.Fatalf("FinishCall() error = %v", err)
	}
	got, err := store.GetCall(ctx, "701")
	if err != nil {
		t.Fatalf("GetCall() error = %v", err)
	}
	if got.DroppedFrames != 42 {
		t.Errorf("DroppedFrames = %d, want 42", got.DroppedFrames)
	}
	if got.EndedAt == nil {
		t.Error("EndedAt = nil after FinishCall")
	}

	if err := store.FinishCall(ctx, "999", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FinishCall() error = %v, want ErrNotFound", err)
	}
}

func TestListCallsOrderAndLimit(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 7, 20, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"510", "511", "512"} {
		record := CallRecord{CallID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.CreateCall(ctx, record); err != nil {
			t.Fatalf("CreateCall(%s) error = %v", id, err)
		}
	}

	all, err := store.ListCalls(ctx, 0)
	if err != nil {
		t.Fatalf("ListCalls() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListCalls() returned %d records, want 3", len(all))
	}
	if all[0].CallID != "512" || all[2].CallID != "510" {
		t.Errorf("ListCalls() order = [%s %s %s], want newest first",
			all[0].CallID, all[1].CallID, all[2].CallID)
	}

	limited, err := store.ListCalls(ctx, 2)
	if err != nil {
		t.Fatalf("ListCalls(2) error = %v", err)
	}
	if len(limited) != 2 || limited[0].CallID != "512" {
		t.Errorf("ListCalls(2) = %v, want two newest", limited)
	}
}

func TestFormatLatency(t *testing.T) {
	tests := []struct {
		d        time.Duration
		assigned bool
		want     string
	}{
		{7 * time.Second, true, "7.000"},
		{100 * time.Millisecond, true, "0.100"},
		{1500 * time.Millisecond, true, "1.500"},
		{0, true, "0.000"},
		{0, false, ""},
	}
	for _, tt := range tests {
		if got := FormatLatency(tt.d, tt.assigned); got != tt.want {
			t.Errorf("FormatLatency(%v, %t) = %q, want %q", tt.d, tt.assigned, got, tt.want)
		}
	}
}

func TestFactoryDefaultsToMemory(t *testing.T) {
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()
	if _, ok := store.(*InMemoryStore); !ok {
		t.Fatalf("NewStore(\"\") returned %T, want *InMemoryStore", store)
	}
}
