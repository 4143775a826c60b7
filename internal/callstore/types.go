// Package callstore persists per-call study records: which latency a call
// was assigned, and the intake details collected during the conversation.
package callstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no record exists for a call number.
var ErrNotFound = errors.New("call record not found")

// CallRecord tracks one study call, keyed by its issued call number.
//
// ChosenLatency keeps its historical spelling "choosen_latency" on the wire
// and in the database; the survey export tooling matches on that name.
type CallRecord struct {
	CallID        string     `json:"call_id"`
	ChosenLatency string     `json:"choosen_latency"`
	CallerID      string     `json:"caller_id,omitempty"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	VisitReason   string     `json:"visit_reason,omitempty"`
	ChosenSlot    string     `json:"chosen_slot,omitempty"`
	SlotConfirmed bool       `json:"slot_confirmed"`
	IsComplete    bool       `json:"is_complete"`
	DroppedFrames uint64     `json:"dropped_frames"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// PatientUpdate is a partial update of the intake fields. Nil fields are
// left untouched.
type PatientUpdate struct {
	FirstName     *string
	LastName      *string
	Phone         *string
	VisitReason   *string
	ChosenSlot    *string
	SlotConfirmed *bool
	IsComplete    *bool
}

// Empty reports whether the update carries no fields.
func (u PatientUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Phone == nil &&
		u.VisitReason == nil && u.ChosenSlot == nil &&
		u.SlotConfirmed == nil && u.IsComplete == nil
}

// FormatLatency renders a chosen delay the way the survey tooling expects,
// seconds with three decimals. A zero delay still formats as "0.000"; only
// an unassigned delay maps to the empty string.
func FormatLatency(d time.Duration, assigned bool) string {
	if !assigned {
		return ""
	}
	return fmt.Sprintf("%.3f", d.Seconds())
}

// Store persists and retrieves call records.
type Store interface {
	CreateCall(ctx context.Context, record CallRecord) error
	UpdatePatient(ctx context.Context, callID string, update PatientUpdate) error
	FinishCall(ctx context.Context, callID string, droppedFrames uint64) error
	GetCall(ctx context.Context, callID string) (CallRecord, error)
	ListCalls(ctx context.Context, limit int) ([]CallRecord, error)
	Close() error
}
