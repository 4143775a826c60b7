package callstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists call records in PostgreSQL so study data survives
// restarts and can be joined against the survey export.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS call_records (
			call_id TEXT PRIMARY KEY,
			choosen_latency TEXT NOT NULL DEFAULT '',
			caller_id TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			visit_reason TEXT NOT NULL DEFAULT '',
			chosen_slot TEXT NOT NULL DEFAULT '',
			slot_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			is_complete BOOLEAN NOT NULL DEFAULT FALSE,
			dropped_frames BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			ended_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_records_created_at ON call_records (created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateCall(ctx context.Context, record CallRecord) error {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_records
			(call_id, choosen_latency, caller_id, first_name, last_name, phone,
			 visit_reason, chosen_slot, slot_confirmed, is_complete,
			 dropped_frames, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		record.CallID, record.ChosenLatency, record.CallerID,
		record.FirstName, record.LastName, record.Phone,
		record.VisitReason, record.ChosenSlot, record.SlotConfirmed,
		record.IsComplete, int64(record.DroppedFrames),
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create call: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdatePatient(ctx context.Context, callID string, update PatientUpdate) error {
	if update.Empty() {
		return nil
	}

	sets := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.FirstName != nil {
		add("first_name", *update.FirstName)
	}
	if update.LastName != nil {
		add("last_name", *update.LastName)
	}
	if update.Phone != nil {
		add("phone", *update.Phone)
	}
	if update.VisitReason != nil {
		add("visit_reason", *update.VisitReason)
	}
	if update.ChosenSlot != nil {
		add("chosen_slot", *update.ChosenSlot)
	}
	if update.SlotConfirmed != nil {
		add("slot_confirmed", *update.SlotConfirmed)
	}
	if update.IsComplete != nil {
		add("is_complete", *update.IsComplete)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, callID)

	query := fmt.Sprintf("UPDATE call_records SET %s WHERE call_id = $%d",
		strings.Join(sets, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update patient fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update patient fields for %s: %w", callID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FinishCall(ctx context.Context, callID string, droppedFrames uint64) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE call_records SET dropped_frames = $1, updated_at = $2, ended_at = $2
		 WHERE call_id = $3`,
		int64(droppedFrames), now, callID,
	)
	if err != nil {
		return fmt.Errorf("finish call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish call %s: %w", callID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetCall(ctx context.Context, callID string) (CallRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT call_id, choosen_latency, caller_id, first_name, last_name, phone,
			visit_reason, chosen_slot, slot_confirmed, is_complete,
			dropped_frames, created_at, updated_at, ended_at
		 FROM call_records WHERE call_id = $1`, callID)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return CallRecord{}, fmt.Errorf("get call %s: %w", callID, ErrNotFound)
	}
	if err != nil {
		return CallRecord{}, fmt.Errorf("get call: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT call_id, choosen_latency, caller_id, first_name, last_name, phone,
			visit_reason, chosen_slot, slot_confirmed, is_complete,
			dropped_frames, created_at, updated_at, ended_at
		 FROM call_records ORDER BY created_at DESC, call_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list calls: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (CallRecord, error) {
	var (
		record  CallRecord
		dropped int64
	)
	err := row.Scan(
		&record.CallID, &record.ChosenLatency, &record.CallerID,
		&record.FirstName, &record.LastName, &record.Phone,
		&record.VisitReason, &record.ChosenSlot, &record.SlotConfirmed,
		&record.IsComplete, &dropped,
		&record.CreatedAt, &record.UpdatedAt, &record.EndedAt,
	)
	if err != nil {
		return CallRecord{}, err
	}
	record.DroppedFrames = uint64(dropped)
	return record, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
