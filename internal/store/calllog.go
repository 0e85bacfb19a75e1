package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/jibby/internal/domain"
)

// timeFormat is fixed-width so that stored timestamps sort as text.
const timeFormat = "2006-01-02 15:04:05.000000"

// DefaultHistoryLimit is how many call logs Recent returns by default.
const DefaultHistoryLimit = 50

// CallLog is the persisted record of a voice call.
type CallLog struct {
	ID        string               `json:"id"`
	Sid       string               `json:"sid"`
	From      string               `json:"from"`
	To        string               `json:"to"`
	Direction domain.CallDirection `json:"direction"`
	Status    domain.CallStatus    `json:"status"`
	Duration  int                  `json:"duration,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// CallLogStore records calls keyed by provider sid.
type CallLogStore struct {
	db *DB
}

// NewCallLogStore creates a call log store using db.
func NewCallLogStore(db *DB) *CallLogStore {
	return &CallLogStore{db: db}
}

// Record inserts the call or, when its sid is already known, updates the
// status and duration. From, To and Direction are kept from the first record
// unless they were empty.
func (s *CallLogStore) Record(ctx context.Context, call domain.CallRecord) (*CallLog, error) {
	if call.Sid == "" {
		return nil, errors.New("call sid is required")
	}
	now := time.Now().UTC()
	created := call.Timestamp.UTC()
	if call.Timestamp.IsZero() {
		created = now
	}
	direction := call.Direction
	if direction == "" {
		direction = domain.CallOutbound
	}

	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO call_logs (id, sid, from_number, to_number, direction, status, duration, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(sid) DO UPDATE SET
		   status = excluded.status,
		   duration = CASE WHEN excluded.duration > 0 THEN excluded.duration ELSE call_logs.duration END,
		   from_number = CASE WHEN call_logs.from_number = '' THEN excluded.from_number ELSE call_logs.from_number END,
		   to_number = CASE WHEN call_logs.to_number = '' THEN excluded.to_number ELSE call_logs.to_number END,
		   updated_at = excluded.updated_at`,
		uuid.New().String(), call.Sid, call.From, call.To, string(direction), string(call.Status), call.Duration,
		created.Format(timeFormat), now.Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("recording call %s: %w", call.Sid, err)
	}
	return s.Get(ctx, call.Sid)
}

// Get returns the log for sid.
func (s *CallLogStore) Get(ctx context.Context, sid string) (*CallLog, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT id, sid, from_number, to_number, direction, status, duration, created_at, updated_at
		 FROM call_logs WHERE sid = ?`, sid)
	l, err := scanCallLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("call %s: %w", sid, ErrNotFound)
	}
	return l, err
}

// Recent returns up to limit call logs, newest first. A limit of 0 means
// DefaultHistoryLimit.
func (s *CallLogStore) Recent(ctx context.Context, limit int) ([]CallLog, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, sid, from_number, to_number, direction, status, duration, created_at, updated_at
		 FROM call_logs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing call logs: %w", err)
	}
	defer rows.Close()

	logs := []CallLog{}
	for rows.Next() {
		l, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCallLog(sc scanner) (*CallLog, error) {
	var l CallLog
	var direction, status, created, updated string
	if err := sc.Scan(&l.ID, &l.Sid, &l.From, &l.To, &direction, &status, &l.Duration, &created, &updated); err != nil {
		return nil, err
	}
	l.Direction = domain.CallDirection(direction)
	l.Status = domain.CallStatus(status)
	l.CreatedAt, _ = time.Parse(timeFormat, created)
	l.UpdatedAt, _ = time.Parse(timeFormat, updated)
	return &l, nil
}
