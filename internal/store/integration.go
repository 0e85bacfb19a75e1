package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ProviderTwilio is the integration key for Twilio credentials.
const ProviderTwilio = "twilio"

// Integration holds credentials for an upstream provider.
type Integration struct {
	Provider    string    `json:"provider"`
	AccountSid  string    `json:"accountSid"`
	AuthToken   string    `json:"-"`
	PhoneNumber string    `json:"phoneNumber"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// IntegrationStore keeps one integration per provider.
type IntegrationStore struct {
	db *DB
}

// NewIntegrationStore creates an integration store using db.
func NewIntegrationStore(db *DB) *IntegrationStore {
	return &IntegrationStore{db: db}
}

// Upsert creates or replaces the credentials for in.Provider.
func (s *IntegrationStore) Upsert(ctx context.Context, in Integration) (*Integration, error) {
	if in.Provider == "" {
		return nil, errors.New("integration provider is required")
	}
	now := time.Now().UTC().Format(timeFormat)
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO integrations (provider, account_sid, auth_token, phone_number, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(provider) DO UPDATE SET
		   account_sid = excluded.account_sid,
		   auth_token = excluded.auth_token,
		   phone_number = excluded.phone_number,
		   updated_at = excluded.updated_at`,
		in.Provider, in.AccountSid, in.AuthToken, in.PhoneNumber, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("saving %s integration: %w", in.Provider, err)
	}
	s.db.log.Info().Str("provider", in.Provider).Msg("integration saved")
	return s.Get(ctx, in.Provider)
}

// Get returns the integration for provider.
func (s *IntegrationStore) Get(ctx context.Context, provider string) (*Integration, error) {
	var in Integration
	var created, updated string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT provider, account_sid, auth_token, phone_number, created_at, updated_at
		 FROM integrations WHERE provider = ?`, provider,
	).Scan(&in.Provider, &in.AccountSid, &in.AuthToken, &in.PhoneNumber, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("integration %s: %w", provider, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s integration: %w", provider, err)
	}
	in.CreatedAt, _ = time.Parse(timeFormat, created)
	in.UpdatedAt, _ = time.Parse(timeFormat, updated)
	return &in, nil
}

// Delete removes the integration for provider.
func (s *IntegrationStore) Delete(ctx context.Context, provider string) error {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM integrations WHERE provider = ?`, provider)
	if err != nil {
		return fmt.Errorf("deleting %s integration: %w", provider, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("integration %s: %w", provider, ErrNotFound)
	}
	return nil
}
