package subscriptions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	listRecordsQuery = `SELECT key, endpoint, p256dh, auth, preferences, updated_at, expires_at
FROM push_subscriptions
WHERE expires_at > $1
ORDER BY key`

	getRecordQuery = `SELECT key, endpoint, p256dh, auth, preferences, updated_at, expires_at
FROM push_subscriptions
WHERE key = $1 AND expires_at > $2`

	upsertRecordQuery = `INSERT INTO push_subscriptions (key, endpoint, p256dh, auth, preferences, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (key) DO UPDATE SET
    endpoint = EXCLUDED.endpoint,
    p256dh = EXCLUDED.p256dh,
    auth = EXCLUDED.auth,
    preferences = EXCLUDED.preferences,
    updated_at = EXCLUDED.updated_at,
    expires_at = EXCLUDED.expires_at`

	deleteRecordQuery = `DELETE FROM push_subscriptions WHERE key = $1`
)

// PostgresStore keeps records in the push_subscriptions table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore wraps an open pool. Migrations are applied by storage/pg.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec   Record
		prefs []byte
	)
	err := row.Scan(
		&rec.Key,
		&rec.Subscription.Endpoint,
		&rec.Subscription.Keys.P256dh,
		&rec.Subscription.Keys.Auth,
		&prefs,
		&rec.UpdatedAt,
		&rec.ExpiresAt,
	)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(prefs, &rec.Preferences); err != nil {
		return Record{}, fmt.Errorf("decode preferences for %s: %w", rec.Key, err)
	}
	return rec, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, listRecordsQuery, p.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) (Record, error) {
	rec, err := scanRecord(p.db.QueryRowContext(ctx, getRecordQuery, key, p.now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get subscription: %w", err)
	}
	return rec, nil
}

func (p *PostgresStore) Put(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	prefs, err := json.Marshal(rec.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	_, err = p.db.ExecContext(ctx, upsertRecordQuery,
		rec.Key,
		rec.Subscription.Endpoint,
		rec.Subscription.Keys.P256dh,
		rec.Subscription.Keys.Auth,
		prefs,
		rec.UpdatedAt.UTC(),
		rec.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, deleteRecordQuery, key); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

