package credits

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the ledger tables if they don't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS credit_ledger (
			id            VARCHAR(36) PRIMARY KEY,
			license_id    VARCHAR(36) NOT NULL,
			action        VARCHAR(20) NOT NULL,
			amount        INTEGER NOT NULL,
			balance_after INTEGER NOT NULL,
			note          VARCHAR(255) NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_credit_ledger_license ON credit_ledger(license_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS usage_stats (
			license_id VARCHAR(36) NOT NULL,
			date       DATE NOT NULL,
			credits    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (license_id, date)
		);

		CREATE TABLE IF NOT EXISTS notification_markers (
			key        VARCHAR(120) PRIMARY KEY,
			expires_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (p *PostgresStore) AppendEntry(ctx context.Context, entry *LedgerEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO credit_ledger (id, license_id, action, amount, balance_after, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.LicenseID, string(entry.Action), entry.Amount, entry.BalanceAfter, entry.Note, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListEntries(ctx context.Context, licenseID string, limit int) ([]*LedgerEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, license_id, action, amount, balance_after, note, created_at
		FROM credit_ledger
		WHERE license_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, licenseID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var result []*LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var action string
		if err := rows.Scan(&e.ID, &e.LicenseID, &action, &e.Amount, &e.BalanceAfter, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Action = Action(action)
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (p *PostgresStore) AddUsage(ctx context.Context, licenseID, date string, amount int) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO usage_stats (license_id, date, credits)
		VALUES ($1, $2, $3)
		ON CONFLICT (license_id, date) DO UPDATE SET credits = usage_stats.credits + EXCLUDED.credits
	`, licenseID, date, amount)
	if err != nil {
		return fmt.Errorf("upsert usage stat: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListUsage(ctx context.Context, licenseID, from, to string) ([]*UsageStat, error) {
	query := `SELECT license_id, to_char(date, 'YYYY-MM-DD'), credits FROM usage_stats WHERE license_id = $1`
	args := []interface{}{licenseID}
	n := 1

	if from != "" {
		n++
		query += fmt.Sprintf(" AND date >= $%d", n)
		args = append(args, from)
	}
	if to != "" {
		n++
		query += fmt.Sprintf(" AND date <= $%d", n)
		args = append(args, to)
	}
	query += " ORDER BY date"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list usage stats: %w", err)
	}
	defer rows.Close()

	var result []*UsageStat
	for rows.Next() {
		var s UsageStat
		if err := rows.Scan(&s.LicenseID, &s.Date, &s.Credits); err != nil {
			return nil, fmt.Errorf("scan usage stat: %w", err)
		}
		result = append(result, &s)
	}
	return result, rows.Err()
}

func (p *PostgresStore) SetMarker(ctx context.Context, key string, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notification_markers (key, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, key, expiresAt)
	if err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

func (p *PostgresStore) MarkerExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM notification_markers WHERE key = $1 AND expires_at > NOW())
	`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check marker: %w", err)
	}
	return exists, nil
}
