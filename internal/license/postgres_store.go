package license

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ipvlabs/vendord/internal/plans"
)

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed license store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the licenses and activations tables if they don't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS licenses (
			id                 VARCHAR(36) PRIMARY KEY,
			license_key        VARCHAR(64) NOT NULL UNIQUE,
			domain             VARCHAR(255) NOT NULL DEFAULT '',
			site_name          VARCHAR(255) NOT NULL DEFAULT '',
			status             VARCHAR(20) NOT NULL DEFAULT 'active',
			plan               VARCHAR(40) NOT NULL,
			billing_cycle      VARCHAR(10) NOT NULL DEFAULT 'monthly',
			credits_total      INTEGER NOT NULL DEFAULT 0,
			credits_remaining  INTEGER NOT NULL DEFAULT 0,
			activation_limit   INTEGER NOT NULL DEFAULT 1,
			activation_count   INTEGER NOT NULL DEFAULT 0,
			expires_at         TIMESTAMPTZ,
			credits_reset_date TIMESTAMPTZ NOT NULL,
			customer_email     VARCHAR(255) NOT NULL DEFAULT '',
			order_ref          VARCHAR(100) NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ DEFAULT NOW(),
			updated_at         TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_licenses_key ON licenses(license_key);
		CREATE INDEX IF NOT EXISTS idx_licenses_status ON licenses(status);
		CREATE INDEX IF NOT EXISTS idx_licenses_reset ON licenses(status, credits_reset_date);

		CREATE TABLE IF NOT EXISTS activations (
			id             VARCHAR(36) PRIMARY KEY,
			license_id     VARCHAR(36) NOT NULL REFERENCES licenses(id),
			site_url       VARCHAR(255) NOT NULL,
			site_name      VARCHAR(255) NOT NULL DEFAULT '',
			active         BOOLEAN NOT NULL DEFAULT TRUE,
			activated_at   TIMESTAMPTZ NOT NULL,
			deactivated_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_activations_license ON activations(license_id);
	`)
	return err
}

const licenseColumns = `id, license_key, domain, site_name, status, plan, billing_cycle,
	credits_total, credits_remaining, activation_limit, activation_count,
	expires_at, credits_reset_date, customer_email, order_ref, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, lic *License) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO licenses (`+licenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		lic.ID, lic.Key, lic.Domain, lic.SiteName, string(lic.Status), string(lic.Plan), string(lic.BillingCycle),
		lic.CreditsTotal, lic.CreditsRemaining, lic.ActivationLimit, lic.ActivationCount,
		lic.ExpiresAt, lic.CreditsResetDate, lic.CustomerEmail, lic.OrderRef, lic.CreatedAt, lic.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateKey
		}
		return fmt.Errorf("insert license: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*License, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+licenseColumns+` FROM licenses WHERE id = $1
	`, id)

	lic, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	return lic, nil
}

func (p *PostgresStore) GetByKey(ctx context.Context, variants []string) (*License, error) {
	if len(variants) == 0 {
		return nil, ErrNotFound
	}
	// Prefer the earliest variant (the exact normalized input comes first).
	row := p.db.QueryRowContext(ctx, `
		SELECT `+licenseColumns+` FROM licenses
		WHERE license_key = ANY($1)
		ORDER BY array_position($1, license_key)
		LIMIT 1
	`, pq.Array(variants))

	lic, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get license by key: %w", err)
	}
	return lic, nil
}

func (p *PostgresStore) KeyExists(ctx context.Context, variants []string) (bool, error) {
	if len(variants) == 0 {
		return false, nil
	}
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM licenses WHERE license_key = ANY($1))
	`, pq.Array(variants)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check key exists: %w", err)
	}
	return exists, nil
}

func (p *PostgresStore) Update(ctx context.Context, lic *License) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE licenses SET
			license_key = $2, domain = $3, site_name = $4, status = $5,
			plan = $6, billing_cycle = $7, credits_total = $8, credits_remaining = $9,
			activation_limit = $10, activation_count = $11, expires_at = $12,
			credits_reset_date = $13, customer_email = $14, order_ref = $15,
			updated_at = NOW()
		WHERE id = $1
	`,
		lic.ID, lic.Key, lic.Domain, lic.SiteName, string(lic.Status),
		string(lic.Plan), string(lic.BillingCycle), lic.CreditsTotal, lic.CreditsRemaining,
		lic.ActivationLimit, lic.ActivationCount, lic.ExpiresAt,
		lic.CreditsResetDate, lic.CustomerEmail, lic.OrderRef,
	)
	if err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE 1=1`
	args := []interface{}{}
	n := 0

	if filter.Status != "" {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(filter.Status))
	}
	if filter.Plan != "" {
		n++
		query += fmt.Sprintf(" AND plan = $%d", n)
		args = append(args, string(filter.Plan))
	}
	if filter.Before != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", n+1, n+2)
		args = append(args, filter.Before.CreatedAt, filter.Before.ID)
		n += 2
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var result []*License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		result = append(result, lic)
	}
	return result, rows.Err()
}

// Bind performs the limit check and the increment in a single conditional
// UPDATE, so two concurrent activations cannot both pass the check.
func (p *PostgresStore) Bind(ctx context.Context, id, domain, siteName string) (*License, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE licenses SET
			domain = $2, site_name = $3,
			activation_count = activation_count + 1,
			updated_at = NOW()
		WHERE id = $1 AND activation_count < activation_limit
		RETURNING `+licenseColumns+`
	`, id, domain, siteName)

	lic, err := scanLicense(row)
	if err == sql.ErrNoRows {
		// Either missing or at the limit; one more read to tell them apart.
		existing, getErr := p.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &ActivationLimitError{Count: existing.ActivationCount, Limit: existing.ActivationLimit}
	}
	if err != nil {
		return nil, fmt.Errorf("bind license: %w", err)
	}
	return lic, nil
}

func (p *PostgresStore) ClearDomain(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE licenses SET domain = '', site_name = '', updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clear domain: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DebitCredits clamps the decrement in one statement; concurrent debits
// serialize on the row lock and never produce a negative balance.
func (p *PostgresStore) DebitCredits(ctx context.Context, id string, amount int) (*License, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE licenses SET
			credits_remaining = GREATEST(0, credits_remaining - $2),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+licenseColumns+`
	`, id, amount)

	lic, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("debit credits: %w", err)
	}
	return lic, nil
}

func (p *PostgresStore) ResetCredits(ctx context.Context, id string, nextReset time.Time) (*License, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE licenses SET
			credits_remaining = credits_total,
			credits_reset_date = $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+licenseColumns+`
	`, id, nextReset)

	lic, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reset credits: %w", err)
	}
	return lic, nil
}

func (p *PostgresStore) ListDueForReset(ctx context.Context, asOf time.Time) ([]*License, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+licenseColumns+` FROM licenses
		WHERE status = 'active' AND credits_reset_date <= $1
		ORDER BY created_at
	`, asOf)
	if err != nil {
		return nil, fmt.Errorf("list due for reset: %w", err)
	}
	defer rows.Close()

	var result []*License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		result = append(result, lic)
	}
	return result, rows.Err()
}

func (p *PostgresStore) RecordActivation(ctx context.Context, act *Activation) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO activations (id, license_id, site_url, site_name, active, activated_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, act.ID, act.LicenseID, act.SiteURL, act.SiteName, act.Active, act.ActivatedAt, act.DeactivatedAt)
	if err != nil {
		return fmt.Errorf("insert activation: %w", err)
	}
	return nil
}

func (p *PostgresStore) CloseActivation(ctx context.Context, licenseID, siteURL string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE activations SET active = FALSE, deactivated_at = NOW()
		WHERE license_id = $1 AND site_url = $2 AND active
	`, licenseID, siteURL)
	if err != nil {
		return fmt.Errorf("close activation: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListActivations(ctx context.Context, licenseID string) ([]*Activation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, license_id, site_url, site_name, active, activated_at, deactivated_at
		FROM activations WHERE license_id = $1
		ORDER BY activated_at DESC
	`, licenseID)
	if err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	defer rows.Close()

	var result []*Activation
	for rows.Next() {
		var act Activation
		var deactivated sql.NullTime
		if err := rows.Scan(&act.ID, &act.LicenseID, &act.SiteURL, &act.SiteName,
			&act.Active, &act.ActivatedAt, &deactivated); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		if deactivated.Valid {
			act.DeactivatedAt = &deactivated.Time
		}
		result = append(result, &act)
	}
	return result, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanLicense.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLicense(s scanner) (*License, error) {
	var lic License
	var status, plan, cycle string
	var expires sql.NullTime
	err := s.Scan(
		&lic.ID, &lic.Key, &lic.Domain, &lic.SiteName, &status, &plan, &cycle,
		&lic.CreditsTotal, &lic.CreditsRemaining, &lic.ActivationLimit, &lic.ActivationCount,
		&expires, &lic.CreditsResetDate, &lic.CustomerEmail, &lic.OrderRef,
		&lic.CreatedAt, &lic.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	lic.Status = Status(status)
	lic.Plan = plans.Plan(plan)
	lic.BillingCycle = plans.BillingCycle(cycle)
	if expires.Valid {
		lic.ExpiresAt = &expires.Time
	}
	return &lic, nil
}
