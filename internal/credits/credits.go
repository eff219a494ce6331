// Package credits meters license usage.
//
// Every debit is clamped at zero and recorded in an append-only ledger plus
// a daily usage counter. A timer-driven monthly reset restores each active
// license's allotment, gated on the upstream subscription still being paid.
package credits

import (
	"context"
	"errors"
	"time"

	"github.com/ipvlabs/vendord/internal/license"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrEntryNotFound       = errors.New("ledger entry not found")
)

// Action classifies a ledger entry.
type Action string

const (
	ActionDebit      Action = "debit"
	ActionReset      Action = "reset"
	ActionAdjustment Action = "adjustment"
)

// LedgerEntry is one append-only ledger row.
type LedgerEntry struct {
	ID           string    `json:"id"`
	LicenseID    string    `json:"licenseId"`
	Action       Action    `json:"action"`
	Amount       int       `json:"amount"`
	BalanceAfter int       `json:"balanceAfter"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UsageStat is a per-license daily debit total, bucketed by UTC date.
// Reporting only; the ledger is the audit record.
type UsageStat struct {
	LicenseID string `json:"licenseId"`
	Date      string `json:"date"` // YYYY-MM-DD
	Credits   int    `json:"credits"`
}

// Tier is the four-step credit status ladder. Notification logic keys off
// these exact thresholds.
type Tier string

const (
	TierDepleted Tier = "depleted" // remaining <= 0
	TierCritical Tier = "critical" // remaining/total <= 10%
	TierLow      Tier = "low"      // remaining/total <= 25%
	TierOK       Tier = "ok"
)

// Info is the credit summary returned to plugin clients.
type Info struct {
	Remaining      int     `json:"credits_remaining"`
	Total          int     `json:"credits_total"`
	Used           int     `json:"credits_used"`
	Percentage     float64 `json:"percentage"`
	Status         Tier    `json:"status"`
	DaysUntilReset int     `json:"days_until_reset"`
}

// TierFor classifies a balance. A non-positive total counts as depleted.
func TierFor(remaining, total int) Tier {
	if remaining <= 0 || total <= 0 {
		return TierDepleted
	}
	pct := float64(remaining) / float64(total) * 100
	switch {
	case pct <= 10:
		return TierCritical
	case pct <= 25:
		return TierLow
	default:
		return TierOK
	}
}

// Store persists ledger entries, usage stats, and notification markers.
type Store interface {
	AppendEntry(ctx context.Context, entry *LedgerEntry) error
	ListEntries(ctx context.Context, licenseID string, limit int) ([]*LedgerEntry, error)

	// AddUsage increments the daily counter for (licenseID, date).
	AddUsage(ctx context.Context, licenseID, date string, amount int) error
	ListUsage(ctx context.Context, licenseID, from, to string) ([]*UsageStat, error)

	// SetMarker records a dedup marker that expires at the given time.
	// MarkerExists ignores expired markers.
	SetMarker(ctx context.Context, key string, expiresAt time.Time) error
	MarkerExists(ctx context.Context, key string) (bool, error)
}

// LicenseStore is the slice of the license store the ledger needs.
// Satisfied by both license store implementations.
type LicenseStore interface {
	Get(ctx context.Context, id string) (*license.License, error)
	Update(ctx context.Context, lic *license.License) error
	DebitCredits(ctx context.Context, id string, amount int) (*license.License, error)
	ResetCredits(ctx context.Context, id string, nextReset time.Time) (*license.License, error)
	ListDueForReset(ctx context.Context, asOf time.Time) ([]*license.License, error)
}

// SubscriptionOracle answers whether the upstream subscription behind a
// license is still paid up.
type SubscriptionOracle interface {
	Active(ctx context.Context, orderRef string) (bool, error)
}

// Notifier delivers credit lifecycle events. Implemented by the webhook
// emitter and the realtime hub via an adapter in the server package.
type Notifier interface {
	Emit(ctx context.Context, event string, payload interface{})
}

// Notification event names.
const (
	EventLowCredits       = "low_credits"
	EventCreditsReset     = "credits_reset"
	EventLicenseCancelled = "license_cancelled"
)
