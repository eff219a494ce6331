// Package license implements the license registry for the plugin product.
//
// A license entitles one customer to run the plugin on a bounded number of
// sites. Each record carries a unique segmented key, an optional domain
// binding, a plan slug, and metered credit counters. Keys circulate in two
// historical formats, so every lookup by key value goes through the variant
// expansion in keys.go.
package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ipvlabs/vendord/internal/pagination"
	"github.com/ipvlabs/vendord/internal/plans"
)

var (
	ErrNotFound          = errors.New("license not found")
	ErrInactive          = errors.New("license is not active")
	ErrExpired           = errors.New("license has expired")
	ErrDomainMismatch    = errors.New("license is registered to a different domain")
	ErrActivationLimit   = errors.New("activation limit reached")
	ErrKeyspaceExhausted = errors.New("could not generate a unique license key")
	ErrDuplicateKey      = errors.New("license key already exists")
)

// ActivationLimitError reports a refused activation with the counts that
// caused it. It unwraps to ErrActivationLimit.
type ActivationLimitError struct {
	Count int
	Limit int
}

func (e *ActivationLimitError) Error() string {
	return fmt.Sprintf("activation limit reached (%d of %d used)", e.Count, e.Limit)
}

func (e *ActivationLimitError) Unwrap() error { return ErrActivationLimit }

// Status represents the lifecycle state of a license.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusOnHold    Status = "on-hold"
)

// ValidStatus returns true if the status is recognised.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusSuspended, StatusCancelled, StatusExpired, StatusOnHold:
		return true
	}
	return false
}

// License is one entitlement record.
type License struct {
	ID               string             `json:"id"`
	Key              string             `json:"licenseKey"`
	Domain           string             `json:"domain,omitempty"` // empty = unbound
	SiteName         string             `json:"siteName,omitempty"`
	Status           Status             `json:"status"`
	Plan             plans.Plan         `json:"plan"`
	BillingCycle     plans.BillingCycle `json:"billingCycle"`
	CreditsTotal     int                `json:"creditsTotal"`
	CreditsRemaining int                `json:"creditsRemaining"`
	ActivationLimit  int                `json:"activationLimit"`
	ActivationCount  int                `json:"activationCount"`
	ExpiresAt        *time.Time         `json:"expiresAt,omitempty"` // nil = never expires
	CreditsResetDate time.Time          `json:"creditsResetDate"`
	CustomerEmail    string             `json:"customerEmail,omitempty"`
	OrderRef         string             `json:"orderRef,omitempty"` // upstream order/subscription reference
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// Usable reports whether the license may be used at all: it must be active
// and not past its expiry.
func (l *License) Usable(now time.Time) error {
	if l.Status != StatusActive {
		return ErrInactive
	}
	if l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
		return ErrExpired
	}
	return nil
}

// Activation is one historical site binding.
type Activation struct {
	ID            string     `json:"id"`
	LicenseID     string     `json:"licenseId"`
	SiteURL       string     `json:"siteUrl"`
	SiteName      string     `json:"siteName,omitempty"`
	Active        bool       `json:"active"`
	ActivatedAt   time.Time  `json:"activatedAt"`
	DeactivatedAt *time.Time `json:"deactivatedAt,omitempty"`
}

// ActivateRequest is the request body for POST /license/activate.
type ActivateRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
	SiteURL    string `json:"site_url" binding:"required"`
	SiteName   string `json:"site_name"`
}

// DeactivateRequest is the request body for POST /license/deactivate.
type DeactivateRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
	SiteURL    string `json:"site_url" binding:"required"`
}

// CreateRequest is the admin request body for issuing a license.
type CreateRequest struct {
	Plan          string `json:"plan" binding:"required"`
	BillingCycle  string `json:"billing_cycle"`
	CustomerEmail string `json:"customer_email"`
	OrderRef      string `json:"order_ref"`
	KeyFormat     string `json:"key_format"` // "short" or "long"; defaults to long
}

// ListFilter narrows admin license listings. When Before is set, only
// licenses older than the cursor position are returned, keyed on
// (created_at, id) descending.
type ListFilter struct {
	Status Status
	Plan   plans.Plan
	Limit  int
	Offset int
	Before *pagination.Cursor
}

// Store persists license records.
//
// Bind and related mutations must be atomic with respect to concurrent
// calls for the same license: the activation-count check and the increment
// happen in one conditional update, never read-then-write.
type Store interface {
	Create(ctx context.Context, lic *License) error
	Get(ctx context.Context, id string) (*License, error)
	// GetByKey resolves the first license whose stored key matches any of
	// the supplied variants.
	GetByKey(ctx context.Context, variants []string) (*License, error)
	// KeyExists reports whether any variant is already taken.
	KeyExists(ctx context.Context, variants []string) (bool, error)
	Update(ctx context.Context, lic *License) error
	List(ctx context.Context, filter ListFilter) ([]*License, error)
	// Bind sets the domain binding and increments the activation count in
	// one atomic step. Returns ErrActivationLimit when the count is at the
	// limit.
	Bind(ctx context.Context, id, domain, siteName string) (*License, error)
	// ClearDomain removes the domain binding without touching the
	// activation count.
	ClearDomain(ctx context.Context, id string) error

	RecordActivation(ctx context.Context, act *Activation) error
	CloseActivation(ctx context.Context, licenseID, siteURL string) error
	ListActivations(ctx context.Context, licenseID string) ([]*Activation, error)

	// DebitCredits decrements the remaining credits by amount, clamped at
	// zero, in one atomic step, and returns the updated row.
	DebitCredits(ctx context.Context, id string, amount int) (*License, error)
	// ResetCredits restores the full allotment and advances the reset date.
	ResetCredits(ctx context.Context, id string, nextReset time.Time) (*License, error)
	// ListDueForReset returns active licenses whose reset date is at or
	// before asOf.
	ListDueForReset(ctx context.Context, asOf time.Time) ([]*License, error)
}
