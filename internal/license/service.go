package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ipvlabs/vendord/internal/idgen"
	"github.com/ipvlabs/vendord/internal/metrics"
	"github.com/ipvlabs/vendord/internal/plans"
	"github.com/ipvlabs/vendord/internal/syncutil"
	"github.com/ipvlabs/vendord/internal/traces"
)

// maxKeyAttempts bounds key generation retries on collision.
const maxKeyAttempts = 10

// Service provides license registry business logic.
type Service struct {
	store  Store
	logger *slog.Logger

	// actLocks serializes activation flows per key so concurrent requests
	// from the same site cannot double-bind.
	actLocks syncutil.ShardedMutex
}

// NewService creates a new license service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// IssueKey generates a license key that is unique among all format
// variants of every existing key.
func (s *Service) IssueKey(ctx context.Context, format KeyFormat) (string, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key := randomKey(format)
		taken, err := s.store.KeyExists(ctx, KeyVariants(key))
		if err != nil {
			return "", fmt.Errorf("failed to check key uniqueness: %w", err)
		}
		if !taken {
			return key, nil
		}
		s.logger.Warn("license key collision, regenerating", "attempt", attempt+1)
	}
	return "", ErrKeyspaceExhausted
}

// Create issues a new license from the plan's defaults.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*License, error) {
	plan := plans.Plan(req.Plan)
	if !plans.ValidPlan(plan) {
		return nil, fmt.Errorf("unknown plan %q", req.Plan)
	}
	cycle := plans.BillingCycle(req.BillingCycle)
	if req.BillingCycle == "" {
		cycle = plans.CycleMonthly
	}
	if !plans.ValidCycle(cycle) {
		return nil, fmt.Errorf("unknown billing cycle %q", req.BillingCycle)
	}

	format := FormatLong
	if req.KeyFormat == string(FormatShort) {
		format = FormatShort
	}

	key, err := s.IssueKey(ctx, format)
	if err != nil {
		return nil, err
	}

	cfg := plans.Config(plan)
	now := time.Now().UTC()
	lic := &License{
		ID:               idgen.WithPrefix("lic_"),
		Key:              key,
		Status:           StatusActive,
		Plan:             plan,
		BillingCycle:     cycle,
		CreditsTotal:     cfg.Credits,
		CreditsRemaining: cfg.Credits,
		ActivationLimit:  cfg.ActivationLimit,
		CreditsResetDate: firstOfNextMonth(now),
		CustomerEmail:    req.CustomerEmail,
		OrderRef:         req.OrderRef,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if cfg.ExpiryDays > 0 {
		exp := now.AddDate(0, 0, cfg.ExpiryDays)
		lic.ExpiresAt = &exp
	}

	if err := s.store.Create(ctx, lic); err != nil {
		return nil, fmt.Errorf("failed to create license: %w", err)
	}

	s.logger.Info("license created", "license_id", lic.ID, "plan", plan, "cycle", cycle)
	return lic, nil
}

// Get returns a license by ID.
func (s *Service) Get(ctx context.Context, id string) (*License, error) {
	return s.store.Get(ctx, id)
}

// GetByKey resolves a license by raw key value, trying all format variants.
func (s *Service) GetByKey(ctx context.Context, key string) (*License, error) {
	variants := KeyVariants(key)
	if len(variants) == 0 {
		return nil, ErrNotFound
	}
	return s.store.GetByKey(ctx, variants)
}

// List returns licenses matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*License, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.store.List(ctx, filter)
}

// Validate checks that a key identifies a usable license for the given
// domain. An empty domain skips the binding check (used for read-only
// endpoints where the key alone authenticates).
func (s *Service) Validate(ctx context.Context, key, domain string) (*License, error) {
	ctx, span := traces.StartSpan(ctx, "license.validate", traces.Domain(domain))
	defer span.End()

	lic, err := s.GetByKey(ctx, key)
	if err != nil {
		metrics.LicenseValidationsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}

	if err := lic.Usable(time.Now()); err != nil {
		switch {
		case errors.Is(err, ErrExpired):
			metrics.LicenseValidationsTotal.WithLabelValues("expired").Inc()
		default:
			metrics.LicenseValidationsTotal.WithLabelValues("inactive").Inc()
		}
		return nil, err
	}

	if domain != "" && lic.Domain != "" && lic.Domain != NormalizeDomain(domain) {
		metrics.LicenseValidationsTotal.WithLabelValues("domain_mismatch").Inc()
		return nil, ErrDomainMismatch
	}

	metrics.LicenseValidationsTotal.WithLabelValues("valid").Inc()
	return lic, nil
}

// Activate binds a license to a site.
//
// Re-activating the currently bound domain is idempotent and does not
// consume a slot. Binding a different domain consumes one activation slot;
// deactivation never returns slots, so moving between sites repeatedly
// exhausts the limit.
func (s *Service) Activate(ctx context.Context, key, siteURL, siteName string) (*License, error) {
	unlock := s.actLocks.Lock(canonicalKey(key))
	defer unlock()

	lic, err := s.GetByKey(ctx, key)
	if err != nil {
		metrics.ActivationsTotal.WithLabelValues("not_found").Inc()
		return nil, err
	}
	if err := lic.Usable(time.Now()); err != nil {
		metrics.ActivationsTotal.WithLabelValues("unusable").Inc()
		return nil, err
	}

	domain := NormalizeDomain(siteURL)
	if domain == "" {
		return nil, fmt.Errorf("site_url is empty after normalization")
	}

	if lic.Domain == domain {
		metrics.ActivationsTotal.WithLabelValues("idempotent").Inc()
		return lic, nil
	}

	updated, err := s.store.Bind(ctx, lic.ID, domain, siteName)
	if err != nil {
		if errors.Is(err, ErrActivationLimit) {
			metrics.ActivationsTotal.WithLabelValues("limit_reached").Inc()
		} else {
			metrics.ActivationsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	act := &Activation{
		ID:          idgen.WithPrefix("act_"),
		LicenseID:   lic.ID,
		SiteURL:     domain,
		SiteName:    siteName,
		Active:      true,
		ActivatedAt: time.Now().UTC(),
	}
	if err := s.store.RecordActivation(ctx, act); err != nil {
		// The binding already succeeded; history is best effort.
		s.logger.Warn("failed to record activation history", "license_id", lic.ID, "error", err)
	}

	metrics.ActivationsTotal.WithLabelValues("activated").Inc()
	s.logger.Info("license activated", "license_id", lic.ID, "domain", domain,
		"activation_count", updated.ActivationCount, "activation_limit", updated.ActivationLimit)
	return updated, nil
}

// Deactivate releases the domain binding. The requesting site must be the
// one currently bound. The activation count is left untouched.
func (s *Service) Deactivate(ctx context.Context, key, siteURL string) error {
	unlock := s.actLocks.Lock(canonicalKey(key))
	defer unlock()

	lic, err := s.GetByKey(ctx, key)
	if err != nil {
		return err
	}

	domain := NormalizeDomain(siteURL)
	if lic.Domain == "" || lic.Domain != domain {
		return ErrDomainMismatch
	}

	if err := s.store.ClearDomain(ctx, lic.ID); err != nil {
		return fmt.Errorf("failed to clear domain binding: %w", err)
	}
	if err := s.store.CloseActivation(ctx, lic.ID, domain); err != nil {
		s.logger.Warn("failed to close activation history", "license_id", lic.ID, "error", err)
	}

	s.logger.Info("license deactivated", "license_id", lic.ID, "domain", domain)
	return nil
}

// UpdateStatus transitions a license to a new lifecycle state.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*License, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	lic, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lic.Status = status
	lic.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, lic); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	s.logger.Info("license status changed", "license_id", id, "status", status)
	return lic, nil
}

// ChangePlan evaluates and, when permitted, applies a plan transition.
// A disallowed transition returns the evaluation with a nil error; the
// caller inspects Allowed.
func (s *Service) ChangePlan(ctx context.Context, id string, targetPlan plans.Plan, targetCycle plans.BillingCycle) (*License, plans.ChangeResult, error) {
	if !plans.ValidPlan(targetPlan) {
		return nil, plans.ChangeResult{}, fmt.Errorf("unknown plan %q", targetPlan)
	}
	if !plans.ValidCycle(targetCycle) {
		return nil, plans.ChangeResult{}, fmt.Errorf("unknown billing cycle %q", targetCycle)
	}

	lic, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, plans.ChangeResult{}, err
	}

	result := plans.ValidateChange(lic.Plan, lic.BillingCycle, targetPlan, targetCycle, lic.CreditsRemaining)
	if !result.Allowed || result.Kind == plans.ChangeUnchanged {
		return lic, result, nil
	}

	cfg := plans.Config(targetPlan)
	lic.Plan = targetPlan
	lic.BillingCycle = targetCycle
	lic.CreditsTotal = cfg.Credits
	if lic.CreditsRemaining > lic.CreditsTotal {
		lic.CreditsRemaining = lic.CreditsTotal
	}
	lic.ActivationLimit = cfg.ActivationLimit
	lic.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, lic); err != nil {
		return nil, result, fmt.Errorf("failed to apply plan change: %w", err)
	}

	s.logger.Info("license plan changed", "license_id", id,
		"kind", result.Kind, "plan", targetPlan, "cycle", targetCycle)
	return lic, result, nil
}

// Activations returns the site binding history for a license.
func (s *Service) Activations(ctx context.Context, licenseID string) ([]*Activation, error) {
	return s.store.ListActivations(ctx, licenseID)
}

// firstOfNextMonth returns midnight UTC on the first day of the month
// after t.
func firstOfNextMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
