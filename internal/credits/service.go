package credits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ipvlabs/vendord/internal/idgen"
	"github.com/ipvlabs/vendord/internal/license"
	"github.com/ipvlabs/vendord/internal/metrics"
	"github.com/ipvlabs/vendord/internal/traces"
)

// Service provides credit metering business logic.
type Service struct {
	store    Store
	licenses LicenseStore
	oracle   SubscriptionOracle
	notifier Notifier
	logger   *slog.Logger
}

// NewService creates a new credits service. notifier may be nil.
func NewService(store Store, licenses LicenseStore, oracle SubscriptionOracle, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		licenses: licenses,
		oracle:   oracle,
		notifier: notifier,
		logger:   logger,
	}
}

// Has reports whether the license holds at least required credits.
func (s *Service) Has(lic *license.License, required int) bool {
	if required <= 0 {
		required = 1
	}
	return lic.CreditsRemaining >= required
}

// Use debits amount credits from a license. The stored decrement clamps at
// zero, a ledger entry records the balance after, and the daily usage
// counter advances. Callers gate on Has first; Use itself never fails on
// an empty balance.
func (s *Service) Use(ctx context.Context, licenseID string, amount int, note string) (*license.License, error) {
	if amount <= 0 {
		amount = 1
	}

	ctx, span := traces.StartSpan(ctx, "credits.use",
		traces.LicenseID(licenseID), traces.CreditAmount(amount))
	defer span.End()

	lic, err := s.licenses.DebitCredits(ctx, licenseID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to debit credits: %w", err)
	}

	entry := &LedgerEntry{
		ID:           idgen.WithPrefix("led_"),
		LicenseID:    licenseID,
		Action:       ActionDebit,
		Amount:       amount,
		BalanceAfter: lic.CreditsRemaining,
		Note:         note,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.AppendEntry(ctx, entry); err != nil {
		// The debit is already committed; the ledger is best effort here.
		s.logger.Error("failed to append ledger entry", "license_id", licenseID, "error", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	if err := s.store.AddUsage(ctx, licenseID, today, amount); err != nil {
		s.logger.Warn("failed to record usage stat", "license_id", licenseID, "error", err)
	}

	metrics.CreditsUsedTotal.Add(float64(amount))
	s.maybeWarnLowCredits(ctx, lic)
	return lic, nil
}

// InfoFor summarizes a license's credit state.
func (s *Service) InfoFor(lic *license.License) Info {
	used := lic.CreditsTotal - lic.CreditsRemaining
	if used < 0 {
		used = 0
	}

	var pct float64
	if lic.CreditsTotal > 0 {
		pct = float64(lic.CreditsRemaining) / float64(lic.CreditsTotal) * 100
	}

	days := int(time.Until(lic.CreditsResetDate).Hours() / 24)
	if days < 0 {
		days = 0
	}

	return Info{
		Remaining:      lic.CreditsRemaining,
		Total:          lic.CreditsTotal,
		Used:           used,
		Percentage:     pct,
		Status:         TierFor(lic.CreditsRemaining, lic.CreditsTotal),
		DaysUntilReset: days,
	}
}

// ResetLicense performs the monthly reset for one license, gated on the
// subscription oracle. An inactive subscription cancels the license instead
// of resetting it, and the method reports false.
func (s *Service) ResetLicense(ctx context.Context, licenseID string) (bool, error) {
	lic, err := s.licenses.Get(ctx, licenseID)
	if err != nil {
		return false, err
	}

	active, err := s.oracle.Active(ctx, lic.OrderRef)
	if err != nil {
		metrics.CreditResetsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("subscription check failed: %w", err)
	}

	if !active {
		lic.Status = license.StatusCancelled
		lic.UpdatedAt = time.Now().UTC()
		if err := s.licenses.Update(ctx, lic); err != nil {
			metrics.CreditResetsTotal.WithLabelValues("error").Inc()
			return false, fmt.Errorf("failed to cancel license: %w", err)
		}
		metrics.CreditResetsTotal.WithLabelValues("cancelled").Inc()
		s.logger.Info("license cancelled, subscription inactive", "license_id", licenseID)
		s.emit(ctx, EventLicenseCancelled, map[string]interface{}{
			"license_id": licenseID,
		})
		return false, nil
	}

	before := lic.CreditsRemaining
	updated, err := s.licenses.ResetCredits(ctx, licenseID, firstOfNextMonth(time.Now()))
	if err != nil {
		metrics.CreditResetsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("failed to reset credits: %w", err)
	}

	entry := &LedgerEntry{
		ID:           idgen.WithPrefix("led_"),
		LicenseID:    licenseID,
		Action:       ActionReset,
		Amount:       updated.CreditsTotal - before,
		BalanceAfter: updated.CreditsRemaining,
		Note:         "monthly reset",
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.AppendEntry(ctx, entry); err != nil {
		s.logger.Error("failed to append reset ledger entry", "license_id", licenseID, "error", err)
	}

	metrics.CreditResetsTotal.WithLabelValues("reset").Inc()
	s.logger.Info("credits reset", "license_id", licenseID, "credits", updated.CreditsTotal)
	s.emit(ctx, EventCreditsReset, map[string]interface{}{
		"license_id": licenseID,
		"credits":    updated.CreditsTotal,
	})
	return true, nil
}

// ResetAll resets every active license whose reset date has passed. One
// license's failure never aborts the batch; the count of successful resets
// is returned.
func (s *Service) ResetAll(ctx context.Context) (int, error) {
	due, err := s.licenses.ListDueForReset(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to list licenses due for reset: %w", err)
	}

	count := 0
	for _, lic := range due {
		ok, err := s.ResetLicense(ctx, lic.ID)
		if err != nil {
			s.logger.Error("reset failed", "license_id", lic.ID, "error", err)
			continue
		}
		if ok {
			count++
		}
	}

	if len(due) > 0 {
		s.logger.Info("monthly reset sweep complete", "due", len(due), "reset", count)
	}
	return count, nil
}

// Adjust applies a manual credit adjustment (admin only). Positive amounts
// grant credits up to the plan total.
func (s *Service) Adjust(ctx context.Context, licenseID string, amount int, note string) (*license.License, error) {
	lic, err := s.licenses.Get(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	lic.CreditsRemaining += amount
	if lic.CreditsRemaining < 0 {
		lic.CreditsRemaining = 0
	}
	if lic.CreditsRemaining > lic.CreditsTotal {
		lic.CreditsRemaining = lic.CreditsTotal
	}
	lic.UpdatedAt = time.Now().UTC()
	if err := s.licenses.Update(ctx, lic); err != nil {
		return nil, fmt.Errorf("failed to apply adjustment: %w", err)
	}

	entry := &LedgerEntry{
		ID:           idgen.WithPrefix("led_"),
		LicenseID:    licenseID,
		Action:       ActionAdjustment,
		Amount:       amount,
		BalanceAfter: lic.CreditsRemaining,
		Note:         note,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.AppendEntry(ctx, entry); err != nil {
		s.logger.Error("failed to append adjustment ledger entry", "license_id", licenseID, "error", err)
	}
	return lic, nil
}

// Ledger returns recent ledger entries for a license.
func (s *Service) Ledger(ctx context.Context, licenseID string, limit int) ([]*LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListEntries(ctx, licenseID, limit)
}

// Usage returns the daily usage stats for a license between two
// YYYY-MM-DD dates inclusive.
func (s *Service) Usage(ctx context.Context, licenseID, from, to string) ([]*UsageStat, error) {
	return s.store.ListUsage(ctx, licenseID, from, to)
}

// maybeWarnLowCredits emits the low-credit notification when the balance
// has fallen to the critical tier, at most once per license per calendar
// month.
func (s *Service) maybeWarnLowCredits(ctx context.Context, lic *license.License) {
	if TierFor(lic.CreditsRemaining, lic.CreditsTotal) != TierCritical {
		return
	}

	key := warnMarkerKey(lic.ID, time.Now().UTC())
	exists, err := s.store.MarkerExists(ctx, key)
	if err != nil {
		s.logger.Warn("failed to check notification marker", "license_id", lic.ID, "error", err)
		return
	}
	if exists {
		return
	}

	if err := s.store.SetMarker(ctx, key, time.Now().UTC().AddDate(0, 1, 0)); err != nil {
		s.logger.Warn("failed to set notification marker", "license_id", lic.ID, "error", err)
		return
	}

	s.logger.Info("low credit warning", "license_id", lic.ID,
		"remaining", lic.CreditsRemaining, "total", lic.CreditsTotal)
	s.emit(ctx, EventLowCredits, map[string]interface{}{
		"license_id":        lic.ID,
		"credits_remaining": lic.CreditsRemaining,
		"credits_total":     lic.CreditsTotal,
	})
}

func (s *Service) emit(ctx context.Context, event string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Emit(ctx, event, payload)
}

// warnMarkerKey dedups low-credit warnings per (license, calendar month).
func warnMarkerKey(licenseID string, now time.Time) string {
	return fmt.Sprintf("low_credits:%s:%s", licenseID, now.Format("2006-01"))
}

// firstOfNextMonth returns midnight UTC on the first day of the month
// after t.
func firstOfNextMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
