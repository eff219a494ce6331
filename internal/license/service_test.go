package license

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ipvlabs/vendord/internal/pagination"
	"github.com/ipvlabs/vendord/internal/plans"
)

func testService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, logger), store
}

func mustCreate(t *testing.T, s *Service, plan string) *License {
	t.Helper()
	lic, err := s.Create(context.Background(), CreateRequest{Plan: plan})
	if err != nil {
		t.Fatalf("create license: %v", err)
	}
	return lic
}

func TestCreate_UsesPlanDefaults(t *testing.T) {
	s, _ := testService(t)

	lic := mustCreate(t, s, "professional")

	if lic.CreditsTotal != 1200 || lic.CreditsRemaining != 1200 {
		t.Errorf("expected 1200 credits, got total=%d remaining=%d", lic.CreditsTotal, lic.CreditsRemaining)
	}
	if lic.ActivationLimit != 3 {
		t.Errorf("expected activation limit 3, got %d", lic.ActivationLimit)
	}
	if lic.Status != StatusActive {
		t.Errorf("expected active status, got %s", lic.Status)
	}
	if lic.ExpiresAt != nil {
		t.Error("professional plan should not expire")
	}

	// Reset date lands on the first of next month.
	if lic.CreditsResetDate.Day() != 1 {
		t.Errorf("expected reset on the 1st, got %v", lic.CreditsResetDate)
	}
	if !lic.CreditsResetDate.After(time.Now()) {
		t.Errorf("reset date should be in the future, got %v", lic.CreditsResetDate)
	}
}

func TestCreate_TrialExpires(t *testing.T) {
	s, _ := testService(t)

	lic := mustCreate(t, s, "trial")
	if lic.ExpiresAt == nil {
		t.Fatal("trial license should carry an expiry")
	}
}

func TestCreate_UnknownPlanRejected(t *testing.T) {
	s, _ := testService(t)

	_, err := s.Create(context.Background(), CreateRequest{Plan: "platinum"})
	if err == nil {
		t.Fatal("expected error for unknown plan")
	}
}

func TestCreate_ShortKeyFormat(t *testing.T) {
	s, _ := testService(t)

	lic, err := s.Create(context.Background(), CreateRequest{Plan: "starter", KeyFormat: "short"})
	if err != nil {
		t.Fatal(err)
	}
	variants := KeyVariants(lic.Key)
	if variants[0] != lic.Key {
		t.Errorf("expected key to already be normalized, got %s", lic.Key)
	}
	if len(lic.Key) != 17 { // 3 segments of 5 plus 2 dashes
		t.Errorf("unexpected short key shape: %s", lic.Key)
	}
}

// collidingStore reports every candidate key as taken.
type collidingStore struct {
	MemoryStore
	checks int
}

func (c *collidingStore) KeyExists(ctx context.Context, variants []string) (bool, error) {
	c.checks++
	return true, nil
}

func TestIssueKey_BoundedRetries(t *testing.T) {
	store := &collidingStore{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewService(store, logger)

	_, err := s.IssueKey(context.Background(), FormatLong)
	if !errors.Is(err, ErrKeyspaceExhausted) {
		t.Fatalf("expected ErrKeyspaceExhausted, got %v", err)
	}
	if store.checks != maxKeyAttempts {
		t.Errorf("expected %d attempts, got %d", maxKeyAttempts, store.checks)
	}
}

func TestValidate_HappyPath(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "starter")

	got, err := s.Validate(context.Background(), lic.Key, "https://example.com")
	if err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if got.ID != lic.ID {
		t.Errorf("returned wrong license")
	}
}

func TestValidate_NotFound(t *testing.T) {
	s, _ := testService(t)

	_, err := s.Validate(context.Background(), "AAAAA-BBBBB-CCCCC", "example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestValidate_Inactive(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "starter")

	if _, err := s.UpdateStatus(context.Background(), lic.ID, StatusSuspended); err != nil {
		t.Fatal(err)
	}

	_, err := s.Validate(context.Background(), lic.Key, "example.com")
	if !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	s, store := testService(t)
	lic := mustCreate(t, s, "starter")

	past := time.Now().Add(-time.Hour)
	lic.ExpiresAt = &past
	if err := store.Update(context.Background(), lic); err != nil {
		t.Fatal(err)
	}

	_, err := s.Validate(context.Background(), lic.Key, "example.com")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestValidate_DomainMismatch(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "starter")

	if _, err := s.Activate(context.Background(), lic.Key, "https://site-a.com", ""); err != nil {
		t.Fatal(err)
	}

	_, err := s.Validate(context.Background(), lic.Key, "https://site-b.com")
	if !errors.Is(err, ErrDomainMismatch) {
		t.Fatalf("expected ErrDomainMismatch, got %v", err)
	}

	// Same domain in a different spelling still validates.
	if _, err := s.Validate(context.Background(), lic.Key, "https://www.site-a.com/"); err != nil {
		t.Fatalf("expected normalized domain to match, got %v", err)
	}
}

func TestValidate_VariantLookup(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "starter") // long format: IPV- + 5 segments

	// Lookup without the prefix must resolve the same license.
	bare := lic.Key[len("IPV-"):]
	got, err := s.Validate(context.Background(), bare, "")
	if err != nil {
		t.Fatalf("expected bare-form lookup to succeed, got %v", err)
	}
	if got.ID != lic.ID {
		t.Error("bare-form lookup resolved a different license")
	}
}

func TestActivate_Idempotent(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "starter")

	first, err := s.Activate(context.Background(), lic.Key, "https://example.com", "Example")
	if err != nil {
		t.Fatal(err)
	}
	if first.ActivationCount != 1 {
		t.Fatalf("expected count 1, got %d", first.ActivationCount)
	}

	second, err := s.Activate(context.Background(), lic.Key, "https://www.example.com/", "Example")
	if err != nil {
		t.Fatalf("re-activation of same domain should succeed, got %v", err)
	}
	if second.ActivationCount != 1 {
		t.Errorf("re-activation must not consume a slot, count=%d", second.ActivationCount)
	}
}

func TestActivate_LimitReached(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "starter") // limit 1

	if _, err := s.Activate(context.Background(), lic.Key, "https://site-a.com", ""); err != nil {
		t.Fatal(err)
	}

	_, err := s.Activate(context.Background(), lic.Key, "https://site-b.com", "")
	if !errors.Is(err, ErrActivationLimit) {
		t.Fatalf("expected ErrActivationLimit, got %v", err)
	}

	var limitErr *ActivationLimitError
	if !errors.As(err, &limitErr) {
		t.Fatal("expected *ActivationLimitError")
	}
	if limitErr.Count != 1 || limitErr.Limit != 1 {
		t.Errorf("expected 1/1 counts, got %d/%d", limitErr.Count, limitErr.Limit)
	}
}

func TestActivate_MultiSitePlanConsumesSlots(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "professional") // limit 3

	for i, site := range []string{"https://a.com", "https://b.com", "https://c.com"} {
		updated, err := s.Activate(context.Background(), lic.Key, site, "")
		if err != nil {
			t.Fatalf("activation %d failed: %v", i+1, err)
		}
		if updated.ActivationCount != i+1 {
			t.Errorf("expected count %d, got %d", i+1, updated.ActivationCount)
		}
	}

	if _, err := s.Activate(context.Background(), lic.Key, "https://d.com", ""); !errors.Is(err, ErrActivationLimit) {
		t.Fatalf("expected limit error on fourth site, got %v", err)
	}
}

func TestDeactivate_RequiresBoundDomain(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "starter")

	if _, err := s.Activate(context.Background(), lic.Key, "https://site-a.com", ""); err != nil {
		t.Fatal(err)
	}

	if err := s.Deactivate(context.Background(), lic.Key, "https://site-b.com"); !errors.Is(err, ErrDomainMismatch) {
		t.Fatalf("expected ErrDomainMismatch, got %v", err)
	}

	if err := s.Deactivate(context.Background(), lic.Key, "https://www.site-a.com/"); err != nil {
		t.Fatalf("expected deactivation to succeed, got %v", err)
	}
}

func TestDeactivate_DoesNotFreeSlot(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "starter") // limit 1

	if _, err := s.Activate(context.Background(), lic.Key, "https://site-a.com", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Deactivate(context.Background(), lic.Key, "https://site-a.com"); err != nil {
		t.Fatal(err)
	}

	// The slot was consumed for good; a new site cannot activate.
	_, err := s.Activate(context.Background(), lic.Key, "https://site-b.com", "")
	if !errors.Is(err, ErrActivationLimit) {
		t.Fatalf("expected ErrActivationLimit after deactivation, got %v", err)
	}

	got, err := s.GetByKey(context.Background(), lic.Key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Domain != "" {
		t.Errorf("expected domain cleared, got %q", got.Domain)
	}
	if got.ActivationCount != 1 {
		t.Errorf("deactivation must not decrement count, got %d", got.ActivationCount)
	}
}

func TestActivationHistory(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "professional")

	if _, err := s.Activate(context.Background(), lic.Key, "https://a.com", "Site A"); err != nil {
		t.Fatal(err)
	}
	if err := s.Deactivate(context.Background(), lic.Key, "https://a.com"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Activate(context.Background(), lic.Key, "https://b.com", "Site B"); err != nil {
		t.Fatal(err)
	}

	acts, err := s.Activations(context.Background(), lic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(acts))
	}

	var active, closed int
	for _, a := range acts {
		if a.Active {
			active++
		} else {
			closed++
			if a.DeactivatedAt == nil {
				t.Error("closed activation missing deactivated_at")
			}
		}
	}
	if active != 1 || closed != 1 {
		t.Errorf("expected 1 active and 1 closed, got %d/%d", active, closed)
	}
}

func TestChangePlan_Applies(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "starter")

	updated, result, err := s.ChangePlan(context.Background(), lic.ID, plans.PlanProfessional, plans.CycleMonthly)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != plans.ChangeUpgrade || !result.Allowed {
		t.Fatalf("expected allowed upgrade, got %+v", result)
	}
	if updated.CreditsTotal != 1200 || updated.ActivationLimit != 3 {
		t.Errorf("plan entitlements not applied: %+v", updated)
	}
}

func TestChangePlan_DowngradeClampsRemaining(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "business") // 6000 credits

	updated, result, err := s.ChangePlan(context.Background(), lic.ID, plans.PlanTrial, plans.CycleMonthly)
	if err != nil {
		t.Fatal(err)
	}
	// 6000 remaining >= trial threshold 100, so the downgrade is blocked
	// and nothing changes.
	if result.Kind != plans.ChangeDowngradeBlocked {
		t.Fatalf("expected blocked downgrade, got %+v", result)
	}
	if updated.Plan != plans.PlanBusiness {
		t.Errorf("blocked downgrade must not mutate the license")
	}

	// Burn credits below the threshold, then the downgrade applies and
	// the remaining balance clamps to the new total.
	if _, err := s.store.DebitCredits(context.Background(), lic.ID, 5950); err != nil {
		t.Fatal(err)
	}
	updated, result, err = s.ChangePlan(context.Background(), lic.ID, plans.PlanTrial, plans.CycleMonthly)
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != plans.ChangeDowngrade || !result.Allowed {
		t.Fatalf("expected allowed downgrade, got %+v", result)
	}
	if updated.CreditsTotal != 10 || updated.CreditsRemaining > 10 {
		t.Errorf("expected clamped credits, got total=%d remaining=%d", updated.CreditsTotal, updated.CreditsRemaining)
	}
}

func TestChangePlan_CrossBillingRefused(t *testing.T) {
	s, _ := testService(t)
	lic := mustCreate(t, s, "starter")

	updated, result, err := s.ChangePlan(context.Background(), lic.ID, plans.PlanProfessional, plans.CycleYearly)
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed {
		t.Fatalf("cross billing change must be refused, got %+v", result)
	}
	if updated.Plan != plans.PlanStarter {
		t.Error("refused change must not mutate the license")
	}
}

func TestList_CursorPagination(t *testing.T) {
	_, store := testService(t)

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		lic := &License{
			ID:        "lic_" + string(rune('a'+i)),
			Key:       "KEY-" + string(rune('A'+i)),
			Status:    StatusActive,
			Plan:      plans.PlanStarter,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.Create(context.Background(), lic); err != nil {
			t.Fatal(err)
		}
	}

	first, err := store.List(context.Background(), ListFilter{Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	page, next, more := pagination.Page(first, 2, func(l *License) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	if len(page) != 2 || !more || next == "" {
		t.Fatalf("expected full first page with cursor, got len=%d more=%v", len(page), more)
	}
	if page[0].ID != "lic_e" || page[1].ID != "lic_d" {
		t.Fatalf("expected newest-first order, got %s %s", page[0].ID, page[1].ID)
	}

	cursor, err := pagination.Decode(next)
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.List(context.Background(), ListFilter{Limit: 3, Before: cursor})
	if err != nil {
		t.Fatal(err)
	}
	page2, _, more2 := pagination.Page(second, 2, func(l *License) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	if len(page2) != 2 || !more2 {
		t.Fatalf("expected full second page, got len=%d more=%v", len(page2), more2)
	}
	if page2[0].ID != "lic_c" || page2[1].ID != "lic_b" {
		t.Fatalf("second page must continue past the cursor, got %s %s", page2[0].ID, page2[1].ID)
	}
	for _, p := range page {
		for _, q := range page2 {
			if p.ID == q.ID {
				t.Fatalf("pages overlap on %s", p.ID)
			}
		}
	}
}
