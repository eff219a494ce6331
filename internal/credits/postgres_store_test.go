//go:build integration

package credits

import (
	"context"
	"testing"
	"time"

	"github.com/ipvlabs/vendord/internal/testutil"
)

func setupTestStore(t *testing.T) (*PostgresStore, func()) {
	t.Helper()
	db, cleanup := testutil.PGTest(t)
	return NewPostgresStore(db), cleanup
}

func TestPostgresCredits_LedgerOrder(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)

	for i, entry := range []*LedgerEntry{
		{ID: "led_pg001", Action: ActionDebit, Amount: 1, BalanceAfter: 59},
		{ID: "led_pg002", Action: ActionDebit, Amount: 2, BalanceAfter: 57},
		{ID: "led_pg003", Action: ActionReset, Amount: 60, BalanceAfter: 60, Note: "monthly reset"},
	} {
		entry.LicenseID = "lic_ledger"
		entry.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := store.AppendEntry(ctx, entry); err != nil {
			t.Fatalf("AppendEntry failed: %v", err)
		}
	}

	entries, err := store.ListEntries(ctx, "lic_ledger", 0)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ListEntries: got %d, want 3", len(entries))
	}
	// Newest first
	if entries[0].ID != "led_pg003" {
		t.Errorf("First entry: got %s, want led_pg003", entries[0].ID)
	}
	if entries[0].Note != "monthly reset" {
		t.Errorf("Note: got %q", entries[0].Note)
	}

	limited, err := store.ListEntries(ctx, "lic_ledger", 2)
	if err != nil {
		t.Fatalf("ListEntries with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Limited: got %d, want 2", len(limited))
	}
}

func TestPostgresCredits_UsageAccumulates(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if err := store.AddUsage(ctx, "lic_usage", "2026-08-01", 3); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}
	if err := store.AddUsage(ctx, "lic_usage", "2026-08-01", 2); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}
	if err := store.AddUsage(ctx, "lic_usage", "2026-08-02", 1); err != nil {
		t.Fatalf("AddUsage failed: %v", err)
	}

	stats, err := store.ListUsage(ctx, "lic_usage", "", "")
	if err != nil {
		t.Fatalf("ListUsage failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("ListUsage: got %d days, want 2", len(stats))
	}
	if stats[0].Date != "2026-08-01" || stats[0].Credits != 5 {
		t.Errorf("Day 1: got %s=%d, want 2026-08-01=5", stats[0].Date, stats[0].Credits)
	}

	// Range filter
	stats, err = store.ListUsage(ctx, "lic_usage", "2026-08-02", "")
	if err != nil {
		t.Fatalf("ListUsage with range failed: %v", err)
	}
	if len(stats) != 1 || stats[0].Date != "2026-08-02" {
		t.Errorf("Range filter: got %d days", len(stats))
	}
}

func TestPostgresCredits_MarkerExpiry(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()

	if err := store.SetMarker(ctx, "low_credits:lic_a:2026-08", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SetMarker failed: %v", err)
	}
	if err := store.SetMarker(ctx, "low_credits:lic_b:2026-07", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("SetMarker failed: %v", err)
	}

	exists, err := store.MarkerExists(ctx, "low_credits:lic_a:2026-08")
	if err != nil {
		t.Fatalf("MarkerExists failed: %v", err)
	}
	if !exists {
		t.Error("Live marker should exist")
	}

	exists, err = store.MarkerExists(ctx, "low_credits:lic_b:2026-07")
	if err != nil {
		t.Fatalf("MarkerExists failed: %v", err)
	}
	if exists {
		t.Error("Expired marker should not exist")
	}

	exists, err = store.MarkerExists(ctx, "low_credits:lic_c:2026-08")
	if err != nil {
		t.Fatalf("MarkerExists failed: %v", err)
	}
	if exists {
		t.Error("Unknown marker should not exist")
	}
}
