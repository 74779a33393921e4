package deduction_test

import (
	"testing"
	"time"

	"github.com/motswedi/deductions/internal/deduction"
	"github.com/motswedi/deductions/internal/domain"
)

func TestLimitChecker_NoteComposition(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)
	e.addMember(t, "m1", "tenant-a", "BT-0001", "100000001", 10000)

	checker := deduction.NewLimitChecker(e.members, e.requests, e.cache)
	member := &domain.Member{
		ID: "m1", TenantID: "tenant-a", NationalID: "100000001", MonthlyNetSalary: 10000,
	}
	tenant := &domain.Tenant{ID: "tenant-a", Name: "Boteti SACCOS", MaxDeductionPercentage: 40}

	over, notes, err := checker.Check(member, tenant, 3000, 7, 2024)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if over {
		t.Error("P3000 of P4000 flagged over limit")
	}
	if want := "Limit: P4000.00 (40% of P10000.00). Total: P3000.00. Within limit."; notes != want {
		t.Errorf("notes = %q, want %q", notes, want)
	}

	over, notes, err = checker.Check(member, tenant, 4500, 7, 2024)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !over {
		t.Error("P4500 of P4000 not flagged")
	}
	if want := "Limit: P4000.00 (40% of P10000.00). Total: P4500.00. EXCEEDED."; notes != want {
		t.Errorf("notes = %q, want %q", notes, want)
	}
}

func TestLimitChecker_ExactlyAtLimit(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)
	e.addMember(t, "m1", "tenant-a", "BT-0001", "100000001", 10000)

	checker := deduction.NewLimitChecker(e.members, e.requests, e.cache)
	member := &domain.Member{
		ID: "m1", TenantID: "tenant-a", NationalID: "100000001", MonthlyNetSalary: 10000,
	}
	tenant := &domain.Tenant{ID: "tenant-a", Name: "Boteti SACCOS", MaxDeductionPercentage: 40}

	// Exactly at the cap is still within limit; only strictly above breaches.
	over, notes, err := checker.Check(member, tenant, 4000, 7, 2024)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if over {
		t.Errorf("exactly-at-limit flagged over: %s", notes)
	}
}

func TestLimitChecker_FractionalPercentage(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 12.5, nil)
	e.addMember(t, "m1", "tenant-a", "BT-0001", "100000001", 10000)

	checker := deduction.NewLimitChecker(e.members, e.requests, e.cache)
	member := &domain.Member{
		ID: "m1", TenantID: "tenant-a", NationalID: "100000001", MonthlyNetSalary: 10000,
	}
	tenant := &domain.Tenant{ID: "tenant-a", Name: "Boteti SACCOS", MaxDeductionPercentage: 12.5}

	_, notes, err := checker.Check(member, tenant, 1000, 7, 2024)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if want := "Limit: P1250.00 (12.5% of P10000.00). Total: P1000.00. Within limit."; notes != want {
		t.Errorf("notes = %q, want %q", notes, want)
	}
}

func TestLimitChecker_ZeroSalary(t *testing.T) {
	e := newTestEnv(t)
	checker := deduction.NewLimitChecker(e.members, e.requests, e.cache)
	member := &domain.Member{ID: "m1", TenantID: "tenant-a", NationalID: "100000001"}
	tenant := &domain.Tenant{ID: "tenant-a", Name: "Boteti SACCOS", MaxDeductionPercentage: 40}

	over, notes, err := checker.Check(member, tenant, 250, 7, 2024)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !over {
		t.Error("deduction against unrecorded salary not flagged")
	}
	if want := "Member net salary is not recorded (P0.00). Any deduction is flagged as over limit."; notes != want {
		t.Errorf("notes = %q, want %q", notes, want)
	}

	// A zero deduction against a zero salary is nothing to flag.
	over, _, err = checker.Check(member, tenant, 0, 7, 2024)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if over {
		t.Error("zero deduction flagged over limit")
	}
}

func TestTenantCache(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)

	cache := deduction.NewTenantCache(e.tenants, time.Hour)

	got, err := cache.Get("tenant-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Name != "Boteti SACCOS" {
		t.Fatalf("got %+v", got)
	}

	// A direct settings change is invisible until invalidation.
	if _, err := e.db.Exec("UPDATE tenants SET max_deduction_percentage = 55 WHERE id = 'tenant-a'"); err != nil {
		t.Fatal(err)
	}
	got, err = cache.Get("tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxDeductionPercentage != 40 {
		t.Errorf("cached percentage = %.1f, want stale 40", got.MaxDeductionPercentage)
	}

	cache.Invalidate("tenant-a")
	got, err = cache.Get("tenant-a")
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxDeductionPercentage != 55 {
		t.Errorf("percentage after invalidate = %.1f, want 55", got.MaxDeductionPercentage)
	}

	// Unknown tenants are not cached and come back nil, not an error.
	got, err = cache.Get("no-such-tenant")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("unknown tenant = %+v", got)
	}
}
