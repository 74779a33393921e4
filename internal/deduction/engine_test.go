package deduction_test

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/motswedi/deductions/internal/deduction"
	"github.com/motswedi/deductions/internal/domain"
	"github.com/motswedi/deductions/internal/repository"
)

type testEnv struct {
	db       *sql.DB
	tenants  *repository.TenantRepo
	members  *repository.MemberRepo
	products *repository.ProductRepo
	requests *repository.DeductionRepo
	cache    *deduction.TenantCache
	svc      *deduction.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := repository.InitDB(":memory:")
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	// The in-memory database lives on a single connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	e := &testEnv{
		db:       db,
		tenants:  repository.NewTenantRepo(db),
		members:  repository.NewMemberRepo(db),
		products: repository.NewProductRepo(db),
		requests: repository.NewDeductionRepo(db),
	}
	e.cache = deduction.NewTenantCache(e.tenants, time.Minute)
	limits := deduction.NewLimitChecker(e.members, e.requests, e.cache)
	e.svc = deduction.NewService(e.members, e.products, e.cache, e.requests, limits, nil, 4)
	return e
}

func (e *testEnv) addTenant(t *testing.T, id, name string, maxPct float64, regCap *float64) {
	t.Helper()
	err := e.tenants.Insert(&domain.Tenant{
		ID: id, Name: name, MaxDeductionPercentage: maxPct, RegulatorDeductionCap: regCap,
	})
	if err != nil {
		t.Fatalf("insert tenant %s: %v", id, err)
	}
}

func (e *testEnv) addMember(t *testing.T, id, tenantID, memberNumber, nationalID string, salary float64) {
	t.Helper()
	err := e.members.Insert(&domain.Member{
		ID:               id,
		TenantID:         tenantID,
		MemberNumber:     memberNumber,
		NationalID:       nationalID,
		EmployeeNumber:   "EMP-" + memberNumber,
		FullName:         "Member " + memberNumber,
		Status:           domain.MemberActive,
		EmploymentStatus: domain.Employed,
		MonthlyNetSalary: salary,
		CreatedAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("insert member %s: %v", id, err)
	}
}

func (e *testEnv) addSavings(t *testing.T, id, memberID string, amount float64) {
	t.Helper()
	err := e.products.InsertSavings(&domain.SavingsAccount{
		ID: id, MemberID: memberID, ProductName: "Ordinary Savings",
		MonthlyContribution: amount, IsActive: true,
	})
	if err != nil {
		t.Fatalf("insert savings %s: %v", id, err)
	}
}

func (e *testEnv) addLoan(t *testing.T, id, memberID string, installment float64) {
	t.Helper()
	err := e.products.InsertLoan(&domain.Loan{
		ID: id, MemberID: memberID, LoanNumber: "LN-" + id,
		PrincipalAmount: installment * 24, MonthlyInstallment: installment,
		Status: domain.LoanActive,
	})
	if err != nil {
		t.Fatalf("insert loan %s: %v", id, err)
	}
}

func (e *testEnv) addPolicy(t *testing.T, id, memberID string, premium float64) {
	t.Helper()
	paid := time.Now()
	err := e.products.InsertPolicy(&domain.InsurancePolicy{
		ID: id, MemberID: memberID, PolicyNumber: "POL-" + id,
		MonthlyPremium: premium, Status: domain.PolicyActive, LastPremiumPaidAt: &paid,
	})
	if err != nil {
		t.Fatalf("insert policy %s: %v", id, err)
	}
}

// completeBatch walks a draft through its full lifecycle so the next period
// sees it as the delta baseline.
func (e *testEnv) completeBatch(t *testing.T, requestID string) {
	t.Helper()
	if err := e.svc.Submit(requestID, "tester"); err != nil {
		t.Fatalf("submit %s: %v", requestID, err)
	}
	if err := e.requests.UpdateStatus(requestID, domain.RequestCompleted); err != nil {
		t.Fatalf("complete %s: %v", requestID, err)
	}
}

func itemFor(t *testing.T, items []domain.DeductionItem, memberNumber string) *domain.DeductionItem {
	t.Helper()
	for i := range items {
		if items[i].MemberNumber == memberNumber {
			return &items[i]
		}
	}
	t.Fatalf("no item for member %s", memberNumber)
	return nil
}

func TestGenerateBatch_FirstRun(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)

	e.addMember(t, "m1", "tenant-a", "BT-0001", "100000001", 12000)
	e.addSavings(t, "sv1", "m1", 500)
	e.addLoan(t, "ln1", "m1", 800)

	e.addMember(t, "m2", "tenant-a", "BT-0002", "100000002", 9000)
	e.addSavings(t, "sv2", "m2", 300)
	e.addPolicy(t, "pl2", "m2", 120)

	// No products at all: nothing to deduct, nothing to report.
	e.addMember(t, "m3", "tenant-a", "BT-0003", "100000003", 7000)

	req, err := e.svc.GenerateBatch("tenant-a", 7, 2024)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if req.Status != domain.RequestDraft {
		t.Errorf("status = %q, want draft", req.Status)
	}
	if req.TotalMembers != 2 {
		t.Errorf("TotalMembers = %d, want 2", req.TotalMembers)
	}
	if req.BatchNumber != "tenant-a-202407" {
		t.Errorf("BatchNumber = %q", req.BatchNumber)
	}

	items, err := e.requests.ItemsForRequest(req.ID)
	if err != nil {
		t.Fatalf("ItemsForRequest: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	// Ordered by member number.
	if items[0].MemberNumber != "BT-0001" || items[1].MemberNumber != "BT-0002" {
		t.Errorf("item order = %s, %s", items[0].MemberNumber, items[1].MemberNumber)
	}

	it1 := itemFor(t, items, "BT-0001")
	if it1.CurrentAmount != 1300 {
		t.Errorf("BT-0001 amount = %.2f, want 1300", it1.CurrentAmount)
	}
	if it1.Breakdown.Savings != 500 || it1.Breakdown.LoanRepayment != 800 {
		t.Errorf("BT-0001 breakdown = %+v", it1.Breakdown)
	}
	if it1.ChangeReason != domain.ReasonNewEnrollment {
		t.Errorf("BT-0001 reason = %q, want NEW_ENROLLMENT", it1.ChangeReason)
	}
	if it1.PreviousAmount != 0 {
		t.Errorf("BT-0001 previous = %.2f, want 0", it1.PreviousAmount)
	}

	it2 := itemFor(t, items, "BT-0002")
	if it2.CurrentAmount != 420 {
		t.Errorf("BT-0002 amount = %.2f, want 420", it2.CurrentAmount)
	}

	// The request total is exactly the sum of its items.
	var sum float64
	for _, it := range items {
		sum += it.CurrentAmount
	}
	if req.TotalAmount != sum {
		t.Errorf("TotalAmount = %.2f, items sum = %.2f", req.TotalAmount, sum)
	}
}

func TestGenerateBatch_DeltaFeed(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)

	e.addMember(t, "m1", "tenant-a", "BT-0001", "100000001", 15000) // savings bumped
	e.addSavings(t, "sv1", "m1", 500)
	e.addMember(t, "m2", "tenant-a", "BT-0002", "100000002", 15000) // loan settles
	e.addLoan(t, "ln2", "m2", 800)
	e.addMember(t, "m3", "tenant-a", "BT-0003", "100000003", 15000) // unchanged
	e.addSavings(t, "sv3", "m3", 300)
	e.addMember(t, "m5", "tenant-a", "BT-0005", "100000005", 15000) // second loan arrives
	e.addSavings(t, "sv5", "m5", 200)
	e.addLoan(t, "ln5", "m5", 600)
	e.addMember(t, "m6", "tenant-a", "BT-0006", "100000006", 15000) // policy matures
	e.addSavings(t, "sv6", "m6", 300)
	e.addPolicy(t, "pl6", "m6", 100)

	june, err := e.svc.GenerateBatch("tenant-a", 6, 2024)
	if err != nil {
		t.Fatalf("generate June: %v", err)
	}
	e.completeBatch(t, june.ID)

	// July's changes.
	if err := e.products.UpdateSavingsContribution("sv1", 650); err != nil {
		t.Fatal(err)
	}
	if err := e.products.UpdateLoanStatus("ln2", domain.LoanSettled); err != nil {
		t.Fatal(err)
	}
	if err := e.products.UpdatePolicyStatus("pl6", domain.PolicyMatured); err != nil {
		t.Fatal(err)
	}
	e.addLoan(t, "ln5b", "m5", 250)
	e.addMember(t, "m4", "tenant-a", "BT-0004", "100000004", 15000) // brand new
	e.addSavings(t, "sv4", "m4", 400)

	july, err := e.svc.GenerateBatch("tenant-a", 7, 2024)
	if err != nil {
		t.Fatalf("generate July: %v", err)
	}

	items, err := e.requests.ItemsForRequest(july.ID)
	if err != nil {
		t.Fatalf("ItemsForRequest: %v", err)
	}

	// BT-0003 is unchanged and must not appear in a delta feed.
	for _, it := range items {
		if it.MemberNumber == "BT-0003" {
			t.Errorf("unchanged member reported: %+v", it)
		}
	}
	if len(items) != 5 {
		t.Fatalf("got %d items, want 5", len(items))
	}

	adjusted := itemFor(t, items, "BT-0001")
	if adjusted.CurrentAmount != 650 || adjusted.PreviousAmount != 500 {
		t.Errorf("BT-0001 = %.2f (prev %.2f), want 650 (prev 500)", adjusted.CurrentAmount, adjusted.PreviousAmount)
	}
	if adjusted.ChangeReason != domain.ReasonManualAdjustment {
		t.Errorf("BT-0001 reason = %q, want MANUAL_ADJUSTMENT", adjusted.ChangeReason)
	}

	// Drop to zero is reported, not silently omitted: the authority has to be
	// told to stop deducting.
	settled := itemFor(t, items, "BT-0002")
	if settled.CurrentAmount != 0 || settled.PreviousAmount != 800 {
		t.Errorf("BT-0002 = %.2f (prev %.2f), want 0 (prev 800)", settled.CurrentAmount, settled.PreviousAmount)
	}
	if settled.ChangeReason != domain.ReasonPolicyMaturity {
		t.Errorf("BT-0002 reason = %q, want POLICY_MATURITY", settled.ChangeReason)
	}

	newMember := itemFor(t, items, "BT-0004")
	if newMember.ChangeReason != domain.ReasonNewEnrollment {
		t.Errorf("BT-0004 reason = %q, want NEW_ENROLLMENT", newMember.ChangeReason)
	}

	secondLoan := itemFor(t, items, "BT-0005")
	if secondLoan.CurrentAmount != 1050 || secondLoan.ChangeReason != domain.ReasonAmountChange {
		t.Errorf("BT-0005 = %.2f reason %q, want 1050 AMOUNT_CHANGE", secondLoan.CurrentAmount, secondLoan.ChangeReason)
	}

	matured := itemFor(t, items, "BT-0006")
	if matured.CurrentAmount != 300 || matured.ChangeReason != domain.ReasonPolicyMaturity {
		t.Errorf("BT-0006 = %.2f reason %q, want 300 POLICY_MATURITY", matured.CurrentAmount, matured.ChangeReason)
	}
}

func TestGenerateBatch_YearWrap(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)

	e.addMember(t, "m1", "tenant-a", "BT-0001", "100000001", 15000) // bumped in January
	e.addSavings(t, "sv1", "m1", 500)
	e.addMember(t, "m2", "tenant-a", "BT-0002", "100000002", 15000) // unchanged
	e.addSavings(t, "sv2", "m2", 300)

	december, err := e.svc.GenerateBatch("tenant-a", 12, 2024)
	if err != nil {
		t.Fatalf("generate December: %v", err)
	}
	e.completeBatch(t, december.ID)

	if err := e.products.UpdateSavingsContribution("sv1", 650); err != nil {
		t.Fatal(err)
	}

	// January's baseline is December of the previous year.
	january, err := e.svc.GenerateBatch("tenant-a", 1, 2025)
	if err != nil {
		t.Fatalf("generate January: %v", err)
	}

	items, err := e.requests.ItemsForRequest(january.ID)
	if err != nil {
		t.Fatalf("ItemsForRequest: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}

	adjusted := itemFor(t, items, "BT-0001")
	if adjusted.PreviousAmount != 500 || adjusted.CurrentAmount != 650 {
		t.Errorf("BT-0001 = %.2f (prev %.2f), want 650 (prev 500)", adjusted.CurrentAmount, adjusted.PreviousAmount)
	}
	if adjusted.ChangeReason != domain.ReasonManualAdjustment {
		t.Errorf("BT-0001 reason = %q, want MANUAL_ADJUSTMENT", adjusted.ChangeReason)
	}
	// Were the baseline lost across the boundary, BT-0002 would reappear as a
	// new enrollment.
	for _, it := range items {
		if it.MemberNumber == "BT-0002" {
			t.Errorf("unchanged member reported across year boundary: %+v", it)
		}
	}
}

func TestGenerateBatch_DuplicatePeriod(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)
	e.addMember(t, "m1", "tenant-a", "BT-0001", "100000001", 8000)
	e.addSavings(t, "sv1", "m1", 400)

	if _, err := e.svc.GenerateBatch("tenant-a", 7, 2024); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	_, err := e.svc.GenerateBatch("tenant-a", 7, 2024)
	if !errors.Is(err, domain.ErrDuplicatePeriod) {
		t.Fatalf("second generate: got %v, want ErrDuplicatePeriod", err)
	}
}

func TestGenerateBatch_RegulatorCap(t *testing.T) {
	e := newTestEnv(t)
	regCap := 1000.0
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, &regCap)
	e.addMember(t, "m1", "tenant-a", "BT-0001", "100000001", 50000)
	e.addSavings(t, "sv1", "m1", 3000)

	_, err := e.svc.GenerateBatch("tenant-a", 7, 2024)
	if !errors.Is(err, domain.ErrRegulatorCapExceeded) {
		t.Fatalf("got %v, want ErrRegulatorCapExceeded", err)
	}

	// Nothing may be persisted from the aborted run.
	req, err := e.requests.LatestForPeriod("tenant-a", 7, 2024)
	if err != nil {
		t.Fatalf("LatestForPeriod: %v", err)
	}
	if req != nil {
		t.Errorf("aborted batch was persisted: %+v", req)
	}
}

func TestGenerateBatch_ZeroSalaryFlagged(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)
	e.addMember(t, "m1", "tenant-a", "BT-0001", "100000001", 0)
	e.addSavings(t, "sv1", "m1", 300)

	req, err := e.svc.GenerateBatch("tenant-a", 7, 2024)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	items, err := e.requests.ItemsForRequest(req.ID)
	if err != nil {
		t.Fatal(err)
	}
	it := itemFor(t, items, "BT-0001")
	if !it.IsOverLimit {
		t.Error("zero-salary member not flagged over limit")
	}
	want := "Member net salary is not recorded (P0.00). Any deduction is flagged as over limit."
	if it.LimitNotes != want {
		t.Errorf("limit notes = %q, want %q", it.LimitNotes, want)
	}
}

func TestGenerateBatch_CrossTenantLimit(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)
	e.addTenant(t, "tenant-b", "Public Service SACCOS", 50, nil)

	// Same person, salary P10,000, holding membership in both cooperatives.
	e.addMember(t, "mA", "tenant-a", "BT-0001", "111111111", 10000)
	e.addSavings(t, "svA", "mA", 3000)
	e.addMember(t, "mB", "tenant-b", "PS-0001", "111111111", 10000)
	e.addSavings(t, "svB", "mB", 2000)

	// Tenant B runs first: nothing on the other side yet, so P2,000 against a
	// P5,000 limit is fine.
	reqB, err := e.svc.GenerateBatch("tenant-b", 7, 2024)
	if err != nil {
		t.Fatalf("generate tenant-b: %v", err)
	}
	itemsB, err := e.requests.ItemsForRequest(reqB.ID)
	if err != nil {
		t.Fatal(err)
	}
	itB := itemFor(t, itemsB, "PS-0001")
	if itB.IsOverLimit {
		t.Errorf("tenant-b item flagged over limit: %s", itB.LimitNotes)
	}
	if itB.LimitNotes != "Limit: P5000.00 (50% of P10000.00). Total: P2000.00. Within limit." {
		t.Errorf("tenant-b notes = %q", itB.LimitNotes)
	}

	// Tenant A runs second and sees tenant B's P2,000: combined P5,000 against
	// a P4,000 limit.
	reqA, err := e.svc.GenerateBatch("tenant-a", 7, 2024)
	if err != nil {
		t.Fatalf("generate tenant-a: %v", err)
	}
	itemsA, err := e.requests.ItemsForRequest(reqA.ID)
	if err != nil {
		t.Fatal(err)
	}
	itA := itemFor(t, itemsA, "BT-0001")
	if !itA.IsOverLimit {
		t.Errorf("tenant-a item not flagged over limit: %s", itA.LimitNotes)
	}
	want := "Limit: P4000.00 (40% of P10000.00). Combined Total: P5000.00 (P2000.00 at Public Service SACCOS). EXCEEDED."
	if itA.LimitNotes != want {
		t.Errorf("tenant-a notes = %q, want %q", itA.LimitNotes, want)
	}

	// The flag annotates; it never blocks the batch.
	if reqA.TotalAmount != 3000 {
		t.Errorf("tenant-a total = %.2f, want 3000", reqA.TotalAmount)
	}
}

func TestGenerateBatch_Validation(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)

	if _, err := e.svc.GenerateBatch("tenant-a", 13, 2024); err == nil {
		t.Error("month 13 accepted")
	}
	if _, err := e.svc.GenerateBatch("tenant-a", 0, 2024); err == nil {
		t.Error("month 0 accepted")
	}
	_, err := e.svc.GenerateBatch("no-such-tenant", 7, 2024)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown tenant: got %v, want ErrNotFound", err)
	}
}

func TestSubmit_OneWay(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)
	e.addMember(t, "m1", "tenant-a", "BT-0001", "100000001", 8000)
	e.addSavings(t, "sv1", "m1", 400)

	req, err := e.svc.GenerateBatch("tenant-a", 7, 2024)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}

	if err := e.svc.Submit(req.ID, "finance.officer"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got, err := e.requests.GetByID(req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RequestSubmitted || got.SubmittedBy != "finance.officer" || got.SubmittedAt == nil {
		t.Errorf("submitted request = %+v", got)
	}

	if err := e.svc.Submit(req.ID, "finance.officer"); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("resubmission: got %v, want ErrInvalidState", err)
	}
	if err := e.svc.Submit("no-such-request", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown request: got %v, want ErrNotFound", err)
	}
}

func TestExportFile(t *testing.T) {
	e := newTestEnv(t)
	e.addTenant(t, "tenant-a", "Boteti SACCOS", 40, nil)
	e.addMember(t, "m1", "tenant-a", "BT-0001", "100000001", 8000)
	e.addSavings(t, "sv1", "m1", 400)

	req, err := e.svc.GenerateBatch("tenant-a", 7, 2024)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}

	data, name, err := e.svc.ExportFile(req.ID)
	if err != nil {
		t.Fatalf("ExportFile: %v", err)
	}
	if wantName := "deductions/tenant-a/2024/07/" + req.ID + ".csv"; name != wantName {
		t.Errorf("name = %q, want %q", name, wantName)
	}
	if !strings.HasPrefix(string(data), "Employee Number,National ID,Member Number,") {
		t.Errorf("file does not start with header: %q", string(data)[:40])
	}
	if !strings.Contains(string(data), "400.00,2024-07") {
		t.Errorf("file missing item row: %s", data)
	}

	got, err := e.requests.GetByID(req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FileRef != name {
		t.Errorf("FileRef = %q, want %q", got.FileRef, name)
	}

	if _, _, err := e.svc.ExportFile("no-such-request"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown request: got %v, want ErrNotFound", err)
	}
}
