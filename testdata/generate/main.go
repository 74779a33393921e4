// Command generate produces deterministic seed data for local development:
// testdata/seed.json (tenants, members, products) and a sample
// actual-remittance file with deliberate variances, orphans and one
// malformed row, for exercising reconciliation end to end.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/motswedi/deductions/internal/domain"
)

const outDir = "testdata"

func main() {
	rng := rand.New(rand.NewSource(42))

	tenants := []domain.Tenant{
		{ID: "tn-boteti-001", Name: "Boteti Teachers SACCOS", MaxDeductionPercentage: 40},
		{ID: "tn-ngami-002", Name: "Ngami Public Service SACCOS", MaxDeductionPercentage: 50},
	}
	// Give the first tenant a regulator cap well above normal totals.
	regCap := 2_000_000.0
	tenants[0].RegulatorDeductionCap = &regCap

	var seed seedFile
	seed.Tenants = tenants

	createdAt := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	for m := 0; m < 60; m++ {
		nationalID := fmt.Sprintf("%09d", 100000000+m)
		member := domain.Member{
			ID:               fmt.Sprintf("mb-boteti-%03d", m),
			TenantID:         tenants[0].ID,
			MemberNumber:     fmt.Sprintf("BT-%04d", m+1),
			NationalID:       nationalID,
			EmployeeNumber:   fmt.Sprintf("EMP-%05d", 10000+m),
			FullName:         fmt.Sprintf("Member %03d", m+1),
			Status:           domain.MemberActive,
			EmploymentStatus: domain.Employed,
			MonthlyNetSalary: 6000 + float64(rng.Intn(9000)),
			CreatedAt:        createdAt,
		}
		seed.Members = append(seed.Members, member)
		addProducts(&seed, rng, member.ID, fmt.Sprintf("%03d", m))

		// Every fifth person also belongs to the second cooperative.
		if m%5 == 0 {
			dual := member
			dual.ID = fmt.Sprintf("mb-ngami-%03d", m)
			dual.TenantID = tenants[1].ID
			dual.MemberNumber = fmt.Sprintf("NG-%04d", m+1)
			seed.Members = append(seed.Members, dual)
			addProducts(&seed, rng, dual.ID, fmt.Sprintf("d%03d", m))
		}
	}

	// One member with no recorded salary, to exercise the zero-salary flag.
	seed.Members = append(seed.Members, domain.Member{
		ID:               "mb-boteti-nosalary",
		TenantID:         tenants[0].ID,
		MemberNumber:     "BT-9999",
		NationalID:       "999999999",
		EmployeeNumber:   "EMP-99999",
		FullName:         "No Salary Recorded",
		Status:           domain.MemberActive,
		EmploymentStatus: domain.Employed,
		MonthlyNetSalary: 0,
		CreatedAt:        createdAt,
	})
	seed.Savings = append(seed.Savings, domain.SavingsAccount{
		ID: "sv-nosalary", MemberID: "mb-boteti-nosalary",
		ProductName: "Ordinary Savings", MonthlyContribution: 300, IsActive: true,
	})

	writeJSON(outDir+"/seed.json", seed)
	writeRemittance(outDir+"/sample_remittance.csv", &seed)
}

func addProducts(seed *seedFile, rng *rand.Rand, memberID, suffix string) {
	seed.Savings = append(seed.Savings, domain.SavingsAccount{
		ID:                  "sv-" + suffix,
		MemberID:            memberID,
		ProductName:         "Ordinary Savings",
		MonthlyContribution: 200 + float64(rng.Intn(6))*50,
		IsActive:            true,
	})
	if rng.Intn(2) == 0 {
		seed.Loans = append(seed.Loans, domain.Loan{
			ID:                 "ln-" + suffix,
			MemberID:           memberID,
			LoanNumber:         "LN-" + suffix,
			PrincipalAmount:    10000 + float64(rng.Intn(40))*1000,
			MonthlyInstallment: 400 + float64(rng.Intn(12))*50,
			Status:             domain.LoanActive,
		})
	}
	if rng.Intn(3) == 0 {
		paid := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		seed.Policies = append(seed.Policies, domain.InsurancePolicy{
			ID:                "pl-" + suffix,
			MemberID:          memberID,
			PolicyNumber:      "POL-" + suffix,
			MonthlyPremium:    80 + float64(rng.Intn(5))*20,
			Status:            domain.PolicyActive,
			LastPremiumPaidAt: &paid,
		})
	}
	if rng.Intn(4) == 0 {
		seed.Orders = append(seed.Orders, domain.MerchandiseOrder{
			ID:                 "mo-" + suffix,
			MemberID:           memberID,
			OrderNumber:        "ORD-" + suffix,
			MonthlyInstallment: 150 + float64(rng.Intn(8))*25,
			Status:             domain.OrderDelivered,
		})
	}
}

// writeRemittance fabricates what the authority might return for the first
// tenant's members: most rows exact, a few short-paid, one orphan, and one
// malformed amount.
func writeRemittance(path string, seed *seedFile) {
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	fmt.Fprintln(f, "Employee Number,National ID,Member Number,Full Name,Deducted Amount,Effective Month,Status,Reason")

	n := 0
	for _, m := range seed.Members {
		if m.TenantID != seed.Tenants[0].ID {
			continue
		}
		amount := 550.0 + float64(n)*10
		status, reason := "success", ""
		if n%11 == 3 {
			amount -= 120
			status, reason = "failed", "insufficient net pay"
		}
		fmt.Fprintf(f, "%s,%s,%s,%s,%.2f,2024-07,%s,%s\n",
			m.EmployeeNumber, m.NationalID, m.MemberNumber, m.FullName, amount, status, reason)
		n++
	}

	// Orphan: remitted for someone never requested.
	fmt.Fprintln(f, "EMP-55555,555555555,XX-0001,Unknown Person,310.00,2024-07,success,")
	// Malformed amount, should surface as a row warning.
	fmt.Fprintln(f, "EMP-10001,100000001,BT-0002,Member 002,not-a-number,2024-07,success,")

	log.Printf("Wrote %s (%d rows + orphan + malformed)", path, n)
}

type seedFile struct {
	Tenants  []domain.Tenant           `json:"tenants"`
	Members  []domain.Member           `json:"members"`
	Savings  []domain.SavingsAccount   `json:"savings"`
	Loans    []domain.Loan             `json:"loans"`
	Policies []domain.InsurancePolicy  `json:"policies"`
	Orders   []domain.MerchandiseOrder `json:"orders"`
}

func writeJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Fatalf("write %s: %v", path, err)
	}
	log.Printf("Wrote %s", path)
}
