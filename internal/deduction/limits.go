package deduction

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/motswedi/deductions/internal/domain"
	"github.com/motswedi/deductions/internal/repository"
)

// zeroSalaryNote is persisted verbatim when a member has no recorded salary.
const zeroSalaryNote = "Member net salary is not recorded (P0.00). Any deduction is flagged as over limit."

// LimitChecker evaluates the single-lender rule: a person's total payroll
// deductions across every cooperative they belong to must not exceed the
// salary-protection percentage of net salary. Other tenants' contributions
// are read from their most recent batch for the same period regardless of
// lifecycle state; a tenant that has not run its cycle yet contributes zero.
type LimitChecker struct {
	directory MemberDirectory
	requests  *repository.DeductionRepo
	tenants   *TenantCache
}

func NewLimitChecker(directory MemberDirectory, requests *repository.DeductionRepo, tenants *TenantCache) *LimitChecker {
	return &LimitChecker{directory: directory, requests: requests, tenants: tenants}
}

// Check returns the over-limit flag and the audit note for one member's
// deduction in the current tenant. The note is the audit record; its
// composition is part of the contract, not presentation.
func (c *LimitChecker) Check(member *domain.Member, tenant *domain.Tenant, tenantTotal float64, month, year int) (bool, string, error) {
	salary := member.MonthlyNetSalary
	if salary == 0 {
		return tenantTotal > 0, zeroSalaryNote, nil
	}

	maxPct := tenant.MaxDeductionPercentage
	maxDeduction := salary * (maxPct / 100)

	memberships, err := c.directory.MembersByNationalID(member.NationalID)
	if err != nil {
		return false, "", fmt.Errorf("lookup memberships for %s: %w", member.NationalID, err)
	}

	var otherTotal float64
	var otherNotes []string

	for i := range memberships {
		other := &memberships[i]
		if other.TenantID == member.TenantID {
			continue
		}

		req, err := c.requests.LatestForPeriod(other.TenantID, month, year)
		if err != nil {
			return false, "", fmt.Errorf("read period batch in tenant %s: %w", other.TenantID, err)
		}
		if req == nil {
			// That cooperative has not run this period yet; zero contribution.
			continue
		}

		amount, ok, err := c.requests.ItemAmount(req.ID, other.ID)
		if err != nil {
			return false, "", fmt.Errorf("read item in tenant %s: %w", other.TenantID, err)
		}
		if !ok {
			continue
		}

		otherTotal += amount
		if amount > 0 {
			otherNotes = append(otherNotes, fmt.Sprintf("P%.2f at %s", amount, c.tenantName(other.TenantID)))
		}
	}

	grandTotal := tenantTotal + otherTotal
	isOverLimit := grandTotal > maxDeduction

	var b strings.Builder
	fmt.Fprintf(&b, "Limit: P%.2f (%s%% of P%.2f). ", maxDeduction, formatPercent(maxPct), salary)
	if otherTotal > 0 {
		fmt.Fprintf(&b, "Combined Total: P%.2f (%s). ", grandTotal, strings.Join(otherNotes, ", "))
	} else {
		fmt.Fprintf(&b, "Total: P%.2f. ", grandTotal)
	}
	if isOverLimit {
		b.WriteString("EXCEEDED.")
	} else {
		b.WriteString("Within limit.")
	}

	return isOverLimit, b.String(), nil
}

func (c *LimitChecker) tenantName(tenantID string) string {
	t, err := c.tenants.Get(tenantID)
	if err != nil || t == nil {
		return "Other SACCOS"
	}
	return t.Name
}

// formatPercent renders 40 as "40" and 12.5 as "12.5".
func formatPercent(pct float64) string {
	return strconv.FormatFloat(pct, 'f', -1, 64)
}
