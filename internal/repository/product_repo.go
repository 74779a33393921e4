package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/motswedi/deductions/internal/domain"
)

// ProductRepo answers "what does this member owe this period" for each of the
// four product ledgers. A member with no products yields zero, never an error.
type ProductRepo struct {
	db *sql.DB
}

func NewProductRepo(db *sql.DB) *ProductRepo {
	return &ProductRepo{db: db}
}

func (r *ProductRepo) ActiveSavingsContribution(memberID string) (float64, error) {
	return r.sumAmount(
		"SELECT COALESCE(SUM(monthly_contribution),0) FROM member_savings WHERE member_id = ? AND is_active = 1",
		memberID,
	)
}

func (r *ProductRepo) ActiveLoanInstallment(memberID string) (float64, error) {
	return r.sumAmount(
		"SELECT COALESCE(SUM(monthly_installment),0) FROM loans WHERE member_id = ? AND status = 'active'",
		memberID,
	)
}

func (r *ProductRepo) ActiveInsurancePremium(memberID string) (float64, error) {
	return r.sumAmount(
		"SELECT COALESCE(SUM(monthly_premium),0) FROM insurance_policies WHERE member_id = ? AND status = 'active'",
		memberID,
	)
}

func (r *ProductRepo) DeliveredMerchandiseInstallment(memberID string) (float64, error) {
	return r.sumAmount(
		"SELECT COALESCE(SUM(monthly_installment),0) FROM merchandise_orders WHERE member_id = ? AND status = 'delivered'",
		memberID,
	)
}

func (r *ProductRepo) sumAmount(query, memberID string) (float64, error) {
	var total float64
	if err := r.db.QueryRow(query, memberID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// --- write side, used by seeding and tests ---

func (r *ProductRepo) InsertSavings(s *domain.SavingsAccount) error {
	active := 0
	if s.IsActive {
		active = 1
	}
	_, err := r.db.Exec(
		`INSERT INTO member_savings (id, member_id, product_name, monthly_contribution, is_active)
		VALUES (?,?,?,?,?)`,
		s.ID, s.MemberID, s.ProductName, s.MonthlyContribution, active,
	)
	return err
}

func (r *ProductRepo) InsertLoan(l *domain.Loan) error {
	_, err := r.db.Exec(
		`INSERT INTO loans (id, member_id, loan_number, principal_amount, monthly_installment, status)
		VALUES (?,?,?,?,?,?)`,
		l.ID, l.MemberID, l.LoanNumber, l.PrincipalAmount, l.MonthlyInstallment, string(l.Status),
	)
	return err
}

func (r *ProductRepo) InsertPolicy(p *domain.InsurancePolicy) error {
	var waitingEnd, lastPaid any
	if p.WaitingPeriodEnd != nil {
		waitingEnd = p.WaitingPeriodEnd.Format(time.RFC3339)
	}
	if p.LastPremiumPaidAt != nil {
		lastPaid = p.LastPremiumPaidAt.Format(time.RFC3339)
	}
	_, err := r.db.Exec(
		`INSERT INTO insurance_policies
		(id, member_id, policy_number, monthly_premium, status, waiting_period_end, last_premium_paid_at)
		VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.MemberID, p.PolicyNumber, p.MonthlyPremium, string(p.Status), waitingEnd, lastPaid,
	)
	return err
}

func (r *ProductRepo) InsertOrder(o *domain.MerchandiseOrder) error {
	_, err := r.db.Exec(
		`INSERT INTO merchandise_orders (id, member_id, order_number, monthly_installment, status)
		VALUES (?,?,?,?,?)`,
		o.ID, o.MemberID, o.OrderNumber, o.MonthlyInstallment, string(o.Status),
	)
	return err
}

func (r *ProductRepo) UpdateLoanStatus(id string, status domain.LoanStatus) error {
	res, err := r.db.Exec("UPDATE loans SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return err
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return fmt.Errorf("loan %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *ProductRepo) UpdateSavingsContribution(id string, amount float64) error {
	res, err := r.db.Exec("UPDATE member_savings SET monthly_contribution = ? WHERE id = ?", amount, id)
	if err != nil {
		return err
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return fmt.Errorf("savings %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *ProductRepo) UpdatePolicyStatus(id string, status domain.PolicyStatus) error {
	res, err := r.db.Exec("UPDATE insurance_policies SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return err
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return fmt.Errorf("policy %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ActivateWaitingPolicies flips waiting policies whose waiting period has
// elapsed to active. Returns the number of policies touched.
func (r *ProductRepo) ActivateWaitingPolicies(now time.Time) (int, error) {
	res, err := r.db.Exec(
		`UPDATE insurance_policies SET status = 'active'
		WHERE status = 'waiting' AND waiting_period_end IS NOT NULL AND waiting_period_end <= ?`,
		now.Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	ra, _ := res.RowsAffected()
	return int(ra), nil
}

// LapsePoliciesUnpaidSince flips active policies whose last premium payment
// is older than the cutoff (or missing) to lapsed.
func (r *ProductRepo) LapsePoliciesUnpaidSince(cutoff time.Time) (int, error) {
	res, err := r.db.Exec(
		`UPDATE insurance_policies SET status = 'lapsed'
		WHERE status = 'active' AND (last_premium_paid_at IS NULL OR last_premium_paid_at < ?)`,
		cutoff.Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	ra, _ := res.RowsAffected()
	return int(ra), nil
}

func (r *ProductRepo) PolicyByID(id string) (*domain.InsurancePolicy, error) {
	var p domain.InsurancePolicy
	var status string
	var waitingEnd, lastPaid sql.NullString
	err := r.db.QueryRow(
		`SELECT id, member_id, policy_number, monthly_premium, status,
			waiting_period_end, last_premium_paid_at
		FROM insurance_policies WHERE id = ?`, id,
	).Scan(&p.ID, &p.MemberID, &p.PolicyNumber, &p.MonthlyPremium, &status, &waitingEnd, &lastPaid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Status = domain.PolicyStatus(status)
	if waitingEnd.Valid {
		t, _ := time.Parse(time.RFC3339, waitingEnd.String)
		p.WaitingPeriodEnd = &t
	}
	if lastPaid.Valid {
		t, _ := time.Parse(time.RFC3339, lastPaid.String)
		p.LastPremiumPaidAt = &t
	}
	return &p, nil
}
