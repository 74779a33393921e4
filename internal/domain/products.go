package domain

import "time"

type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanActive    LoanStatus = "active"
	LoanSettled   LoanStatus = "settled"
	LoanDefaulted LoanStatus = "defaulted"
)

type PolicyStatus string

const (
	PolicyWaiting PolicyStatus = "waiting"
	PolicyActive  PolicyStatus = "active"
	PolicyLapsed  PolicyStatus = "lapsed"
	PolicyMatured PolicyStatus = "matured"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderDelivered OrderStatus = "delivered"
	OrderSettled   OrderStatus = "settled"
)

// SavingsAccount is a member's recurring savings product subscription.
type SavingsAccount struct {
	ID                  string  `json:"id"`
	MemberID            string  `json:"member_id"`
	ProductName         string  `json:"product_name"`
	MonthlyContribution float64 `json:"monthly_contribution"`
	IsActive            bool    `json:"is_active"`
}

// Loan carries the repayment side of a disbursed loan.
type Loan struct {
	ID                 string     `json:"id"`
	MemberID           string     `json:"member_id"`
	LoanNumber         string     `json:"loan_number"`
	PrincipalAmount    float64    `json:"principal_amount"`
	MonthlyInstallment float64    `json:"monthly_installment"`
	Status             LoanStatus `json:"status"`
}

// InsurancePolicy deducts a monthly premium while active. Policies start in
// a waiting period and lapse when premiums stop arriving.
type InsurancePolicy struct {
	ID                string       `json:"id"`
	MemberID          string       `json:"member_id"`
	PolicyNumber      string       `json:"policy_number"`
	MonthlyPremium    float64      `json:"monthly_premium"`
	Status            PolicyStatus `json:"status"`
	WaitingPeriodEnd  *time.Time   `json:"waiting_period_end,omitempty"`
	LastPremiumPaidAt *time.Time   `json:"last_premium_paid_at,omitempty"`
}

// MerchandiseOrder deducts installments once the goods are delivered.
type MerchandiseOrder struct {
	ID                 string      `json:"id"`
	MemberID           string      `json:"member_id"`
	OrderNumber        string      `json:"order_number"`
	MonthlyInstallment float64     `json:"monthly_installment"`
	Status             OrderStatus `json:"status"`
}
