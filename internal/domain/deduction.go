package domain

import "time"

type RequestStatus string

const (
	RequestDraft      RequestStatus = "draft"
	RequestSubmitted  RequestStatus = "submitted"
	RequestProcessing RequestStatus = "processing"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
)

// Open reports whether the request still blocks generation of another batch
// for the same period. Draft, submitted and processing requests do; only
// completed and failed ones are terminal.
func (s RequestStatus) Open() bool {
	return s == RequestDraft || s == RequestSubmitted || s == RequestProcessing
}

type ChangeReason string

const (
	ReasonNewEnrollment    ChangeReason = "NEW_ENROLLMENT"
	ReasonStatusChange     ChangeReason = "STATUS_CHANGE"
	ReasonPolicyMaturity   ChangeReason = "POLICY_MATURITY"
	ReasonManualAdjustment ChangeReason = "MANUAL_ADJUSTMENT"
	ReasonAmountChange     ChangeReason = "AMOUNT_CHANGE"
)

// DeductionRequest is one monthly delta batch for a tenant. At most one open
// request may exist per (tenant, month, year); once submitted it is immutable.
type DeductionRequest struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenant_id"`
	BatchNumber  string        `json:"batch_number"`
	Month        int           `json:"month"`
	Year         int           `json:"year"`
	TotalMembers int           `json:"total_members"`
	TotalAmount  float64       `json:"total_amount"`
	Status       RequestStatus `json:"status"`
	FileRef      string        `json:"file_ref,omitempty"`
	SubmittedBy  string        `json:"submitted_by,omitempty"`
	SubmittedAt  *time.Time    `json:"submitted_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Breakdown splits a member's total deduction by product category.
type Breakdown struct {
	Savings       float64 `json:"savings"`
	LoanRepayment float64 `json:"loan_repayment"`
	Insurance     float64 `json:"insurance"`
	Merchandise   float64 `json:"merchandise"`
}

// Total returns the sum over all product categories.
func (b Breakdown) Total() float64 {
	return b.Savings + b.LoanRepayment + b.Insurance + b.Merchandise
}

// DeductionItem is one member's line in a batch. Identifiers are denormalized
// because the payroll authority has no access to member records.
type DeductionItem struct {
	ID             string       `json:"id"`
	RequestID      string       `json:"request_id"`
	MemberID       string       `json:"member_id"`
	MemberNumber   string       `json:"member_number"`
	NationalID     string       `json:"national_id"`
	EmployeeNumber string       `json:"employee_number"`
	FullName       string       `json:"full_name"`
	CurrentAmount  float64      `json:"current_amount"`
	PreviousAmount float64      `json:"previous_amount"`
	ChangeReason   ChangeReason `json:"change_reason"`
	Breakdown      Breakdown    `json:"breakdown"`
	IsOverLimit    bool         `json:"is_over_limit"`
	LimitNotes     string       `json:"limit_notes,omitempty"`
}
