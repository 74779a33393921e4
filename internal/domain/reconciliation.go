package domain

import "time"

type ReconciliationStatus string

const (
	ReconciliationInProgress ReconciliationStatus = "in_progress"
	ReconciliationCompleted  ReconciliationStatus = "completed"
)

type MatchStatus string

const (
	Matched      MatchStatus = "matched"
	Variance     MatchStatus = "variance"
	MissingInMoF MatchStatus = "missing_in_mof"
	OrphanInMoF  MatchStatus = "orphan_in_mof"
)

type VarianceReason string

const (
	ReasonInsufficientFunds VarianceReason = "insufficient_funds"
	ReasonMemberTerminated  VarianceReason = "member_terminated"
	ReasonNetPayTooLow      VarianceReason = "net_pay_too_low"
	ReasonAmountMismatch    VarianceReason = "amount_mismatch"
	ReasonOther             VarianceReason = "other"
)

// ReconciliationBatch summarises one remittance file matched against a
// submitted deduction request. JournalsPosted may flip to true exactly once;
// the batch is immutable from that point.
type ReconciliationBatch struct {
	ID                 string               `json:"id"`
	TenantID           string               `json:"tenant_id"`
	BatchNumber        string               `json:"batch_number"`
	Month              int                  `json:"month"`
	Year               int                  `json:"year"`
	DeductionRequestID string               `json:"deduction_request_id,omitempty"`
	TotalRecords       int                  `json:"total_records"`
	MatchedRecords     int                  `json:"matched_records"`
	UnmatchedRecords   int                  `json:"unmatched_records"`
	VarianceRecords    int                  `json:"variance_records"`
	TotalExpected      float64              `json:"total_expected"`
	TotalActual        float64              `json:"total_actual"`
	TotalVariance      float64              `json:"total_variance"`
	Status             ReconciliationStatus `json:"status"`
	JournalsPosted     bool                 `json:"journals_posted"`
	ProcessedBy        string               `json:"processed_by,omitempty"`
	ProcessedAt        *time.Time           `json:"processed_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
}

// ReconciliationItem is one member's requested-versus-remitted comparison.
// Variance is actual minus expected.
type ReconciliationItem struct {
	ID                   string         `json:"id"`
	BatchID              string         `json:"batch_id"`
	MemberID             string         `json:"member_id,omitempty"`
	MemberNumber         string         `json:"member_number,omitempty"`
	NationalID           string         `json:"national_id,omitempty"`
	EmployeeNumber       string         `json:"employee_number,omitempty"`
	ExpectedAmount       float64        `json:"expected_amount"`
	ActualAmount         float64        `json:"actual_amount"`
	Variance             float64        `json:"variance"`
	MatchStatus          MatchStatus    `json:"match_status"`
	VarianceReason       VarianceReason `json:"variance_reason,omitempty"`
	RequiresManualReview bool           `json:"requires_manual_review"`
}
