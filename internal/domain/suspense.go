package domain

import "time"

type SuspenseStatus string

const (
	SuspensePending    SuspenseStatus = "pending"
	SuspenseAllocated  SuspenseStatus = "allocated"
	SuspenseRefunded   SuspenseStatus = "refunded"
	SuspenseWrittenOff SuspenseStatus = "written_off"
)

// SuspenseEntry parks a remitted amount that could not be tied to a requested
// deduction. The identifying fields hold whatever fragments the remittance
// row carried. DaysInSuspense is derived from CreatedAt on every read, never
// stored.
type SuspenseEntry struct {
	ID                    string         `json:"id"`
	TenantID              string         `json:"tenant_id"`
	ReferenceNumber       string         `json:"reference_number"`
	ReconciliationBatchID string         `json:"reconciliation_batch_id,omitempty"`
	MemberNumber          string         `json:"member_number,omitempty"`
	NationalID            string         `json:"national_id,omitempty"`
	EmployeeNumber        string         `json:"employee_number,omitempty"`
	Amount                float64        `json:"amount"`
	Month                 int            `json:"month"`
	Year                  int            `json:"year"`
	Status                SuspenseStatus `json:"status"`
	Reason                string         `json:"reason,omitempty"`
	AllocatedToMemberID   string         `json:"allocated_to_member_id,omitempty"`
	AllocatedBy           string         `json:"allocated_by,omitempty"`
	AllocatedAt           *time.Time     `json:"allocated_at,omitempty"`
	ResolutionNotes       string         `json:"resolution_notes,omitempty"`
	DaysInSuspense        int            `json:"days_in_suspense"`
	CreatedAt             time.Time      `json:"created_at"`
}
