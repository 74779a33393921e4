package domain

// Tenant is a savings-and-credit cooperative society.
//
// MaxDeductionPercentage is the salary-protection cap applied per member;
// RegulatorDeductionCap, when set, is an absolute ceiling on a whole batch.
type Tenant struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	MaxDeductionPercentage float64  `json:"max_deduction_percentage"`
	RegulatorDeductionCap  *float64 `json:"regulator_deduction_cap,omitempty"`
}
