package domain

import "time"

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberInactive  MemberStatus = "inactive"
	MemberSuspended MemberStatus = "suspended"
)

type EmploymentStatus string

const (
	Employed     EmploymentStatus = "employed"
	SelfEmployed EmploymentStatus = "self_employed"
	Unemployed   EmploymentStatus = "unemployed"
	Retired      EmploymentStatus = "retired"
)

// Member is a cooperative member within one tenant. NationalID is unique per
// tenant but the same person may hold memberships in several tenants; the
// cross-tenant deduction cap correlates on it.
type Member struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"tenant_id"`
	MemberNumber     string           `json:"member_number"`
	NationalID       string           `json:"national_id"`
	EmployeeNumber   string           `json:"employee_number"`
	FullName         string           `json:"full_name"`
	Status           MemberStatus     `json:"status"`
	EmploymentStatus EmploymentStatus `json:"employment_status"`
	MonthlyNetSalary float64          `json:"monthly_net_salary"`
	CreatedAt        time.Time        `json:"created_at"`
}
