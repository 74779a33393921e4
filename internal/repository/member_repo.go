package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/motswedi/deductions/internal/domain"
)

type MemberRepo struct {
	db *sql.DB
}

func NewMemberRepo(db *sql.DB) *MemberRepo {
	return &MemberRepo{db: db}
}

const memberCols = `id, tenant_id, member_number, national_id, employee_number,
	full_name, status, employment_status, monthly_net_salary, created_at`

func (r *MemberRepo) Insert(m *domain.Member) error {
	_, err := r.db.Exec(
		`INSERT INTO members
		(id, tenant_id, member_number, national_id, employee_number,
		 full_name, status, employment_status, monthly_net_salary, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.TenantID, m.MemberNumber, m.NationalID, m.EmployeeNumber,
		m.FullName, string(m.Status), string(m.EmploymentStatus),
		m.MonthlyNetSalary, m.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (r *MemberRepo) BulkInsert(members []domain.Member) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO members
		(id, tenant_id, member_number, national_id, employee_number,
		 full_name, status, employment_status, monthly_net_salary, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range members {
		m := &members[i]
		res, err := stmt.Exec(
			m.ID, m.TenantID, m.MemberNumber, m.NationalID, m.EmployeeNumber,
			m.FullName, string(m.Status), string(m.EmploymentStatus),
			m.MonthlyNetSalary, m.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *MemberRepo) GetByID(id string) (*domain.Member, error) {
	row := r.db.QueryRow("SELECT "+memberCols+" FROM members WHERE id = ?", id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// ActiveEmployedMembers returns the members a monthly batch considers:
// active status and salaried employment within the tenant.
func (r *MemberRepo) ActiveEmployedMembers(tenantID string) ([]domain.Member, error) {
	rows, err := r.db.Query(
		"SELECT "+memberCols+` FROM members
		WHERE tenant_id = ? AND status = 'active' AND employment_status = 'employed'
		ORDER BY member_number`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembers(rows)
}

// MembersByNationalID resolves every membership held by the same person
// across all tenants. Used by the cross-tenant salary-protection check.
func (r *MemberRepo) MembersByNationalID(nationalID string) ([]domain.Member, error) {
	rows, err := r.db.Query(
		"SELECT "+memberCols+" FROM members WHERE national_id = ? ORDER BY tenant_id",
		nationalID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembers(rows)
}

// FindByIdentifiers locates a tenant member by national ID or, failing that,
// employee number. Used when attaching orphan remittance rows.
func (r *MemberRepo) FindByIdentifiers(tenantID, nationalID, employeeNumber string) (*domain.Member, error) {
	if nationalID != "" {
		row := r.db.QueryRow(
			"SELECT "+memberCols+" FROM members WHERE tenant_id = ? AND national_id = ?",
			tenantID, nationalID,
		)
		m, err := scanMember(row)
		if err == nil {
			return m, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}
	if employeeNumber != "" {
		row := r.db.QueryRow(
			"SELECT "+memberCols+" FROM members WHERE tenant_id = ? AND employee_number = ?",
			tenantID, employeeNumber,
		)
		m, err := scanMember(row)
		if err == nil {
			return m, nil
		}
		if err != sql.ErrNoRows {
			return nil, err
		}
	}
	return nil, nil
}

func (r *MemberRepo) Count() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM members").Scan(&n)
	return n, err
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemberInto(s rowScanner) (*domain.Member, error) {
	var m domain.Member
	var status, employment, createdAt string
	err := s.Scan(
		&m.ID, &m.TenantID, &m.MemberNumber, &m.NationalID, &m.EmployeeNumber,
		&m.FullName, &status, &employment, &m.MonthlyNetSalary, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = domain.MemberStatus(status)
	m.EmploymentStatus = domain.EmploymentStatus(employment)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

func scanMember(row *sql.Row) (*domain.Member, error) {
	return scanMemberInto(row)
}

func scanMembers(rows *sql.Rows) ([]domain.Member, error) {
	var members []domain.Member
	for rows.Next() {
		m, err := scanMemberInto(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}
