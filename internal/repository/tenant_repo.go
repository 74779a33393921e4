package repository

import (
	"database/sql"

	"github.com/motswedi/deductions/internal/domain"
)

type TenantRepo struct {
	db *sql.DB
}

func NewTenantRepo(db *sql.DB) *TenantRepo {
	return &TenantRepo{db: db}
}

func (r *TenantRepo) Insert(t *domain.Tenant) error {
	var regCap any
	if t.RegulatorDeductionCap != nil {
		regCap = *t.RegulatorDeductionCap
	}
	_, err := r.db.Exec(
		`INSERT INTO tenants (id, name, max_deduction_percentage, regulator_deduction_cap)
		VALUES (?,?,?,?)`,
		t.ID, t.Name, t.MaxDeductionPercentage, regCap,
	)
	return err
}

func (r *TenantRepo) GetByID(id string) (*domain.Tenant, error) {
	var t domain.Tenant
	var regCap sql.NullFloat64
	err := r.db.QueryRow(
		"SELECT id, name, max_deduction_percentage, regulator_deduction_cap FROM tenants WHERE id = ?",
		id,
	).Scan(&t.ID, &t.Name, &t.MaxDeductionPercentage, &regCap)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if regCap.Valid {
		v := regCap.Float64
		t.RegulatorDeductionCap = &v
	}
	return &t, nil
}

func (r *TenantRepo) List() ([]domain.Tenant, error) {
	rows, err := r.db.Query(
		"SELECT id, name, max_deduction_percentage, regulator_deduction_cap FROM tenants ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		var regCap sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.Name, &t.MaxDeductionPercentage, &regCap); err != nil {
			return nil, err
		}
		if regCap.Valid {
			v := regCap.Float64
			t.RegulatorDeductionCap = &v
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (r *TenantRepo) Count() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM tenants").Scan(&n)
	return n, err
}
