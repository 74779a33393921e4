package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/motswedi/deductions/internal/domain"
)

type SuspenseRepo struct {
	db *sql.DB

	// now is swappable so tests can pin the ageing clock.
	now func() time.Time
}

func NewSuspenseRepo(db *sql.DB) *SuspenseRepo {
	return &SuspenseRepo{db: db, now: time.Now}
}

// SetClock overrides the clock used for ageing computation.
func (r *SuspenseRepo) SetClock(now func() time.Time) {
	r.now = now
}

const suspenseCols = `id, tenant_id, reference_number, reconciliation_batch_id,
	member_number, national_id, employee_number, amount, month, year, status,
	reason, allocated_to_member_id, allocated_by, allocated_at, resolution_notes, created_at`

func (r *SuspenseRepo) Insert(e *domain.SuspenseEntry) error {
	var batchID any
	if e.ReconciliationBatchID != "" {
		batchID = e.ReconciliationBatchID
	}
	_, err := r.db.Exec(
		`INSERT INTO suspense_entries
		(id, tenant_id, reference_number, reconciliation_batch_id,
		 member_number, national_id, employee_number, amount, month, year, status,
		 reason, resolution_notes, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.TenantID, e.ReferenceNumber, batchID,
		e.MemberNumber, e.NationalID, e.EmployeeNumber, e.Amount, e.Month, e.Year,
		string(e.Status), e.Reason, e.ResolutionNotes, e.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (r *SuspenseRepo) GetByID(id string) (*domain.SuspenseEntry, error) {
	row := r.db.QueryRow("SELECT "+suspenseCols+" FROM suspense_entries WHERE id = ?", id)
	e, err := r.scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// Allocate ties a pending entry to a member. Compare-and-set on status: any
// state other than pending reports ErrInvalidState with the current state.
func (r *SuspenseRepo) Allocate(id, memberID, allocatedBy string, at time.Time) error {
	res, err := r.db.Exec(
		`UPDATE suspense_entries
		SET status = 'allocated', allocated_to_member_id = ?, allocated_by = ?, allocated_at = ?
		WHERE id = ? AND status = 'pending'`,
		memberID, allocatedBy, at.Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	return r.checkTransition(res, id, "allocate")
}

// Resolve moves a pending or allocated entry to a terminal state (refunded or
// written_off).
func (r *SuspenseRepo) Resolve(id string, to domain.SuspenseStatus, resolvedBy, notes string, at time.Time) error {
	res, err := r.db.Exec(
		`UPDATE suspense_entries
		SET status = ?, allocated_by = ?, allocated_at = ?, resolution_notes = ?
		WHERE id = ? AND status IN ('pending','allocated')`,
		string(to), resolvedBy, at.Format(time.RFC3339), notes, id,
	)
	if err != nil {
		return err
	}
	return r.checkTransition(res, id, string(to))
}

func (r *SuspenseRepo) checkTransition(res sql.Result, id, action string) error {
	if ra, _ := res.RowsAffected(); ra == 1 {
		return nil
	}
	e, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("suspense entry %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("cannot %s suspense entry in state %q: %w", action, e.Status, domain.ErrInvalidState)
}

type SuspenseFilter struct {
	TenantID string
	Status   string
	Year     int
	Month    int
	Page     int
	Limit    int
}

func (r *SuspenseRepo) List(f SuspenseFilter) ([]domain.SuspenseEntry, int, error) {
	var clauses []string
	var args []any
	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.Year != 0 {
		clauses = append(clauses, "year = ?")
		args = append(args, f.Year)
	}
	if f.Month != 0 {
		clauses = append(clauses, "month = ?")
		args = append(args, f.Month)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM suspense_entries"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT " + suspenseCols + " FROM suspense_entries" + where +
		" ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.SuspenseEntry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *e)
	}
	return entries, total, rows.Err()
}

type SuspenseSummary struct {
	PendingCount  int     `json:"pending_count"`
	PendingAmount float64 `json:"pending_amount"`
	TotalCount    int     `json:"total_count"`
	TotalAmount   float64 `json:"total_amount"`
}

func (r *SuspenseRepo) Summary(tenantID string) (*SuspenseSummary, error) {
	s := &SuspenseSummary{}
	err := r.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(amount),0) FROM suspense_entries
		WHERE tenant_id = ? AND status = 'pending'`,
		tenantID,
	).Scan(&s.PendingCount, &s.PendingAmount)
	if err != nil {
		return nil, err
	}
	err = r.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(amount),0) FROM suspense_entries WHERE tenant_id = ?",
		tenantID,
	).Scan(&s.TotalCount, &s.TotalAmount)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// --- helpers ---

func (r *SuspenseRepo) scanEntry(s rowScanner) (*domain.SuspenseEntry, error) {
	var e domain.SuspenseEntry
	var status, createdAt string
	var batchID, allocatedTo, allocatedBy, allocatedAt sql.NullString

	err := s.Scan(
		&e.ID, &e.TenantID, &e.ReferenceNumber, &batchID,
		&e.MemberNumber, &e.NationalID, &e.EmployeeNumber, &e.Amount,
		&e.Month, &e.Year, &status, &e.Reason,
		&allocatedTo, &allocatedBy, &allocatedAt, &e.ResolutionNotes, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = domain.SuspenseStatus(status)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if batchID.Valid {
		e.ReconciliationBatchID = batchID.String
	}
	if allocatedTo.Valid {
		e.AllocatedToMemberID = allocatedTo.String
	}
	if allocatedBy.Valid {
		e.AllocatedBy = allocatedBy.String
	}
	if allocatedAt.Valid {
		t, _ := time.Parse(time.RFC3339, allocatedAt.String)
		e.AllocatedAt = &t
	}

	// Ageing is derived on every read so it always reflects current age.
	e.DaysInSuspense = int(r.now().Sub(e.CreatedAt).Hours() / 24)

	return &e, nil
}
