package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/motswedi/deductions/internal/domain"
)

type DeductionRepo struct {
	db *sql.DB
}

func NewDeductionRepo(db *sql.DB) *DeductionRepo {
	return &DeductionRepo{db: db}
}

const requestCols = `id, tenant_id, batch_number, month, year, total_members,
	total_amount, status, file_ref, submitted_by, submitted_at, created_at`

// CreateWithItems persists a request and its items in a single transaction.
// The partial unique index over open requests turns a concurrent duplicate
// generation into ErrDuplicatePeriod here rather than a second batch.
func (r *DeductionRepo) CreateWithItems(req *domain.DeductionRequest, items []domain.DeductionItem) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO deduction_requests
		(id, tenant_id, batch_number, month, year, total_members, total_amount, status, file_ref, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.TenantID, req.BatchNumber, req.Month, req.Year,
		req.TotalMembers, req.TotalAmount, string(req.Status), req.FileRef,
		req.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("request for %d-%02d: %w", req.Year, req.Month, domain.ErrDuplicatePeriod)
		}
		return fmt.Errorf("insert request: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO deduction_items
		(id, request_id, member_id, member_number, national_id, employee_number, full_name,
		 current_amount, previous_amount, change_reason,
		 savings, loan_repayment, insurance, merchandise, is_over_limit, limit_notes)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare items: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		it := &items[i]
		over := 0
		if it.IsOverLimit {
			over = 1
		}
		_, err := stmt.Exec(
			it.ID, it.RequestID, it.MemberID, it.MemberNumber, it.NationalID,
			it.EmployeeNumber, it.FullName, it.CurrentAmount, it.PreviousAmount,
			string(it.ChangeReason), it.Breakdown.Savings, it.Breakdown.LoanRepayment,
			it.Breakdown.Insurance, it.Breakdown.Merchandise, over, it.LimitNotes,
		)
		if err != nil {
			return fmt.Errorf("insert item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *DeductionRepo) GetByID(id string) (*domain.DeductionRequest, error) {
	row := r.db.QueryRow("SELECT "+requestCols+" FROM deduction_requests WHERE id = ?", id)
	req, err := scanRequestInto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

// HasOpenForPeriod reports whether a draft, submitted or processing request
// exists for the tenant-period. Precondition read for batch generation.
func (r *DeductionRepo) HasOpenForPeriod(tenantID string, month, year int) (bool, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM deduction_requests
		WHERE tenant_id = ? AND month = ? AND year = ?
		AND status IN ('draft','submitted','processing')`,
		tenantID, month, year,
	).Scan(&n)
	return n > 0, err
}

// CompletedForPeriod returns the most recent completed request for the
// period, or nil. Delta comparison reads the previous month through this.
func (r *DeductionRepo) CompletedForPeriod(tenantID string, month, year int) (*domain.DeductionRequest, error) {
	return r.periodRequest(tenantID, month, year, "AND status = 'completed'")
}

// SubmittedForPeriod returns the submitted (or later-stage) request the
// reconciliation engine matches a remittance file against.
func (r *DeductionRepo) SubmittedForPeriod(tenantID string, month, year int) (*domain.DeductionRequest, error) {
	return r.periodRequest(tenantID, month, year, "AND status IN ('submitted','processing','completed')")
}

// LatestForPeriod returns the most recent request regardless of lifecycle
// state. The cross-tenant cap check reads other tenants' periods through
// this; absence means that tenant has not run its cycle yet.
func (r *DeductionRepo) LatestForPeriod(tenantID string, month, year int) (*domain.DeductionRequest, error) {
	return r.periodRequest(tenantID, month, year, "")
}

func (r *DeductionRepo) periodRequest(tenantID string, month, year int, extra string) (*domain.DeductionRequest, error) {
	row := r.db.QueryRow(
		"SELECT "+requestCols+` FROM deduction_requests
		WHERE tenant_id = ? AND month = ? AND year = ? `+extra+`
		ORDER BY created_at DESC LIMIT 1`,
		tenantID, month, year,
	)
	req, err := scanRequestInto(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return req, err
}

func (r *DeductionRepo) ItemsForRequest(requestID string) ([]domain.DeductionItem, error) {
	rows, err := r.db.Query(
		`SELECT id, request_id, member_id, member_number, national_id, employee_number, full_name,
			current_amount, previous_amount, change_reason,
			savings, loan_repayment, insurance, merchandise, is_over_limit, limit_notes
		FROM deduction_items WHERE request_id = ? ORDER BY member_number`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.DeductionItem
	for rows.Next() {
		var it domain.DeductionItem
		var reason string
		var over int
		err := rows.Scan(
			&it.ID, &it.RequestID, &it.MemberID, &it.MemberNumber, &it.NationalID,
			&it.EmployeeNumber, &it.FullName, &it.CurrentAmount, &it.PreviousAmount,
			&reason, &it.Breakdown.Savings, &it.Breakdown.LoanRepayment,
			&it.Breakdown.Insurance, &it.Breakdown.Merchandise, &over, &it.LimitNotes,
		)
		if err != nil {
			return nil, err
		}
		it.ChangeReason = domain.ChangeReason(reason)
		it.IsOverLimit = over == 1
		items = append(items, it)
	}
	return items, rows.Err()
}

// ItemAmount reads one member's current amount in a request. The ok result
// distinguishes "no item" (zero contribution) from a recorded zero.
func (r *DeductionRepo) ItemAmount(requestID, memberID string) (float64, bool, error) {
	var amount float64
	err := r.db.QueryRow(
		"SELECT current_amount FROM deduction_items WHERE request_id = ? AND member_id = ?",
		requestID, memberID,
	).Scan(&amount)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return amount, true, nil
}

// Submit moves a draft request to submitted. Compare-and-set on status so a
// concurrent or repeated submission observes ErrInvalidState.
func (r *DeductionRepo) Submit(id, submittedBy string, at time.Time) error {
	res, err := r.db.Exec(
		`UPDATE deduction_requests SET status = 'submitted', submitted_by = ?, submitted_at = ?
		WHERE id = ? AND status = 'draft'`,
		submittedBy, at.Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	if ra, _ := res.RowsAffected(); ra == 1 {
		return nil
	}

	req, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if req == nil {
		return fmt.Errorf("request %s: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("cannot submit request in state %q: %w", req.Status, domain.ErrInvalidState)
}

// UpdateStatus records interchange round-trip progress (processing,
// completed, failed). Submitted requests never move back to draft.
func (r *DeductionRepo) UpdateStatus(id string, status domain.RequestStatus) error {
	res, err := r.db.Exec(
		"UPDATE deduction_requests SET status = ? WHERE id = ? AND status != 'draft'",
		string(status), id,
	)
	if err != nil {
		return err
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return fmt.Errorf("request %s not in a submitted lifecycle: %w", id, domain.ErrInvalidState)
	}
	return nil
}

func (r *DeductionRepo) SetFileRef(id, ref string) error {
	_, err := r.db.Exec("UPDATE deduction_requests SET file_ref = ? WHERE id = ?", ref, id)
	return err
}

type RequestFilter struct {
	TenantID string
	Status   string
	Year     int
	Page     int
	Limit    int
}

func (r *DeductionRepo) List(f RequestFilter) ([]domain.DeductionRequest, int, error) {
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
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM deduction_requests"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT " + requestCols + " FROM deduction_requests" + where +
		" ORDER BY year DESC, month DESC, created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reqs []domain.DeductionRequest
	for rows.Next() {
		req, err := scanRequestInto(rows)
		if err != nil {
			return nil, 0, err
		}
		reqs = append(reqs, *req)
	}
	return reqs, total, rows.Err()
}

// --- helpers ---

func scanRequestInto(s rowScanner) (*domain.DeductionRequest, error) {
	var req domain.DeductionRequest
	var status, createdAt string
	var submittedBy, submittedAt sql.NullString

	err := s.Scan(
		&req.ID, &req.TenantID, &req.BatchNumber, &req.Month, &req.Year,
		&req.TotalMembers, &req.TotalAmount, &status, &req.FileRef,
		&submittedBy, &submittedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	req.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if submittedBy.Valid {
		req.SubmittedBy = submittedBy.String
	}
	if submittedAt.Valid {
		t, _ := time.Parse(time.RFC3339, submittedAt.String)
		req.SubmittedAt = &t
	}
	return &req, nil
}
