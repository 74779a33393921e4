package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/motswedi/deductions/internal/domain"
)

type ReconciliationRepo struct {
	db *sql.DB
}

func NewReconciliationRepo(db *sql.DB) *ReconciliationRepo {
	return &ReconciliationRepo{db: db}
}

const reconBatchCols = `id, tenant_id, batch_number, month, year, deduction_request_id,
	total_records, matched_records, unmatched_records, variance_records,
	total_expected, total_actual, total_variance, status, journals_posted,
	processed_by, processed_at, created_at`

// CreateWithItems persists a completed reconciliation batch and its items in
// one transaction.
func (r *ReconciliationRepo) CreateWithItems(b *domain.ReconciliationBatch, items []domain.ReconciliationItem) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var reqID, processedBy, processedAt any
	if b.DeductionRequestID != "" {
		reqID = b.DeductionRequestID
	}
	if b.ProcessedBy != "" {
		processedBy = b.ProcessedBy
	}
	if b.ProcessedAt != nil {
		processedAt = b.ProcessedAt.Format(time.RFC3339)
	}
	posted := 0
	if b.JournalsPosted {
		posted = 1
	}

	_, err = tx.Exec(
		`INSERT INTO reconciliation_batches
		(id, tenant_id, batch_number, month, year, deduction_request_id,
		 total_records, matched_records, unmatched_records, variance_records,
		 total_expected, total_actual, total_variance, status, journals_posted,
		 processed_by, processed_at, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.TenantID, b.BatchNumber, b.Month, b.Year, reqID,
		b.TotalRecords, b.MatchedRecords, b.UnmatchedRecords, b.VarianceRecords,
		b.TotalExpected, b.TotalActual, b.TotalVariance, string(b.Status), posted,
		processedBy, processedAt, b.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("reconciliation for %d-%02d: %w", b.Year, b.Month, domain.ErrDuplicatePeriod)
		}
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO reconciliation_items
		(id, batch_id, member_id, member_number, national_id, employee_number,
		 expected_amount, actual_amount, variance, match_status, variance_reason,
		 requires_manual_review)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare items: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		it := &items[i]
		var memberID, reason any
		if it.MemberID != "" {
			memberID = it.MemberID
		}
		if it.VarianceReason != "" {
			reason = string(it.VarianceReason)
		}
		review := 0
		if it.RequiresManualReview {
			review = 1
		}
		_, err := stmt.Exec(
			it.ID, it.BatchID, memberID, it.MemberNumber, it.NationalID,
			it.EmployeeNumber, it.ExpectedAmount, it.ActualAmount, it.Variance,
			string(it.MatchStatus), reason, review,
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

func (r *ReconciliationRepo) GetByID(id string) (*domain.ReconciliationBatch, error) {
	row := r.db.QueryRow("SELECT "+reconBatchCols+" FROM reconciliation_batches WHERE id = ?", id)
	b, err := scanReconBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// ForPeriod returns the batch already reconciled for the tenant-period, or
// nil. Precondition read before a new run; the unique period index backs it.
func (r *ReconciliationRepo) ForPeriod(tenantID string, month, year int) (*domain.ReconciliationBatch, error) {
	row := r.db.QueryRow(
		"SELECT "+reconBatchCols+" FROM reconciliation_batches WHERE tenant_id = ? AND month = ? AND year = ?",
		tenantID, month, year,
	)
	b, err := scanReconBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (r *ReconciliationRepo) ItemsForBatch(batchID string) ([]domain.ReconciliationItem, error) {
	rows, err := r.db.Query(
		`SELECT id, batch_id, member_id, member_number, national_id, employee_number,
			expected_amount, actual_amount, variance, match_status, variance_reason,
			requires_manual_review
		FROM reconciliation_items WHERE batch_id = ? ORDER BY member_number`,
		batchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.ReconciliationItem
	for rows.Next() {
		var it domain.ReconciliationItem
		var memberID, reason sql.NullString
		var status string
		var review int
		err := rows.Scan(
			&it.ID, &it.BatchID, &memberID, &it.MemberNumber, &it.NationalID,
			&it.EmployeeNumber, &it.ExpectedAmount, &it.ActualAmount, &it.Variance,
			&status, &reason, &review,
		)
		if err != nil {
			return nil, err
		}
		it.MatchStatus = domain.MatchStatus(status)
		it.RequiresManualReview = review == 1
		if memberID.Valid {
			it.MemberID = memberID.String
		}
		if reason.Valid {
			it.VarianceReason = domain.VarianceReason(reason.String)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkJournalsPosted flips journals_posted exactly once. The downstream
// accounting collaborator must never double-post, so a second flip reports
// ErrInvalidState.
func (r *ReconciliationRepo) MarkJournalsPosted(id, postedBy string, at time.Time) error {
	res, err := r.db.Exec(
		`UPDATE reconciliation_batches
		SET journals_posted = 1, processed_by = ?, processed_at = ?
		WHERE id = ? AND journals_posted = 0 AND status = 'completed'`,
		postedBy, at.Format(time.RFC3339), id,
	)
	if err != nil {
		return err
	}
	if ra, _ := res.RowsAffected(); ra == 1 {
		return nil
	}

	b, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("reconciliation batch %s: %w", id, domain.ErrNotFound)
	}
	if b.JournalsPosted {
		return fmt.Errorf("journals already posted for batch %s: %w", id, domain.ErrInvalidState)
	}
	return fmt.Errorf("batch %s in state %q: %w", id, b.Status, domain.ErrInvalidState)
}

func (r *ReconciliationRepo) ListForTenant(tenantID string, limit int) ([]domain.ReconciliationBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		"SELECT "+reconBatchCols+` FROM reconciliation_batches
		WHERE tenant_id = ? ORDER BY year DESC, month DESC, created_at DESC LIMIT ?`,
		tenantID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []domain.ReconciliationBatch
	for rows.Next() {
		b, err := scanReconBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// --- helpers ---

func scanReconBatch(s rowScanner) (*domain.ReconciliationBatch, error) {
	var b domain.ReconciliationBatch
	var status, createdAt string
	var reqID, processedBy, processedAt sql.NullString
	var posted int

	err := s.Scan(
		&b.ID, &b.TenantID, &b.BatchNumber, &b.Month, &b.Year, &reqID,
		&b.TotalRecords, &b.MatchedRecords, &b.UnmatchedRecords, &b.VarianceRecords,
		&b.TotalExpected, &b.TotalActual, &b.TotalVariance, &status, &posted,
		&processedBy, &processedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = domain.ReconciliationStatus(status)
	b.JournalsPosted = posted == 1
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if reqID.Valid {
		b.DeductionRequestID = reqID.String
	}
	if processedBy.Valid {
		b.ProcessedBy = processedBy.String
	}
	if processedAt.Valid {
		t, _ := time.Parse(time.RFC3339, processedAt.String)
		b.ProcessedAt = &t
	}
	return &b, nil
}
