// Package reconciliation matches the payroll authority's actual-remittance
// file against the submitted deduction request for the period, classifies
// every line, and parks unexplained amounts in the suspense ledger.
package reconciliation

import (
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/motswedi/deductions/internal/domain"
	"github.com/motswedi/deductions/internal/interchange"
	"github.com/motswedi/deductions/internal/metrics"
	"github.com/motswedi/deductions/internal/repository"
)

// amountTolerance separates FX/rounding noise from a real variance.
const amountTolerance = 0.01

type Service struct {
	requests *repository.DeductionRepo
	batches  *repository.ReconciliationRepo
	suspense *repository.SuspenseRepo
	members  *repository.MemberRepo
	now      func() time.Time
}

func NewService(
	requests *repository.DeductionRepo,
	batches *repository.ReconciliationRepo,
	suspense *repository.SuspenseRepo,
	members *repository.MemberRepo,
) *Service {
	return &Service{
		requests: requests,
		batches:  batches,
		suspense: suspense,
		members:  members,
		now:      time.Now,
	}
}

// Reconcile matches remittance records against the submitted request for the
// period. Every member appearing on either side yields exactly one item.
// A period reconciles at most once: rerunning the same upload fails instead
// of minting a second batch and duplicate suspense entries.
func (s *Service) Reconcile(tenantID string, month, year int, records []interchange.RemittanceRecord) (*domain.ReconciliationBatch, error) {
	req, err := s.requests.SubmittedForPeriod(tenantID, month, year)
	if err != nil {
		return nil, fmt.Errorf("load submitted request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("no submitted deduction batch for %04d-%02d: %w", year, month, domain.ErrNoSubmittedBatch)
	}

	existing, err := s.batches.ForPeriod(tenantID, month, year)
	if err != nil {
		return nil, fmt.Errorf("check period: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("batch %s already reconciled %04d-%02d: %w",
			existing.BatchNumber, year, month, domain.ErrDuplicatePeriod)
	}

	requested, err := s.requests.ItemsForRequest(req.ID)
	if err != nil {
		return nil, fmt.Errorf("load requested items: %w", err)
	}

	// The remittance file supplies national ID or employee number, whichever
	// the authority kept; index the requested side by both.
	byNationalID := make(map[string]*domain.DeductionItem, len(requested))
	byEmployeeNo := make(map[string]*domain.DeductionItem, len(requested))
	for i := range requested {
		it := &requested[i]
		if it.NationalID != "" {
			byNationalID[it.NationalID] = it
		}
		if it.EmployeeNumber != "" {
			byEmployeeNo[it.EmployeeNumber] = it
		}
	}

	batch := &domain.ReconciliationBatch{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		BatchNumber:        reconBatchNumber(tenantID, month, year),
		Month:              month,
		Year:               year,
		DeductionRequestID: req.ID,
		Status:             domain.ReconciliationCompleted,
		CreatedAt:          s.now(),
	}

	var items []domain.ReconciliationItem
	var entries []domain.SuspenseEntry
	consumed := make(map[string]bool, len(requested))

	for i := range records {
		rec := &records[i]
		reqItem := s.lookupRequested(rec, byNationalID, byEmployeeNo)

		// Money arrived for nobody we asked about, or a second row landed on
		// an item already answered for: park it in suspense. Counting a
		// duplicated row as a second match would double the expected total.
		if reqItem == nil || consumed[reqItem.ID] {
			item, entry, err := s.orphanRecord(batch, rec)
			if err != nil {
				return nil, err
			}
			items = append(items, *item)
			entries = append(entries, *entry)
			batch.UnmatchedRecords++
			batch.TotalActual += rec.Amount
			continue
		}
		consumed[reqItem.ID] = true

		variance := rec.Amount - reqItem.CurrentAmount
		item := domain.ReconciliationItem{
			ID:             uuid.NewString(),
			BatchID:        batch.ID,
			MemberID:       reqItem.MemberID,
			MemberNumber:   reqItem.MemberNumber,
			NationalID:     reqItem.NationalID,
			EmployeeNumber: reqItem.EmployeeNumber,
			ExpectedAmount: reqItem.CurrentAmount,
			ActualAmount:   rec.Amount,
			Variance:       variance,
		}

		if math.Abs(variance) < amountTolerance {
			item.MatchStatus = domain.Matched
			batch.MatchedRecords++
		} else {
			item.MatchStatus = domain.Variance
			item.VarianceReason = varianceReason(rec)
			item.RequiresManualReview = true
			batch.VarianceRecords++
		}

		batch.TotalExpected += reqItem.CurrentAmount
		batch.TotalActual += rec.Amount
		items = append(items, item)
	}

	// Requested items the authority never answered for.
	for i := range requested {
		reqItem := &requested[i]
		if consumed[reqItem.ID] {
			continue
		}
		items = append(items, domain.ReconciliationItem{
			ID:                   uuid.NewString(),
			BatchID:              batch.ID,
			MemberID:             reqItem.MemberID,
			MemberNumber:         reqItem.MemberNumber,
			NationalID:           reqItem.NationalID,
			EmployeeNumber:       reqItem.EmployeeNumber,
			ExpectedAmount:       reqItem.CurrentAmount,
			ActualAmount:         0,
			Variance:             -reqItem.CurrentAmount,
			MatchStatus:          domain.MissingInMoF,
			RequiresManualReview: true,
		})
		batch.UnmatchedRecords++
		batch.TotalExpected += reqItem.CurrentAmount
	}

	batch.TotalRecords = len(items)
	batch.TotalVariance = batch.TotalActual - batch.TotalExpected

	if err := s.batches.CreateWithItems(batch, items); err != nil {
		return nil, fmt.Errorf("persist batch: %w", err)
	}

	// Suspense entries follow the batch: a run that loses the period race
	// above persists nothing, including its orphans.
	for i := range entries {
		if err := s.suspense.Insert(&entries[i]); err != nil {
			return nil, fmt.Errorf("create suspense entry: %w", err)
		}
		metrics.SuspenseEntriesCreated.Inc()
	}

	metrics.ReconciliationRuns.WithLabelValues(tenantID).Inc()
	for _, it := range items {
		metrics.ReconciliationItems.WithLabelValues(string(it.MatchStatus)).Inc()
	}
	log.Printf("[reconciliation] Batch %s: matched=%d, variance=%d, unmatched=%d (orphans=%d), expected=P%.2f, actual=P%.2f",
		batch.BatchNumber, batch.MatchedRecords, batch.VarianceRecords,
		batch.UnmatchedRecords, len(entries), batch.TotalExpected, batch.TotalActual)

	return batch, nil
}

func (s *Service) lookupRequested(rec *interchange.RemittanceRecord, byNationalID, byEmployeeNo map[string]*domain.DeductionItem) *domain.DeductionItem {
	if rec.NationalID != "" {
		if it, ok := byNationalID[rec.NationalID]; ok {
			return it
		}
	}
	if rec.EmployeeNumber != "" {
		if it, ok := byEmployeeNo[rec.EmployeeNumber]; ok {
			return it
		}
	}
	return nil
}

// orphanRecord builds the orphan reconciliation item and its pending
// suspense entry, tagged with whatever identity fragments the row carried.
// The entry is not persisted here; it rides on the batch commit.
func (s *Service) orphanRecord(batch *domain.ReconciliationBatch, rec *interchange.RemittanceRecord) (*domain.ReconciliationItem, *domain.SuspenseEntry, error) {
	item := &domain.ReconciliationItem{
		ID:                   uuid.NewString(),
		BatchID:              batch.ID,
		MemberNumber:         rec.MemberNumber,
		NationalID:           rec.NationalID,
		EmployeeNumber:       rec.EmployeeNumber,
		ExpectedAmount:       0,
		ActualAmount:         rec.Amount,
		Variance:             rec.Amount,
		MatchStatus:          domain.OrphanInMoF,
		RequiresManualReview: true,
	}

	// Best effort: the remitted-for person may still be a known member even
	// though no deduction was requested for them this period.
	reason := "Remitted amount has no matching requested deduction"
	member, err := s.members.FindByIdentifiers(batch.TenantID, rec.NationalID, rec.EmployeeNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve orphan member: %w", err)
	}
	if member != nil {
		item.MemberID = member.ID
	} else {
		reason = "Remitted amount could not be tied to any known member"
	}

	entry := &domain.SuspenseEntry{
		ID:                    uuid.NewString(),
		TenantID:              batch.TenantID,
		ReferenceNumber:       fmt.Sprintf("SUSP-%s-%s", batch.BatchNumber, shortID(item.ID)),
		ReconciliationBatchID: batch.ID,
		MemberNumber:          rec.MemberNumber,
		NationalID:            rec.NationalID,
		EmployeeNumber:        rec.EmployeeNumber,
		Amount:                rec.Amount,
		Month:                 batch.Month,
		Year:                  batch.Year,
		Status:                domain.SuspensePending,
		Reason:                reason,
		CreatedAt:             s.now(),
	}
	return item, entry, nil
}

// varianceReason maps whatever signal the remittance row carries onto a
// reason code. The mapping is deliberately conservative: without a failure
// signal, an out-of-tolerance amount is just an amount mismatch, and an
// unrecognised signal is "other".
func varianceReason(rec *interchange.RemittanceRecord) domain.VarianceReason {
	if strings.EqualFold(rec.Status, "failed") && rec.Reason != "" {
		reason := strings.ToLower(rec.Reason)
		switch {
		case strings.Contains(reason, "insufficient"):
			return domain.ReasonInsufficientFunds
		case strings.Contains(reason, "terminated"):
			return domain.ReasonMemberTerminated
		case strings.Contains(reason, "net pay"):
			return domain.ReasonNetPayTooLow
		}
		return domain.ReasonOther
	}
	if rec.Status == "" || strings.EqualFold(rec.Status, "success") {
		return domain.ReasonAmountMismatch
	}
	return domain.ReasonOther
}

// PostJournals records that downstream accounting has posted this batch's
// journal set. The flip happens at most once; a second attempt fails with
// ErrInvalidState so journals can never double-post.
func (s *Service) PostJournals(batchID, postedBy string) error {
	if err := s.batches.MarkJournalsPosted(batchID, postedBy, s.now()); err != nil {
		return err
	}
	log.Printf("[reconciliation] Journals posted for batch %s by %s", batchID, postedBy)
	return nil
}

func reconBatchNumber(tenantID string, month, year int) string {
	prefix := tenantID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("REC-%s-%04d%02d", prefix, year, month)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
