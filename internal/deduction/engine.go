// Package deduction implements the monthly delta batch engine: it computes
// each member's payroll deduction from the product ledgers, emits only the
// changes since the previous completed period, and applies the salary
// protection cap across cooperatives.
package deduction

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/motswedi/deductions/internal/domain"
	"github.com/motswedi/deductions/internal/interchange"
	"github.com/motswedi/deductions/internal/metrics"
	"github.com/motswedi/deductions/internal/repository"
)

// changeTolerance is the smallest total change that makes a member reportable.
const changeTolerance = 0.01

// ProductLedger answers "active amount owed this period" per product. Each
// method returns zero, not an error, for members without that product.
type ProductLedger interface {
	ActiveSavingsContribution(memberID string) (float64, error)
	ActiveLoanInstallment(memberID string) (float64, error)
	ActiveInsurancePremium(memberID string) (float64, error)
	DeliveredMerchandiseInstallment(memberID string) (float64, error)
}

// MemberDirectory resolves members within and across tenants.
type MemberDirectory interface {
	ActiveEmployedMembers(tenantID string) ([]domain.Member, error)
	MembersByNationalID(nationalID string) ([]domain.Member, error)
}

// InsuranceMaintainer is the best-effort lifecycle collaborator triggered
// after each batch; its failures never fail generation.
type InsuranceMaintainer interface {
	ProcessWaitingPeriods() (int, error)
	DetectLapsedPolicies() (int, error)
}

// Service is the delta deduction engine.
type Service struct {
	directory   MemberDirectory
	ledger      ProductLedger
	tenants     *TenantCache
	requests    *repository.DeductionRepo
	limits      *LimitChecker
	insurance   InsuranceMaintainer
	workerLimit int
	now         func() time.Time
}

func NewService(
	directory MemberDirectory,
	ledger ProductLedger,
	tenants *TenantCache,
	requests *repository.DeductionRepo,
	limits *LimitChecker,
	insurance InsuranceMaintainer,
	workerLimit int,
) *Service {
	if workerLimit <= 0 {
		workerLimit = 8
	}
	return &Service{
		directory:   directory,
		ledger:      ledger,
		tenants:     tenants,
		requests:    requests,
		limits:      limits,
		insurance:   insurance,
		workerLimit: workerLimit,
		now:         time.Now,
	}
}

// GenerateBatch computes the delta batch for one tenant-period and persists
// it as a draft. It either persists a complete batch or nothing: duplicate
// periods and regulator cap breaches abort with nothing written.
func (s *Service) GenerateBatch(tenantID string, month, year int) (*domain.DeductionRequest, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("month %d out of range", month)
	}

	tenant, err := s.tenants.Get(tenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant: %w", err)
	}
	if tenant == nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, domain.ErrNotFound)
	}

	open, err := s.requests.HasOpenForPeriod(tenantID, month, year)
	if err != nil {
		return nil, fmt.Errorf("check period: %w", err)
	}
	if open {
		metrics.GenerationFailures.WithLabelValues("duplicate_period").Inc()
		return nil, fmt.Errorf("batch for %04d-%02d already exists: %w", year, month, domain.ErrDuplicatePeriod)
	}

	members, err := s.directory.ActiveEmployedMembers(tenantID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	priorItems, err := s.priorPeriodItems(tenantID, month, year)
	if err != nil {
		return nil, err
	}

	// Per-member computation touches only that member's ledgers and
	// cross-tenant read-only data, so it fans out; aggregation below is the
	// single serialization point.
	results := make([]*domain.DeductionItem, len(members))
	var g errgroup.Group
	g.SetLimit(s.workerLimit)

	for i := range members {
		i := i
		g.Go(func() error {
			member := &members[i]
			var prior *domain.DeductionItem
			if p, ok := priorItems[member.ID]; ok {
				prior = &p
			}
			item, err := s.computeMember(member, prior, tenant, month, year)
			if err != nil {
				return fmt.Errorf("member %s: %w", member.MemberNumber, err)
			}
			results[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []domain.DeductionItem
	var totalAmount float64
	overLimit := 0
	for _, item := range results {
		if item == nil {
			continue
		}
		items = append(items, *item)
		totalAmount += item.CurrentAmount
		if item.IsOverLimit {
			overLimit++
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].MemberNumber < items[j].MemberNumber })

	if tenant.RegulatorDeductionCap != nil && totalAmount > *tenant.RegulatorDeductionCap {
		metrics.GenerationFailures.WithLabelValues("regulator_cap").Inc()
		return nil, fmt.Errorf("total deduction amount (P%.2f) exceeds regulator cap (P%.2f): %w",
			totalAmount, *tenant.RegulatorDeductionCap, domain.ErrRegulatorCapExceeded)
	}

	req := &domain.DeductionRequest{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		BatchNumber:  batchNumber(tenantID, month, year),
		Month:        month,
		Year:         year,
		TotalMembers: len(items),
		TotalAmount:  totalAmount,
		Status:       domain.RequestDraft,
		CreatedAt:    s.now(),
	}
	for i := range items {
		items[i].RequestID = req.ID
	}

	if err := s.requests.CreateWithItems(req, items); err != nil {
		return nil, err
	}

	metrics.BatchesGenerated.WithLabelValues(tenant.Name).Inc()
	metrics.ItemsOverLimit.Add(float64(overLimit))
	log.Printf("[deduction] Generated batch %s: %d members, P%.2f total, %d over limit",
		req.BatchNumber, req.TotalMembers, req.TotalAmount, overLimit)

	// Policy lifecycle maintenance keeps the next cycle's premiums current.
	// Failures are logged, never propagated.
	s.runInsuranceMaintenance()

	return req, nil
}

func (s *Service) computeMember(member *domain.Member, prior *domain.DeductionItem, tenant *domain.Tenant, month, year int) (*domain.DeductionItem, error) {
	breakdown, err := s.memberBreakdown(member.ID)
	if err != nil {
		return nil, err
	}
	total := breakdown.Total()

	var previousTotal float64
	if prior != nil {
		previousTotal = prior.CurrentAmount
	}

	// Delta feed: report new deductions and any change of a cent or more,
	// including drops to zero so the authority stops deducting.
	if prior == nil {
		if total <= 0 {
			return nil, nil
		}
	} else if math.Abs(total-previousTotal) < changeTolerance {
		return nil, nil
	}

	reason := classifyChange(member, prior, breakdown, total)

	isOverLimit, limitNotes, err := s.limits.Check(member, tenant, total, month, year)
	if err != nil {
		return nil, err
	}

	return &domain.DeductionItem{
		ID:             uuid.NewString(),
		MemberID:       member.ID,
		MemberNumber:   member.MemberNumber,
		NationalID:     member.NationalID,
		EmployeeNumber: member.EmployeeNumber,
		FullName:       member.FullName,
		CurrentAmount:  total,
		PreviousAmount: previousTotal,
		ChangeReason:   reason,
		Breakdown:      breakdown,
		IsOverLimit:    isOverLimit,
		LimitNotes:     limitNotes,
	}, nil
}

func (s *Service) memberBreakdown(memberID string) (domain.Breakdown, error) {
	var b domain.Breakdown
	var err error

	if b.Savings, err = s.ledger.ActiveSavingsContribution(memberID); err != nil {
		return b, fmt.Errorf("savings: %w", err)
	}
	if b.LoanRepayment, err = s.ledger.ActiveLoanInstallment(memberID); err != nil {
		return b, fmt.Errorf("loans: %w", err)
	}
	if b.Insurance, err = s.ledger.ActiveInsurancePremium(memberID); err != nil {
		return b, fmt.Errorf("insurance: %w", err)
	}
	if b.Merchandise, err = s.ledger.DeliveredMerchandiseInstallment(memberID); err != nil {
		return b, fmt.Errorf("merchandise: %w", err)
	}
	return b, nil
}

// classifyChange picks the reason code for a reportable item. First match
// wins; the order is part of the reporting contract with the authority.
func classifyChange(member *domain.Member, prior *domain.DeductionItem, current domain.Breakdown, total float64) domain.ChangeReason {
	if prior == nil {
		return domain.ReasonNewEnrollment
	}
	if member.Status != domain.MemberActive {
		return domain.ReasonStatusChange
	}
	if prior.CurrentAmount > 0 && total < changeTolerance {
		return domain.ReasonPolicyMaturity
	}
	// A loan paid off or a policy ended shows as that subtotal dropping to
	// zero even while the overall total stays positive.
	if prior.Breakdown.LoanRepayment > 0 && current.LoanRepayment < changeTolerance {
		return domain.ReasonPolicyMaturity
	}
	if prior.Breakdown.Insurance > 0 && current.Insurance < changeTolerance {
		return domain.ReasonPolicyMaturity
	}
	if math.Abs(current.Savings-prior.Breakdown.Savings) >= changeTolerance {
		return domain.ReasonManualAdjustment
	}
	return domain.ReasonAmountChange
}

// priorPeriodItems loads the member-keyed items of the most recent completed
// batch for the immediately preceding month, wrapping December to January.
func (s *Service) priorPeriodItems(tenantID string, month, year int) (map[string]domain.DeductionItem, error) {
	prevMonth, prevYear := month-1, year
	if prevMonth < 1 {
		prevMonth = 12
		prevYear--
	}

	prevReq, err := s.requests.CompletedForPeriod(tenantID, prevMonth, prevYear)
	if err != nil {
		return nil, fmt.Errorf("load previous period: %w", err)
	}
	if prevReq == nil {
		return map[string]domain.DeductionItem{}, nil
	}

	items, err := s.requests.ItemsForRequest(prevReq.ID)
	if err != nil {
		return nil, fmt.Errorf("load previous items: %w", err)
	}

	byMember := make(map[string]domain.DeductionItem, len(items))
	for _, it := range items {
		byMember[it.MemberID] = it
	}
	return byMember, nil
}

func (s *Service) runInsuranceMaintenance() {
	if s.insurance == nil {
		return
	}
	if _, err := s.insurance.ProcessWaitingPeriods(); err != nil {
		log.Printf("[deduction] WARNING: waiting-period processing failed: %v", err)
	}
	if _, err := s.insurance.DetectLapsedPolicies(); err != nil {
		log.Printf("[deduction] WARNING: lapse detection failed: %v", err)
	}
}

// Submit marks a draft request as transmitted to the authority. Submission is
// one-way; a submitted batch is immutable and resubmission is rejected.
func (s *Service) Submit(requestID, submittedBy string) error {
	if err := s.requests.Submit(requestID, submittedBy, s.now()); err != nil {
		return err
	}
	log.Printf("[deduction] Request %s submitted by %s", requestID, submittedBy)
	return nil
}

// ExportFile renders the request's interchange file and records the file
// reference on the request.
func (s *Service) ExportFile(requestID string) ([]byte, string, error) {
	req, err := s.requests.GetByID(requestID)
	if err != nil {
		return nil, "", err
	}
	if req == nil {
		return nil, "", fmt.Errorf("request %s: %w", requestID, domain.ErrNotFound)
	}

	items, err := s.requests.ItemsForRequest(requestID)
	if err != nil {
		return nil, "", fmt.Errorf("load items: %w", err)
	}

	data, err := interchange.WriteBatch(req, items)
	if err != nil {
		return nil, "", err
	}

	name := fmt.Sprintf("deductions/%s/%04d/%02d/%s.csv", req.TenantID, req.Year, req.Month, req.ID)
	if err := s.requests.SetFileRef(requestID, name); err != nil {
		return nil, "", fmt.Errorf("record file ref: %w", err)
	}
	return data, name, nil
}

func batchNumber(tenantID string, month, year int) string {
	prefix := tenantID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("%s-%04d%02d", prefix, year, month)
}
