// Package insurance maintains policy lifecycle state between deduction
// cycles: waiting periods expire into active cover, and unpaid active
// policies lapse. The deduction engine invokes it best-effort after each
// batch so the next cycle computes premiums from current policy states.
package insurance

import (
	"log"
	"time"

	"github.com/motswedi/deductions/internal/repository"
)

type Service struct {
	products  *repository.ProductRepo
	graceDays int
	now       func() time.Time
}

func NewService(products *repository.ProductRepo, graceDays int) *Service {
	if graceDays <= 0 {
		graceDays = 60
	}
	return &Service{products: products, graceDays: graceDays, now: time.Now}
}

// SetClock overrides the clock, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ProcessWaitingPeriods activates policies whose waiting period has elapsed.
func (s *Service) ProcessWaitingPeriods() (int, error) {
	n, err := s.products.ActivateWaitingPolicies(s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[insurance] Activated %d policies past their waiting period", n)
	}
	return n, nil
}

// DetectLapsedPolicies lapses active policies with no premium payment inside
// the grace window.
func (s *Service) DetectLapsedPolicies() (int, error) {
	cutoff := s.now().AddDate(0, 0, -s.graceDays)
	n, err := s.products.LapsePoliciesUnpaidSince(cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[insurance] Lapsed %d policies unpaid for over %d days", n, s.graceDays)
	}
	return n, nil
}
