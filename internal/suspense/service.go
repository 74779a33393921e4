// Package suspense exposes the manual resolution actions on parked
// remittance amounts: allocate to a member, refund, or write off.
package suspense

import (
	"fmt"
	"log"
	"time"

	"github.com/motswedi/deductions/internal/domain"
	"github.com/motswedi/deductions/internal/repository"
)

type Service struct {
	entries *repository.SuspenseRepo
	members *repository.MemberRepo
	now     func() time.Time
}

func NewService(entries *repository.SuspenseRepo, members *repository.MemberRepo) *Service {
	return &Service{entries: entries, members: members, now: time.Now}
}

// Allocate ties a pending entry to a member's account. Only legal while
// pending.
func (s *Service) Allocate(entryID, memberID, allocatedBy string) error {
	member, err := s.members.GetByID(memberID)
	if err != nil {
		return fmt.Errorf("load member: %w", err)
	}
	if member == nil {
		return fmt.Errorf("member %s: %w", memberID, domain.ErrNotFound)
	}

	if err := s.entries.Allocate(entryID, memberID, allocatedBy, s.now()); err != nil {
		return err
	}
	log.Printf("[suspense] Entry %s allocated to member %s by %s", entryID, member.MemberNumber, allocatedBy)
	return nil
}

// Refund marks the amount as returned to the authority. Terminal.
func (s *Service) Refund(entryID, refundedBy, notes string) error {
	if err := s.entries.Resolve(entryID, domain.SuspenseRefunded, refundedBy, notes, s.now()); err != nil {
		return err
	}
	log.Printf("[suspense] Entry %s refunded by %s", entryID, refundedBy)
	return nil
}

// WriteOff abandons the amount. Terminal.
func (s *Service) WriteOff(entryID, writtenOffBy, notes string) error {
	if err := s.entries.Resolve(entryID, domain.SuspenseWrittenOff, writtenOffBy, notes, s.now()); err != nil {
		return err
	}
	log.Printf("[suspense] Entry %s written off by %s", entryID, writtenOffBy)
	return nil
}
