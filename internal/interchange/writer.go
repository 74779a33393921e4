// Package interchange renders deduction batches into the payroll authority's
// fixed-column file format and parses the authority's actual-remittance files
// back. Field order and decimal formatting are part of the external contract.
package interchange

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/motswedi/deductions/internal/domain"
)

// Outbound column order. The authority keys on position, not header names.
var outboundHeader = []string{
	"Employee Number",
	"National ID",
	"Member Number",
	"Full Name",
	"Deduction Amount",
	"Effective Month",
}

// WriteBatch renders one row per item: employee number, national ID, member
// number, full name, amount with two decimals, effective month as YYYY-MM.
func WriteBatch(req *domain.DeductionRequest, items []domain.DeductionItem) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(outboundHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	effectiveMonth := fmt.Sprintf("%04d-%02d", req.Year, req.Month)
	for i := range items {
		it := &items[i]
		row := []string{
			it.EmployeeNumber,
			it.NationalID,
			it.MemberNumber,
			it.FullName,
			fmt.Sprintf("%.2f", it.CurrentAmount),
			effectiveMonth,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}
