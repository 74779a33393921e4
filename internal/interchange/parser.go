package interchange

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// RemittanceRecord is one parsed row of the authority's actual-remittance
// file: identifying fragments, the amount actually deducted, and whatever
// status signal the authority supplied.
type RemittanceRecord struct {
	EmployeeNumber string
	NationalID     string
	MemberNumber   string
	Amount         float64
	Status         string
	Reason         string
}

// RowError reports one unparsable remittance row. Rows fail individually;
// parsing continues for the rest of the file.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// RemittanceLayout describes the authority-defined column positions of an
// inbound file. Optional columns use -1. The default mirrors our own outbound
// file with trailing Status/Reason columns appended by the authority.
type RemittanceLayout struct {
	EmployeeNumber int
	NationalID     int
	MemberNumber   int
	Amount         int
	Status         int
	Reason         int
	HasHeader      bool
}

func DefaultLayout() RemittanceLayout {
	return RemittanceLayout{
		EmployeeNumber: 0,
		NationalID:     1,
		MemberNumber:   2,
		Amount:         4,
		Status:         6,
		Reason:         7,
		HasHeader:      true,
	}
}

// ParseRemittance parses an actual-remittance file. Malformed rows are
// collected as RowErrors and reported alongside the rows that did parse;
// only a file-level failure (unreadable CSV structure) is returned as error.
func ParseRemittance(data []byte, layout RemittanceLayout) ([]RemittanceRecord, []RowError, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true
	// Authority files pad short rows; validate per-row instead.
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read remittance file: %w", err)
	}

	var records []RemittanceRecord
	var rowErrs []RowError

	start := 0
	if layout.HasHeader && len(rows) > 0 {
		start = 1
	}

	minCols := layout.Amount
	for _, idx := range []int{layout.EmployeeNumber, layout.NationalID, layout.MemberNumber} {
		if idx > minCols {
			minCols = idx
		}
	}

	for i := start; i < len(rows); i++ {
		line := i + 1
		row := rows[i]

		if len(row) <= minCols {
			rowErrs = append(rowErrs, RowError{
				Line: line,
				Err:  fmt.Sprintf("expected at least %d columns, got %d", minCols+1, len(row)),
			})
			continue
		}

		rec := RemittanceRecord{
			EmployeeNumber: cell(row, layout.EmployeeNumber),
			NationalID:     cell(row, layout.NationalID),
			MemberNumber:   cell(row, layout.MemberNumber),
			Status:         cell(row, layout.Status),
			Reason:         cell(row, layout.Reason),
		}
		if rec.EmployeeNumber == "" && rec.NationalID == "" && rec.MemberNumber == "" {
			rowErrs = append(rowErrs, RowError{Line: line, Err: "no identifying key present"})
			continue
		}

		amountStr := cell(row, layout.Amount)
		amount, err := strconv.ParseFloat(amountStr, 64)
		if err != nil {
			rowErrs = append(rowErrs, RowError{
				Line: line,
				Err:  fmt.Sprintf("amount %q: not a number", amountStr),
			})
			continue
		}
		rec.Amount = amount

		records = append(records, rec)
	}

	return records, rowErrs, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
