// Package export writes tabular query results to spreadsheet files.
package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"rowgraph/internal/store"
)

const defaultSheet = "Sheet1"

// WriteXLSX writes t as a single sheet: one header row with the column
// names, then one row per result row.
func WriteXLSX(w io.Writer, t *store.Table, sheet string) error {
	if sheet == "" {
		sheet = defaultSheet
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return fmt.Errorf("name sheet: %w", err)
		}
	}

	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for r, row := range t.Rows {
		values := make([]any, len(t.Columns))
		for i, c := range t.Columns {
			values[i] = cellValue(row[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", r+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func cellValue(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.InexactFloat64()
	case uuid.UUID:
		return x.String()
	case []byte:
		return string(x)
	default:
		return v
	}
}

// ReadXLSX reads the first sheet of a workbook written by WriteXLSX. Cell
// values come back as strings.
func ReadXLSX(r io.Reader) (*store.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return &store.Table{}, nil
	}

	t := &store.Table{Columns: rows[0]}
	for _, cells := range rows[1:] {
		row := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(cells) {
				row[c] = cells[i]
			} else {
				row[c] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
