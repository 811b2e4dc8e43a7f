package export

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Sheet is a named group of tables written one below the other, separated
// by a blank row.
type Sheet struct {
	Name   string
	Tables []Table
}

// WriteXLSX renders the sheets into an in-memory workbook.
func WriteXLSX(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook needs at least one sheet")
	}
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.Name); err != nil {
				return nil, fmt.Errorf("renaming sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			return nil, fmt.Errorf("creating sheet %s: %w", sh.Name, err)
		}

		row := 1
		for j, t := range sh.Tables {
			if j > 0 {
				row++
			}
			if err := writeSheetTable(f, sh.Name, row, t, headerStyle); err != nil {
				return nil, err
			}
			row += len(t.Rows) + 1
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheetTable(f *excelize.File, sheet string, startRow int, t Table, headerStyle int) error {
	for col, c := range t.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, startRow)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, c.Title); err != nil {
			return fmt.Errorf("writing header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("styling header %s: %w", cell, err)
		}
	}
	for i, r := range t.Rows {
		for col, c := range t.Columns {
			cell, err := excelize.CoordinatesToCellName(col+1, startRow+1+i)
			if err != nil {
				return err
			}
			var value interface{} = r[c.Key]
			if c.Numeric {
				if n, err := strconv.ParseFloat(r[c.Key], 64); err == nil {
					value = n
				}
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("writing cell %s: %w", cell, err)
			}
		}
	}
	return nil
}
