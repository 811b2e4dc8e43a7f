// Package export renders aggregated and detailed hours as CSV text or an
// XLSX workbook.
package export

import (
	"bytes"
	"strings"
)

// BOM makes spreadsheet tools decode the file as UTF-8.
const BOM = "\uFEFF"

// Delimiter separates fields.
const Delimiter = ','

// Column names a field of a row. Numeric columns are written as numbers in
// workbooks.
type Column struct {
	Key     string
	Title   string
	Numeric bool
}

// Row maps column keys to rendered values.
type Row map[string]string

// Table is an ordered set of columns and rows.
type Table struct {
	Columns []Column
	Rows    []Row
}

// ToDelimitedText renders t, and totals after a blank line when given, as
// comma-separated text prefixed with a UTF-8 byte-order mark.
func ToDelimitedText(t Table, totals *Table) []byte {
	var buf bytes.Buffer
	buf.WriteString(BOM)
	writeTable(&buf, t)
	if totals != nil {
		buf.WriteString("\r\n")
		writeTable(&buf, *totals)
	}
	return buf.Bytes()
}

func writeTable(buf *bytes.Buffer, t Table) {
	fields := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		fields[i] = csvEscape(c.Title)
	}
	writeLine(buf, fields)
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			fields[i] = csvEscape(r[c.Key])
		}
		writeLine(buf, fields)
	}
}

func writeLine(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(Delimiter)
		}
		buf.WriteString(f)
	}
	buf.WriteString("\r\n")
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, string(Delimiter)+"\"\r\n") {
		return s
	}
	// Escape internal double quotes by doubling them.
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
