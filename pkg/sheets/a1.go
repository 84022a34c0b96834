package sheets

import (
	"fmt"
	"strings"
)

// ColumnLetter converts a zero-based column index to A1 letters (0 → A, 26 → AA).
func ColumnLetter(idx int) string {
	if idx < 0 {
		return ""
	}
	var b []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// QuoteSheet quotes a sheet title for use in A1 notation.
func QuoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// Range renders a rectangular A1 range. Columns are zero-based, rows one-based.
func Range(sheet string, fromCol, fromRow, toCol, toRow int) string {
	return fmt.Sprintf("%s!%s%d:%s%d", QuoteSheet(sheet), ColumnLetter(fromCol), fromRow, ColumnLetter(toCol), toRow)
}
