// internal/testcases/xlsx.go
package testcases

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/xkilldash9x/regress-cli/api/schemas"
)

// readXLSX reads the first sheet with the same header rules as the CSV source.
func readXLSX(path string) ([]schemas.TestCase, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []schemas.TestCase{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheets[0], path, err)
	}

	// Leading empty rows are common in hand-edited workbooks.
	for len(rows) > 0 && isBlank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return []schemas.TestCase{}, nil
	}
	l, err := parseHeader(rows[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return toCases(l, rows[1:]), nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
