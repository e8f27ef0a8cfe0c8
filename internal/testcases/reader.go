// internal/testcases/reader.go
package testcases

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/faults"
)

const checkPathRemedy = "check the path to the test-case file"

type column int

const (
	colID column = iota
	colPurpose
	colPrecondition
	colExpected
)

// headerAliases maps a normalized header to its column.
var headerAliases = map[string]column{
	"テストid":  colID,
	"testid": colID,
	"id":     colID,

	"テスト目的":   colPurpose,
	"purpose": colPurpose,

	"前提条件":         colPrecondition,
	"precondition": colPrecondition,

	"期待結果":     colExpected,
	"expected": colExpected,
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer("_", "", " ", "", "-", "").Replace(h)
}

// layout records where each known column sits in a row.
type layout map[column]int

func parseHeader(header []string) (layout, error) {
	l := layout{}
	for i, h := range header {
		if c, ok := headerAliases[normalizeHeader(h)]; ok {
			if _, dup := l[c]; !dup {
				l[c] = i
			}
		}
	}
	if _, ok := l[colID]; !ok {
		return nil, fmt.Errorf("header has no test id column (expected テストID or testId), got %q", header)
	}
	return l, nil
}

func (l layout) cell(row []string, c column) string {
	i, ok := l[c]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// toCases converts data rows. Blank rows and rows without an id are skipped.
func toCases(l layout, rows [][]string) []schemas.TestCase {
	cases := make([]schemas.TestCase, 0, len(rows))
	for _, row := range rows {
		id := l.cell(row, colID)
		if id == "" {
			continue
		}
		cases = append(cases, schemas.TestCase{
			TestID:       id,
			Purpose:      l.cell(row, colPurpose),
			Precondition: l.cell(row, colPrecondition),
			Expected:     l.cell(row, colExpected),
		})
	}
	return cases
}

// Load reads test cases from a CSV or XLSX file, keeping file order. When
// only is non-empty, cases whose id is not listed are dropped.
func Load(path string, only []string) ([]schemas.TestCase, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, faults.Missing("testcases.load", filepath.Base(path), checkPathRemedy)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	var (
		cases []schemas.TestCase
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		cases, err = readXLSX(path)
	default:
		cases, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return Filter(cases, only), nil
}

// Filter keeps the cases whose id is in only, in file order.
func Filter(cases []schemas.TestCase, only []string) []schemas.TestCase {
	if len(only) == 0 {
		return cases
	}
	kept := cases[:0:0]
	for _, c := range cases {
		if slices.Contains(only, c.TestID) {
			kept = append(kept, c)
		}
	}
	return kept
}
