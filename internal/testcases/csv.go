// internal/testcases/csv.go
package testcases

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xkilldash9x/regress-cli/api/schemas"
)

func readCSV(path string) ([]schemas.TestCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cases, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// ParseCSV parses a header row followed by data rows. A UTF-8 byte order mark
// is ignored. Input with no header yields no cases.
func ParseCSV(r io.Reader) ([]schemas.TestCase, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && string(bom) == "\ufeff" {
		_, _ = br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []schemas.TestCase{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	l, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv rows: %w", err)
	}
	return toCases(l, rows), nil
}
