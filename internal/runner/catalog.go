// internal/runner/catalog.go
package runner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SpecSuffix is the extension of a generated test script.
const SpecSuffix = ".spec.ts"

// Catalog is the set of generated test scripts in a directory, in natural order.
type Catalog struct {
	Dir string
	IDs []string
}

// LoadCatalog lists <dir>/*.spec.ts. A missing directory is an empty catalog.
func LoadCatalog(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Catalog{Dir: dir}, nil
		}
		return nil, fmt.Errorf("failed to list tests in %s: %w", dir, err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, SpecSuffix) {
			continue
		}
		if id := strings.TrimSuffix(name, SpecSuffix); id != "" {
			ids = append(ids, id)
		}
	}
	SortIDs(ids)
	return &Catalog{Dir: dir, IDs: ids}, nil
}

// Has reports whether a script exists for id.
func (c *Catalog) Has(id string) bool {
	for _, known := range c.IDs {
		if known == id {
			return true
		}
	}
	return false
}

// File returns the script path for id.
func (c *Catalog) File(id string) string {
	return filepath.Join(c.Dir, id+SpecSuffix)
}

// Files maps ids to script paths.
func (c *Catalog) Files(ids []string) []string {
	files := make([]string, len(ids))
	for i, id := range ids {
		files[i] = c.File(id)
	}
	return files
}

// SortIDs sorts ids in natural order.
func SortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return CompareIDs(ids[i], ids[j]) < 0 })
}

// CompareIDs orders test ids so that digit runs compare by numeric value
// ("2" < "10") and everything else compares lexically. Ids that tie under
// that rule (e.g. "01" and "1") fall back to a plain byte comparison.
func CompareIDs(a, b string) int {
	ra, rb := a, b
	for ra != "" && rb != "" {
		ca, restA := nextChunk(ra)
		cb, restB := nextChunk(rb)
		if c := compareChunk(ca, cb); c != 0 {
			return c
		}
		ra, rb = restA, restB
	}
	switch {
	case ra == "" && rb != "":
		return -1
	case ra != "" && rb == "":
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// nextChunk splits off the leading run of digits or non-digits.
func nextChunk(s string) (string, string) {
	digits := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digits {
		i++
	}
	return s[:i], s[i:]
}

func compareChunk(a, b string) int {
	if isDigit(a[0]) && isDigit(b[0]) {
		ta := strings.TrimLeft(a, "0")
		tb := strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			if len(ta) < len(tb) {
				return -1
			}
			return 1
		}
		return strings.Compare(ta, tb)
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
