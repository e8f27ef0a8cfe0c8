// internal/results/junit.go
package results

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/beevik/etree"
)

// Summary aggregates the outcome of one runner batch.
type Summary struct {
	Tests    int
	Failures int
	Errors   int
	Skipped  int
	Duration time.Duration
	// Failed lists "suite > case" for every failing or erroring test case.
	Failed []string
}

// Passed returns the number of test cases that neither failed, errored nor were skipped.
func (s Summary) Passed() int {
	n := s.Tests - s.Failures - s.Errors - s.Skipped
	if n < 0 {
		return 0
	}
	return n
}

// OK reports whether the batch had no failures or errors.
func (s Summary) OK() bool { return s.Failures == 0 && s.Errors == 0 }

// ErrNoReport is returned when the runner produced no JUnit file.
var ErrNoReport = errors.New("junit report not found")

// ParseJUnitFile reads the JUnit XML written by the runner.
func ParseJUnitFile(path string) (*Summary, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoReport
		}
		return nil, fmt.Errorf("failed to read junit report %s: %w", path, err)
	}
	return summarize(doc)
}

// ParseJUnit parses JUnit XML from memory.
func ParseJUnit(data []byte) (*Summary, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse junit report: %w", err)
	}
	return summarize(doc)
}

// summarize counts test cases directly instead of trusting suite attributes,
// which some reporters leave at zero for nested suites.
func summarize(doc *etree.Document) (*Summary, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("junit report has no root element")
	}
	if root.Tag != "testsuites" && root.Tag != "testsuite" {
		return nil, fmt.Errorf("unexpected junit root element <%s>", root.Tag)
	}

	s := &Summary{}
	if d, ok := secondsAttr(root, "time"); ok {
		s.Duration = d
	}

	var suiteTime time.Duration
	for _, tc := range root.FindElements("//testcase") {
		s.Tests++
		switch {
		case tc.SelectElement("failure") != nil:
			s.Failures++
			s.Failed = append(s.Failed, caseName(tc))
		case tc.SelectElement("error") != nil:
			s.Errors++
			s.Failed = append(s.Failed, caseName(tc))
		case tc.SelectElement("skipped") != nil:
			s.Skipped++
		}
		if d, ok := secondsAttr(tc, "time"); ok {
			suiteTime += d
		}
	}
	if s.Duration == 0 {
		s.Duration = suiteTime
	}
	return s, nil
}

func caseName(tc *etree.Element) string {
	name := tc.SelectAttrValue("name", "(unnamed)")
	if class := tc.SelectAttrValue("classname", ""); class != "" {
		return class + " > " + name
	}
	return name
}

func secondsAttr(e *etree.Element, key string) (time.Duration, bool) {
	v := e.SelectAttrValue(key, "")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}
