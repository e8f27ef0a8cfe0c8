// internal/runner/selection.go
package runner

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/faults"
)

// Selection says which tests a batch runs and in what order.
type Selection struct {
	Mode schemas.RunMode
	// IDs is the caller-ordered list for explicit and scenario modes.
	IDs []string
	// From is the first test of a from-mode run.
	From string
}

// ParseIDList splits a comma separated id list, trimming blanks.
func ParseIDList(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Reuse reports whether the batch shares one browser context across tests.
func (s Selection) Reuse() bool { return s.Mode == schemas.RunModeScenario }

// Resolve returns the ids to run, in run order.
func (s Selection) Resolve(c *Catalog, logger *zap.Logger) ([]string, error) {
	switch s.Mode {
	case schemas.RunModeAll, "":
		return append([]string(nil), c.IDs...), nil

	case schemas.RunModeExplicit:
		if len(s.IDs) == 0 {
			return append([]string(nil), c.IDs...), nil
		}
		ids := make([]string, 0, len(s.IDs))
		for _, id := range s.IDs {
			if !c.Has(id) {
				logger.Warn("Skipping unknown test id.", zap.String("test_id", id), zap.String("dir", c.Dir))
				continue
			}
			ids = append(ids, id)
		}
		return ids, nil

	case schemas.RunModeScenario:
		if len(s.IDs) == 0 {
			return append([]string(nil), c.IDs...), nil
		}
		var unknown []string
		for _, id := range s.IDs {
			if !c.Has(id) {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			return nil, faults.Config("run.scenario", "unknown test ids: %s", strings.Join(unknown, ", "))
		}
		return append([]string(nil), s.IDs...), nil

	case schemas.RunModeFrom:
		for i, id := range c.IDs {
			if id == s.From {
				return append([]string(nil), c.IDs[i:]...), nil
			}
		}
		return nil, faults.Config("run.from", "test id %q not found in %s", s.From, c.Dir)

	default:
		return nil, faults.Config("run", "unknown run mode %q", s.Mode)
	}
}

// Validate rejects contradictory selections before any work.
func (s Selection) Validate() error {
	if s.Mode == schemas.RunModeFrom {
		if s.From == "" {
			return faults.Config("run.from", "a starting test id is required")
		}
		if len(s.IDs) > 0 {
			return faults.Config("run.from", "--from cannot be combined with explicit test ids")
		}
	}
	return nil
}

func (s Selection) String() string {
	switch s.Mode {
	case schemas.RunModeFrom:
		return fmt.Sprintf("from %s", s.From)
	case schemas.RunModeScenario, schemas.RunModeExplicit:
		if len(s.IDs) > 0 {
			return fmt.Sprintf("%s %s", s.Mode, strings.Join(s.IDs, ","))
		}
		return string(s.Mode) + " (all)"
	default:
		return "all"
	}
}
