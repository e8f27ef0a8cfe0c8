// internal/generator/generator.go
package generator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/runner"
)

// Generator turns test cases into script files, one call per case.
type Generator struct {
	codegen   schemas.CodeGenerator
	testsDir  string
	targetURL string
	catalog   *schemas.SelectorCatalog
	logger    *zap.Logger
}

// Option customizes a Generator.
type Option func(*Generator)

// WithCatalog adds selector hints to every prompt.
func WithCatalog(c *schemas.SelectorCatalog) Option {
	return func(g *Generator) { g.catalog = c }
}

// New builds a generator that writes into testsDir.
func New(codegen schemas.CodeGenerator, testsDir, targetURL string, logger *zap.Logger, opts ...Option) *Generator {
	g := &Generator{
		codegen:   codegen,
		testsDir:  testsDir,
		targetURL: targetURL,
		logger:    logger.Named("generator"),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate processes cases in order. A failing case is recorded in its result
// and does not stop the batch; only cancellation or an unusable tests
// directory aborts it.
func (g *Generator) Generate(ctx context.Context, cases []schemas.TestCase) ([]schemas.GenerationResult, error) {
	if err := os.MkdirAll(g.testsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tests directory %s: %w", g.testsDir, err)
	}

	results := make([]schemas.GenerationResult, 0, len(cases))
	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := g.generateOne(ctx, tc)
		if !res.Success {
			g.logger.Warn("Generation failed.", zap.String("test_id", tc.TestID), zap.String("error", res.Error))
		} else {
			g.logger.Info("Generated test.", zap.String("test_id", tc.TestID), zap.String("file", res.FilePath))
		}
		results = append(results, res)
	}
	return results, nil
}

func (g *Generator) generateOne(ctx context.Context, tc schemas.TestCase) schemas.GenerationResult {
	res := schemas.GenerationResult{TestID: tc.TestID}
	if !validID(tc.TestID) {
		res.Error = fmt.Sprintf("test id %q cannot be used as a file name", tc.TestID)
		return res
	}

	code, err := g.codegen.GenerateTest(ctx, schemas.GenerationRequest{
		Case:      tc,
		TargetURL: g.targetURL,
		Catalog:   g.catalog,
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}

	path := filepath.Join(g.testsDir, tc.TestID+runner.SpecSuffix)
	if err := os.WriteFile(path, []byte(code+"\n"), 0o644); err != nil {
		res.Error = fmt.Sprintf("failed to write %s: %v", path, err)
		return res
	}
	res.Success = true
	res.FilePath = path
	return res
}

// validID rejects ids that would escape the tests directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id
}

// Succeeded counts successful results.
func Succeeded(results []schemas.GenerationResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

// LoadCatalog reads an optional selector catalog.
func LoadCatalog(path string) (*schemas.SelectorCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, faults.Missing("generate.catalog", filepath.Base(path), "check the --catalog path")
		}
		return nil, fmt.Errorf("failed to read selector catalog %s: %w", path, err)
	}
	var c schemas.SelectorCatalog
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("selector catalog %s is invalid: %w", path, err)
	}
	return &c, nil
}
