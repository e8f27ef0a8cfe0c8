// internal/generator/generator_test.go
package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/mocks"
)

func byID(id string) interface{} {
	return mock.MatchedBy(func(req schemas.GenerationRequest) bool { return req.Case.TestID == id })
}

func TestGenerate_IsolatesFailures(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tests")
	codegen := new(mocks.MockCodeGenerator)
	codegen.On("GenerateTest", mock.Anything, byID("1")).Return("test('1', async () => {});", nil)
	codegen.On("GenerateTest", mock.Anything, byID("2")).Return("", faults.External("generate.2", errors.New("quota exceeded")))
	codegen.On("GenerateTest", mock.Anything, byID("3")).Return("test('3', async () => {});", nil)

	g := New(codegen, dir, "https://app.example.com", zaptest.NewLogger(t))
	results, err := g.Generate(context.Background(), []schemas.TestCase{{TestID: "1"}, {TestID: "2"}, {TestID: "3"}})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "quota exceeded")
	assert.True(t, results[2].Success)
	assert.Equal(t, 2, Succeeded(results))

	data, err := os.ReadFile(filepath.Join(dir, "3.spec.ts"))
	require.NoError(t, err)
	assert.Equal(t, "test('3', async () => {});\n", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "2.spec.ts"))
	codegen.AssertExpectations(t)
}

func TestGenerate_PassesTargetAndCatalog(t *testing.T) {
	catalog := &schemas.SelectorCatalog{BaseURL: "https://app.example.com"}
	codegen := new(mocks.MockCodeGenerator)
	codegen.On("GenerateTest", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.TargetURL == "https://app.example.com" && req.Catalog == catalog
	})).Return("ok", nil).Once()

	g := New(codegen, t.TempDir(), "https://app.example.com", zaptest.NewLogger(t), WithCatalog(catalog))
	results, err := g.Generate(context.Background(), []schemas.TestCase{{TestID: "9"}})
	require.NoError(t, err)
	assert.True(t, results[0].Success)
	codegen.AssertExpectations(t)
}

func TestGenerate_RejectsPathLikeIDs(t *testing.T) {
	codegen := new(mocks.MockCodeGenerator)
	g := New(codegen, t.TempDir(), "", zaptest.NewLogger(t))

	results, err := g.Generate(context.Background(), []schemas.TestCase{{TestID: "../escape"}, {TestID: ".."}})
	require.NoError(t, err)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Contains(t, r.Error, "cannot be used as a file name")
	}
	codegen.AssertNotCalled(t, "GenerateTest", mock.Anything, mock.Anything)
}

func TestGenerate_StopsOnCancellation(t *testing.T) {
	codegen := new(mocks.MockCodeGenerator)
	g := New(codegen, t.TempDir(), "", zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := g.Generate(ctx, []schemas.TestCase{{TestID: "1"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadCatalog(filepath.Join(dir, "selectors.json"))
	assert.True(t, faults.Is(err, faults.KindMissing))

	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"scannedAt":"2026-01-02T03:04:05Z","baseUrl":"https://a.example","pages":[{"path":"/home","url":"https://a.example/home","selectors":[{"kind":"button","selector":"#buy","sampleText":"Buy"}]}]}`), 0o644))
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", c.BaseURL)
	require.Len(t, c.Pages, 1)
	assert.Equal(t, "#buy", c.Pages[0].Selectors[0].Selector)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadCatalog(bad)
	assert.Error(t, err)
}
