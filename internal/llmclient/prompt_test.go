// internal/llmclient/prompt_test.go
package llmclient

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/regress-cli/api/schemas"
)

func TestBuildPrompt_CaseFields(t *testing.T) {
	prompt, err := BuildPrompt(sampleRequest())
	require.NoError(t, err)

	assert.Contains(t, prompt, "- Test ID: 3")
	assert.Contains(t, prompt, "- Purpose: Orders can be confirmed")
	assert.Contains(t, prompt, "- Precondition: Cart has one item")
	assert.Contains(t, prompt, "- Expected result: Confirmation dialog is shown")
	assert.Contains(t, prompt, "- Target URL: https://app.example.com/home")
	assert.Contains(t, prompt, "./scenario-state")
	assert.NotContains(t, prompt, "[Known selectors")
}

func TestBuildPrompt_SelectorCatalog(t *testing.T) {
	req := sampleRequest()
	entries := make([]schemas.SelectorEntry, 0, maxSelectorsPerPage+5)
	for i := 0; i < maxSelectorsPerPage+5; i++ {
		entries = append(entries, schemas.SelectorEntry{Kind: "button", Selector: fmt.Sprintf("#btn-%d", i)})
	}
	entries[0].SampleText = "Buy"
	req.Catalog = &schemas.SelectorCatalog{
		BaseURL: "https://app.example.com",
		Pages:   []schemas.PageSelectors{{Path: "/shop", Selectors: entries}},
	}

	prompt, err := BuildPrompt(req)
	require.NoError(t, err)
	assert.Contains(t, prompt, "[Known selectors on https://app.example.com]")
	assert.Contains(t, prompt, "/shop:")
	assert.Contains(t, prompt, `  - button: #btn-0 ("Buy")`)
	assert.Contains(t, prompt, fmt.Sprintf("#btn-%d\n", maxSelectorsPerPage-1))
	assert.NotContains(t, prompt, fmt.Sprintf("#btn-%d\n", maxSelectorsPerPage))
	assert.Equal(t, maxSelectorsPerPage, strings.Count(prompt, "  - button:"))
}
