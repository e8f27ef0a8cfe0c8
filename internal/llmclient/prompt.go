// internal/llmclient/prompt.go
package llmclient

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/xkilldash9x/regress-cli/api/schemas"
)

// maxSelectorsPerPage bounds how much of the selector catalog reaches the prompt.
const maxSelectorsPerPage = 40

const systemPrompt = `You are an expert at writing Playwright end-to-end tests in TypeScript.
Output only TypeScript source code, with no explanation.`

var promptTemplate = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"limit": func(entries []schemas.SelectorEntry) []schemas.SelectorEntry {
		if len(entries) > maxSelectorsPerPage {
			return entries[:maxSelectorsPerPage]
		}
		return entries
	},
}).Parse(`Generate a Playwright test for the following test case.

[Test case]
- Test ID: {{.Case.TestID}}
- Purpose: {{.Case.Purpose}}
- Precondition: {{.Case.Precondition}}
- Expected result: {{.Case.Expected}}
{{- if .TargetURL}}
- Target URL: {{.TargetURL}}
{{- end}}

[Requirements]
1. Use the test() function from '@playwright/test'.
2. Implement the steps that achieve the purpose.
3. Verify the expected result with expect().
4. Include short comments that explain each step.
5. Assume the authenticated session is already loaded; do not log in.
6. To share values with later tests of a scenario run, import { getState, setState } from './scenario-state'.
{{- with .Catalog}}

[Known selectors on {{.BaseURL}}]
{{- range .Pages}}
{{.Path}}:
{{- range limit .Selectors}}
  - {{.Kind}}: {{.Selector}}{{if .SampleText}} ("{{.SampleText}}"){{end}}
{{- end}}
{{- end}}
{{- end}}

[Output]
TypeScript code only.
`))

// BuildPrompt renders the user prompt for one test case.
func BuildPrompt(req schemas.GenerationRequest) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("failed to build prompt for %s: %w", req.Case.TestID, err)
	}
	return buf.String(), nil
}
