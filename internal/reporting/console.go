// internal/reporting/console.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/acquire"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/runner"
	"github.com/xkilldash9x/regress-cli/internal/session"
)

type styles struct {
	title lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
	code  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title: r.NewStyle().Bold(true),
		ok:    r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		fail:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warn:  r.NewStyle().Foreground(lipgloss.Color("11")),
		muted: r.NewStyle().Foreground(lipgloss.Color("8")),
		code:  r.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

// Console prints human-facing command summaries.
type Console struct {
	out io.Writer
	st  styles
}

// NewConsole styles output for w's terminal capabilities.
func NewConsole(w io.Writer) *Console {
	return &Console{out: w, st: newStyles(lipgloss.NewRenderer(w))}
}

// Generation lists per-case outcomes followed by a total.
func (c *Console) Generation(results []schemas.GenerationResult) {
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
			fmt.Fprintf(c.out, "%s %s %s\n", c.st.ok.Render("✓"), r.TestID, c.st.muted.Render(r.FilePath))
			continue
		}
		fmt.Fprintf(c.out, "%s %s %s\n", c.st.fail.Render("✗"), r.TestID, r.Error)
	}
	line := fmt.Sprintf("Generated %d/%d tests.", ok, len(results))
	if ok == len(results) {
		fmt.Fprintln(c.out, c.st.title.Render(line))
	} else {
		fmt.Fprintln(c.out, c.st.warn.Render(line))
	}
}

// Run prints a batch outcome.
func (c *Console) Run(res *runner.Result) {
	if res == nil || res.TestCount == 0 {
		fmt.Fprintln(c.out, c.st.muted.Render("No tests to run."))
		return
	}

	status := c.st.ok.Render("PASSED")
	if res.ExitCode != 0 {
		status = c.st.fail.Render(fmt.Sprintf("FAILED (exit %d)", res.ExitCode))
	}
	fmt.Fprintf(c.out, "%s %d test files: %s\n", status, res.TestCount, strings.Join(res.TestIDs, ", "))

	if s := res.Summary; s != nil {
		fmt.Fprintf(c.out, "  passed %d  failed %d  errors %d  skipped %d  in %s\n",
			s.Passed(), s.Failures, s.Errors, s.Skipped, s.Duration.Round(time.Millisecond))
		for _, name := range s.Failed {
			fmt.Fprintf(c.out, "  %s %s\n", c.st.fail.Render("✗"), name)
		}
	}
	if res.LogPath != "" {
		fmt.Fprintf(c.out, "  log: %s\n", c.st.muted.Render(res.LogPath))
	}
	fmt.Fprintf(c.out, "  report: %s\n", c.st.code.Render("regress report"))
}

// Acquired confirms a persisted session.
func (c *Console) Acquired(res *acquire.Result, now time.Time) {
	fmt.Fprintf(c.out, "%s session saved to %s\n", c.st.ok.Render("✓"), res.StorePath)
	if res.FinalURL != "" {
		fmt.Fprintf(c.out, "  final URL: %s\n", res.FinalURL)
	}
	if res.Snapshot != nil {
		c.Session(session.Inspect(res.Snapshot, now), now)
	}
}

// Session prints a snapshot freshness summary.
func (c *Console) Session(sum session.Summary, now time.Time) {
	storage := "cookies and localStorage"
	if sum.HasIndexedDB {
		storage = "cookies, localStorage and IndexedDB"
	}
	fmt.Fprintf(c.out, "  %d cookies, %d origins (%s)\n", sum.Cookies, sum.Origins, storage)
	if !sum.EarliestCookieExpiry.IsZero() {
		fmt.Fprintf(c.out, "  earliest cookie expiry: %s\n", sum.EarliestCookieExpiry.Local().Format(time.RFC3339))
	}
	for _, tok := range sum.Tokens {
		fmt.Fprintf(c.out, "  token %s expires %s\n", tok.Source, tok.ExpiresAt.Local().Format(time.RFC3339))
	}
	if sum.Stale(now) {
		fmt.Fprintln(c.out, c.st.warn.Render("  some credentials have already expired; run `regress auth` again"))
	}
}

// StaleSession warns that the stored session carries expired credentials.
func (c *Console) StaleSession() {
	fmt.Fprintln(c.out, c.st.warn.Render("⚠ the stored session has expired credentials; run `regress auth` if the pre-flight step fails"))
}

// Remedy prints a resource-missing error and how to fix it.
func (c *Console) Remedy(err error) {
	fmt.Fprintf(c.out, "%s %v\n", c.st.warn.Render("!"), messageOf(err))
	if remedy := faults.RemedyOf(err); remedy != "" {
		fmt.Fprintf(c.out, "  next: %s\n", c.st.code.Render(remedy))
	}
}

// messageOf drops the remedy suffix that faults.Error.Error appends.
func messageOf(err error) string {
	msg := err.Error()
	if remedy := faults.RemedyOf(err); remedy != "" {
		msg = strings.TrimSuffix(msg, " ("+remedy+")")
	}
	return msg
}
