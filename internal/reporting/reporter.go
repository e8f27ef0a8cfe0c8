// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/regress-cli/api/schemas"
)

// Reporter writes run history to an output.
type Reporter interface {
	// Write renders the given runs, newest first.
	Write(runs []schemas.RunRecord) error
	// Close releases the underlying output.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a history reporter. An empty path or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	switch format {
	case "json", "text":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWriter(format, writer)
}

// NewWriter creates a history reporter that takes ownership of w.
func NewWriter(format string, w io.WriteCloser) (Reporter, error) {
	switch format {
	case "json":
		return &jsonReporter{w: w}, nil
	case "text":
		return &textReporter{w: w, st: newStyles(lipgloss.NewRenderer(w))}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

type jsonReporter struct {
	w io.WriteCloser
}

func (r *jsonReporter) Write(runs []schemas.RunRecord) error {
	if runs == nil {
		runs = []schemas.RunRecord{}
	}
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(runs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run history: %w", err)
	}
	_, err = fmt.Fprintln(r.w, string(data))
	return err
}

func (r *jsonReporter) Close() error { return r.w.Close() }

type textReporter struct {
	w  io.WriteCloser
	st styles
}

func (r *textReporter) Write(runs []schemas.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(r.w, r.st.muted.Render("No runs recorded yet."))
		return err
	}

	var b strings.Builder
	b.WriteString(r.st.title.Render("Recent runs"))
	b.WriteString("\n")
	for _, run := range runs {
		status := r.st.ok.Render("PASS")
		if run.ExitCode != 0 || run.Failures > 0 {
			status = r.st.fail.Render("FAIL")
		}
		fmt.Fprintf(&b, "%s  %s  %-8s %3d tests  %3d failed  %s\n",
			status,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Mode,
			run.TestCount,
			run.Failures,
			r.st.muted.Render(run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()),
		)
		fmt.Fprintf(&b, "      %s %s\n", r.st.muted.Render(run.RunID), strings.Join(run.TestIDs, ","))
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *textReporter) Close() error { return r.w.Close() }
