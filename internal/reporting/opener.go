// internal/reporting/opener.go
package reporting

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/xkilldash9x/regress-cli/internal/faults"
)

// RemedyRun is shown when no HTML report exists yet.
const RemedyRun = "run `regress run` to produce a report"

// OpenFunc hands target to the desktop environment.
type OpenFunc func(ctx context.Context, target string) error

// ReportIndex is the entry page of the HTML report in dir.
func ReportIndex(dir string) string {
	return filepath.Join(dir, "index.html")
}

// OpenReport opens the last HTML report and returns its path.
func OpenReport(ctx context.Context, dir string, open OpenFunc) (string, error) {
	index := ReportIndex(dir)
	if _, err := os.Stat(index); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", faults.Missing("report.open", "HTML report", RemedyRun)
		}
		return "", fmt.Errorf("failed to stat report %s: %w", index, err)
	}
	if err := open(ctx, index); err != nil {
		return index, fmt.Errorf("failed to open report %s: %w", index, err)
	}
	return index, nil
}

// SystemOpener launches the platform's default handler and does not wait for it.
func SystemOpener(goos string) OpenFunc {
	return func(ctx context.Context, target string) error {
		name, args := openCommand(goos, target)
		cmd := exec.CommandContext(ctx, name, args...)
		if err := cmd.Start(); err != nil {
			return err
		}
		return cmd.Process.Release()
	}
}

func openCommand(goos, target string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{target}
	case "windows":
		return "cmd", []string{"/c", "start", "", target}
	default:
		return "xdg-open", []string{target}
	}
}
