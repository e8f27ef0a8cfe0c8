// cmd/regress/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/regress-cli/cmd"
	"github.com/xkilldash9x/regress-cli/internal/observability"
)

const panicLogFile = "regress-panic.log"

var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	// Ctrl+C cancels in-flight browser and runner work; deferred cleanup still runs.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()

	switch {
	case err == nil:
		return
	case errors.Is(err, context.Canceled):
		osExit(130)
	default:
		osExit(cmd.ExitCode(err))
	}
}

// handlePanic writes the stack to a file so a crash report survives a cleared terminal.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	msg := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(msg), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to write panic log: %v\n%s\n", err, msg)
		osExit(2)
		return
	}
	fmt.Fprintf(os.Stderr, "regress crashed; details written to %s\n", panicLogFile)
	osExit(2)
}
