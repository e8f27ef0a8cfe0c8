// internal/runner/driver.go
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hpcloud/tail"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/regress-cli/api/schemas"
	"github.com/xkilldash9x/regress-cli/internal/acquire"
	"github.com/xkilldash9x/regress-cli/internal/config"
	"github.com/xkilldash9x/regress-cli/internal/faults"
	"github.com/xkilldash9x/regress-cli/internal/results"
	"github.com/xkilldash9x/regress-cli/internal/scenario"
)

const (
	// ReuseContextEnv tells the runner to share one browser context across tests.
	ReuseContextEnv = "PW_TEST_REUSE_CONTEXT"
	// RunIDEnv exposes the batch id to test scripts.
	RunIDEnv = "REGRESS_RUN_ID"
	junitEnv = "PLAYWRIGHT_JUNIT_OUTPUT_FILE"

	// DefaultTimeout applies when no per-test timeout is configured.
	DefaultTimeout = 60 * time.Second
	// DefaultScenarioFloor is the minimum per-test timeout of a scenario run.
	DefaultScenarioFloor = 180 * time.Second

	configFileName = "playwright.config.js"
	setupFileName  = "playwright.global-setup.js"
)

// Options configures a Driver. Paths are absolute or relative to ProjectRoot.
type Options struct {
	ProjectRoot string
	TestsDir    string
	StorageDir  string
	ReportDir   string
	SessionPath string

	BaseURL       string
	Headless      bool
	Timeout       time.Duration
	ScenarioFloor time.Duration
	Workers       int
	// Command is the launcher of the test runner, normally npx.
	Command string

	// Executable and ConfigFile are baked into the pre-flight script so it
	// can call back into `bootstrap` with the same configuration.
	Executable       string
	ConfigFile       string
	ReadyPath        string
	PollInterval     time.Duration
	BootstrapTimeout time.Duration

	// Follow streams the runner log to Output while the runner executes.
	Follow bool
	Output io.Writer
}

// OptionsFromConfig derives driver options from the loaded configuration.
func OptionsFromConfig(cfg config.Interface) Options {
	p := cfg.Project()
	target := cfg.Target().URL
	return Options{
		ProjectRoot:      p.Resolve("."),
		TestsDir:         p.Resolve(p.TestsDir),
		StorageDir:       p.Resolve(p.StorageDir),
		ReportDir:        p.Resolve(p.ReportDir),
		SessionPath:      p.SessionPath(),
		BaseURL:          target,
		Headless:         cfg.Browser().Headless,
		Timeout:          cfg.Browser().Timeout(),
		ScenarioFloor:    time.Duration(cfg.Runner().ScenarioTimeoutFloorMs) * time.Millisecond,
		Workers:          cfg.Runner().Workers,
		Command:          cfg.Runner().Command,
		ReadyPath:        acquire.ResolveExpectedPath(cfg.Auth().ReadyPath, target),
		PollInterval:     cfg.Auth().PollInterval(),
		BootstrapTimeout: cfg.Browser().BootstrapTimeout(),
		Follow:           cfg.Runner().Follow,
	}
}

// Plan is a fully resolved batch, ready to execute.
type Plan struct {
	RunID   string
	Mode    schemas.RunMode
	TestIDs []string
	Files   []string
	// ReuseContext is set for scenario runs and exported as PW_TEST_REUSE_CONTEXT=1.
	ReuseContext bool
	Timeout      time.Duration
	Workers      int

	ConfigPath        string
	SetupPath         string
	LogPath           string
	JUnitPath         string
	ScenarioStatePath string
}

// Env returns the variables added to the runner's environment.
func (p *Plan) Env() []string {
	env := []string{
		RunIDEnv + "=" + p.RunID,
		junitEnv + "=" + p.JUnitPath,
	}
	if p.ReuseContext {
		env = append(env, ReuseContextEnv+"=1")
	}
	if p.ScenarioStatePath != "" {
		env = append(env, scenario.EnvVar+"="+p.ScenarioStatePath)
	}
	return env
}

// Args returns the runner arguments that follow the command.
func (p *Plan) Args() []string {
	args := append([]string{"playwright", "test"}, p.Files...)
	return append(args, "--config="+p.ConfigPath)
}

// Result is the outcome of one batch. A zero TestCount with ExitCode 0 means
// there was nothing to run.
type Result struct {
	RunID     string
	ExitCode  int
	TestCount int
	TestIDs   []string
	Summary   *results.Summary
	LogPath   string
}

// CommandFunc builds the runner process.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Option customizes a Driver.
type Option func(*Driver)

// WithLedger records every executed batch.
func WithLedger(l schemas.RunLedger) Option {
	return func(d *Driver) { d.ledger = l }
}

// WithCommand replaces process construction.
func WithCommand(fn CommandFunc) Option {
	return func(d *Driver) { d.command = fn }
}

// Driver computes a batch and delegates execution to the external runner.
type Driver struct {
	opts    Options
	logger  *zap.Logger
	ledger  schemas.RunLedger
	command CommandFunc
	newID   func() string
}

// NewDriver builds a driver.
func NewDriver(opts Options, logger *zap.Logger, options ...Option) *Driver {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ScenarioFloor <= 0 {
		opts.ScenarioFloor = DefaultScenarioFloor
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Command == "" {
		opts.Command = "npx"
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	d := &Driver{
		opts:    opts,
		logger:  logger.Named("runner"),
		command: exec.CommandContext,
		newID:   func() string { return uuid.New().String() },
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// Catalog lists the generated scripts.
func (d *Driver) Catalog() (*Catalog, error) {
	return LoadCatalog(d.opts.TestsDir)
}

// Plan resolves sel against the catalog and computes paths and settings.
// A nil plan with no error means there is nothing to run.
func (d *Driver) Plan(sel Selection) (*Plan, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	catalog, err := d.Catalog()
	if err != nil {
		return nil, err
	}
	ids, err := sel.Resolve(catalog, d.logger)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	mode := sel.Mode
	if mode == "" {
		mode = schemas.RunModeAll
	}
	runID := d.newID()
	runsDir := filepath.Join(d.opts.StorageDir, "runs")
	plan := &Plan{
		RunID:      runID,
		Mode:       mode,
		TestIDs:    ids,
		Files:      catalog.Files(ids),
		Timeout:    d.opts.Timeout,
		Workers:    d.opts.Workers,
		ConfigPath: filepath.Join(d.opts.ProjectRoot, configFileName),
		SetupPath:  filepath.Join(d.opts.ProjectRoot, setupFileName),
		LogPath:    filepath.Join(runsDir, runID+".log"),
		JUnitPath:  filepath.Join(runsDir, runID+".xml"),
	}
	if sel.Reuse() {
		plan.ReuseContext = true
		plan.Timeout = max(plan.Timeout, d.opts.ScenarioFloor)
		plan.Workers = 1
		plan.ScenarioStatePath = filepath.Join(runsDir, runID+".scenario.json")
	}
	return plan, nil
}

// Run executes one batch. The returned error covers failures to plan or to
// start the runner; failing tests are reported through Result.ExitCode.
func (d *Driver) Run(ctx context.Context, sel Selection) (*Result, error) {
	plan, err := d.Plan(sel)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		d.logger.Info("No tests to run.", zap.String("selection", sel.String()))
		return &Result{ExitCode: 0, TestCount: 0}, nil
	}

	if err := d.prepare(plan); err != nil {
		return nil, err
	}

	d.logger.Info("Starting test run.",
		zap.String("run_id", plan.RunID),
		zap.String("mode", string(plan.Mode)),
		zap.Strings("tests", plan.TestIDs),
		zap.Bool("reuse_context", plan.ReuseContext),
		zap.Duration("timeout", plan.Timeout))

	started := time.Now()
	exitCode, err := d.execute(ctx, plan)
	finished := time.Now()
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:     plan.RunID,
		ExitCode:  exitCode,
		TestCount: len(plan.TestIDs),
		TestIDs:   plan.TestIDs,
		LogPath:   plan.LogPath,
	}
	summary, err := results.ParseJUnitFile(plan.JUnitPath)
	switch {
	case err == nil:
		res.Summary = summary
	case errors.Is(err, results.ErrNoReport):
		d.logger.Debug("Runner produced no junit report.", zap.String("path", plan.JUnitPath))
	default:
		d.logger.Warn("Could not read junit report.", zap.Error(err))
	}

	d.record(ctx, plan, res, started, finished)
	d.logger.Info("Test run finished.", zap.String("run_id", plan.RunID), zap.Int("exit_code", exitCode))
	return res, nil
}

// prepare regenerates the run files and the scenario context.
func (d *Driver) prepare(plan *Plan) error {
	if err := os.MkdirAll(filepath.Dir(plan.LogPath), 0o755); err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}
	data := renderData{
		TestsDir:         d.opts.TestsDir,
		TimeoutMs:        plan.Timeout.Milliseconds(),
		BaseURL:          d.opts.BaseURL,
		SessionPath:      d.opts.SessionPath,
		Headless:         d.opts.Headless,
		ReportDir:        d.opts.ReportDir,
		JUnitPath:        plan.JUnitPath,
		Workers:          plan.Workers,
		Executable:       d.opts.Executable,
		ReadyPath:        d.opts.ReadyPath,
		PollInterval:     d.opts.PollInterval,
		BootstrapTimeout: d.opts.BootstrapTimeout,
		ConfigFile:       d.opts.ConfigFile,
	}
	if err := writeRunFiles(plan.ConfigPath, plan.SetupPath, data); err != nil {
		return err
	}
	if plan.ScenarioStatePath != "" {
		if _, err := scenario.Fresh(plan.ScenarioStatePath); err != nil {
			return err
		}
	}
	return nil
}

// execute runs the runner with its output captured in the run log, following
// the log to the console when enabled.
func (d *Driver) execute(ctx context.Context, plan *Plan) (int, error) {
	logFile, err := os.Create(plan.LogPath)
	if err != nil {
		return 1, fmt.Errorf("failed to create run log: %w", err)
	}
	defer logFile.Close()

	cmd := d.command(ctx, d.opts.Command, plan.Args()...)
	cmd.Dir = d.opts.ProjectRoot
	base := cmd.Env
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = append(base, plan.Env()...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return 1, &faults.Error{
			Kind:   faults.KindExternal,
			Op:     "run.start",
			Msg:    fmt.Sprintf("could not start %s", d.opts.Command),
			Remedy: "install Node.js and run `regress init`",
			Err:    err,
		}
	}

	var waitErr error
	if !d.opts.Follow {
		waitErr = cmd.Wait()
		return exitCode(waitErr), nil
	}

	t, err := tail.TailFile(plan.LogPath, tail.Config{
		Follow:    true,
		Poll:      true,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		d.logger.Warn("Live output unavailable, see the run log.", zap.String("path", plan.LogPath), zap.Error(err))
		return exitCode(cmd.Wait()), nil
	}
	defer t.Cleanup()

	// printed is the log offset up to which lines reached the console.
	var printed int64
	var g errgroup.Group
	g.Go(func() error {
		for line := range t.Lines {
			if line.Err != nil {
				d.logger.Debug("Error reading run log.", zap.Error(line.Err))
				continue
			}
			printed += int64(len(line.Text)) + 1
			fmt.Fprintln(d.opts.Output, line.Text)
		}
		return nil
	})
	g.Go(func() error {
		waitErr = cmd.Wait()
		// Stop closes t.Lines without reading what the runner wrote since the
		// last poll. The remainder is copied below.
		_ = t.Stop()
		return nil
	})
	_ = g.Wait()

	if err := drainLog(plan.LogPath, printed, d.opts.Output); err != nil {
		d.logger.Warn("Could not print the end of the run log.", zap.String("path", plan.LogPath), zap.Error(err))
	}
	return exitCode(waitErr), nil
}

// drainLog copies the log from offset to EOF into w, one line at a time.
func drainLog(path string, offset int64, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			fmt.Fprintln(w, strings.TrimSuffix(line, "\n"))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// exitCode maps a process outcome to an exit status. Anything other than a
// normal exit counts as 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}

func (d *Driver) record(ctx context.Context, plan *Plan, res *Result, started, finished time.Time) {
	if d.ledger == nil {
		return
	}
	rec := schemas.RunRecord{
		RunID:      plan.RunID,
		Mode:       plan.Mode,
		TestIDs:    plan.TestIDs,
		ExitCode:   res.ExitCode,
		TestCount:  res.TestCount,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
	}
	if res.Summary != nil {
		rec.Failures = res.Summary.Failures + res.Summary.Errors
	}
	if err := d.ledger.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		d.logger.Warn("Failed to record run in ledger.", zap.String("run_id", plan.RunID), zap.Error(err))
	}
}
