package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"arete/internal/interview/sandbox/engine"
	"arete/internal/interview/sandbox/observer"
	"arete/internal/interview/sandbox/result"
	"arete/internal/interview/sandbox/spec"
	appErr "arete/pkg/errors"
	"arete/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxConcurrent  = 4
	defaultQueueTimeout   = 2 * time.Second
	defaultMaxSourceBytes = 64 * 1024
)

// Config controls the executor.
type Config struct {
	WorkRoot       string             `yaml:"workRoot"`
	PythonPath     string             `yaml:"pythonPath"`
	MaxConcurrent  int                `yaml:"maxConcurrent"`
	QueueTimeout   time.Duration      `yaml:"queueTimeout"`
	MaxSourceBytes int                `yaml:"maxSourceBytes"`
	Limits         spec.ResourceLimit `yaml:"limits"`
}

// Executor runs submissions through an Engine, one interpreter process per call.
type Executor struct {
	cfg      Config
	engine   engine.Engine
	recorder observer.MetricsRecorder
	python   string
	sem      chan struct{}
	inFlight atomic.Int64
}

// NewExecutor resolves the interpreter and prepares the worker slots.
func NewExecutor(cfg Config, eng engine.Engine, recorder observer.MetricsRecorder) (*Executor, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if recorder == nil {
		recorder = observer.Nop{}
	}
	if cfg.PythonPath == "" {
		cfg.PythonPath = "python3"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = defaultQueueTimeout
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = defaultMaxSourceBytes
	}
	cfg.Limits = cfg.Limits.WithDefaults()

	python, err := exec.LookPath(cfg.PythonPath)
	if err != nil {
		return nil, fmt.Errorf("resolve interpreter %q: %w", cfg.PythonPath, err)
	}
	if cfg.WorkRoot != "" {
		if err := os.MkdirAll(cfg.WorkRoot, 0o755); err != nil {
			return nil, fmt.Errorf("create work root: %w", err)
		}
	}
	return &Executor{
		cfg:      cfg,
		engine:   eng,
		recorder: recorder,
		python:   python,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// Execute runs req and returns its report.
//
// Timeouts, crashes and per-case exceptions are described by the report. A returned
// error means the sandbox itself could not run the submission.
func (e *Executor) Execute(ctx context.Context, req Request) (result.Report, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if len(req.Source) > e.cfg.MaxSourceBytes {
		return result.Report{}, appErr.New(appErr.CodeTooLarge).
			WithDetail("size", len(req.Source)).
			WithDetail("limit", e.cfg.MaxSourceBytes)
	}

	waitStart := time.Now()
	if err := e.acquireSlot(ctx); err != nil {
		e.recorder.ObserveQueueWait(ctx, time.Since(waitStart), false)
		return result.Report{}, err
	}
	e.recorder.ObserveQueueWait(ctx, time.Since(waitStart), true)
	defer e.releaseSlot()

	workDir, err := e.prepareWorkspace(req)
	if err != nil {
		return result.Report{}, appErr.Wrapf(err, appErr.SandboxUnavailable, "prepare sandbox workspace failed")
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn(ctx, "remove sandbox workspace failed", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	limits := mergeLimits(e.cfg.Limits, req.Limits)
	runSpec := spec.RunSpec{
		RunID:      req.RunID,
		WorkDir:    workDir,
		Cmd:        []string{e.python, "-I", "-B", harnessFile, solutionFile, casesFile, reportFile},
		Env:        sandboxEnv(),
		StdoutPath: filepath.Join(workDir, stdoutFile),
		StderrPath: filepath.Join(workDir, stderrFile),
		Limits:     limits,
	}

	run, err := e.engine.Run(ctx, runSpec)
	if err != nil {
		return result.Report{}, appErr.Wrapf(err, appErr.SandboxUnavailable, "sandbox run failed")
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !run.TimedOut {
		return result.Report{}, appErr.Wrapf(ctxErr, appErr.Timeout, "sandbox run cancelled")
	}

	report := e.buildReport(ctx, req, run, limits, workDir)
	report.ExecutionTimeMs = run.WallTimeMs

	e.recorder.ObserveRun(ctx, req.ProblemID, report.Verdict(), run.WallTimeMs, run.MemoryKB)
	logger.Info(ctx, "sandbox run finished",
		zap.String("run_id", req.RunID),
		zap.String("problem_id", req.ProblemID),
		zap.String("verdict", report.Verdict()),
		zap.Int("passed", report.Passed),
		zap.Int("total", report.Total),
		zap.Int64("wall_ms", run.WallTimeMs),
		zap.Int64("cpu_ms", run.TimeMs),
	)
	return report, nil
}

func (e *Executor) buildReport(ctx context.Context, req Request, run result.RunResult, limits spec.ResourceLimit, workDir string) result.Report {
	total := len(req.Cases)
	if run.TimedOut {
		return result.AllFailed(total, fmt.Sprintf("%s: execution exceeded %s", result.TimeoutPrefix, limits.WallTime()))
	}
	if run.CPULimit {
		return result.AllFailed(total, fmt.Sprintf("%s: cpu time limit of %dms exceeded", result.TimeoutPrefix, limits.CPUTimeMs))
	}

	hr, err := readHarnessReport(filepath.Join(workDir, reportFile))
	if err != nil || (hr.LoadError == nil && hr.Function != nil && len(hr.Results) != total) {
		logger.Warn(ctx, "sandbox produced no report",
			zap.String("run_id", req.RunID),
			zap.Int("exit_code", run.ExitCode),
			zap.String("signal", run.Signal),
			zap.String("stderr", run.Stderr),
			zap.Error(err),
		)
		return result.AllFailed(total, fmt.Sprintf("%s (process crashed: %s)", result.ExecutionFailedPrefix, describeExit(run)))
	}
	if hr.LoadError != nil {
		return result.AllFailed(total, *hr.LoadError)
	}
	if hr.Function == nil {
		return result.AllFailed(total, result.NoFunctionMessage)
	}

	report := result.Report{Total: total, Details: []result.CaseDetail{}}
	for i, tc := range req.Cases {
		r := hr.Results[i]
		if !r.OK {
			report.Failed++
			report.Details = append(report.Details, result.CaseDetail{
				Case:  i + 1,
				Input: tc.Input,
				Error: r.Error,
			})
			continue
		}
		if Equal(tc.Expected, r.Actual, req.OrderInsensitive) {
			report.Passed++
			continue
		}
		report.Failed++
		report.Details = append(report.Details, result.CaseDetail{
			Case:     i + 1,
			Input:    tc.Input,
			Expected: tc.Expected,
			Actual:   r.Actual,
		})
	}
	return report
}

func (e *Executor) prepareWorkspace(req Request) (string, error) {
	workDir, err := os.MkdirTemp(e.cfg.WorkRoot, "run-")
	if err != nil {
		return "", err
	}
	cases, err := json.Marshal(req.Cases)
	if err != nil {
		_ = os.RemoveAll(workDir)
		return "", fmt.Errorf("encode cases: %w", err)
	}
	files := map[string][]byte{
		harnessFile:  harnessSource,
		solutionFile: []byte(req.Source),
		casesFile:    cases,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(workDir, name), data, 0o644); err != nil {
			_ = os.RemoveAll(workDir)
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	return workDir, nil
}

func (e *Executor) acquireSlot(ctx context.Context) error {
	timer := time.NewTimer(e.cfg.QueueTimeout)
	defer timer.Stop()
	select {
	case e.sem <- struct{}{}:
		e.recorder.SetInFlight(int(e.inFlight.Add(1)))
		return nil
	case <-ctx.Done():
		return appErr.Wrapf(ctx.Err(), appErr.Timeout, "waiting for sandbox slot cancelled")
	case <-timer.C:
		return appErr.New(appErr.SandboxQueueFull).WithMessage("sandbox worker pool is full")
	}
}

func (e *Executor) releaseSlot() {
	select {
	case <-e.sem:
		e.recorder.SetInFlight(int(e.inFlight.Add(-1)))
	default:
	}
}

func readHarnessReport(path string) (harnessReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return harnessReport{}, err
	}
	var hr harnessReport
	if err := json.Unmarshal(data, &hr); err != nil {
		return harnessReport{}, fmt.Errorf("decode report: %w", err)
	}
	return hr, nil
}

func mergeLimits(base, override spec.ResourceLimit) spec.ResourceLimit {
	out := base
	if override.WallTimeMs > 0 {
		out.WallTimeMs = override.WallTimeMs
		if override.CPUTimeMs <= 0 && out.CPUTimeMs > out.WallTimeMs {
			out.CPUTimeMs = out.WallTimeMs
		}
	}
	if override.CPUTimeMs > 0 {
		out.CPUTimeMs = override.CPUTimeMs
	}
	if override.MemoryMB > 0 {
		out.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		out.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		out.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		out.PIDs = override.PIDs
	}
	return out.WithDefaults()
}

func sandboxEnv() []string {
	env := []string{"LANG=C.UTF-8"}
	for _, key := range []string{"PATH", "HOME"} {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return env
}

func describeExit(run result.RunResult) string {
	if run.Signal != "" {
		return "killed by " + run.Signal
	}
	return fmt.Sprintf("exit code %d", run.ExitCode)
}
