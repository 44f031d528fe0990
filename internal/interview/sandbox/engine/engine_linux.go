//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"arete/internal/interview/sandbox/result"
	"arete/internal/interview/sandbox/spec"
	"arete/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	defaultStdoutStderrMaxBytes int64 = 64 * 1024
)

type linuxEngine struct {
	cfg Config
}

// NewEngine creates a Linux sandbox engine.
func NewEngine(cfg Config) (Engine, error) {
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if cfg.EnableSeccomp && cfg.HelperPath == "" {
		return nil, fmt.Errorf("seccomp requires the sandbox-init helper")
	}
	return &linuxEngine{cfg: cfg}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}
	runSpec.Limits = runSpec.Limits.WithDefaults()

	var (
		cmd          *exec.Cmd
		helperStderr bytes.Buffer
	)
	if e.cfg.HelperPath != "" {
		stdinPipe := jsonToPipe(initRequest{
			RunSpec:        runSpec,
			EnableSeccomp:  e.cfg.EnableSeccomp,
			SeccompProfile: e.cfg.SeccompProfile,
		})
		defer stdinPipe.Close()

		cmd = exec.Command(e.cfg.HelperPath)
		cmd.Stdin = stdinPipe
		cmd.Stdout = io.Discard
		cmd.Stderr = &helperStderr
	} else {
		stdoutFile, err := os.OpenFile(runSpec.StdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return result.RunResult{}, fmt.Errorf("open stdout: %w", err)
		}
		defer stdoutFile.Close()
		stderrFile, err := os.OpenFile(runSpec.StderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return result.RunResult{}, fmt.Errorf("open stderr: %w", err)
		}
		defer stderrFile.Close()

		cmd = exec.Command(runSpec.Cmd[0], runSpec.Cmd[1:]...)
		cmd.Env = runSpec.Env
		cmd.Stdout = stdoutFile
		cmd.Stderr = stderrFile
	}
	cmd.Dir = runSpec.WorkDir
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, fmt.Errorf("start process: %w", err)
	}
	pid := cmd.Process.Pid

	// The process is already running here; the helper path sets limits before exec.
	if e.cfg.HelperPath == "" {
		if err := applyRlimits(pid, runSpec.Limits); err != nil {
			killProcessGroup(pid)
			_ = cmd.Wait()
			return result.RunResult{}, fmt.Errorf("apply rlimits: %w", err)
		}
	}

	var timedOut atomic.Bool
	killCtx, cancelKill := context.WithCancel(ctx)
	defer cancelKill()

	done := make(chan struct{})
	go func() {
		wallTimer := time.NewTimer(runSpec.Limits.WallTime())
		defer wallTimer.Stop()
		select {
		case <-killCtx.Done():
			killProcessGroup(pid)
		case <-wallTimer.C:
			timedOut.Store(true)
			killProcessGroup(pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	// Reap anything the interpreter left behind in its group.
	killProcessGroup(pid)

	runResult := result.RunResult{
		ExitCode:   exitCode(cmd.ProcessState),
		Signal:     signalName(cmd.ProcessState),
		TimedOut:   timedOut.Load(),
		TimeMs:     cpuTimeMs(cmd.ProcessState),
		WallTimeMs: time.Since(start).Milliseconds(),
		MemoryKB:   maxRSSKB(cmd.ProcessState),
		Stdout:     readLimitedFile(runSpec.StdoutPath, e.cfg.StdoutStderrMaxBytes),
		Stderr:     readLimitedFile(runSpec.StderrPath, e.cfg.StdoutStderrMaxBytes),
	}
	runResult.CPULimit = cpuLimitHit(cmd.ProcessState, runSpec.Limits)

	if waitErr != nil && helperStderr.Len() > 0 {
		logger.Warn(ctx, "sandbox helper failed",
			zap.String("run_id", runSpec.RunID),
			zap.String("stderr", helperStderr.String()),
		)
		if !runResult.TimedOut && runResult.Signal == "" {
			return runResult, fmt.Errorf("sandbox helper: %s", bytes.TrimSpace(helperStderr.Bytes()))
		}
	}
	return runResult, nil
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if runSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(runSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if runSpec.StdoutPath == "" || runSpec.StderrPath == "" {
		return fmt.Errorf("stdout and stderr paths are required")
	}
	return nil
}

// applyRlimits sets ceilings on an already started process.
// The CPU hard limit sits one second above the soft limit so SIGXCPU arrives first.
func applyRlimits(pid int, limits spec.ResourceLimit) error {
	set := func(resource int, cur, max uint64) error {
		return unix.Prlimit(pid, resource, &unix.Rlimit{Cur: cur, Max: max}, nil)
	}
	if limits.CPUTimeMs > 0 {
		seconds := uint64((limits.CPUTimeMs + 999) / 1000)
		if err := set(unix.RLIMIT_CPU, seconds, seconds+1); err != nil {
			return fmt.Errorf("cpu: %w", err)
		}
	}
	if limits.MemoryMB > 0 {
		n := uint64(limits.MemoryMB) << 20
		if err := set(unix.RLIMIT_AS, n, n); err != nil {
			return fmt.Errorf("as: %w", err)
		}
	}
	if limits.StackMB > 0 {
		n := uint64(limits.StackMB) << 20
		if err := set(unix.RLIMIT_STACK, n, n); err != nil {
			return fmt.Errorf("stack: %w", err)
		}
	}
	if limits.OutputMB > 0 {
		n := uint64(limits.OutputMB) << 20
		if err := set(unix.RLIMIT_FSIZE, n, n); err != nil {
			return fmt.Errorf("fsize: %w", err)
		}
	}
	// NPROC is per real UID, not per process group.
	if limits.PIDs > 0 {
		val := uint64(limits.PIDs)
		if err := set(unix.RLIMIT_NPROC, val, val); err != nil {
			return fmt.Errorf("nproc: %w", err)
		}
	}
	return nil
}

func jsonToPipe(req initRequest) io.ReadCloser {
	reader, writer := io.Pipe()
	go func() {
		err := json.NewEncoder(writer).Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	return state.ExitCode()
}

func signalName(state *os.ProcessState) string {
	if state == nil {
		return ""
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return unix.SignalName(ws.Signal())
}

func cpuLimitHit(state *os.ProcessState, limits spec.ResourceLimit) bool {
	if state == nil {
		return false
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return false
	}
	switch ws.Signal() {
	case syscall.SIGXCPU:
		return true
	case syscall.SIGKILL:
		return limits.CPUTimeMs > 0 && cpuTimeMs(state) >= limits.CPUTimeMs
	}
	return false
}

func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	return (state.UserTime() + state.SystemTime()).Milliseconds()
}

func maxRSSKB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok && usage != nil {
		return usage.Maxrss
	}
	return 0
}

func readLimitedFile(path string, maxBytes int64) string {
	if path == "" {
		return ""
	}
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return ""
	}
	return string(data)
}
