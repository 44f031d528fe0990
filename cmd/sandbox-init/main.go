//go:build linux

// sandbox-init applies resource ceilings and an optional seccomp filter to itself,
// then execs the interpreter named in the request read from stdin.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

const defaultPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run() error {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	if err := os.Chdir(req.RunSpec.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := applyRlimits(req.RunSpec.Limits); err != nil {
		return err
	}
	if err := redirectIO(req.RunSpec); err != nil {
		return err
	}
	if req.EnableSeccomp && req.SeccompProfile != "" {
		if err := applySeccomp(req.SeccompProfile); err != nil {
			return err
		}
	}

	env := req.RunSpec.Env
	if len(env) == 0 {
		env = []string{defaultPath}
	}
	cmdPath, err := lookPath(req.RunSpec.Cmd[0], env)
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	return unix.Exec(cmdPath, req.RunSpec.Cmd, env)
}

func decodeRequest(r io.Reader) (initRequest, error) {
	var req initRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return initRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func validateRequest(req initRequest) error {
	if len(req.RunSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if req.RunSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	return nil
}

// lookPath resolves cmd against the PATH the child will run with.
func lookPath(cmd string, env []string) (string, error) {
	if strings.Contains(cmd, "/") {
		return cmd, nil
	}
	for _, kv := range env {
		if p, ok := strings.CutPrefix(kv, "PATH="); ok {
			if err := os.Setenv("PATH", p); err != nil {
				return "", err
			}
			break
		}
	}
	return exec.LookPath(cmd)
}

func applyRlimits(limits resourceLimit) error {
	set := func(resource int, v uint64, name string) error {
		if err := unix.Setrlimit(resource, &unix.Rlimit{Cur: v, Max: v}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", name, err)
		}
		return nil
	}
	if limits.CPUTimeMs > 0 {
		if err := set(unix.RLIMIT_CPU, uint64((limits.CPUTimeMs+999)/1000), "cpu"); err != nil {
			return err
		}
	}
	if limits.MemoryMB > 0 {
		if err := set(unix.RLIMIT_AS, uint64(limits.MemoryMB)<<20, "as"); err != nil {
			return err
		}
	}
	if limits.OutputMB > 0 {
		if err := set(unix.RLIMIT_FSIZE, uint64(limits.OutputMB)<<20, "fsize"); err != nil {
			return err
		}
	}
	if limits.StackMB > 0 {
		if err := set(unix.RLIMIT_STACK, uint64(limits.StackMB)<<20, "stack"); err != nil {
			return err
		}
	}
	if limits.PIDs > 0 {
		if err := set(unix.RLIMIT_NPROC, uint64(limits.PIDs), "nproc"); err != nil {
			return err
		}
	}
	return nil
}

func redirectIO(rs runSpec) error {
	stdoutPath := rs.StdoutPath
	if stdoutPath == "" {
		stdoutPath = "/dev/null"
	}
	stderrPath := rs.StderrPath
	if stderrPath == "" {
		stderrPath = "/dev/null"
	}
	stdinFile, err := os.Open("/dev/null")
	if err != nil {
		return fmt.Errorf("open stdin: %w", err)
	}
	stdoutFile, err := os.OpenFile(stdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open stdout: %w", err)
	}
	stderrFile, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open stderr: %w", err)
	}
	if err := unix.Dup2(int(stdinFile.Fd()), int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("dup stdin: %w", err)
	}
	if err := unix.Dup2(int(stdoutFile.Fd()), int(os.Stdout.Fd())); err != nil {
		return fmt.Errorf("dup stdout: %w", err)
	}
	if err := unix.Dup2(int(stderrFile.Fd()), int(os.Stderr.Fd())); err != nil {
		return fmt.Errorf("dup stderr: %w", err)
	}
	_ = stdinFile.Close()
	_ = stdoutFile.Close()
	_ = stderrFile.Close()
	return nil
}

func applySeccomp(profilePath string) error {
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return fmt.Errorf("read seccomp profile: %w", err)
	}
	var cfg seccompConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse seccomp profile: %w", err)
	}
	defaultAction, err := parseSeccompAction(cfg.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	for _, rule := range cfg.Syscalls {
		action, err := parseSeccompAction(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			if err := filter.AddRuleExact(name, action); err != nil {
				return fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

type seccompConfig struct {
	DefaultAction string           `json:"defaultAction"`
	Syscalls      []seccompSyscall `json:"syscalls"`
}

type seccompSyscall struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

func parseSeccompAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_ERRNO":
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM)), nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", action)
	}
}

// Mirrors the engine's request; field names are the JSON keys.
type initRequest struct {
	RunSpec        runSpec
	EnableSeccomp  bool
	SeccompProfile string
}

type runSpec struct {
	RunID      string
	WorkDir    string
	Cmd        []string
	Env        []string
	StdoutPath string
	StderrPath string
	Limits     resourceLimit
}

type resourceLimit struct {
	WallTimeMs int64
	CPUTimeMs  int64
	MemoryMB   int64
	StackMB    int64
	OutputMB   int64
	PIDs       int64
}
