// Package spec defines the execution specification and resource limits.
package spec

import "time"

// ResourceLimit describes hard limits enforced on the interpreter process.
//
// Without the sandbox-init helper the limits are set with prlimit right after
// the process starts, so the interpreter runs unlimited for a few instructions.
// The helper applies them before exec and has no such gap.
//
// PIDs maps to RLIMIT_NPROC, which counts every task owned by the real UID and
// not only this run. It is a ceiling for that user, so run the sandbox under a
// dedicated UID when the value should bound a single program.
type ResourceLimit struct {
	WallTimeMs int64 `yaml:"wallTimeMs"`
	CPUTimeMs  int64 `yaml:"cpuTimeMs"`
	MemoryMB   int64 `yaml:"memoryMB"`
	StackMB    int64 `yaml:"stackMB"`
	OutputMB   int64 `yaml:"outputMB"`
	PIDs       int64 `yaml:"pids"`
}

// DefaultLimits mirrors the five second wall clock of a live interview run.
func DefaultLimits() ResourceLimit {
	return ResourceLimit{
		WallTimeMs: 5000,
		CPUTimeMs:  5000,
		MemoryMB:   512,
		StackMB:    64,
		OutputMB:   8,
		PIDs:       16,
	}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l ResourceLimit) WithDefaults() ResourceLimit {
	d := DefaultLimits()
	if l.WallTimeMs <= 0 {
		l.WallTimeMs = d.WallTimeMs
	}
	if l.CPUTimeMs <= 0 {
		l.CPUTimeMs = l.WallTimeMs
	}
	if l.MemoryMB <= 0 {
		l.MemoryMB = d.MemoryMB
	}
	if l.StackMB <= 0 {
		l.StackMB = d.StackMB
	}
	if l.OutputMB <= 0 {
		l.OutputMB = d.OutputMB
	}
	if l.PIDs <= 0 {
		l.PIDs = d.PIDs
	}
	return l
}

// WallTime returns the wall clock limit as a duration.
func (l ResourceLimit) WallTime() time.Duration {
	return time.Duration(l.WallTimeMs) * time.Millisecond
}

// RunSpec is the unified execution specification for one interpreter run.
type RunSpec struct {
	RunID      string
	WorkDir    string
	Cmd        []string
	Env        []string
	StdoutPath string
	StderrPath string
	Limits     ResourceLimit
}
