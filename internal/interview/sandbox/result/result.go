// Package result defines the report produced by one sandbox execution.
package result

import "encoding/json"

// Stderr prefixes that let callers tell execution outcomes apart.
const (
	TimeoutPrefix         = "timeout"
	ExecutionFailedPrefix = "execution failed"
	NoFunctionMessage     = "No function defined"
)

// CaseDetail describes one case that did not pass.
// Error is set when the case raised; Expected and Actual when it returned a wrong value.
type CaseDetail struct {
	Case     int             `json:"case"`
	Input    json.RawMessage `json:"input"`
	Expected json.RawMessage `json:"expected,omitempty"`
	Actual   json.RawMessage `json:"actual,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Report is the structured outcome of running a submission against its cases.
type Report struct {
	Passed          int          `json:"passed"`
	Failed          int          `json:"failed"`
	Total           int          `json:"total"`
	Details         []CaseDetail `json:"details"`
	Stderr          string       `json:"stderr,omitempty"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
}

// AllFailed builds a report for a submission that produced no per-case results.
func AllFailed(total int, stderr string) Report {
	return Report{
		Passed:  0,
		Failed:  total,
		Total:   total,
		Details: []CaseDetail{},
		Stderr:  stderr,
	}
}

// OK reports whether every case passed.
func (r Report) OK() bool {
	return r.Failed == 0 && r.Stderr == ""
}

// TimedOut reports whether the run was killed by the wall-clock limit.
func (r Report) TimedOut() bool {
	return hasPrefix(r.Stderr, TimeoutPrefix)
}

// Crashed reports whether the process ended without writing a report.
func (r Report) Crashed() bool {
	return hasPrefix(r.Stderr, ExecutionFailedPrefix)
}

// Verdict classifies the report for metrics labels.
func (r Report) Verdict() string {
	switch {
	case r.TimedOut():
		return "timeout"
	case r.Crashed():
		return "crash"
	case r.Stderr != "":
		return "error"
	case r.Failed > 0:
		return "wrong_answer"
	default:
		return "accepted"
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// RunResult captures raw data from one interpreter process.
type RunResult struct {
	ExitCode   int
	Signal     string
	TimedOut   bool
	CPULimit   bool
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	Stdout     string
	Stderr     string
}
