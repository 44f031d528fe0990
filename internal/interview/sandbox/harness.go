package sandbox

import (
	_ "embed"
	"encoding/json"
)

//go:embed harness.py
var harnessSource []byte

const (
	harnessFile  = "harness.py"
	solutionFile = "solution.py"
	casesFile    = "cases.json"
	reportFile   = "report.json"
	stdoutFile   = "stdout.txt"
	stderrFile   = "stderr.txt"
)

// harnessReport is what harness.py writes to report.json.
type harnessReport struct {
	LoadError *string         `json:"load_error"`
	Function  *string         `json:"function"`
	Results   []harnessResult `json:"results"`
}

type harnessResult struct {
	OK     bool            `json:"ok"`
	Actual json.RawMessage `json:"actual"`
	Error  string          `json:"error"`
}
