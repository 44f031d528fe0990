// Package engine runs one interpreter process under resource limits.
package engine

import (
	"context"

	"arete/internal/interview/sandbox/result"
	"arete/internal/interview/sandbox/spec"
)

// Engine executes a RunSpec in its own process group.
// A returned error means the process could not be run at all; anything the process
// itself did, including being killed, is described by the RunResult.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
}
