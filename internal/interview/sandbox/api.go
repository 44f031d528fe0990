// Package sandbox runs untrusted candidate code against a problem's test cases.
package sandbox

import (
	"context"

	"arete/internal/interview/model"
	"arete/internal/interview/sandbox/result"
	"arete/internal/interview/sandbox/spec"
)

// Service is the entrypoint used by the interview service for run and submit.
type Service interface {
	Execute(ctx context.Context, req Request) (result.Report, error)
}

// Request describes one execution.
//
// Source must define its entry point as the first public callable in the module:
// the first name bound at module level that does not start with an underscore and
// refers to a callable. Imports count, so helpers belong below the entry function
// or behind an underscore prefix.
type Request struct {
	// RunID tags logs and metrics; one is generated when empty.
	RunID     string
	ProblemID string
	Source    string
	Cases     []model.TestCase

	// OrderInsensitive accepts list answers with the same elements in any order.
	OrderInsensitive bool

	// Limits overrides the executor defaults field by field.
	Limits spec.ResourceLimit
}

// RequestFor builds a Request from a problem and candidate source.
func RequestFor(problem *model.Problem, source string) Request {
	return Request{
		ProblemID:        problem.ID,
		Source:           source,
		Cases:            problem.TestCases,
		OrderInsensitive: problem.OrderInsensitive,
	}
}
