package engine

import "arete/internal/interview/sandbox/spec"

// initRequest is the JSON document sandbox-init reads from stdin.
type initRequest struct {
	RunSpec        spec.RunSpec
	EnableSeccomp  bool
	SeccompProfile string
}
