//go:build !linux

package engine

import (
	"context"
	"fmt"

	"arete/internal/interview/sandbox/result"
	"arete/internal/interview/sandbox/spec"
)

type stubEngine struct{}

func NewEngine(cfg Config) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	return result.RunResult{}, fmt.Errorf("sandbox engine is only supported on linux")
}
