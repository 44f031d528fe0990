// Package observer defines logging and metrics hooks for sandbox execution.
package observer

import (
	"context"
	"time"
)

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveRun(ctx context.Context, problemID, verdict string, wallTimeMs int64, memoryKB int64)
	ObserveQueueWait(ctx context.Context, wait time.Duration, admitted bool)
	SetInFlight(n int)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) ObserveRun(context.Context, string, string, int64, int64) {}
func (Nop) ObserveQueueWait(context.Context, time.Duration, bool) {}
func (Nop) SetInFlight(int) {}
