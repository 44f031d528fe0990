package eventlog

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"arete/pkg/utils/logger"

	"go.uber.org/zap"
)

type entry struct {
	event   Event
	deleted bool
}

// Log is an append-only event store indexed by session.
// Entries are never moved; Clear tombstones them in place so index offsets stay valid.
type Log struct {
	mu      sync.RWMutex
	entries []entry
	index   map[string][]int64

	sink Sink
	now  func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithSink forwards every appended event to s.
func WithSink(s Sink) Option {
	return func(l *Log) {
		l.sink = s
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{
		index: make(map[string][]int64),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append stores a new event and indexes it under its session.
// The entry and its index slot are written under one lock.
func (l *Log) Append(ctx context.Context, eventType EventType, sessionID string, payload map[string]any, priority Priority) Event {
	if priority == "" {
		priority = PriorityMedium
	}
	if !eventType.Valid() {
		logger.Warn(ctx, "appending unknown event type", zap.String("type", string(eventType)))
	}
	ev := Event{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   clonePayload(payload),
		Priority:  priority,
	}

	l.mu.Lock()
	ev.Timestamp = l.now()
	ev.Position = int64(len(l.entries))
	l.entries = append(l.entries, entry{event: ev})
	l.index[sessionID] = append(l.index[sessionID], ev.Position)
	l.mu.Unlock()

	ev = ev.detached()
	if l.sink != nil {
		if err := l.sink.Publish(ctx, ev); err != nil {
			logger.Warn(ctx, "forward event to sink failed",
				zap.String("session_id", sessionID),
				zap.String("type", string(eventType)),
				zap.Error(err),
			)
		}
	}
	return ev
}

// Query returns matching events, most recent first. Returned payloads are
// copies and may be modified by the caller.
func (l *Log) Query(f Filter) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	keep := func(e entry) bool {
		if e.deleted {
			return false
		}
		if f.Type != "" && e.event.Type != f.Type {
			return false
		}
		if !f.Since.IsZero() && !e.event.Timestamp.After(f.Since) {
			return false
		}
		return true
	}
	full := func() bool {
		return f.Limit > 0 && len(out) >= f.Limit
	}

	if f.SessionID != "" {
		positions := l.index[f.SessionID]
		for i := len(positions) - 1; i >= 0 && !full(); i-- {
			if e := l.entries[positions[i]]; keep(e) {
				out = append(out, e.event.detached())
			}
		}
		return nonNil(out)
	}
	for i := len(l.entries) - 1; i >= 0 && !full(); i-- {
		if e := l.entries[i]; keep(e) {
			out = append(out, e.event.detached())
		}
	}
	return nonNil(out)
}

// SessionEvents returns a session's events in append order.
func (l *Log) SessionEvents(sessionID string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := l.index[sessionID]
	out := make([]Event, 0, len(positions))
	for _, pos := range positions {
		if e := l.entries[pos]; !e.deleted {
			out = append(out, e.event.detached())
		}
	}
	return out
}

// Transcript projects a session's conversational events.
func (l *Log) Transcript(sessionID string) []TranscriptEntry {
	events := l.SessionEvents(sessionID)
	out := make([]TranscriptEntry, 0, len(events))
	for _, ev := range events {
		var role string
		switch ev.Type {
		case TypeCandidateMessage:
			role = roleCandidate
		case TypeAgentResponse, TypeHintGiven:
			role = roleInterviewer
		default:
			continue
		}
		out = append(out, TranscriptEntry{
			Role:      role,
			Content:   messageOf(ev.Payload),
			Timestamp: ev.Timestamp,
			Type:      ev.Type,
		})
	}
	return out
}

// Clear tombstones a session's events and drops its index. It returns how many
// events the session had.
func (l *Log) Clear(sessionID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions, ok := l.index[sessionID]
	if !ok {
		return 0
	}
	for _, pos := range positions {
		l.entries[pos].deleted = true
	}
	delete(l.index, sessionID)
	return len(positions)
}

// Count returns the number of live events, for one session or, with an empty id, all.
func (l *Log) Count(sessionID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if sessionID != "" {
		return len(l.index[sessionID])
	}
	n := 0
	for _, e := range l.entries {
		if !e.deleted {
			n++
		}
	}
	return n
}

// detached returns ev with a payload that shares nothing with the log.
func (ev Event) detached() Event {
	ev.Payload = clonePayload(ev.Payload)
	return ev
}

func clonePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clonePayload(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(t)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, item := range t {
			out[i] = clonePayload(item)
		}
		return out
	default:
		return v
	}
}

func messageOf(payload map[string]any) string {
	v, ok := payload["message"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func nonNil(events []Event) []Event {
	if events == nil {
		return []Event{}
	}
	return events
}
