package service

import (
	"context"
	"strings"
	"time"

	"arete/internal/interview/eventlog"
	appErr "arete/pkg/errors"
	"arete/pkg/utils/logger"

	"go.uber.org/zap"
)

const maxEventQueryLimit = 1000

// EventQuery narrows Events. Zero values match everything.
type EventQuery struct {
	Type  string
	Since time.Time
	Limit int
}

// Events returns a session's events, most recent first.
func (s *InterviewService) Events(ctx context.Context, sessionID string, q EventQuery) ([]eventlog.Event, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, appErr.ValidationError("session_id", "required")
	}
	f := eventlog.Filter{SessionID: sessionID, Since: q.Since, Limit: q.Limit}
	if q.Type != "" {
		t := eventlog.EventType(strings.ToUpper(q.Type))
		if !t.Valid() {
			return nil, appErr.ValidationError("type", "unknown event type")
		}
		f.Type = t
	}
	if f.Limit < 0 {
		return nil, appErr.ValidationError("limit", "must not be negative")
	}
	if f.Limit == 0 || f.Limit > maxEventQueryLimit {
		f.Limit = maxEventQueryLimit
	}
	return s.events.Query(f), nil
}

// Transcript returns the conversational projection of a session's events.
func (s *InterviewService) Transcript(ctx context.Context, sessionID string) ([]eventlog.TranscriptEntry, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, appErr.ValidationError("session_id", "required")
	}
	return s.events.Transcript(sessionID), nil
}

// ClearEvents drops a session's events and any cached report built from them.
func (s *InterviewService) ClearEvents(ctx context.Context, sessionID string) (int, error) {
	if strings.TrimSpace(sessionID) == "" {
		return 0, appErr.ValidationError("session_id", "required")
	}
	n := s.events.Clear(sessionID)
	s.reports.Remove(sessionID)
	logger.Info(logger.WithSession(ctx, sessionID), "session events cleared", zap.Int("count", n))
	return n, nil
}
