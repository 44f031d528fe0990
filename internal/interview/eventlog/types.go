// Package eventlog is the in-process, session-indexed log of interview events.
package eventlog

import "time"

// EventType is the closed set of things that can happen in a session.
type EventType string

const (
	TypeCodeSnapshot     EventType = "CODE_SNAPSHOT"
	TypeInterrupt        EventType = "INTERRUPT"
	TypeEncourage        EventType = "ENCOURAGE"
	TypeRunResult        EventType = "RUN_RESULT"
	TypeHintGiven        EventType = "HINT_GIVEN"
	TypeFinalVerdict     EventType = "FINAL_VERDICT"
	TypeCandidateMessage EventType = "CANDIDATE_MESSAGE"
	TypeAgentResponse    EventType = "AGENT_RESPONSE"
	TypeSessionStart     EventType = "SESSION_START"
	TypeSessionEnd       EventType = "SESSION_END"
)

var knownTypes = map[EventType]struct{}{
	TypeCodeSnapshot:     {},
	TypeInterrupt:        {},
	TypeEncourage:        {},
	TypeRunResult:        {},
	TypeHintGiven:        {},
	TypeFinalVerdict:     {},
	TypeCandidateMessage: {},
	TypeAgentResponse:    {},
	TypeSessionStart:     {},
	TypeSessionEnd:       {},
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// Priority is the handling priority of an event.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Event is an immutable record. Position is its absolute offset in the log.
type Event struct {
	Position  int64          `json:"position"`
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	Priority  Priority       `json:"priority"`
}

// Filter narrows Query. Zero values match everything.
type Filter struct {
	Type      EventType
	SessionID string
	// Since keeps events strictly after this instant.
	Since time.Time
	Limit int
}

// TranscriptEntry is one conversational event projected for display.
type TranscriptEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

const (
	roleCandidate   = "candidate"
	roleInterviewer = "interviewer"
)
