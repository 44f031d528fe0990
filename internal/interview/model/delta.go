package model

import (
	"slices"
	"time"
)

// Delta is a state update. Pointer fields overwrite when non-nil, slice fields are
// appended after existing entries, and counters only ever grow.
// Applying the same Delta twice duplicates its append fragments.
type Delta struct {
	CodeSnapshot     *string
	LastCodeChangeAt *time.Time
	EndedAt          *time.Time
	CurrentAnalysis  *Action
	InterviewerNotes *string
	RawScores        *Scores
	FairnessResult   *FairnessResult

	FinalRecommendation *string
	MarkComplete        bool

	AddHints          int
	AddEncouragements int

	Turns       []Turn
	CodeHistory []CodeSnapshot
	Submissions []Submission
}

// Apply returns a new state with d merged into s. The input state is not modified.
//
// The completion flag can only be raised. Raw scores are kept only on a completed
// state and a fairness result only once raw scores exist.
func Apply(s *SessionState, d Delta) *SessionState {
	next := *s

	if d.CodeSnapshot != nil {
		next.CodeSnapshot = *d.CodeSnapshot
	}
	if d.LastCodeChangeAt != nil {
		next.LastCodeChangeAt = timePtr(*d.LastCodeChangeAt)
	}
	if d.EndedAt != nil {
		next.EndedAt = timePtr(*d.EndedAt)
	}
	if d.CurrentAnalysis != nil {
		next.CurrentAnalysis = *d.CurrentAnalysis
	}
	if d.InterviewerNotes != nil {
		notes := *d.InterviewerNotes
		next.InterviewerNotes = &notes
	}
	if d.AddHints > 0 {
		next.HintsGiven += d.AddHints
	}
	if d.AddEncouragements > 0 {
		next.EncouragementsGiven += d.AddEncouragements
	}

	// Clip forces append to allocate so s keeps its own backing arrays.
	if len(d.Turns) > 0 {
		next.ConversationHistory = append(slices.Clip(s.ConversationHistory), d.Turns...)
	}
	if len(d.CodeHistory) > 0 {
		next.CodeHistory = append(slices.Clip(s.CodeHistory), d.CodeHistory...)
	}
	if len(d.Submissions) > 0 {
		next.CodeSubmissions = append(slices.Clip(s.CodeSubmissions), d.Submissions...)
	}

	if d.MarkComplete {
		next.InterviewComplete = true
	}
	if d.RawScores != nil && next.InterviewComplete {
		scores := d.RawScores.Clamp()
		next.RawScores = &scores
	}
	if d.FairnessResult != nil && next.RawScores != nil {
		fr := *d.FairnessResult
		fr.Flags = slices.Clone(fr.Flags)
		next.FairnessResult = &fr
	}
	if d.FinalRecommendation != nil {
		rec := *d.FinalRecommendation
		next.FinalRecommendation = &rec
	}
	return &next
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// Ptr returns a pointer to v, for building deltas.
func Ptr[T any](v T) *T {
	return &v
}
