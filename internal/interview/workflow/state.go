// Package workflow drives an interview through its phases.
package workflow

import "arete/internal/interview/model"

// Phase is derived from session flags; it is never stored.
type Phase string

const (
	PhaseCreated          Phase = "created"
	PhasePresenting       Phase = "presenting"
	PhaseInProgress       Phase = "in_progress"
	PhaseAwaitingScore    Phase = "awaiting_score"
	PhaseAwaitingFairness Phase = "awaiting_fairness"
	PhaseDone             Phase = "done"
)

// StateOf derives the phase of s.
func StateOf(s *model.SessionState) Phase {
	switch {
	case s.InterviewComplete && s.RawScores != nil && s.FairnessResult != nil:
		return PhaseDone
	case s.InterviewComplete && s.RawScores != nil:
		return PhaseAwaitingFairness
	case s.InterviewComplete:
		return PhaseAwaitingScore
	case len(s.ConversationHistory) == 0:
		return PhaseCreated
	case len(s.ConversationHistory) == 1 && len(s.CodeHistory) == 0 &&
		s.ConversationHistory[0].Role == model.RoleInterviewer:
		return PhasePresenting
	default:
		return PhaseInProgress
	}
}

// Step is the next unit of work for a session.
type Step string

const (
	StepPresent  Step = "present"
	StepScore    Step = "score"
	StepFairness Step = "fairness"
	StepHalt     Step = "halt"
)

// Route picks the next step. Only completion moves an in-progress session forward;
// live snapshots and chat never do.
func Route(s *model.SessionState) Step {
	switch StateOf(s) {
	case PhaseCreated:
		return StepPresent
	case PhaseAwaitingScore:
		return StepScore
	case PhaseAwaitingFairness:
		return StepFairness
	default:
		return StepHalt
	}
}
