package model

import (
	"time"

	"arete/internal/interview/sandbox/result"
)

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

// Action is the classification a code-analysis provider returns for a snapshot.
type Action string

const (
	ActionIgnore    Action = "IGNORE"
	ActionHint      Action = "HINT"
	ActionEncourage Action = "ENCOURAGE"
	ActionPrompt    Action = "PROMPT"
)

// ParseAction maps free text to an Action. Unknown values are reported as not ok.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case ActionIgnore, ActionHint, ActionEncourage, ActionPrompt:
		return Action(s), true
	}
	return ActionIgnore, false
}

// Turn is one conversation message.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// CodeSnapshot is one historical version of the candidate's code.
type CodeSnapshot struct {
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// Submission records a final or trial run of the candidate's code.
type Submission struct {
	Code       string        `json:"code"`
	Timestamp  time.Time     `json:"timestamp"`
	TestReport result.Report `json:"test_report"`
	Passed     bool          `json:"passed"`
}

// Scores is the four-dimension rating, each in [0,10].
type Scores struct {
	Correctness    int `json:"correctness"`
	Optimization   int `json:"optimization"`
	Communication  int `json:"communication"`
	ProblemSolving int `json:"problem_solving"`
}

// Clamp bounds every dimension to [0,10].
func (s Scores) Clamp() Scores {
	return Scores{
		Correctness:    clampInt(s.Correctness, 0, 10),
		Optimization:   clampInt(s.Optimization, 0, 10),
		Communication:  clampInt(s.Communication, 0, 10),
		ProblemSolving: clampInt(s.ProblemSolving, 0, 10),
	}
}

// Mean returns the average of the four dimensions.
func (s Scores) Mean() float64 {
	return float64(s.Correctness+s.Optimization+s.Communication+s.ProblemSolving) / 4
}

// NeutralScores is used when the scoring provider fails.
func NeutralScores() Scores {
	return Scores{Correctness: 5, Optimization: 5, Communication: 5, ProblemSolving: 5}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// FairnessResult is the authoritative output of the fairness review.
type FairnessResult struct {
	BiasDetected     bool     `json:"bias_detected"`
	FairnessScore    float64  `json:"fairness_score"`
	Flags            []string `json:"flags"`
	NormalizedScores Scores   `json:"normalized_scores"`
	Recommendation   string   `json:"recommendation"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning"`
}

// Recommendations in descending order of strength.
const (
	RecommendationStrongHire = "STRONG HIRE"
	RecommendationHire       = "HIRE"
	RecommendationLeanNoHire = "LEAN NO HIRE"
	RecommendationNoHire     = "NO HIRE"

	// RecommendationNoDecision is used when the transcript is too short to judge.
	RecommendationNoDecision = "NO DECISION"
)

// SessionState is the canonical record of one interview.
// It is mutated only through Apply.
type SessionState struct {
	SessionID     string     `json:"session_id"`
	CandidateName string     `json:"candidate_name"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`

	Problem *Problem `json:"problem"`

	CodeSnapshot     string         `json:"code_snapshot"`
	LastCodeChangeAt *time.Time     `json:"last_code_change_at"`
	CodeHistory      []CodeSnapshot `json:"code_history"`

	ConversationHistory []Turn       `json:"conversation_history"`
	CodeSubmissions     []Submission `json:"code_submissions"`

	HintsGiven          int `json:"hints_given"`
	EncouragementsGiven int `json:"encouragements_given"`

	CurrentAnalysis  Action  `json:"current_analysis,omitempty"`
	InterviewerNotes *string `json:"interviewer_notes"`

	RawScores      *Scores         `json:"raw_scores"`
	FairnessResult *FairnessResult `json:"fairness_result"`

	InterviewComplete   bool    `json:"interview_complete"`
	FinalRecommendation *string `json:"final_recommendation"`
}

// NewSessionState builds the initial state for a freshly started interview.
func NewSessionState(sessionID, candidate string, problem *Problem, now time.Time) *SessionState {
	s := &SessionState{
		SessionID:           sessionID,
		CandidateName:       candidate,
		StartedAt:           now,
		Problem:             problem,
		CodeHistory:         []CodeSnapshot{},
		ConversationHistory: []Turn{},
		CodeSubmissions:     []Submission{},
	}
	if problem != nil {
		s.CodeSnapshot = problem.StarterCode
	}
	return s
}

// Clone returns a copy whose slices can be appended to without aliasing s.
func (s *SessionState) Clone() *SessionState {
	if s == nil {
		return nil
	}
	c := *s
	c.CodeHistory = append([]CodeSnapshot(nil), s.CodeHistory...)
	c.ConversationHistory = append([]Turn(nil), s.ConversationHistory...)
	c.CodeSubmissions = append([]Submission(nil), s.CodeSubmissions...)
	return &c
}

// LastSubmission returns the most recent submission, if any.
func (s *SessionState) LastSubmission() (Submission, bool) {
	if len(s.CodeSubmissions) == 0 {
		return Submission{}, false
	}
	return s.CodeSubmissions[len(s.CodeSubmissions)-1], true
}

// Duration is the elapsed interview time, measured to ended_at when set.
func (s *SessionState) Duration(now time.Time) time.Duration {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return end.Sub(s.StartedAt)
}

// SinceLastChange is the idle time since the last code change, or since start.
func (s *SessionState) SinceLastChange(now time.Time) time.Duration {
	ref := s.StartedAt
	if s.LastCodeChangeAt != nil {
		ref = *s.LastCodeChangeAt
	}
	if now.Before(ref) {
		return 0
	}
	return now.Sub(ref)
}
