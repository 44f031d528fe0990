package workflow

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"arete/internal/interview/decision"
	"arete/internal/interview/eventlog"
	"arete/internal/interview/model"
	"arete/internal/interview/sandbox/result"
	appErr "arete/pkg/errors"
	"arete/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	codeContextRunes = 200
	// Every step changes the phase, so a full pass needs at most three.
	maxAdvanceSteps = 4

	fallbackReply = "I'm having trouble connecting. Could you repeat that?"
)

// Spoken actions always reach the candidate; these stand in when the analyzer
// gives no wording.
var defaultActionMessages = map[model.Action]string{
	model.ActionHint:      "Here's a hint: step back and check your approach against the constraints.",
	model.ActionPrompt:    "How is it going? Talk me through what you're thinking.",
	model.ActionEncourage: "Nice progress, keep going.",
}

// EventRecorder is the part of the event log the orchestrator writes to.
type EventRecorder interface {
	Append(ctx context.Context, eventType eventlog.EventType, sessionID string, payload map[string]any, priority eventlog.Priority) eventlog.Event
}

// Orchestrator is the only producer of state deltas for a session. Callers must
// serialize calls per session and store the returned state.
type Orchestrator struct {
	providers decision.Providers
	fallback  *decision.Rules
	events    EventRecorder
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator. Unset providers fall back to the rule-based ones.
func New(providers decision.Providers, events EventRecorder, rules decision.RuleConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers: providers.WithDefaults(rules),
		fallback:  decision.NewRules(rules),
		events:    events,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start creates the session state, records the start and presents the problem.
func (o *Orchestrator) Start(ctx context.Context, sessionID, candidate string, problem *model.Problem) (*model.SessionState, error) {
	if problem == nil {
		return nil, appErr.ValidationError("problem", "is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, appErr.ValidationError("session_id", "is required")
	}
	ctx = logger.WithSession(ctx, sessionID)

	state := model.NewSessionState(sessionID, candidate, problem, o.now())
	o.record(ctx, eventlog.TypeSessionStart, sessionID, map[string]any{
		"candidate_name": candidate,
		"problem_id":     problem.ID,
		"problem_title":  problem.Title,
	}, eventlog.PriorityMedium)
	logger.Info(ctx, "interview started", zap.String("problem_id", problem.ID))
	return o.Advance(ctx, state), nil
}

// Advance runs workflow steps until the session halts. It is a no-op for
// in-progress and finished sessions.
func (o *Orchestrator) Advance(ctx context.Context, state *model.SessionState) *model.SessionState {
	for i := 0; i < maxAdvanceSteps; i++ {
		switch Route(state) {
		case StepPresent:
			state = o.present(ctx, state)
		case StepScore:
			state = o.score(ctx, state)
		case StepFairness:
			state = o.review(ctx, state)
		default:
			return state
		}
	}
	return state
}

func (o *Orchestrator) present(ctx context.Context, state *model.SessionState) *model.SessionState {
	in := decision.PresentInput{Problem: state.Problem, CandidateName: state.CandidateName}
	message, err := o.providers.Presenter.Present(ctx, in)
	if err != nil || strings.TrimSpace(message) == "" {
		logger.Warn(ctx, "presenter failed, using default presentation", zap.Error(err))
		message, _ = o.fallback.Present(ctx, in)
	}
	now := o.now()
	next := model.Apply(state, model.Delta{
		Turns: []model.Turn{{Role: model.RoleInterviewer, Content: message, Timestamp: now}},
	})
	o.record(ctx, eventlog.TypeAgentResponse, state.SessionID, map[string]any{
		"message": message,
		"action":  "present_problem",
	}, eventlog.PriorityMedium)
	return next
}

// SnapshotOutcome is the interviewer's reaction to a code snapshot.
// Message is empty when Action is IGNORE.
type SnapshotOutcome struct {
	Action  model.Action `json:"action"`
	Message string       `json:"message,omitempty"`
}

// AnalyzeSnapshot records a new code snapshot and applies the analyzer's decision.
// An analyzer failure is treated as IGNORE.
func (o *Orchestrator) AnalyzeSnapshot(ctx context.Context, state *model.SessionState, code string) (*model.SessionState, SnapshotOutcome, error) {
	if state.InterviewComplete {
		return state, SnapshotOutcome{}, appErr.InvalidStateError(appErr.InterviewCompleted, state.SessionID)
	}
	ctx = logger.WithSession(ctx, state.SessionID)
	now := o.now()

	analysis, err := o.providers.Analyzer.Analyze(ctx, decision.AnalysisInput{
		Problem:         state.Problem,
		PreviousCode:    state.CodeSnapshot,
		CurrentCode:     code,
		SinceLastChange: state.SinceLastChange(now),
		HintsGiven:      state.HintsGiven,
	})
	if err != nil {
		logger.Warn(ctx, "code analysis failed, ignoring snapshot", zap.Error(err))
		analysis = decision.Analysis{Action: model.ActionIgnore}
	}
	if _, ok := model.ParseAction(string(analysis.Action)); !ok {
		logger.Warn(ctx, "code analysis returned unknown action, ignoring snapshot", zap.String("action", string(analysis.Action)))
		analysis = decision.Analysis{Action: model.ActionIgnore}
	}
	if analysis.Action != model.ActionIgnore && strings.TrimSpace(analysis.Message) == "" {
		logger.Debug(ctx, "code analysis returned no message, using default", zap.String("action", string(analysis.Action)))
		analysis.Message = defaultActionMessages[analysis.Action]
	}

	delta := model.Delta{
		CodeSnapshot:     model.Ptr(code),
		LastCodeChangeAt: model.Ptr(now),
		CurrentAnalysis:  model.Ptr(analysis.Action),
		CodeHistory:      []model.CodeSnapshot{{Code: code, Timestamp: now}},
	}
	outcome := SnapshotOutcome{Action: analysis.Action}
	if analysis.Action == model.ActionIgnore {
		return model.Apply(state, delta), outcome, nil
	}

	outcome.Message = analysis.Message
	delta.Turns = []model.Turn{{Role: model.RoleInterviewer, Content: analysis.Message, Timestamp: now}}
	switch analysis.Action {
	case model.ActionHint:
		delta.AddHints = 1
		o.record(ctx, eventlog.TypeHintGiven, state.SessionID, map[string]any{
			"message":      analysis.Message,
			"code_context": truncateRunes(code, codeContextRunes),
		}, eventlog.PriorityMedium)
	case model.ActionPrompt:
		delta.AddHints = 1
		o.record(ctx, eventlog.TypeInterrupt, state.SessionID, map[string]any{
			"message": analysis.Message,
			"reason":  "stuck",
		}, eventlog.PriorityHigh)
	case model.ActionEncourage:
		delta.AddEncouragements = 1
		o.record(ctx, eventlog.TypeEncourage, state.SessionID, map[string]any{
			"message": analysis.Message,
		}, eventlog.PriorityLow)
	}
	logger.Debug(ctx, "interviewer reacted to snapshot",
		zap.String("action", string(analysis.Action)),
		zap.String("reasoning", analysis.Reasoning),
	)
	return model.Apply(state, delta), outcome, nil
}

// Finalize records the final submission, closes the interview and runs scoring and
// the fairness review.
func (o *Orchestrator) Finalize(ctx context.Context, state *model.SessionState, code string, report result.Report) (*model.SessionState, error) {
	if state.InterviewComplete {
		return state, appErr.InvalidStateError(appErr.InterviewCompleted, state.SessionID)
	}
	ctx = logger.WithSession(ctx, state.SessionID)
	now := o.now()

	next := model.Apply(state, model.Delta{
		CodeSnapshot: model.Ptr(code),
		EndedAt:      model.Ptr(now),
		MarkComplete: true,
		Submissions: []model.Submission{{
			Code:       code,
			Timestamp:  now,
			TestReport: report,
			Passed:     report.Failed == 0,
		}},
	})
	o.record(ctx, eventlog.TypeSessionEnd, state.SessionID, map[string]any{
		"test_results": report,
	}, eventlog.PriorityHigh)
	logger.Info(ctx, "interview submitted",
		zap.Int("passed", report.Passed),
		zap.Int("total", report.Total),
	)
	return o.Advance(ctx, next), nil
}

func (o *Orchestrator) score(ctx context.Context, state *model.SessionState) *model.SessionState {
	now := o.now()
	in := decision.ScoringInput{
		Problem:    state.Problem,
		FinalCode:  state.CodeSnapshot,
		Transcript: state.ConversationHistory,
		HintsGiven: state.HintsGiven,
		Duration:   state.Duration(now),
	}
	if sub, ok := state.LastSubmission(); ok {
		report := sub.TestReport
		in.Report = &report
	}

	scores, notes, err := o.providers.Scorer.Score(ctx, in)
	if err != nil {
		logger.Warn(ctx, "scoring failed, using neutral scores", zap.Error(err))
		scores, notes = model.NeutralScores(), decision.DefaultNotes
	}
	if strings.TrimSpace(notes) == "" {
		notes = decision.DefaultNotes
	}
	scores = scores.Clamp()

	next := model.Apply(state, model.Delta{
		RawScores:        &scores,
		InterviewerNotes: &notes,
		EndedAt:          model.Ptr(now),
	})
	o.record(ctx, eventlog.TypeFinalVerdict, state.SessionID, map[string]any{
		"scores":           scores,
		"notes":            notes,
		"duration_minutes": int(next.Duration(now).Minutes()),
	}, eventlog.PriorityHigh)
	return next
}

func (o *Orchestrator) review(ctx context.Context, state *model.SessionState) *model.SessionState {
	raw := *state.RawScores
	fr, err := o.providers.Reviewer.Review(ctx, decision.FairnessInput{
		State:     state,
		RawScores: raw,
		Duration:  state.Duration(o.now()),
	})
	if err != nil {
		logger.Warn(ctx, "fairness review failed, using conservative default", zap.Error(err))
		fr = decision.DefaultFairness(raw, state.HintsGiven)
	}
	fr = sanitizeFairness(fr)

	next := model.Apply(state, model.Delta{
		FairnessResult:      &fr,
		FinalRecommendation: model.Ptr(fr.Recommendation),
	})
	o.record(ctx, eventlog.TypeAgentResponse, state.SessionID, map[string]any{
		"agent": "fairness",
		"result": map[string]any{
			"bias_detected":  fr.BiasDetected,
			"fairness_score": fr.FairnessScore,
			"flags":          fr.Flags,
			"recommendation": fr.Recommendation,
			"reasoning":      fr.Reasoning,
		},
	}, eventlog.PriorityHigh)
	logger.Info(ctx, "interview reviewed",
		zap.String("recommendation", fr.Recommendation),
		zap.Bool("bias_detected", fr.BiasDetected),
	)
	return next
}

func sanitizeFairness(fr model.FairnessResult) model.FairnessResult {
	fr.FairnessScore = min(max(fr.FairnessScore, 0), 10)
	fr.Confidence = min(max(fr.Confidence, 0), 1)
	fr.NormalizedScores = fr.NormalizedScores.Clamp()
	if fr.Flags == nil {
		fr.Flags = []string{}
	}
	if strings.TrimSpace(fr.Recommendation) == "" {
		fr.Recommendation = model.RecommendationLeanNoHire
	}
	return fr
}

// RecordCandidateMessage appends a candidate turn.
func (o *Orchestrator) RecordCandidateMessage(ctx context.Context, state *model.SessionState, message string) (*model.SessionState, error) {
	if state.InterviewComplete {
		return state, appErr.InvalidStateError(appErr.InterviewCompleted, state.SessionID)
	}
	now := o.now()
	next := model.Apply(state, model.Delta{
		Turns: []model.Turn{{Role: model.RoleCandidate, Content: message, Timestamp: now}},
	})
	o.record(ctx, eventlog.TypeCandidateMessage, state.SessionID, map[string]any{"message": message}, eventlog.PriorityMedium)
	return next, nil
}

// RecordInterviewerReply appends an interviewer turn.
func (o *Orchestrator) RecordInterviewerReply(ctx context.Context, state *model.SessionState, reply string) (*model.SessionState, error) {
	if state.InterviewComplete {
		return state, appErr.InvalidStateError(appErr.InterviewCompleted, state.SessionID)
	}
	now := o.now()
	next := model.Apply(state, model.Delta{
		Turns: []model.Turn{{Role: model.RoleInterviewer, Content: reply, Timestamp: now}},
	})
	o.record(ctx, eventlog.TypeAgentResponse, state.SessionID, map[string]any{
		"message": reply,
		"action":  "chat",
	}, eventlog.PriorityMedium)
	return next, nil
}

// Chat records a candidate message, asks the responder and records its reply.
// code is the editor content the candidate sent along, if any.
func (o *Orchestrator) Chat(ctx context.Context, state *model.SessionState, message, code string) (*model.SessionState, string, error) {
	ctx = logger.WithSession(ctx, state.SessionID)
	next, err := o.RecordCandidateMessage(ctx, state, message)
	if err != nil {
		return state, "", err
	}
	if code == "" {
		code = state.CodeSnapshot
	}
	reply, err := o.providers.Responder.Reply(ctx, decision.ChatInput{
		Problem:       state.Problem,
		CandidateName: state.CandidateName,
		Code:          code,
		History:       state.ConversationHistory,
		Message:       message,
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		logger.Warn(ctx, "chat reply failed", zap.Error(err))
		reply = fallbackReply
	}
	next, err = o.RecordInterviewerReply(ctx, next, reply)
	if err != nil {
		return state, "", err
	}
	return next, reply, nil
}

func (o *Orchestrator) record(ctx context.Context, t eventlog.EventType, sessionID string, payload map[string]any, p eventlog.Priority) {
	if o.events == nil {
		return
	}
	o.events.Append(ctx, t, sessionID, payload, p)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
