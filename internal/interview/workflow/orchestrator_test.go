package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"arete/internal/interview/decision"
	"arete/internal/interview/eventlog"
	"arete/internal/interview/model"
	"arete/internal/interview/sandbox/result"
	appErr "arete/pkg/errors"
)

type fakeAnalyzer struct {
	analyses []decision.Analysis
	err      error
	inputs   []decision.AnalysisInput
}

func (f *fakeAnalyzer) Analyze(_ context.Context, in decision.AnalysisInput) (decision.Analysis, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return decision.Analysis{}, f.err
	}
	a := f.analyses[0]
	if len(f.analyses) > 1 {
		f.analyses = f.analyses[1:]
	}
	return a, nil
}

type fakeScorer struct {
	scores model.Scores
	notes  string
	err    error
	got    decision.ScoringInput
	calls  int
}

func (f *fakeScorer) Score(_ context.Context, in decision.ScoringInput) (model.Scores, string, error) {
	f.calls++
	f.got = in
	return f.scores, f.notes, f.err
}

type fakeReviewer struct {
	result model.FairnessResult
	err    error
	got    decision.FairnessInput
	calls  int
}

func (f *fakeReviewer) Review(_ context.Context, in decision.FairnessInput) (model.FairnessResult, error) {
	f.calls++
	f.got = in
	return f.result, f.err
}

type failingPresenter struct{}

func (failingPresenter) Present(context.Context, decision.PresentInput) (string, error) {
	return "", errors.New("model unavailable")
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestProblem() *model.Problem {
	return &model.Problem{
		ID:          "two_sum",
		Title:       "Two Sum",
		Difficulty:  model.DifficultyEasy,
		Prompt:      "Return the indices of the two numbers that add up to target.",
		StarterCode: "def two_sum(nums, target):\n    pass\n",
	}
}

type harness struct {
	orch     *Orchestrator
	log      *eventlog.Log
	clock    *clock
	analyzer *fakeAnalyzer
	scorer   *fakeScorer
	reviewer *fakeReviewer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	h := &harness{
		log:      eventlog.New(eventlog.WithClock(c.now)),
		clock:    c,
		analyzer: &fakeAnalyzer{analyses: []decision.Analysis{{Action: model.ActionIgnore}}},
		scorer:   &fakeScorer{scores: model.Scores{Correctness: 9, Optimization: 8, Communication: 7, ProblemSolving: 8}, notes: "Solid."},
		reviewer: &fakeReviewer{result: model.FairnessResult{
			FairnessScore:    9,
			NormalizedScores: model.Scores{Correctness: 9, Optimization: 8, Communication: 7, ProblemSolving: 8},
			Recommendation:   model.RecommendationHire,
			Confidence:       0.9,
		}},
	}
	h.orch = New(decision.Providers{
		Analyzer: h.analyzer,
		Scorer:   h.scorer,
		Reviewer: h.reviewer,
	}, h.log, decision.RuleConfig{}, WithClock(c.now))
	return h
}

func eventTypes(events []eventlog.Event) []eventlog.EventType {
	out := make([]eventlog.EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestStartPresentsExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state, err := h.orch.Start(ctx, "s1", "Ada", newTestProblem())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(state.ConversationHistory) != 1 || state.ConversationHistory[0].Role != model.RoleInterviewer {
		t.Fatalf("expected one interviewer turn, got %+v", state.ConversationHistory)
	}
	if state.CodeSnapshot != newTestProblem().StarterCode {
		t.Fatalf("expected starter code snapshot, got %q", state.CodeSnapshot)
	}
	if StateOf(state) != PhasePresenting {
		t.Fatalf("expected presenting phase, got %s", StateOf(state))
	}

	again := h.orch.Advance(ctx, state)
	if len(again.ConversationHistory) != 1 {
		t.Fatalf("Advance on a presented session must be a no-op")
	}
	got := eventTypes(h.log.SessionEvents("s1"))
	want := []eventlog.EventType{eventlog.TypeSessionStart, eventlog.TypeAgentResponse}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestStartFallsBackWhenPresenterFails(t *testing.T) {
	log := eventlog.New()
	orch := New(decision.Providers{Presenter: failingPresenter{}}, log, decision.RuleConfig{})
	state, err := orch.Start(context.Background(), "s1", "Ada", newTestProblem())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(state.ConversationHistory) != 1 || state.ConversationHistory[0].Content == "" {
		t.Fatalf("expected a default presentation, got %+v", state.ConversationHistory)
	}
}

func TestStartRejectsMissingProblem(t *testing.T) {
	h := newHarness(t)
	if _, err := h.orch.Start(context.Background(), "s1", "Ada", nil); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAnalyzeSnapshotActions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state, _ := h.orch.Start(ctx, "s1", "Ada", newTestProblem())
	h.analyzer.analyses = []decision.Analysis{
		{Action: model.ActionIgnore},
		{Action: model.ActionHint, Message: "Check the second index."},
		{Action: model.ActionEncourage, Message: "Nice."},
		{Action: model.ActionPrompt, Message: "Still with me?"},
	}

	var outcome SnapshotOutcome
	var err error
	for i, code := range []string{"v1", "v2", "v3", "v4"} {
		h.clock.advance(time.Minute)
		state, outcome, err = h.orch.AnalyzeSnapshot(ctx, state, code)
		if err != nil {
			t.Fatalf("snapshot %d failed: %v", i, err)
		}
		if i == 0 && (outcome.Action != model.ActionIgnore || outcome.Message != "") {
			t.Fatalf("unexpected ignore outcome %+v", outcome)
		}
	}
	if outcome.Action != model.ActionPrompt || outcome.Message != "Still with me?" {
		t.Fatalf("unexpected last outcome %+v", outcome)
	}

	if state.HintsGiven != 2 || state.EncouragementsGiven != 1 {
		t.Fatalf("unexpected counters hints=%d encouragements=%d", state.HintsGiven, state.EncouragementsGiven)
	}
	if len(state.CodeHistory) != 4 || state.CodeHistory[3].Code != "v4" || state.CodeSnapshot != "v4" {
		t.Fatalf("unexpected code history %+v", state.CodeHistory)
	}
	if len(state.ConversationHistory) != 4 {
		t.Fatalf("expected presentation plus three interviewer turns, got %d", len(state.ConversationHistory))
	}
	if state.InterviewComplete {
		t.Fatalf("snapshots must never complete the interview")
	}
	if state.CurrentAnalysis != model.ActionPrompt {
		t.Fatalf("unexpected current analysis %q", state.CurrentAnalysis)
	}

	if got := h.analyzer.inputs[1]; got.PreviousCode != "v1" || got.CurrentCode != "v2" || got.SinceLastChange != time.Minute {
		t.Fatalf("unexpected analyzer input %+v", got)
	}

	hint := h.log.Query(eventlog.Filter{SessionID: "s1", Type: eventlog.TypeHintGiven})
	if len(hint) != 1 || hint[0].Payload["code_context"] != "v2" {
		t.Fatalf("unexpected hint events %+v", hint)
	}
	interrupt := h.log.Query(eventlog.Filter{SessionID: "s1", Type: eventlog.TypeInterrupt})
	if len(interrupt) != 1 || interrupt[0].Payload["reason"] != "stuck" {
		t.Fatalf("unexpected interrupt events %+v", interrupt)
	}
	if n := len(h.log.Query(eventlog.Filter{SessionID: "s1", Type: eventlog.TypeEncourage})); n != 1 {
		t.Fatalf("expected one encourage event, got %d", n)
	}
}

func TestAnalyzeSnapshotProviderFailureIgnores(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state, _ := h.orch.Start(ctx, "s1", "Ada", newTestProblem())
	h.analyzer.err = errors.New("timeout")

	next, outcome, err := h.orch.AnalyzeSnapshot(ctx, state, "def two_sum(nums, target):\n    return []\n")
	if err != nil {
		t.Fatalf("AnalyzeSnapshot failed: %v", err)
	}
	if outcome.Action != model.ActionIgnore || next.HintsGiven != 0 || len(next.ConversationHistory) != 1 {
		t.Fatalf("expected ignore on failure, got %+v", outcome)
	}
	if len(next.CodeHistory) != 1 || next.LastCodeChangeAt == nil {
		t.Fatalf("snapshot should still be recorded")
	}
	if len(state.CodeHistory) != 0 {
		t.Fatalf("input state was mutated")
	}
}

func TestAnalyzeSnapshotActionWithoutMessageUsesDefault(t *testing.T) {
	cases := []struct {
		action        model.Action
		hints         int
		encouragement int
	}{
		{model.ActionHint, 1, 0},
		{model.ActionPrompt, 1, 0},
		{model.ActionEncourage, 0, 1},
	}
	for _, tc := range cases {
		t.Run(string(tc.action), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			state, _ := h.orch.Start(ctx, "s1", "Ada", newTestProblem())
			h.analyzer.analyses = []decision.Analysis{{Action: tc.action}}

			next, outcome, err := h.orch.AnalyzeSnapshot(ctx, state, "x")
			if err != nil || outcome.Action != tc.action {
				t.Fatalf("expected %s, got %+v %v", tc.action, outcome, err)
			}
			if next.HintsGiven != tc.hints || next.EncouragementsGiven != tc.encouragement {
				t.Fatalf("unexpected counters hints=%d encouragements=%d", next.HintsGiven, next.EncouragementsGiven)
			}
			last := next.ConversationHistory[len(next.ConversationHistory)-1]
			if outcome.Message == "" || last.Role != model.RoleInterviewer || last.Content != outcome.Message {
				t.Fatalf("expected default interviewer turn, got %+v / %+v", outcome, last)
			}
		})
	}
}

func TestFinalizeRunsScoringThenFairness(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state, _ := h.orch.Start(ctx, "s1", "Ada", newTestProblem())
	h.clock.advance(20 * time.Minute)

	report := result.Report{Passed: 3, Total: 3, Details: []result.CaseDetail{}}
	final, err := h.orch.Finalize(ctx, state, "final code", report)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if StateOf(final) != PhaseDone {
		t.Fatalf("expected done, got %s", StateOf(final))
	}
	if !final.InterviewComplete || final.EndedAt == nil || final.CodeSnapshot != "final code" {
		t.Fatalf("unexpected final state %+v", final)
	}
	if len(final.CodeSubmissions) != 1 || !final.CodeSubmissions[0].Passed {
		t.Fatalf("unexpected submissions %+v", final.CodeSubmissions)
	}
	if final.RawScores == nil || final.RawScores.Correctness != 9 {
		t.Fatalf("unexpected raw scores %+v", final.RawScores)
	}
	if final.InterviewerNotes == nil || *final.InterviewerNotes != "Solid." {
		t.Fatalf("unexpected notes %v", final.InterviewerNotes)
	}
	if final.FinalRecommendation == nil || *final.FinalRecommendation != model.RecommendationHire {
		t.Fatalf("final recommendation must come from the fairness result, got %v", final.FinalRecommendation)
	}

	if h.scorer.got.Report == nil || h.scorer.got.Report.Passed != 3 || h.scorer.got.Duration != 20*time.Minute {
		t.Fatalf("unexpected scoring input %+v", h.scorer.got)
	}
	if h.reviewer.got.RawScores != *final.RawScores {
		t.Fatalf("reviewer should see the raw scores")
	}

	got := eventTypes(h.log.SessionEvents("s1"))
	want := []eventlog.EventType{
		eventlog.TypeSessionStart, eventlog.TypeAgentResponse,
		eventlog.TypeSessionEnd, eventlog.TypeFinalVerdict, eventlog.TypeAgentResponse,
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected events %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %s want %s", i, got[i], want[i])
		}
	}

	// Re-entering a finished session does nothing.
	again := h.orch.Advance(ctx, final)
	if h.scorer.calls != 1 || h.reviewer.calls != 1 || again.FairnessResult != final.FairnessResult {
		t.Fatalf("Advance on a done session must be a no-op")
	}
}

func TestFinalizeTwiceIsInvalidState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state, _ := h.orch.Start(ctx, "s1", "Ada", newTestProblem())
	final, err := h.orch.Finalize(ctx, state, "code", result.Report{Failed: 1, Total: 1})
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if final.CodeSubmissions[0].Passed {
		t.Fatalf("a failing report must not be marked passed")
	}
	if _, err := h.orch.Finalize(ctx, final, "code", result.Report{}); !appErr.Is(err, appErr.InterviewCompleted) {
		t.Fatalf("expected InterviewCompleted, got %v", err)
	}
	if _, _, err := h.orch.AnalyzeSnapshot(ctx, final, "code"); !appErr.Is(err, appErr.InterviewCompleted) {
		t.Fatalf("expected InterviewCompleted for snapshot, got %v", err)
	}
	if _, _, err := h.orch.Chat(ctx, final, "hello", ""); !appErr.Is(err, appErr.InterviewCompleted) {
		t.Fatalf("expected InterviewCompleted for chat, got %v", err)
	}
}

func TestProviderFailuresUseSafeDefaults(t *testing.T) {
	h := newHarness(t)
	h.scorer.err = errors.New("scorer down")
	h.reviewer.err = errors.New("reviewer down")
	ctx := context.Background()
	state, _ := h.orch.Start(ctx, "s1", "Ada", newTestProblem())
	state, _, _ = h.orch.AnalyzeSnapshot(ctx, state, "x")
	state.HintsGiven = 1

	final, err := h.orch.Finalize(ctx, state, "x", result.Report{Failed: 3, Total: 3})
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if *final.RawScores != model.NeutralScores() {
		t.Fatalf("expected neutral scores, got %+v", *final.RawScores)
	}
	if *final.InterviewerNotes != decision.DefaultNotes {
		t.Fatalf("unexpected notes %q", *final.InterviewerNotes)
	}
	fr := final.FairnessResult
	if fr == nil || fr.FairnessScore != 8.0 || fr.Confidence != 0.7 || fr.BiasDetected {
		t.Fatalf("unexpected default fairness %+v", fr)
	}
	if fr.NormalizedScores.ProblemSolving != 3 {
		t.Fatalf("expected hint-penalized problem solving, got %d", fr.NormalizedScores.ProblemSolving)
	}
	if *final.FinalRecommendation != model.RecommendationLeanNoHire {
		t.Fatalf("unexpected recommendation %q", *final.FinalRecommendation)
	}
}

func TestScoresAreClamped(t *testing.T) {
	h := newHarness(t)
	h.scorer.scores = model.Scores{Correctness: 14, Optimization: -3, Communication: 10, ProblemSolving: 5}
	h.reviewer.result.FairnessScore = 42
	h.reviewer.result.Confidence = -1
	ctx := context.Background()
	state, _ := h.orch.Start(ctx, "s1", "Ada", newTestProblem())
	final, _ := h.orch.Finalize(ctx, state, "x", result.Report{})
	if final.RawScores.Correctness != 10 || final.RawScores.Optimization != 0 {
		t.Fatalf("scores not clamped: %+v", final.RawScores)
	}
	if final.FairnessResult.FairnessScore != 10 || final.FairnessResult.Confidence != 0 {
		t.Fatalf("fairness not clamped: %+v", final.FairnessResult)
	}
}

func TestChatRecordsBothTurns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state, _ := h.orch.Start(ctx, "s1", "Ada", newTestProblem())
	next, reply, err := h.orch.Chat(ctx, state, "Can I use a dict?", "")
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply == "" || len(next.ConversationHistory) != 3 {
		t.Fatalf("unexpected chat result %q %+v", reply, next.ConversationHistory)
	}
	if next.ConversationHistory[1].Role != model.RoleCandidate || next.ConversationHistory[2].Role != model.RoleInterviewer {
		t.Fatalf("unexpected turn order %+v", next.ConversationHistory)
	}
	transcript := h.log.Transcript("s1")
	if len(transcript) != 3 || transcript[1].Role != "candidate" || transcript[1].Content != "Can I use a dict?" {
		t.Fatalf("unexpected transcript %+v", transcript)
	}
}

func TestRoute(t *testing.T) {
	scores := model.NeutralScores()
	tests := []struct {
		name  string
		state *model.SessionState
		phase Phase
		step  Step
	}{
		{"created", &model.SessionState{}, PhaseCreated, StepPresent},
		{"in progress", &model.SessionState{ConversationHistory: []model.Turn{{Role: model.RoleInterviewer}, {Role: model.RoleCandidate}}}, PhaseInProgress, StepHalt},
		{"awaiting score", &model.SessionState{InterviewComplete: true}, PhaseAwaitingScore, StepScore},
		{"awaiting fairness", &model.SessionState{InterviewComplete: true, RawScores: &scores}, PhaseAwaitingFairness, StepFairness},
		{"done", &model.SessionState{InterviewComplete: true, RawScores: &scores, FairnessResult: &model.FairnessResult{}}, PhaseDone, StepHalt},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StateOf(tc.state); got != tc.phase {
				t.Fatalf("StateOf = %s, want %s", got, tc.phase)
			}
			if got := Route(tc.state); got != tc.step {
				t.Fatalf("Route = %s, want %s", got, tc.step)
			}
		})
	}
}
