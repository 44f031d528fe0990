package decision

import (
	"context"
	"strings"
	"testing"
	"time"

	"arete/internal/interview/model"
	"arete/internal/interview/sandbox/result"
)

func TestHintPenalty(t *testing.T) {
	cases := map[int]int{-1: 0, 0: 0, 1: -2, 2: -4, 3: -6, 4: -10, 9: -10}
	for hints, want := range cases {
		if got := HintPenalty(hints); got != want {
			t.Fatalf("HintPenalty(%d) = %d, want %d", hints, got, want)
		}
	}
}

func TestNormalizeScoresClamps(t *testing.T) {
	raw := model.Scores{Correctness: 9, Optimization: 8, Communication: 7, ProblemSolving: 5}
	got := NormalizeScores(raw, 4)
	if got.ProblemSolving != 0 {
		t.Fatalf("expected problem_solving clamped to 0, got %d", got.ProblemSolving)
	}
	if got.Correctness != 9 || got.Optimization != 8 || got.Communication != 7 {
		t.Fatalf("other dimensions changed: %+v", got)
	}
	if got := NormalizeScores(raw, 1).ProblemSolving; got != 3 {
		t.Fatalf("expected 3 after one hint, got %d", got)
	}
}

func TestBand(t *testing.T) {
	cases := []struct {
		overall float64
		want    string
	}{
		{10, model.RecommendationStrongHire},
		{8.5, model.RecommendationStrongHire},
		{8.4, model.RecommendationHire},
		{7, model.RecommendationHire},
		{6.9, model.RecommendationLeanNoHire},
		{5, model.RecommendationLeanNoHire},
		{4.9, model.RecommendationNoHire},
		{0, model.RecommendationNoHire},
	}
	for _, tc := range cases {
		if got := Band(tc.overall); got != tc.want {
			t.Fatalf("Band(%v) = %q, want %q", tc.overall, got, tc.want)
		}
	}
}

func TestDefaultFairness(t *testing.T) {
	got := DefaultFairness(model.NeutralScores(), 2)
	if got.BiasDetected || got.FairnessScore != 8.0 || got.Confidence != 0.7 {
		t.Fatalf("unexpected default: %+v", got)
	}
	if got.Recommendation != model.RecommendationLeanNoHire {
		t.Fatalf("unexpected recommendation %q", got.Recommendation)
	}
	if got.NormalizedScores.ProblemSolving != 1 {
		t.Fatalf("expected hint penalty applied, got %+v", got.NormalizedScores)
	}
}

func TestRulesAnalyze(t *testing.T) {
	r := NewRules(RuleConfig{StuckTimeout: time.Minute})
	ctx := context.Background()
	starter := "def two_sum(nums, target):\n    pass\n"

	got, err := r.Analyze(ctx, AnalysisInput{PreviousCode: starter, CurrentCode: starter, SinceLastChange: 2 * time.Minute})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if got.Action != model.ActionPrompt || got.Message == "" {
		t.Fatalf("expected prompt for stuck candidate, got %+v", got)
	}

	got, _ = r.Analyze(ctx, AnalysisInput{PreviousCode: starter, CurrentCode: starter, SinceLastChange: time.Second})
	if got.Action != model.ActionIgnore || got.Message != "" {
		t.Fatalf("expected ignore, got %+v", got)
	}

	withReturn := "def two_sum(nums, target):\n    return [0, 1]\n"
	got, _ = r.Analyze(ctx, AnalysisInput{PreviousCode: starter, CurrentCode: withReturn, SinceLastChange: time.Second})
	if got.Action != model.ActionEncourage {
		t.Fatalf("expected encourage, got %+v", got)
	}
	got, _ = r.Analyze(ctx, AnalysisInput{PreviousCode: withReturn, CurrentCode: withReturn + "\n", SinceLastChange: time.Second})
	if got.Action != model.ActionIgnore {
		t.Fatalf("expected ignore after the first return, got %+v", got)
	}
}

func TestRulesScore(t *testing.T) {
	r := NewRules(RuleConfig{})
	scores, notes, err := r.Score(context.Background(), ScoringInput{
		Report:     &result.Report{Passed: 3, Total: 3},
		Transcript: []model.Turn{{Role: model.RoleInterviewer}, {Role: model.RoleCandidate}},
		Duration:   12 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	want := model.Scores{Correctness: 10, Optimization: 7, Communication: 6, ProblemSolving: 9}
	if scores != want {
		t.Fatalf("unexpected scores %+v", scores)
	}
	if !strings.Contains(notes, "3/3") || !strings.Contains(notes, "12 minutes") {
		t.Fatalf("unexpected notes %q", notes)
	}

	scores, _, _ = r.Score(context.Background(), ScoringInput{})
	if scores.Correctness != 0 || scores.Optimization != 0 {
		t.Fatalf("expected zero correctness without a report, got %+v", scores)
	}
}

func TestRulesReview(t *testing.T) {
	r := NewRules(RuleConfig{})
	state := &model.SessionState{HintsGiven: 1}
	raw := model.Scores{Correctness: 10, Optimization: 9, Communication: 9, ProblemSolving: 10}
	got, err := r.Review(context.Background(), FairnessInput{State: state, RawScores: raw})
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}
	if got.NormalizedScores.ProblemSolving != 8 {
		t.Fatalf("expected hint penalty, got %+v", got.NormalizedScores)
	}
	if got.Recommendation != model.RecommendationStrongHire {
		t.Fatalf("expected strong hire for mean 9, got %q", got.Recommendation)
	}
	if len(got.Flags) != 0 {
		t.Fatalf("unexpected flags %v", got.Flags)
	}
}

func TestProvidersWithDefaults(t *testing.T) {
	p := Providers{}.WithDefaults(RuleConfig{})
	if p.Presenter == nil || p.Analyzer == nil || p.Scorer == nil || p.Reviewer == nil || p.Responder == nil {
		t.Fatalf("expected every provider set: %+v", p)
	}
	msg, err := p.Presenter.Present(context.Background(), PresentInput{
		Problem:       &model.Problem{Title: "Two Sum", Difficulty: model.DifficultyEasy, Prompt: "Find two numbers."},
		CandidateName: "Ada",
	})
	if err != nil || !strings.Contains(msg, "Two Sum") || !strings.Contains(msg, "Ada") {
		t.Fatalf("unexpected presentation %q, %v", msg, err)
	}
}
