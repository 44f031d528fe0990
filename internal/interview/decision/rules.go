package decision

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"arete/internal/interview/model"
)

const defaultStuckTimeout = 120 * time.Second

// RuleConfig tunes the rule-based providers.
type RuleConfig struct {
	StuckTimeout time.Duration `yaml:"stuckTimeout"`
}

// Rules implements every provider without a model. Its decisions depend only on
// the input, so it is also used in tests.
type Rules struct {
	stuckTimeout time.Duration
}

// NewRules creates the rule-based provider.
func NewRules(cfg RuleConfig) *Rules {
	if cfg.StuckTimeout <= 0 {
		cfg.StuckTimeout = defaultStuckTimeout
	}
	return &Rules{stuckTimeout: cfg.StuckTimeout}
}

func (r *Rules) Present(_ context.Context, in PresentInput) (string, error) {
	if in.Problem == nil {
		return "", fmt.Errorf("problem is required")
	}
	name := strings.TrimSpace(in.CandidateName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s, I'm Sarah and I'll be your interviewer today. We'll work on %s, a %s problem: %s Take a moment to read it and talk me through your first ideas.",
		name, in.Problem.Title, in.Problem.Difficulty, strings.TrimSpace(in.Problem.Prompt)), nil
}

var returnStmt = regexp.MustCompile(`(?m)^\s*return\s+\S`)

// Analyze prompts a candidate who has not changed the code for the stuck timeout and
// encourages the first real return statement. Everything else is ignored.
func (r *Rules) Analyze(_ context.Context, in AnalysisInput) (Analysis, error) {
	unchanged := strings.TrimSpace(in.PreviousCode) == strings.TrimSpace(in.CurrentCode)
	switch {
	case unchanged && in.SinceLastChange >= r.stuckTimeout:
		return Analysis{
			Action:    model.ActionPrompt,
			Message:   "It looks like you've been on this part for a while. Want to talk me through what you're considering?",
			Reasoning: fmt.Sprintf("no change for %s", in.SinceLastChange.Round(time.Second)),
		}, nil
	case !returnStmt.MatchString(in.PreviousCode) && returnStmt.MatchString(in.CurrentCode):
		return Analysis{
			Action:    model.ActionEncourage,
			Message:   "Nice, that's starting to take shape. Keep going.",
			Reasoning: "first return statement",
		}, nil
	}
	return Analysis{Action: model.ActionIgnore}, nil
}

// Score derives ratings from the last test report and the conversation.
func (r *Rules) Score(_ context.Context, in ScoringInput) (model.Scores, string, error) {
	passed, total := 0, 0
	if in.Report != nil {
		passed, total = in.Report.Passed, in.Report.Total
	}
	correctness := 0
	if total > 0 {
		correctness = int(math.Round(10 * float64(passed) / float64(total)))
	}
	optimization := correctness * 7 / 10
	if total > 0 && passed == total {
		optimization = 7
	}
	spoke := 0
	for _, turn := range in.Transcript {
		if turn.Role == model.RoleCandidate {
			spoke++
		}
	}
	scores := model.Scores{
		Correctness:    correctness,
		Optimization:   optimization,
		Communication:  4 + 2*spoke,
		ProblemSolving: (correctness + optimization + 1) / 2,
	}.Clamp()

	notes := fmt.Sprintf("Passed %d/%d tests with %d hints in %d minutes.",
		passed, total, in.HintsGiven, int(in.Duration.Minutes()))
	return scores, notes, nil
}

// Review normalizes the raw scores for hints and bands the mean.
func (r *Rules) Review(_ context.Context, in FairnessInput) (model.FairnessResult, error) {
	hints := 0
	if in.State != nil {
		hints = in.State.HintsGiven
	}
	normalized := NormalizeScores(in.RawScores, hints)
	flags := []string{}
	if hints >= len(hintPenalty) {
		flags = append(flags, "heavy_hint_usage")
	}
	overall := normalized.Mean()
	return model.FairnessResult{
		BiasDetected:     false,
		FairnessScore:    10,
		Flags:            flags,
		NormalizedScores: normalized,
		Recommendation:   Band(overall),
		Confidence:       0.6,
		Reasoning:        fmt.Sprintf("Rule-based review: overall %.1f after normalizing for %d hints.", overall, hints),
	}, nil
}

func (r *Rules) Reply(_ context.Context, in ChatInput) (string, error) {
	if strings.Contains(strings.ToLower(in.Message), "hint") {
		return "Think about what you need to remember as you scan the input, and whether you can look it up in constant time.", nil
	}
	return "Good question. Talk me through how you'd approach it, and feel free to sketch it in code.", nil
}
