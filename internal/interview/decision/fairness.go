package decision

import (
	"arete/internal/interview/model"
)

const (
	// DefaultNotes is recorded when the scorer gives no notes or fails.
	DefaultNotes = "No additional notes."

	defaultFairnessScore = 8.0
	defaultConfidence    = 0.7
	defaultReasoning     = "Fairness review unavailable; conservative default applied."
)

// hintPenalty maps hints given to the problem_solving deduction. Four or more
// hints take the maximum deduction.
var hintPenalty = []int{0, -2, -4, -6}

const maxHintPenalty = -10

// HintPenalty returns the problem_solving adjustment for the given hint count.
func HintPenalty(hints int) int {
	if hints <= 0 {
		return 0
	}
	if hints < len(hintPenalty) {
		return hintPenalty[hints]
	}
	return maxHintPenalty
}

// NormalizeScores applies the hint penalty to problem_solving and clamps the result.
func NormalizeScores(raw model.Scores, hints int) model.Scores {
	out := raw
	out.ProblemSolving += HintPenalty(hints)
	return out.Clamp()
}

// Band maps an overall score in [0,10] to a recommendation.
func Band(overall float64) string {
	switch {
	case overall >= 8.5:
		return model.RecommendationStrongHire
	case overall >= 7:
		return model.RecommendationHire
	case overall >= 5:
		return model.RecommendationLeanNoHire
	default:
		return model.RecommendationNoHire
	}
}

// DefaultFairness is the conservative result used when the reviewer fails.
func DefaultFairness(raw model.Scores, hints int) model.FairnessResult {
	return model.FairnessResult{
		BiasDetected:     false,
		FairnessScore:    defaultFairnessScore,
		Flags:            []string{},
		NormalizedScores: NormalizeScores(raw, hints),
		Recommendation:   model.RecommendationLeanNoHire,
		Confidence:       defaultConfidence,
		Reasoning:        defaultReasoning,
	}
}
