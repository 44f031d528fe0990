package llm

import (
	"testing"

	"arete/internal/interview/decision"
	"arete/internal/interview/model"
	appErr "arete/pkg/errors"
)

func TestParseAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		content string
		action  model.Action
		message string
		wantErr bool
	}{
		{
			name:    "hint with multiline message",
			content: "ACTION: HINT\nREASONING: off by one in the loop\nMESSAGE: Check your loop bounds.\nWhat happens at the last index?",
			action:  model.ActionHint,
			message: "Check your loop bounds.\nWhat happens at the last index?",
		},
		{
			name:    "message before reasoning stops at reasoning",
			content: "ACTION: ENCOURAGE\nMESSAGE: Nice use of a hash map!\nREASONING: optimal approach",
			action:  model.ActionEncourage,
			message: "Nice use of a hash map!",
		},
		{
			name:    "ignore drops message",
			content: "action: [IGNORE]\nREASONING: typo fix\nMESSAGE: ",
			action:  model.ActionIgnore,
		},
		{
			name:    "bracketed action with trailing text",
			content: "ACTION: [PROMPT] - stuck\nMESSAGE: Want to talk it through?",
			action:  model.ActionPrompt,
			message: "Want to talk it through?",
		},
		{name: "no action line", content: "I think the candidate is fine.", wantErr: true},
		{name: "unknown action", content: "ACTION: SHOUT\nMESSAGE: hi", wantErr: true},
		{name: "hint without message", content: "ACTION: HINT\nREASONING: bug", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseAnalysis(tc.content)
			if tc.wantErr {
				if !appErr.Is(err, appErr.DecisionParseFailed) {
					t.Fatalf("expected parse failure, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAnalysis failed: %v", err)
			}
			if got.Action != tc.action || got.Message != tc.message {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestParseScores(t *testing.T) {
	content := "CORRECTNESS: 9\nOPTIMIZATION: 8/10\nCOMMUNICATION: [12]\nPROBLEM_SOLVING: 6.5 solid\nNOTES: Strong start.\nNeeded one nudge."
	scores, notes, err := parseScores(content)
	if err != nil {
		t.Fatalf("parseScores failed: %v", err)
	}
	want := model.Scores{Correctness: 9, Optimization: 8, Communication: 10, ProblemSolving: 6}
	if scores != want {
		t.Fatalf("got %+v, want %+v", scores, want)
	}
	if notes != "Strong start.\nNeeded one nudge." {
		t.Fatalf("unexpected notes %q", notes)
	}
}

func TestParseScoresDefaults(t *testing.T) {
	scores, notes, err := parseScores("CORRECTNESS: 7\nOPTIMIZATION: n/a")
	if err != nil {
		t.Fatalf("parseScores failed: %v", err)
	}
	want := model.Scores{Correctness: 7, Optimization: 5, Communication: 5, ProblemSolving: 5}
	if scores != want {
		t.Fatalf("got %+v", scores)
	}
	if notes != decision.DefaultNotes {
		t.Fatalf("unexpected notes %q", notes)
	}

	if _, _, err := parseScores("The candidate did well."); !appErr.Is(err, appErr.DecisionParseFailed) {
		t.Fatalf("expected parse failure, got %v", err)
	}
}

func TestParseFairness(t *testing.T) {
	content := `BIAS_DETECTED: true
FAIRNESS_SCORE: 6.5
FLAGS: tone_shift, uneven_hints
RECOMMENDATION: lean no hire
CONFIDENCE: 1.4
REASONING: The interviewer became curt
after the second hint.`
	v, err := parseFairness(content)
	if err != nil {
		t.Fatalf("parseFairness failed: %v", err)
	}
	if !v.biasDetected || v.fairnessScore != 6.5 || v.confidence != 1 {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if len(v.flags) != 2 || v.flags[0] != "tone_shift" || v.flags[1] != "uneven_hints" {
		t.Fatalf("unexpected flags %v", v.flags)
	}
	if v.recommendation != model.RecommendationLeanNoHire {
		t.Fatalf("unexpected recommendation %q", v.recommendation)
	}
	if v.reasoning != "The interviewer became curt after the second hint." {
		t.Fatalf("unexpected reasoning %q", v.reasoning)
	}
}

func TestParseFairnessDefaults(t *testing.T) {
	v, err := parseFairness("FLAGS: none\nRECOMMENDATION: PASS")
	if err != nil {
		t.Fatalf("parseFairness failed: %v", err)
	}
	if v.biasDetected || v.fairnessScore != 8.0 || v.confidence != 0.7 {
		t.Fatalf("unexpected defaults %+v", v)
	}
	if len(v.flags) != 0 || v.recommendation != model.RecommendationHire {
		t.Fatalf("unexpected verdict %+v", v)
	}

	if _, err := parseFairness("BIAS_DETECTED: false"); !appErr.Is(err, appErr.DecisionParseFailed) {
		t.Fatalf("expected parse failure, got %v", err)
	}
	if _, err := parseFairness("RECOMMENDATION: maybe"); !appErr.Is(err, appErr.DecisionParseFailed) {
		t.Fatalf("expected parse failure, got %v", err)
	}
}
