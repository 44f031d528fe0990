package llm

import (
	"strconv"
	"strings"

	"arete/internal/interview/decision"
	"arete/internal/interview/model"
	appErr "arete/pkg/errors"
)

// field finds the first line starting with "KEY:" (case-insensitive) and returns
// its index and the trimmed remainder.
func field(lines []string, key string) (int, string, bool) {
	prefix := strings.ToUpper(key) + ":"
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToUpper(trimmed), prefix) {
			return i, strings.TrimSpace(trimmed[len(prefix):]), true
		}
	}
	return -1, "", false
}

func hasAnyPrefix(line string, keys ...string) bool {
	upper := strings.ToUpper(strings.TrimSpace(line))
	for _, k := range keys {
		if strings.HasPrefix(upper, k+":") {
			return true
		}
	}
	return false
}

func splitLines(content string) []string {
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}

func stripBrackets(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "[]"))
}

func parseAnalysis(content string) (decision.Analysis, error) {
	lines := splitLines(content)
	_, raw, ok := field(lines, "ACTION")
	if !ok {
		return decision.Analysis{}, appErr.New(appErr.DecisionParseFailed).WithMessage("analysis has no ACTION line")
	}
	name := ""
	if fields := strings.Fields(raw); len(fields) > 0 {
		name = strings.ToUpper(strings.Trim(fields[0], "[]"))
	}
	action, ok := model.ParseAction(name)
	if !ok {
		return decision.Analysis{}, appErr.New(appErr.DecisionParseFailed).
			WithMessage("analysis has an unknown action").
			WithDetail("action", raw)
	}

	out := decision.Analysis{Action: action}
	if _, reasoning, ok := field(lines, "REASONING"); ok {
		out.Reasoning = reasoning
	}
	if action == model.ActionIgnore {
		return out, nil
	}

	idx, first, ok := field(lines, "MESSAGE")
	if !ok {
		return decision.Analysis{}, appErr.New(appErr.DecisionParseFailed).
			WithMessage("analysis has no MESSAGE for a spoken action").
			WithDetail("action", string(action))
	}
	parts := []string{}
	if first != "" {
		parts = append(parts, first)
	}
	for _, line := range lines[idx+1:] {
		if hasAnyPrefix(line, "ACTION", "REASONING") {
			break
		}
		parts = append(parts, line)
	}
	out.Message = strings.TrimSpace(strings.Join(parts, "\n"))
	if out.Message == "" {
		return decision.Analysis{}, appErr.New(appErr.DecisionParseFailed).
			WithMessage("analysis message is empty").
			WithDetail("action", string(action))
	}
	return out, nil
}

const fallbackScore = 5

// parseScore reads the leading integer of a score value, clamped to [0,10].
func parseScore(raw string) (int, bool) {
	fields := strings.Fields(stripBrackets(raw))
	if len(fields) == 0 {
		return 0, false
	}
	token := strings.TrimSuffix(fields[0], "/10")
	n, err := strconv.Atoi(token)
	if err != nil {
		f, ferr := strconv.ParseFloat(token, 64)
		if ferr != nil {
			return 0, false
		}
		n = int(f)
	}
	return min(max(n, 0), 10), true
}

func parseScores(content string) (model.Scores, string, error) {
	lines := splitLines(content)
	var scores model.Scores
	dims := []struct {
		key string
		dst *int
	}{
		{"CORRECTNESS", &scores.Correctness},
		{"OPTIMIZATION", &scores.Optimization},
		{"COMMUNICATION", &scores.Communication},
		{"PROBLEM_SOLVING", &scores.ProblemSolving},
	}

	found := 0
	for _, d := range dims {
		*d.dst = fallbackScore
		_, raw, ok := field(lines, d.key)
		if !ok {
			continue
		}
		if n, ok := parseScore(raw); ok {
			*d.dst = n
			found++
		}
	}
	if found == 0 {
		return model.Scores{}, "", appErr.New(appErr.DecisionParseFailed).WithMessage("scoring response has no scores")
	}

	notes := decision.DefaultNotes
	if idx, first, ok := field(lines, "NOTES"); ok {
		parts := []string{}
		if first != "" {
			parts = append(parts, first)
		}
		parts = append(parts, lines[idx+1:]...)
		if joined := strings.TrimSpace(strings.Join(parts, "\n")); joined != "" {
			notes = joined
		}
	}
	return scores, notes, nil
}

type fairnessVerdict struct {
	biasDetected   bool
	fairnessScore  float64
	flags          []string
	recommendation string
	confidence     float64
	reasoning      string
}

func parseFloat(lines []string, key string, def, lo, hi float64) float64 {
	_, raw, ok := field(lines, key)
	if !ok {
		return def
	}
	fields := strings.Fields(stripBrackets(raw))
	if len(fields) == 0 {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "/10"), 64)
	if err != nil {
		return def
	}
	return min(max(v, lo), hi)
}

// normalizeRecommendation accepts the four bands plus PASS/FAIL.
func normalizeRecommendation(raw string) (string, bool) {
	r := strings.ToUpper(strings.Join(strings.Fields(stripBrackets(raw)), " "))
	r = strings.TrimRight(r, ".")
	switch r {
	case model.RecommendationStrongHire, model.RecommendationHire,
		model.RecommendationLeanNoHire, model.RecommendationNoHire:
		return r, true
	case "PASS":
		return model.RecommendationHire, true
	case "FAIL":
		return model.RecommendationNoHire, true
	}
	return "", false
}

func parseFairness(content string) (fairnessVerdict, error) {
	lines := splitLines(content)
	_, rawRec, ok := field(lines, "RECOMMENDATION")
	if !ok {
		return fairnessVerdict{}, appErr.New(appErr.DecisionParseFailed).WithMessage("fairness response has no RECOMMENDATION")
	}
	rec, ok := normalizeRecommendation(rawRec)
	if !ok {
		return fairnessVerdict{}, appErr.New(appErr.DecisionParseFailed).
			WithMessage("fairness response has an unknown recommendation").
			WithDetail("recommendation", rawRec)
	}

	v := fairnessVerdict{
		recommendation: rec,
		fairnessScore:  parseFloat(lines, "FAIRNESS_SCORE", 8.0, 0, 10),
		confidence:     parseFloat(lines, "CONFIDENCE", 0.7, 0, 1),
		flags:          []string{},
		reasoning:      "No reasoning provided",
	}
	if _, raw, ok := field(lines, "BIAS_DETECTED"); ok {
		v.biasDetected = strings.EqualFold(stripBrackets(raw), "true")
	}
	if _, raw, ok := field(lines, "FLAGS"); ok {
		raw = stripBrackets(raw)
		if !strings.EqualFold(raw, "none") {
			for _, item := range strings.Split(raw, ",") {
				if item = strings.TrimSpace(item); item != "" {
					v.flags = append(v.flags, item)
				}
			}
		}
	}
	if idx, first, ok := field(lines, "REASONING"); ok {
		parts := []string{}
		if first != "" {
			parts = append(parts, first)
		}
		for _, line := range lines[idx+1:] {
			if s := strings.TrimSpace(line); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			v.reasoning = strings.Join(parts, " ")
		}
	}
	return v, nil
}
