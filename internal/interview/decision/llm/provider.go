package llm

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"arete/internal/interview/decision"
	"arete/internal/interview/model"
	"arete/internal/interview/sandbox/result"
	appErr "arete/pkg/errors"

	"github.com/sashabaranov/go-openai"
)

const (
	interviewerTemperature = 0.7
	fairnessTemperature    = 0.3

	// Fewer turns than this cannot support a fairness judgement.
	minFairnessTurns = 3
	chatHistoryTurns = 6
)

var templates = template.Must(template.New("prompts").Parse(""))

func init() {
	for name, text := range map[string]string{
		"interviewer_system": interviewerSystemPrompt,
		"present":            presentPrompt,
		"analysis":           analysisPrompt,
		"scoring":            scoringPrompt,
		"fairness":           fairnessPrompt,
		"chat_system":        chatSystemPrompt,
	} {
		template.Must(templates.New(name).Parse(text))
	}
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", appErr.Wrapf(err, appErr.DecisionProviderFailed, "render %s prompt", name)
	}
	return buf.String(), nil
}

type problemView struct {
	Title           string
	Difficulty      model.Difficulty
	Prompt          string
	OptimalApproach string
	Constraints     []string
}

func viewOf(p *model.Problem) problemView {
	if p == nil {
		return problemView{Title: "Unknown problem"}
	}
	return problemView{
		Title:           p.Title,
		Difficulty:      p.Difficulty,
		Prompt:          p.Prompt,
		OptimalApproach: p.OptimalApproach,
		Constraints:     p.Constraints,
	}
}

func (p *Provider) interviewerSystem(problem *model.Problem) (string, error) {
	return render("interviewer_system", viewOf(problem))
}

func (p *Provider) Present(ctx context.Context, in decision.PresentInput) (string, error) {
	system, err := p.interviewerSystem(in.Problem)
	if err != nil {
		return "", err
	}
	user, err := render("present", struct {
		problemView
		Candidate string
	}{viewOf(in.Problem), in.CandidateName})
	if err != nil {
		return "", err
	}
	out, err := p.complete(ctx, "present", completion{
		model:       p.cfg.InterviewerModel,
		system:      system,
		user:        userMessage(user),
		temperature: interviewerTemperature,
	})
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", appErr.New(appErr.DecisionParseFailed).WithMessage("empty presentation")
	}
	return out, nil
}

func (p *Provider) Analyze(ctx context.Context, in decision.AnalysisInput) (decision.Analysis, error) {
	system, err := p.interviewerSystem(in.Problem)
	if err != nil {
		return decision.Analysis{}, err
	}
	user, err := render("analysis", struct {
		problemView
		PreviousCode string
		CurrentCode  string
		SinceSeconds int
		HintsGiven   int
	}{viewOf(in.Problem), in.PreviousCode, in.CurrentCode, int(in.SinceLastChange.Seconds()), in.HintsGiven})
	if err != nil {
		return decision.Analysis{}, err
	}
	out, err := p.complete(ctx, "analyze", completion{
		model:       p.cfg.InterviewerModel,
		system:      system,
		user:        userMessage(user),
		temperature: interviewerTemperature,
	})
	if err != nil {
		return decision.Analysis{}, err
	}
	return parseAnalysis(out)
}

func (p *Provider) Score(ctx context.Context, in decision.ScoringInput) (model.Scores, string, error) {
	system, err := p.interviewerSystem(in.Problem)
	if err != nil {
		return model.Scores{}, "", err
	}
	user, err := render("scoring", struct {
		problemView
		FinalCode       string
		TestSummary     string
		Transcript      string
		HintsGiven      int
		DurationMinutes int
	}{viewOf(in.Problem), in.FinalCode, testSummary(in.Report), formatTranscript(in.Transcript), in.HintsGiven, int(in.Duration.Minutes())})
	if err != nil {
		return model.Scores{}, "", err
	}
	out, err := p.complete(ctx, "score", completion{
		model:       p.cfg.InterviewerModel,
		system:      system,
		user:        userMessage(user),
		temperature: interviewerTemperature,
	})
	if err != nil {
		return model.Scores{}, "", err
	}
	return parseScores(out)
}

// Review asks the fairness model for a verdict. Normalized scores are always
// computed locally from the raw scores and the hint count.
func (p *Provider) Review(ctx context.Context, in decision.FairnessInput) (model.FairnessResult, error) {
	if in.State == nil {
		return model.FairnessResult{}, appErr.New(appErr.InvalidParams).WithMessage("fairness review needs a session")
	}
	if len(in.State.ConversationHistory) < minFairnessTurns {
		return model.FairnessResult{
			FairnessScore:    0,
			Flags:            []string{"insufficient_data"},
			NormalizedScores: model.Scores{},
			Recommendation:   model.RecommendationNoDecision,
			Confidence:       1,
			Reasoning:        "Not enough conversation to assess the interview.",
		}, nil
	}

	var report *result.Report
	if sub, ok := in.State.LastSubmission(); ok {
		report = &sub.TestReport
	}
	user, err := render("fairness", struct {
		problemView
		Candidate       string
		Transcript      string
		Scores          model.Scores
		HintsGiven      int
		DurationMinutes int
		TestSummary     string
	}{viewOf(in.State.Problem), in.State.CandidateName, formatTranscript(in.State.ConversationHistory),
		in.RawScores, in.State.HintsGiven, int(in.Duration.Minutes()), testSummary(report)})
	if err != nil {
		return model.FairnessResult{}, err
	}
	out, err := p.complete(ctx, "fairness", completion{
		model:       p.cfg.FairnessModel,
		system:      fairnessSystemPrompt,
		user:        userMessage(user),
		temperature: fairnessTemperature,
	})
	if err != nil {
		return model.FairnessResult{}, err
	}
	v, err := parseFairness(out)
	if err != nil {
		return model.FairnessResult{}, err
	}
	return model.FairnessResult{
		BiasDetected:     v.biasDetected,
		FairnessScore:    v.fairnessScore,
		Flags:            v.flags,
		NormalizedScores: decision.NormalizeScores(in.RawScores, in.State.HintsGiven),
		Recommendation:   v.recommendation,
		Confidence:       v.confidence,
		Reasoning:        v.reasoning,
	}, nil
}

func (p *Provider) Reply(ctx context.Context, in decision.ChatInput) (string, error) {
	system, err := render("chat_system", struct {
		problemView
		Code string
	}{viewOf(in.Problem), in.Code})
	if err != nil {
		return "", err
	}
	history := in.History
	if len(history) > chatHistoryTurns {
		history = history[len(history)-chatHistoryTurns:]
	}
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == model.RoleInterviewer {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: in.Message})

	out, err := p.complete(ctx, "chat", completion{
		model:       p.cfg.ChatModel,
		system:      system,
		user:        msgs,
		temperature: interviewerTemperature,
		maxTokens:   defaultChatMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", appErr.New(appErr.DecisionParseFailed).WithMessage("empty reply")
	}
	return out, nil
}

func testSummary(report *result.Report) string {
	if report == nil {
		return "No code submitted"
	}
	s := fmt.Sprintf("Passed %d/%d tests", report.Passed, report.Total)
	if report.Stderr != "" {
		s += " (" + report.Stderr + ")"
	}
	return s
}

func formatTranscript(turns []model.Turn) string {
	if len(turns) == 0 {
		return "(No conversation recorded)"
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, strings.ToUpper(string(t.Role))+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

var (
	_ decision.Presenter        = (*Provider)(nil)
	_ decision.CodeAnalyzer     = (*Provider)(nil)
	_ decision.Scorer           = (*Provider)(nil)
	_ decision.FairnessReviewer = (*Provider)(nil)
	_ decision.Responder        = (*Provider)(nil)
)
