// Package decision defines the contracts the interview workflow consumes from
// external decision providers, together with rule-based implementations used when
// no model is configured.
package decision

import (
	"context"
	"time"

	"arete/internal/interview/model"
	"arete/internal/interview/sandbox/result"
)

// PresentInput is what a presenter needs to introduce the problem.
type PresentInput struct {
	Problem       *model.Problem
	CandidateName string
}

// Presenter produces the opening interviewer message of a session.
type Presenter interface {
	Present(ctx context.Context, in PresentInput) (string, error)
}

// AnalysisInput describes one code change.
type AnalysisInput struct {
	Problem         *model.Problem
	PreviousCode    string
	CurrentCode     string
	SinceLastChange time.Duration
	HintsGiven      int
}

// Analysis is the classified reaction to a code change.
// Message is empty for ActionIgnore.
type Analysis struct {
	Action    model.Action
	Message   string
	Reasoning string
}

// CodeAnalyzer classifies live code changes.
type CodeAnalyzer interface {
	Analyze(ctx context.Context, in AnalysisInput) (Analysis, error)
}

// ScoringInput is the evidence used to score a finished interview.
// Report is nil when nothing was submitted.
type ScoringInput struct {
	Problem    *model.Problem
	FinalCode  string
	Report     *result.Report
	Transcript []model.Turn
	HintsGiven int
	Duration   time.Duration
}

// Scorer rates a finished interview.
type Scorer interface {
	Score(ctx context.Context, in ScoringInput) (model.Scores, string, error)
}

// FairnessInput carries the finished session and its raw scores.
type FairnessInput struct {
	State     *model.SessionState
	RawScores model.Scores
	Duration  time.Duration
}

// FairnessReviewer audits a scored interview and produces the final recommendation.
type FairnessReviewer interface {
	Review(ctx context.Context, in FairnessInput) (model.FairnessResult, error)
}

// ChatInput is one candidate message with its context.
type ChatInput struct {
	Problem       *model.Problem
	CandidateName string
	Code          string
	History       []model.Turn
	Message       string
}

// Responder answers free-form candidate messages.
type Responder interface {
	Reply(ctx context.Context, in ChatInput) (string, error)
}

// Providers bundles every decision provider the workflow uses.
type Providers struct {
	Presenter Presenter
	Analyzer  CodeAnalyzer
	Scorer    Scorer
	Reviewer  FairnessReviewer
	Responder Responder
}

// WithDefaults fills unset providers with the rule-based implementations.
func (p Providers) WithDefaults(cfg RuleConfig) Providers {
	rules := NewRules(cfg)
	if p.Presenter == nil {
		p.Presenter = rules
	}
	if p.Analyzer == nil {
		p.Analyzer = rules
	}
	if p.Scorer == nil {
		p.Scorer = rules
	}
	if p.Reviewer == nil {
		p.Reviewer = rules
	}
	if p.Responder == nil {
		p.Responder = rules
	}
	return p
}
