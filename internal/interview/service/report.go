package service

import (
	"context"
	"math"
	"time"

	"arete/internal/interview/eventlog"
	"arete/internal/interview/model"
	appErr "arete/pkg/errors"
	"arete/pkg/utils/logger"

	"go.uber.org/zap"
)

// RecommendationPending is reported while the fairness review has not produced a
// recommendation.
const RecommendationPending = "PENDING"

// Report is the final interview report.
type Report struct {
	SessionID       string                     `json:"session_id"`
	CandidateName   string                     `json:"candidate_name"`
	ProblemTitle    string                     `json:"problem_title"`
	DurationMinutes int                        `json:"duration_minutes"`
	Scores          model.Scores               `json:"scores"`
	OverallScore    float64                    `json:"overall_score"`
	Recommendation  string                     `json:"recommendation"`
	Fairness        FairnessSummary            `json:"fairness"`
	Transcript      []eventlog.TranscriptEntry `json:"transcript"`
}

// FairnessSummary is the public part of the fairness review.
type FairnessSummary struct {
	BiasDetected  bool     `json:"bias_detected"`
	FairnessScore float64  `json:"fairness_score"`
	Flags         []string `json:"flags"`
}

// buildReport projects a completed state. Normalized scores win over raw ones.
func buildReport(st *model.SessionState, transcript []eventlog.TranscriptEntry, now time.Time) *Report {
	rep := &Report{
		SessionID:       st.SessionID,
		CandidateName:   st.CandidateName,
		DurationMinutes: int(st.Duration(now).Minutes()),
		Recommendation:  RecommendationPending,
		Fairness:        FairnessSummary{Flags: []string{}},
		Transcript:      transcript,
	}
	if st.Problem != nil {
		rep.ProblemTitle = st.Problem.Title
	}
	if rep.Transcript == nil {
		rep.Transcript = []eventlog.TranscriptEntry{}
	}

	switch {
	case st.FairnessResult != nil:
		rep.Scores = st.FairnessResult.NormalizedScores
		rep.Fairness = FairnessSummary{
			BiasDetected:  st.FairnessResult.BiasDetected,
			FairnessScore: st.FairnessResult.FairnessScore,
			Flags:         st.FairnessResult.Flags,
		}
		if rep.Fairness.Flags == nil {
			rep.Fairness.Flags = []string{}
		}
	case st.RawScores != nil:
		rep.Scores = *st.RawScores
	}
	if st.RawScores != nil || st.FairnessResult != nil {
		rep.OverallScore = math.Round(rep.Scores.Mean()*10) / 10
	}
	if st.FinalRecommendation != nil && *st.FinalRecommendation != "" {
		rep.Recommendation = *st.FinalRecommendation
	}
	return rep
}

// Report returns the report of a completed interview. Sessions no longer in memory
// are read from the archive.
func (s *InterviewService) Report(ctx context.Context, sessionID string) (*Report, error) {
	if rep, ok := s.reports.Get(sessionID); ok {
		return rep, nil
	}
	ctx = logger.WithSession(ctx, sessionID)

	st, err := s.store.Get(ctx, sessionID)
	if err == nil {
		if !st.InterviewComplete {
			return nil, appErr.InvalidStateError(appErr.InterviewNotCompleted, sessionID)
		}
		rep := buildReport(st, s.events.Transcript(sessionID), s.now())
		s.cacheIfFinal(st, rep)
		return rep, nil
	}
	if !appErr.Is(err, appErr.SessionNotFound) || s.archive == nil {
		return nil, err
	}

	rec, archiveErr := s.archive.Load(ctx, sessionID)
	if archiveErr != nil {
		if !appErr.Is(archiveErr, appErr.SessionNotFound) {
			logger.Warn(ctx, "load archived session failed", zap.Error(archiveErr))
		}
		return nil, err
	}
	if !rec.State.InterviewComplete {
		return nil, appErr.InvalidStateError(appErr.InterviewNotCompleted, sessionID)
	}
	rep := buildReport(rec.State, rec.Transcript, s.now())
	s.cacheIfFinal(rec.State, rep)
	return rep, nil
}

func (s *InterviewService) cacheIfFinal(st *model.SessionState, rep *Report) {
	if st.FairnessResult != nil {
		s.reports.Add(st.SessionID, rep)
	}
}
