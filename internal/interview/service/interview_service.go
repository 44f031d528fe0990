// Package service exposes interview session operations to transports.
package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"arete/internal/interview/eventlog"
	"arete/internal/interview/model"
	"arete/internal/interview/repository"
	"arete/internal/interview/sandbox"
	"arete/internal/interview/sandbox/result"
	"arete/internal/interview/workflow"
	appErr "arete/pkg/errors"
	"arete/pkg/utils/logger"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	maxCandidateNameRunes  = 100
	maxChatMessageRunes    = 4000
	defaultReportCacheSize = 512
	defaultMaxDuration     = 30 * time.Minute
	defaultArchiveTimeout  = 5 * time.Second
)

// ProblemCatalog is the read side of the problem catalog.
type ProblemCatalog interface {
	Get(id string) (*model.Problem, error)
	List() []model.Summary
}

// ReportArchive keeps finished sessions after they leave memory.
type ReportArchive interface {
	Save(ctx context.Context, rec repository.ArchivedSession) error
	Load(ctx context.Context, sessionID string) (repository.ArchivedSession, error)
}

// Config wires the service.
type Config struct {
	Catalog      ProblemCatalog
	Store        *repository.SessionStore
	Events       *eventlog.Log
	Orchestrator *workflow.Orchestrator
	Sandbox      sandbox.Service
	// Archive is optional.
	Archive ReportArchive

	ReportCacheSize int
	MaxDuration     time.Duration
	ArchiveTimeout  time.Duration
	Now             func() time.Time
}

// InterviewService runs interview sessions. Every state change for a session goes
// through the session store's lock.
type InterviewService struct {
	catalog        ProblemCatalog
	store          *repository.SessionStore
	events         *eventlog.Log
	flow           *workflow.Orchestrator
	sandbox        sandbox.Service
	archive        ReportArchive
	reports        *lru.Cache[string, *Report]
	maxDuration    time.Duration
	archiveTimeout time.Duration
	now            func() time.Time
}

// NewInterviewService validates cfg and builds the service.
func NewInterviewService(cfg Config) (*InterviewService, error) {
	if cfg.Catalog == nil || cfg.Store == nil || cfg.Events == nil || cfg.Orchestrator == nil || cfg.Sandbox == nil {
		return nil, appErr.New(appErr.InternalServerError).WithMessage("interview service dependencies are incomplete")
	}
	if cfg.ReportCacheSize <= 0 {
		cfg.ReportCacheSize = defaultReportCacheSize
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaultMaxDuration
	}
	if cfg.ArchiveTimeout <= 0 {
		cfg.ArchiveTimeout = defaultArchiveTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	reports, err := lru.New[string, *Report](cfg.ReportCacheSize)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "create report cache failed")
	}
	return &InterviewService{
		catalog:        cfg.Catalog,
		store:          cfg.Store,
		events:         cfg.Events,
		flow:           cfg.Orchestrator,
		sandbox:        cfg.Sandbox,
		archive:        cfg.Archive,
		reports:        reports,
		maxDuration:    cfg.MaxDuration,
		archiveTimeout: cfg.ArchiveTimeout,
		now:            cfg.Now,
	}, nil
}

// ListProblems returns the catalog summaries.
func (s *InterviewService) ListProblems() []model.Summary {
	return s.catalog.List()
}

// StartInput is the request to open a session.
type StartInput struct {
	CandidateName string
	ProblemID     string
}

// StartResult describes a freshly started session.
type StartResult struct {
	SessionID      string      `json:"session_id"`
	CandidateName  string      `json:"candidate_name"`
	ProblemTitle   string      `json:"problem_title"`
	StarterCode    string      `json:"starter_code"`
	WelcomeMessage string      `json:"welcome_message"`
	Problem        ProblemView `json:"problem"`
}

// ProblemView is the candidate-facing part of a problem. Test cases stay server side.
type ProblemView struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Difficulty  model.Difficulty `json:"difficulty"`
	Prompt      string           `json:"prompt"`
	Constraints []string         `json:"constraints"`
}

func viewOf(p *model.Problem) ProblemView {
	constraints := p.Constraints
	if constraints == nil {
		constraints = []string{}
	}
	return ProblemView{ID: p.ID, Title: p.Title, Difficulty: p.Difficulty, Prompt: p.Prompt, Constraints: constraints}
}

// Start opens a session and presents the problem.
func (s *InterviewService) Start(ctx context.Context, in StartInput) (*StartResult, error) {
	name := strings.TrimSpace(in.CandidateName)
	if name == "" {
		return nil, appErr.ValidationError("candidate_name", "required")
	}
	if utf8.RuneCountInString(name) > maxCandidateNameRunes {
		return nil, appErr.ValidationError("candidate_name", "at most 100 characters")
	}
	problemID := strings.TrimSpace(in.ProblemID)
	if problemID == "" {
		return nil, appErr.ValidationError("problem_id", "required")
	}
	problem, err := s.catalog.Get(problemID)
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	ctx = logger.WithSession(ctx, sessionID)
	state, err := s.flow.Start(ctx, sessionID, name, problem)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SessionCreateFailed, "start interview failed")
	}
	if err := s.store.Put(ctx, state); err != nil {
		return nil, err
	}

	welcome := ""
	if len(state.ConversationHistory) > 0 {
		welcome = state.ConversationHistory[0].Content
	}
	logger.Info(ctx, "interview started", zap.String("problem_id", problem.ID))
	return &StartResult{
		SessionID:      sessionID,
		CandidateName:  name,
		ProblemTitle:   problem.Title,
		StarterCode:    problem.StarterCode,
		WelcomeMessage: welcome,
		Problem:        viewOf(problem),
	}, nil
}

// Status is the live view of a session.
type Status struct {
	SessionID        string         `json:"session_id"`
	CandidateName    string         `json:"candidate_name"`
	ProblemTitle     string         `json:"problem_title"`
	IsComplete       bool           `json:"is_complete"`
	Phase            workflow.Phase `json:"phase"`
	CodeSnapshot     string         `json:"code_snapshot"`
	HintsGiven       int            `json:"hints_given"`
	ElapsedMinutes   int            `json:"elapsed_minutes"`
	RemainingSeconds int            `json:"remaining_seconds"`
}

// Status returns the current session status.
func (s *InterviewService) Status(ctx context.Context, sessionID string) (*Status, error) {
	st, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	elapsed := st.Duration(s.now())
	remaining := 0
	if !st.InterviewComplete && elapsed < s.maxDuration {
		remaining = int((s.maxDuration - elapsed).Seconds())
	}
	title := ""
	if st.Problem != nil {
		title = st.Problem.Title
	}
	return &Status{
		SessionID:        st.SessionID,
		CandidateName:    st.CandidateName,
		ProblemTitle:     title,
		IsComplete:       st.InterviewComplete,
		Phase:            workflow.StateOf(st),
		CodeSnapshot:     st.CodeSnapshot,
		HintsGiven:       st.HintsGiven,
		ElapsedMinutes:   int(elapsed.Minutes()),
		RemainingSeconds: remaining,
	}, nil
}

// SnapshotResult is the interviewer's reaction to an editor update.
type SnapshotResult struct {
	HasResponse bool    `json:"has_response"`
	Message     *string `json:"message"`
	Action      *string `json:"action"`
}

// Snapshot records the editor content and lets the interviewer react to it.
// cursor is the editor cursor offset when the client sends one.
func (s *InterviewService) Snapshot(ctx context.Context, sessionID, code string, cursor *int) (*SnapshotResult, error) {
	ctx = logger.WithSession(ctx, sessionID)
	var outcome workflow.SnapshotOutcome
	_, err := s.store.WithLock(ctx, sessionID, func(st *model.SessionState) (*model.SessionState, error) {
		if st.InterviewComplete {
			return nil, appErr.InvalidStateError(appErr.InterviewCompleted, sessionID)
		}
		payload := map[string]any{"code": code, "cursor": nil}
		if cursor != nil {
			payload["cursor"] = *cursor
		}
		s.events.Append(ctx, eventlog.TypeCodeSnapshot, sessionID, payload, eventlog.PriorityLow)

		next, out, err := s.flow.AnalyzeSnapshot(ctx, st, code)
		if err != nil {
			return nil, err
		}
		outcome = out
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	if outcome.Action == model.ActionIgnore || outcome.Message == "" {
		return &SnapshotResult{}, nil
	}
	action := strings.ToLower(string(outcome.Action))
	message := outcome.Message
	return &SnapshotResult{HasResponse: true, Message: &message, Action: &action}, nil
}

// Run executes code against the session's problem without ending the interview.
// Empty code runs the current snapshot.
func (s *InterviewService) Run(ctx context.Context, sessionID, code string) (result.Report, error) {
	ctx = logger.WithSession(ctx, sessionID)
	st, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return result.Report{}, err
	}
	if code == "" {
		code = st.CodeSnapshot
	}
	report, err := s.sandbox.Execute(ctx, sandbox.RequestFor(st.Problem, code))
	if err != nil {
		return result.Report{}, err
	}
	s.events.Append(ctx, eventlog.TypeRunResult, sessionID, reportPayload(report), eventlog.PriorityMedium)
	return report, nil
}

// Submit runs the final tests, closes the interview and returns its report.
func (s *InterviewService) Submit(ctx context.Context, sessionID, code string) (*Report, error) {
	ctx = logger.WithSession(ctx, sessionID)
	st, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.InterviewComplete {
		return nil, appErr.InvalidStateError(appErr.InterviewCompleted, sessionID)
	}
	if code == "" {
		code = st.CodeSnapshot
	}

	// The sandbox runs outside the session lock; Finalize rejects a lost race.
	report, err := s.sandbox.Execute(ctx, sandbox.RequestFor(st.Problem, code))
	if err != nil {
		return nil, err
	}
	final, err := s.store.WithLock(ctx, sessionID, func(cur *model.SessionState) (*model.SessionState, error) {
		return s.flow.Finalize(ctx, cur, code, report)
	})
	if err != nil {
		return nil, err
	}

	transcript := s.events.Transcript(sessionID)
	rep := buildReport(final, transcript, s.now())
	s.reports.Add(sessionID, rep)
	if err := s.archiveSession(ctx, final, transcript); err != nil {
		logger.Warn(ctx, "archive session failed", zap.Error(err))
	}
	return rep, nil
}

// Chat records a candidate message and returns the interviewer's reply.
func (s *InterviewService) Chat(ctx context.Context, sessionID, message, code string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", appErr.ValidationError("message", "required")
	}
	if utf8.RuneCountInString(message) > maxChatMessageRunes {
		return "", appErr.ValidationError("message", "too long")
	}
	ctx = logger.WithSession(ctx, sessionID)
	var reply string
	_, err := s.store.WithLock(ctx, sessionID, func(st *model.SessionState) (*model.SessionState, error) {
		next, r, err := s.flow.Chat(ctx, st, message, code)
		if err != nil {
			return nil, err
		}
		reply = r
		return next, nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

// archiveSession is a no-op without an archive.
func (s *InterviewService) archiveSession(ctx context.Context, st *model.SessionState, transcript []eventlog.TranscriptEntry) error {
	if s.archive == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.archiveTimeout)
	defer cancel()
	return s.archive.Save(ctx, repository.ArchivedSession{State: st, Transcript: transcript, ArchivedAt: s.now()})
}

func reportPayload(r result.Report) map[string]any {
	details := r.Details
	if details == nil {
		details = []result.CaseDetail{}
	}
	payload := map[string]any{
		"passed":            r.Passed,
		"failed":            r.Failed,
		"total":             r.Total,
		"details":           details,
		"execution_time_ms": r.ExecutionTimeMs,
		"stderr":            nil,
	}
	if r.Stderr != "" {
		payload["stderr"] = r.Stderr
	}
	return payload
}
