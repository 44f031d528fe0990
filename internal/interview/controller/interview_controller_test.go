package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	commonmw "arete/internal/common/http/middleware"
	"arete/internal/interview/decision"
	"arete/internal/interview/eventlog"
	"arete/internal/interview/model"
	"arete/internal/interview/repository"
	"arete/internal/interview/sandbox"
	"arete/internal/interview/sandbox/result"
	"arete/internal/interview/service"
	"arete/internal/interview/workflow"
	appErr "arete/pkg/errors"

	"github.com/gin-gonic/gin"
)

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	TraceID string          `json:"trace_id"`
}

type stubSandbox struct {
	mu     sync.Mutex
	report result.Report
	calls  int
}

func (s *stubSandbox) Execute(_ context.Context, _ sandbox.Request) (result.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.report, nil
}

func newTestService(t *testing.T) (*service.InterviewService, *stubSandbox) {
	t.Helper()
	catalog, err := repository.NewProblemCatalog([]*model.Problem{{
		ID:          "reverse_string",
		Title:       "Reverse String",
		Difficulty:  model.DifficultyEasy,
		Prompt:      "Return the input string reversed.",
		StarterCode: "def reverse_string(s):\n    pass\n",
		TestCases: []model.TestCase{
			{Input: json.RawMessage(`"abc"`), Expected: json.RawMessage(`"cba"`)},
			{Input: json.RawMessage(`""`), Expected: json.RawMessage(`""`)},
		},
	}})
	if err != nil {
		t.Fatalf("build catalog failed: %v", err)
	}
	events := eventlog.New()
	sb := &stubSandbox{report: result.Report{Passed: 2, Total: 2, Details: []result.CaseDetail{}}}
	svc, err := service.NewInterviewService(service.Config{
		Catalog:      catalog,
		Store:        repository.NewSessionStore(4),
		Events:       events,
		Orchestrator: workflow.New(decision.Providers{}, events, decision.RuleConfig{}),
		Sandbox:      sb,
	})
	if err != nil {
		t.Fatalf("create service failed: %v", err)
	}
	return svc, sb
}

func newTestRouter(svc *service.InterviewService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(commonmw.TraceContextMiddleware())

	h := NewInterviewController(svc)
	api := router.Group("/api/v1")
	api.GET("/problems", h.ListProblems)
	api.POST("/interviews", h.Start)
	session := api.Group("/interviews/:session_id")
	session.GET("", h.Status)
	session.POST("/code", h.Code)
	session.POST("/run", h.Run)
	session.POST("/submit", h.Submit)
	session.GET("/report", h.Report)
	session.POST("/chat", h.Chat)
	session.GET("/events", h.Events)
	session.GET("/transcript", h.Transcript)
	session.DELETE("/events", h.ClearEvents)
	return router
}

func performRequest(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response failed: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, resp
}

func decodeBody(t *testing.T, resp apiResponse, v any) {
	t.Helper()
	if err := json.Unmarshal(resp.Data, v); err != nil {
		t.Fatalf("decode data failed: %v", err)
	}
}

func startSession(t *testing.T, router http.Handler) string {
	t.Helper()
	rec, resp := performRequest(t, router, http.MethodPost, "/api/v1/interviews", StartRequest{
		CandidateName: "Grace",
		ProblemID:     "reverse_string",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected start status: %d (%s)", rec.Code, rec.Body.String())
	}
	var started service.StartResult
	decodeBody(t, resp, &started)
	if started.SessionID == "" {
		t.Fatalf("expected a session id")
	}
	return started.SessionID
}

func TestListProblems(t *testing.T) {
	svc, _ := newTestService(t)
	router := newTestRouter(svc)

	rec, resp := performRequest(t, router, http.MethodGet, "/api/v1/problems", nil)
	if rec.Code != http.StatusOK || resp.Code != int(appErr.Success) {
		t.Fatalf("unexpected response: %d %+v", rec.Code, resp)
	}
	var list ProblemListResponse
	decodeBody(t, resp, &list)
	if len(list.Problems) != 1 || list.Problems[0].ID != "reverse_string" {
		t.Fatalf("unexpected problems: %+v", list.Problems)
	}
	if resp.TraceID == "" {
		t.Fatalf("expected a trace id in the envelope")
	}
}

func TestStartErrors(t *testing.T) {
	svc, _ := newTestService(t)
	router := newTestRouter(svc)

	cases := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   appErr.ErrorCode
	}{
		{name: "missing fields", body: map[string]string{}, wantStatus: http.StatusBadRequest, wantCode: appErr.InvalidParams},
		{name: "unknown problem", body: StartRequest{CandidateName: "Grace", ProblemID: "nope"}, wantStatus: http.StatusNotFound, wantCode: appErr.ProblemNotFound},
		{name: "blank name", body: StartRequest{CandidateName: "  ", ProblemID: "reverse_string"}, wantStatus: http.StatusBadRequest, wantCode: appErr.ValidationFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := performRequest(t, router, http.MethodPost, "/api/v1/interviews", tc.body)
			if rec.Code != tc.wantStatus || resp.Code != int(tc.wantCode) {
				t.Fatalf("unexpected response: %d %+v", rec.Code, resp)
			}
		})
	}
}

func TestInterviewLifecycle(t *testing.T) {
	svc, sb := newTestService(t)
	router := newTestRouter(svc)
	id := startSession(t, router)
	base := "/api/v1/interviews/" + id

	rec, resp := performRequest(t, router, http.MethodGet, base, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	var status service.Status
	decodeBody(t, resp, &status)
	if status.IsComplete || status.ProblemTitle != "Reverse String" {
		t.Fatalf("unexpected status: %+v", status)
	}

	cursor := 12
	rec, resp = performRequest(t, router, http.MethodPost, base+"/code", CodeRequest{
		Code:           "def reverse_string(s):\n    return s[::-1]\n",
		CursorPosition: &cursor,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected code status: %d", rec.Code)
	}
	var snap service.SnapshotResult
	decodeBody(t, resp, &snap)
	if !snap.HasResponse || snap.Action == nil || *snap.Action != "encourage" {
		t.Fatalf("unexpected snapshot result: %+v", snap)
	}

	rec, resp = performRequest(t, router, http.MethodPost, base+"/chat", ChatRequest{Message: "Is slicing fine here?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected chat status: %d", rec.Code)
	}
	var chat ChatResponse
	decodeBody(t, resp, &chat)
	if chat.Reply == "" {
		t.Fatalf("expected a reply")
	}

	// Run with no body uses the current snapshot.
	rec, resp = performRequest(t, router, http.MethodPost, base+"/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected run status: %d (%s)", rec.Code, rec.Body.String())
	}
	var run result.Report
	decodeBody(t, resp, &run)
	if run.Passed != 2 || sb.calls != 1 {
		t.Fatalf("unexpected run: %+v calls=%d", run, sb.calls)
	}

	rec, resp = performRequest(t, router, http.MethodGet, base+"/report", nil)
	if rec.Code != http.StatusConflict || resp.Code != int(appErr.InterviewNotCompleted) {
		t.Fatalf("expected 409 before submit, got %d %+v", rec.Code, resp)
	}

	rec, resp = performRequest(t, router, http.MethodPost, base+"/submit", RunRequest{Code: "def reverse_string(s):\n    return s[::-1]\n"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected submit status: %d (%s)", rec.Code, rec.Body.String())
	}
	var rep service.Report
	decodeBody(t, resp, &rep)
	if rep.Recommendation == service.RecommendationPending || rep.Scores.Correctness != 10 {
		t.Fatalf("unexpected report: %+v", rep)
	}

	rec, resp = performRequest(t, router, http.MethodPost, base+"/submit", RunRequest{Code: "x"})
	if rec.Code != http.StatusConflict || resp.Code != int(appErr.InterviewCompleted) {
		t.Fatalf("expected 409 on resubmit, got %d %+v", rec.Code, resp)
	}

	rec, resp = performRequest(t, router, http.MethodGet, base+"/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected report status: %d", rec.Code)
	}
	var again service.Report
	decodeBody(t, resp, &again)
	if again.OverallScore != rep.OverallScore {
		t.Fatalf("report changed between reads")
	}
}

func TestEventsEndpoints(t *testing.T) {
	svc, _ := newTestService(t)
	router := newTestRouter(svc)
	id := startSession(t, router)
	base := "/api/v1/interviews/" + id

	performRequest(t, router, http.MethodPost, base+"/chat", ChatRequest{Message: "hello"})

	rec, resp := performRequest(t, router, http.MethodGet, base+"/events?type=candidate_message", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected events status: %d", rec.Code)
	}
	var events EventsResponse
	decodeBody(t, resp, &events)
	if events.Count != 1 || events.Events[0].Type != eventlog.TypeCandidateMessage {
		t.Fatalf("unexpected events: %+v", events)
	}

	rec, resp = performRequest(t, router, http.MethodGet, base+"/events?type=bogus", nil)
	if rec.Code != http.StatusBadRequest || resp.Code != int(appErr.ValidationFailed) {
		t.Fatalf("expected validation failure, got %d %+v", rec.Code, resp)
	}
	rec, _ = performRequest(t, router, http.MethodGet, base+"/events?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected bad query to fail, got %d", rec.Code)
	}

	rec, resp = performRequest(t, router, http.MethodGet, base+"/transcript", nil)
	var transcript TranscriptResponse
	decodeBody(t, resp, &transcript)
	if rec.Code != http.StatusOK || len(transcript.Transcript) != 3 {
		t.Fatalf("unexpected transcript: %d %+v", rec.Code, transcript)
	}

	rec, resp = performRequest(t, router, http.MethodDelete, base+"/events", nil)
	var cleared ClearEventsResponse
	decodeBody(t, resp, &cleared)
	if rec.Code != http.StatusOK || cleared.Cleared != 4 {
		t.Fatalf("unexpected clear: %d %+v", rec.Code, cleared)
	}
	_, resp = performRequest(t, router, http.MethodGet, base+"/events", nil)
	decodeBody(t, resp, &events)
	if events.Count != 0 {
		t.Fatalf("expected no events after clear, got %d", events.Count)
	}
}

func TestUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)
	router := newTestRouter(svc)

	rec, resp := performRequest(t, router, http.MethodGet, "/api/v1/interviews/missing", nil)
	if rec.Code != http.StatusNotFound || resp.Code != int(appErr.SessionNotFound) {
		t.Fatalf("unexpected response: %d %+v", rec.Code, resp)
	}
	rec, _ = performRequest(t, router, http.MethodPost, "/api/v1/interviews/missing/chat", ChatRequest{Message: "hi"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected chat status: %d", rec.Code)
	}
}
