package controller

import (
	"strings"
	"time"

	"arete/internal/interview/eventlog"
	"arete/internal/interview/model"
	"arete/internal/interview/service"
	"arete/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// InterviewController handles interview HTTP endpoints.
type InterviewController struct {
	interviewService *service.InterviewService
}

// NewInterviewController creates a new InterviewController.
func NewInterviewController(interviewService *service.InterviewService) *InterviewController {
	return &InterviewController{interviewService: interviewService}
}

// ListProblems returns the problem catalog.
func (h *InterviewController) ListProblems(c *gin.Context) {
	response.Success(c, ProblemListResponse{Problems: h.interviewService.ListProblems()})
}

// Start opens a new interview session.
func (h *InterviewController) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	res, err := h.interviewService.Start(c.Request.Context(), service.StartInput{
		CandidateName: req.CandidateName,
		ProblemID:     req.ProblemID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Status returns the live status of a session.
func (h *InterviewController) Status(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	status, err := h.interviewService.Status(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// Code records an editor snapshot.
func (h *InterviewController) Code(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	var req CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	res, err := h.interviewService.Snapshot(c.Request.Context(), sessionID, req.Code, req.CursorPosition)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Run executes code against the tests without ending the interview.
func (h *InterviewController) Run(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	var req RunRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	report, err := h.interviewService.Run(c.Request.Context(), sessionID, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

// Submit ends the interview and returns the report.
func (h *InterviewController) Submit(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	var req RunRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	rep, err := h.interviewService.Submit(c.Request.Context(), sessionID, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rep)
}

// Report returns the report of a completed interview.
func (h *InterviewController) Report(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	rep, err := h.interviewService.Report(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rep)
}

// Chat sends a candidate message and returns the interviewer's reply.
func (h *InterviewController) Chat(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	reply, err := h.interviewService.Chat(c.Request.Context(), sessionID, req.Message, req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ChatResponse{Reply: reply})
}

// Events lists a session's events, most recent first.
func (h *InterviewController) Events(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	var q EventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}
	events, err := h.interviewService.Events(c.Request.Context(), sessionID, service.EventQuery{
		Type:  q.Type,
		Since: q.Since,
		Limit: q.Limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, EventsResponse{SessionID: sessionID, Events: events, Count: len(events)})
}

// Transcript returns the conversation of a session.
func (h *InterviewController) Transcript(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	transcript, err := h.interviewService.Transcript(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, TranscriptResponse{SessionID: sessionID, Transcript: transcript})
}

// ClearEvents drops a session's events.
func (h *InterviewController) ClearEvents(c *gin.Context) {
	sessionID, ok := sessionParam(c)
	if !ok {
		return
	}
	n, err := h.interviewService.ClearEvents(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ClearEventsResponse{SessionID: sessionID, Cleared: n})
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(obj)
}

func sessionParam(c *gin.Context) (string, bool) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		response.BadRequest(c, "Invalid session id")
		return "", false
	}
	return sessionID, true
}

// ProblemListResponse lists catalog summaries.
type ProblemListResponse struct {
	Problems []model.Summary `json:"problems"`
}

// StartRequest defines the session start payload.
type StartRequest struct {
	CandidateName string `json:"candidate_name" binding:"required"`
	ProblemID     string `json:"problem_id" binding:"required"`
}

// CodeRequest defines the editor snapshot payload.
type CodeRequest struct {
	Code           string `json:"code"`
	CursorPosition *int   `json:"cursor_position"`
}

// RunRequest defines run and submit payloads. Empty code uses the last snapshot.
type RunRequest struct {
	Code string `json:"code"`
}

// ChatRequest defines the chat payload.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
	Code    string `json:"code"`
}

// ChatResponse carries the interviewer's reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// EventsQuery defines event filters.
type EventsQuery struct {
	Type  string    `form:"type"`
	Since time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit int       `form:"limit"`
}

// EventsResponse lists events.
type EventsResponse struct {
	SessionID string           `json:"session_id"`
	Events    []eventlog.Event `json:"events"`
	Count     int              `json:"count"`
}

// TranscriptResponse carries the conversation.
type TranscriptResponse struct {
	SessionID  string                     `json:"session_id"`
	Transcript []eventlog.TranscriptEntry `json:"transcript"`
}

// ClearEventsResponse reports how many events were dropped.
type ClearEventsResponse struct {
	SessionID string `json:"session_id"`
	Cleared   int    `json:"cleared"`
}
