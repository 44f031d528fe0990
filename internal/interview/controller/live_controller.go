package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	commonmw "arete/internal/common/http/middleware"
	"arete/internal/interview/service"
	appErr "arete/pkg/errors"
	"arete/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame types exchanged on the live socket.
const (
	FrameConnected         = "connected"
	FramePing              = "ping"
	FramePong              = "pong"
	FrameCodeSnapshot      = "code_snapshot"
	FrameCandidateMessage  = "candidate_message"
	FrameRunCode           = "run_code"
	FrameSubmit            = "submit"
	FrameAgentResponse     = "agent_response"
	FrameRunResult         = "run_result"
	FrameInterviewComplete = "interview_complete"
	FrameError             = "error"
)

// CloseSessionNotFound is sent when the socket names an unknown session.
const CloseSessionNotFound = 4004

const (
	defaultWriteTimeout    = 10 * time.Second
	defaultMaxMessageBytes = 256 << 10
)

// Frame is one message on the live socket.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// LiveConfig configures the live socket.
type LiveConfig struct {
	// AllowedOrigins limits browser origins; empty or "*" accepts any.
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes"`
}

// LiveController serves the per-session websocket used by the editor.
type LiveController struct {
	interviewService *service.InterviewService
	upgrader         websocket.Upgrader
	hub              *hub
	writeTimeout     time.Duration
	maxMessageBytes  int64

	limiter     *commonmw.RateLimiter
	runLimit    commonmw.RateLimitPolicy
	submitLimit commonmw.RateLimitPolicy
}

// NewLiveController creates a new LiveController.
func NewLiveController(interviewService *service.InterviewService, cfg LiveConfig) *LiveController {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}
	origins := cfg.AllowedOrigins
	return &LiveController{
		interviewService: interviewService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return originAccepted(r.Header.Get("Origin"), origins) },
		},
		hub:             newHub(),
		writeTimeout:    cfg.WriteTimeout,
		maxMessageBytes: cfg.MaxMessageBytes,
	}
}

// WithRateLimit applies the REST run and submit budgets to the matching frames.
// Both paths count against the same keys. A nil limiter disables limiting.
func (h *LiveController) WithRateLimit(limiter *commonmw.RateLimiter, run, submit commonmw.RateLimitPolicy) *LiveController {
	h.limiter = limiter
	h.runLimit = run
	h.submitLimit = submit
	return h
}

// Serve upgrades the request and runs the session loop until the client leaves.
func (h *LiveController) Serve(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	ctx := logger.WithSession(c.Request.Context(), sessionID)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	status, err := h.interviewService.Status(ctx, sessionID)
	if err != nil {
		msg := websocket.FormatCloseMessage(CloseSessionNotFound, "Session not found")
		if !appErr.Is(err, appErr.SessionNotFound) {
			msg = websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable")
		}
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.writeTimeout))
		return
	}

	cl := &client{conn: conn, writeTimeout: h.writeTimeout, ip: c.ClientIP()}
	h.hub.join(sessionID, cl)
	defer h.hub.leave(sessionID, cl)
	conn.SetReadLimit(h.maxMessageBytes)

	cl.send(Frame{Type: FrameConnected, Data: map[string]any{
		"session_id":    sessionID,
		"problem_title": status.ProblemTitle,
		"code":          status.CodeSnapshot,
		"is_complete":   status.IsComplete,
	}})
	logger.Debug(ctx, "live session connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug(ctx, "live session read failed", zap.Error(err))
			}
			return
		}
		var in inboundFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			cl.send(errorFrame(appErr.New(appErr.InvalidFormat).WithMessage("Invalid JSON")))
			continue
		}
		h.dispatch(ctx, sessionID, cl, in)
	}
}

func (h *LiveController) dispatch(ctx context.Context, sessionID string, cl *client, in inboundFrame) {
	switch in.Type {
	case FramePing:
		cl.send(Frame{Type: FramePong, Data: map[string]any{"timestamp": time.Now().UTC()}})

	case FrameCodeSnapshot:
		var data struct {
			Code           string `json:"code"`
			CursorPosition *int   `json:"cursor_position"`
		}
		if !decodeData(cl, in.Data, &data) {
			return
		}
		res, err := h.interviewService.Snapshot(ctx, sessionID, data.Code, data.CursorPosition)
		if err != nil {
			cl.send(errorFrame(err))
			return
		}
		if res.HasResponse {
			h.hub.broadcast(sessionID, Frame{Type: FrameAgentResponse, Data: map[string]any{
				"message":   *res.Message,
				"action":    *res.Action,
				"timestamp": time.Now().UTC(),
			}})
		}

	case FrameCandidateMessage:
		var data struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if !decodeData(cl, in.Data, &data) {
			return
		}
		reply, err := h.interviewService.Chat(ctx, sessionID, data.Message, data.Code)
		if err != nil {
			cl.send(errorFrame(err))
			return
		}
		h.hub.broadcast(sessionID, Frame{Type: FrameAgentResponse, Data: map[string]any{
			"message":   reply,
			"action":    "chat",
			"timestamp": time.Now().UTC(),
		}})

	case FrameRunCode:
		var data struct {
			Code string `json:"code"`
		}
		if !decodeData(cl, in.Data, &data) {
			return
		}
		if err := h.limiter.Check(ctx, "run", cl.ip, sessionID, h.runLimit); err != nil {
			cl.send(errorFrame(err))
			return
		}
		report, err := h.interviewService.Run(ctx, sessionID, data.Code)
		if err != nil {
			cl.send(errorFrame(err))
			return
		}
		cl.send(Frame{Type: FrameRunResult, Data: report})

	case FrameSubmit:
		var data struct {
			Code string `json:"code"`
		}
		if !decodeData(cl, in.Data, &data) {
			return
		}
		if err := h.limiter.Check(ctx, "submit", cl.ip, sessionID, h.submitLimit); err != nil {
			cl.send(errorFrame(err))
			return
		}
		rep, err := h.interviewService.Submit(ctx, sessionID, data.Code)
		if err != nil {
			cl.send(errorFrame(err))
			return
		}
		h.hub.broadcast(sessionID, Frame{Type: FrameInterviewComplete, Data: rep})

	default:
		cl.send(errorFrame(appErr.New(appErr.InvalidParams).WithMessage(fmt.Sprintf("Unknown message type: %s", in.Type))))
	}
}

// decodeData accepts a missing data object.
func decodeData(cl *client, raw json.RawMessage, v any) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	if err := json.Unmarshal(raw, v); err != nil {
		cl.send(errorFrame(appErr.New(appErr.InvalidFormat).WithMessage("Invalid message data")))
		return false
	}
	return true
}

func errorFrame(err error) Frame {
	e := appErr.GetError(err)
	return Frame{Type: FrameError, Data: map[string]any{
		"error": e.Error(),
		"code":  e.Code,
	}}
}

func originAccepted(origin string, allowed []string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, item := range allowed {
		item = strings.TrimSpace(item)
		if item == "*" || strings.EqualFold(item, origin) {
			return true
		}
	}
	return false
}

// client serializes writes to one connection.
type client struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	ip           string
	mu           sync.Mutex
}

func (c *client) send(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	_ = c.conn.WriteJSON(f)
}

// hub tracks the sockets attached to each session.
type hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func newHub() *hub {
	return &hub{rooms: make(map[string]map[*client]struct{})}
}

func (h *hub) join(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[sessionID] = room
	}
	room[c] = struct{}{}
}

func (h *hub) leave(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
	}
}

func (h *hub) clients(sessionID string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.rooms[sessionID]))
	for c := range h.rooms[sessionID] {
		out = append(out, c)
	}
	return out
}

func (h *hub) broadcast(sessionID string, f Frame) {
	for _, c := range h.clients(sessionID) {
		c.send(f)
	}
}

// Connections returns how many sockets are attached to a session.
func (h *LiveController) Connections(sessionID string) int {
	return len(h.hub.clients(sessionID))
}
