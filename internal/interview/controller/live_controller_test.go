package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"arete/internal/common/cache"
	commonmw "arete/internal/common/http/middleware"
	appErr "arete/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

type liveFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newLiveServer(t *testing.T) (*httptest.Server, http.Handler, *LiveController) {
	t.Helper()
	svc, _ := newTestService(t)
	router := newTestRouter(svc)
	live := NewLiveController(svc, LiveConfig{})
	router.GET("/ws/:session_id", live.Serve)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, router, live
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) liveFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f liveFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame failed: %v", err)
	}
	return f
}

func sendFrame(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"type": typ, "data": data}); err != nil {
		t.Fatalf("write frame failed: %v", err)
	}
}

func TestLiveSessionNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv, _, _ := newLiveServer(t)
	conn := dial(t, srv, "missing")

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, CloseSessionNotFound) {
		t.Fatalf("expected close %d, got %v", CloseSessionNotFound, err)
	}
}

func TestLiveSessionFlow(t *testing.T) {
	srv, router, live := newLiveServer(t)
	id := startSession(t, router)

	conn := dial(t, srv, id)
	connected := readFrame(t, conn)
	if connected.Type != FrameConnected || !strings.Contains(string(connected.Data), "Reverse String") {
		t.Fatalf("unexpected connected frame: %+v", connected)
	}
	observer := dial(t, srv, id)
	readFrame(t, observer)
	if n := live.Connections(id); n != 2 {
		t.Fatalf("expected 2 connections, got %d", n)
	}

	sendFrame(t, conn, FramePing, nil)
	if f := readFrame(t, conn); f.Type != FramePong {
		t.Fatalf("expected pong, got %+v", f)
	}

	// A silent snapshot produces no frame, so the next frame belongs to the chat.
	sendFrame(t, conn, FrameCodeSnapshot, map[string]any{"code": "def reverse_string(s):\n    out = ''\n", "cursor_position": 3})
	sendFrame(t, conn, FrameCandidateMessage, map[string]any{"message": "I'll build the string backwards."})
	chat := readFrame(t, conn)
	if chat.Type != FrameAgentResponse || !strings.Contains(string(chat.Data), `"action":"chat"`) {
		t.Fatalf("unexpected chat frame: %+v", chat)
	}
	if f := readFrame(t, observer); f.Type != FrameAgentResponse {
		t.Fatalf("observer missed the reply: %+v", f)
	}

	sendFrame(t, conn, FrameCodeSnapshot, map[string]any{"code": "def reverse_string(s):\n    return s[::-1]\n"})
	enc := readFrame(t, conn)
	if enc.Type != FrameAgentResponse || !strings.Contains(string(enc.Data), `"action":"encourage"`) {
		t.Fatalf("unexpected snapshot frame: %+v", enc)
	}
	readFrame(t, observer)

	sendFrame(t, conn, FrameRunCode, map[string]any{})
	run := readFrame(t, conn)
	if run.Type != FrameRunResult || !strings.Contains(string(run.Data), `"passed":2`) {
		t.Fatalf("unexpected run frame: %+v", run)
	}

	sendFrame(t, conn, "dance", nil)
	if f := readFrame(t, conn); f.Type != FrameError || !strings.Contains(string(f.Data), "Unknown message type: dance") {
		t.Fatalf("unexpected error frame: %+v", f)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if f := readFrame(t, conn); f.Type != FrameError {
		t.Fatalf("expected error for invalid json, got %+v", f)
	}

	sendFrame(t, conn, FrameSubmit, map[string]any{"code": "def reverse_string(s):\n    return s[::-1]\n"})
	done := readFrame(t, conn)
	if done.Type != FrameInterviewComplete || !strings.Contains(string(done.Data), `"recommendation"`) {
		t.Fatalf("unexpected completion frame: %+v", done)
	}
	if f := readFrame(t, observer); f.Type != FrameInterviewComplete {
		t.Fatalf("observer missed completion: %+v", f)
	}

	sendFrame(t, conn, FrameCodeSnapshot, map[string]any{"code": "late"})
	if f := readFrame(t, conn); f.Type != FrameError {
		t.Fatalf("expected error after completion, got %+v", f)
	}
}

func TestLiveRunCodeIsRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	counter, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("create redis cache failed: %v", err)
	}
	t.Cleanup(func() { _ = counter.Close() })
	limiter := commonmw.NewRateLimiter(counter, time.Minute, time.Second)

	svc, _ := newTestService(t)
	router := newTestRouter(svc)
	live := NewLiveController(svc, LiveConfig{}).
		WithRateLimit(limiter, commonmw.RateLimitPolicy{SessionMax: 1}, commonmw.RateLimitPolicy{})
	router.GET("/ws/:session_id", live.Serve)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	id := startSession(t, router)
	conn := dial(t, srv, id)
	readFrame(t, conn)

	code := map[string]any{"code": "def reverse_string(s):\n    return s[::-1]\n"}
	sendFrame(t, conn, FrameRunCode, code)
	if f := readFrame(t, conn); f.Type != FrameRunResult {
		t.Fatalf("expected first run to pass, got %+v", f)
	}
	sendFrame(t, conn, FrameRunCode, code)
	f := readFrame(t, conn)
	if f.Type != FrameError || !strings.Contains(string(f.Data), `"code":`+strconv.Itoa(int(appErr.TooManyRequests))) {
		t.Fatalf("expected rate limit error, got %+v", f)
	}
	if !mr.Exists("arete:rate:session:" + id + ":run") {
		t.Fatalf("expected the live path to share the REST session key")
	}

	// Submit has no budget configured.
	sendFrame(t, conn, FrameSubmit, code)
	if f := readFrame(t, conn); f.Type != FrameInterviewComplete {
		t.Fatalf("expected submit to pass, got %+v", f)
	}
}
