package command

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file failed: %v", err)
	}
	return path
}

func TestParseArgsPositionalAndNamed(t *testing.T) {
	cmd := Registry()["start"]
	params, err := ParseArgs(cmd, []string{"Ada Lovelace", "problem=two_sum"})
	if err != nil {
		t.Fatalf("parse args failed: %v", err)
	}
	if params.Get("candidate_name") != "Ada Lovelace" {
		t.Fatalf("unexpected candidate_name: %q", params.Get("candidate_name"))
	}
	if params.Get("problem_id") != "two_sum" || params.Has("problem") {
		t.Fatalf("alias not canonicalized: %v", params)
	}

	if _, err := ParseArgs(Registry()["status"], []string{"extra"}); err == nil {
		t.Fatalf("expected error for unexpected positional arg")
	}
}

func TestBuildStartRequest(t *testing.T) {
	params, _ := ParseArgs(Registry()["start"], []string{"Ada", "two_sum"})
	req, err := BuildRequest(Registry()["start"], params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Method != "POST" || req.Path != "/api/v1/interviews" {
		t.Fatalf("unexpected request: %s %s", req.Method, req.Path)
	}
	var payload map[string]string
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if payload["candidate_name"] != "Ada" || payload["problem_id"] != "two_sum" {
		t.Fatalf("unexpected payload: %v", payload)
	}

	if _, err := BuildRequest(Registry()["start"], Params{"candidate_name": "Ada"}); err == nil {
		t.Fatalf("expected missing problem_id error")
	}
}

func TestBuildCodeRequestReadsFile(t *testing.T) {
	path := writeTemp(t, "solution.py", "def two_sum(nums, target):\n    pass\n")
	cmd := Registry()["code"]
	params, err := ParseArgs(cmd, []string{path, "cursor=12"})
	if err != nil {
		t.Fatalf("parse args failed: %v", err)
	}
	params.Set("session_id", "s-1")
	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Path != "/api/v1/interviews/s-1/code" {
		t.Fatalf("unexpected path: %s", req.Path)
	}
	var payload struct {
		Code           string `json:"code"`
		CursorPosition int    `json:"cursor_position"`
	}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		t.Fatalf("decode body failed: %v", err)
	}
	if !strings.HasPrefix(payload.Code, "def two_sum") || payload.CursorPosition != 12 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	params.Set("cursor", "abc")
	if _, err := BuildRequest(cmd, params); err == nil {
		t.Fatalf("expected invalid cursor error")
	}
}

func TestBuildSubmitWithoutFileHasNoBody(t *testing.T) {
	cmd := Registry()["submit"]
	req, err := BuildRequest(cmd, Params{"session_id": "s-1"})
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if len(req.Body) != 0 {
		t.Fatalf("expected empty body, got %s", req.Body)
	}
}

func TestBuildRequestRequiresSession(t *testing.T) {
	_, err := BuildRequest(Registry()["report"], Params{})
	if err == nil || !strings.Contains(err.Error(), "no active session") {
		t.Fatalf("expected no active session error, got %v", err)
	}
}

func TestBuildEventsQuery(t *testing.T) {
	cmd := Registry()["events"]
	params, err := ParseArgs(cmd, []string{"type=CODE_SNAPSHOT", "limit=5", "since=2026-01-02T03:04:05Z"})
	if err != nil {
		t.Fatalf("parse args failed: %v", err)
	}
	params.Set("session_id", "a/b")
	req, err := BuildRequest(cmd, params)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	want := "/api/v1/interviews/a%2Fb/events?limit=5&since=2026-01-02T03%3A04%3A05Z&type=CODE_SNAPSHOT"
	if req.Path != want {
		t.Fatalf("unexpected path:\n got %s\nwant %s", req.Path, want)
	}

	params.Set("since", "yesterday")
	if _, err := BuildRequest(cmd, params); err == nil {
		t.Fatalf("expected invalid since error")
	}
}

func TestClearEventsUsesDelete(t *testing.T) {
	req, err := BuildRequest(Registry()["clear-events"], Params{"session_id": "s-1"})
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	if req.Method != "DELETE" || req.Path != "/api/v1/interviews/s-1/events" || req.Body != nil {
		t.Fatalf("unexpected request: %+v", req)
	}
}
