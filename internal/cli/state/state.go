package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SessionState remembers the interview the CLI is attached to.
type SessionState struct {
	SessionID     string    `json:"session_id"`
	CandidateName string    `json:"candidate_name"`
	ProblemTitle  string    `json:"problem_title"`
	StartedAt     time.Time `json:"started_at"`
}

// Active reports whether a session is selected.
func (s SessionState) Active() bool {
	return s.SessionID != ""
}

func Load(path string) (SessionState, error) {
	var st SessionState
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("read session state failed: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse session state failed: %w", err)
	}
	return st, nil
}

func Save(path string, st SessionState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session state failed: %w", err)
	}
	return nil
}

func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session state failed: %w", err)
	}
	return nil
}
