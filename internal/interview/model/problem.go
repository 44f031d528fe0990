package model

import (
	"encoding/json"
	"fmt"
)

// Difficulty is the coarse tier shown to candidates.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// TestCase is one input/expected pair.
// An object Input is passed as named arguments; any other JSON value is one positional argument.
type TestCase struct {
	Input    json.RawMessage `json:"input"`
	Expected json.RawMessage `json:"expected"`
}

// NamedArgs reports whether the input is a named-argument object.
func (tc TestCase) NamedArgs() bool {
	for _, b := range tc.Input {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// Problem is an immutable catalog entry shared by every session that uses it.
type Problem struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Difficulty      Difficulty `json:"difficulty"`
	Prompt          string     `json:"prompt"`
	StarterCode     string     `json:"starter_code"`
	OptimalApproach string     `json:"optimal_approach"`
	Constraints     []string   `json:"constraints"`
	TestCases       []TestCase `json:"test_cases"`

	// OrderInsensitive accepts list answers whose elements match regardless of order.
	OrderInsensitive bool `json:"order_insensitive,omitempty"`
}

// Validate checks the fields the engine depends on.
func (p *Problem) Validate() error {
	if p == nil {
		return fmt.Errorf("problem is nil")
	}
	if p.ID == "" {
		return fmt.Errorf("problem id is required")
	}
	if len(p.TestCases) == 0 {
		return fmt.Errorf("problem %s has no test cases", p.ID)
	}
	for i, tc := range p.TestCases {
		if !json.Valid(tc.Input) {
			return fmt.Errorf("problem %s case %d: invalid input", p.ID, i+1)
		}
		if !json.Valid(tc.Expected) {
			return fmt.Errorf("problem %s case %d: invalid expected value", p.ID, i+1)
		}
	}
	return nil
}

// Summary is the listing projection of a problem.
type Summary struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Difficulty Difficulty `json:"difficulty"`
}

// Summary returns the listing projection.
func (p *Problem) Summary() Summary {
	return Summary{ID: p.ID, Title: p.Title, Difficulty: p.Difficulty}
}
