package repository

import (
	"os"
	"path/filepath"
	"testing"

	appErr "arete/pkg/errors"
)

const catalogJSON = `[
  {
    "id": "two_sum",
    "title": "Two Sum",
    "difficulty": "easy",
    "prompt": "Find two indices.",
    "starter_code": "def two_sum(nums, target):\n    pass\n",
    "constraints": ["2 <= len(nums)"],
    "test_cases": [{"input": {"nums": [2, 7], "target": 9}, "expected": [0, 1]}],
    "order_insensitive": true
  },
  {
    "id": "reverse_string",
    "title": "Reverse String",
    "difficulty": "easy",
    "prompt": "Reverse it.",
    "test_cases": [{"input": "abc", "expected": "cba"}]
  }
]`

func TestLoadProblemCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "problems.json")
	if err := os.WriteFile(path, []byte(catalogJSON), 0o644); err != nil {
		t.Fatalf("write catalog failed: %v", err)
	}
	c, err := LoadProblemCatalog(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 problems, got %d", c.Len())
	}
	list := c.List()
	if list[0].ID != "two_sum" || list[1].ID != "reverse_string" {
		t.Fatalf("catalog order not preserved: %+v", list)
	}

	p, err := c.Get("two_sum")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !p.OrderInsensitive || !p.TestCases[0].NamedArgs() {
		t.Fatalf("unexpected problem: %+v", p)
	}
	again, _ := c.Get(" two_sum ")
	if again != p {
		t.Fatalf("expected shared problem pointer")
	}
	rs, _ := c.Get("reverse_string")
	if rs.TestCases[0].NamedArgs() {
		t.Fatalf("string input must be positional")
	}
}

func TestProblemCatalogGetMissing(t *testing.T) {
	c, err := ParseProblemCatalog([]byte(catalogJSON))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	_, err = c.Get("graph_coloring")
	if !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("expected ProblemNotFound, got %v", err)
	}
}

func TestParseProblemCatalogRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data string
		code appErr.ErrorCode
	}{
		{name: "not json", data: `{`, code: appErr.CatalogLoadFailed},
		{name: "no cases", data: `[{"id":"a","test_cases":[]}]`, code: appErr.TestCaseInvalid},
		{name: "no id", data: `[{"test_cases":[{"input":1,"expected":1}]}]`, code: appErr.TestCaseInvalid},
		{name: "duplicate", data: `[{"id":"a","test_cases":[{"input":1,"expected":1}]},{"id":"a","test_cases":[{"input":1,"expected":1}]}]`, code: appErr.CatalogLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProblemCatalog([]byte(tt.data))
			if !appErr.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
		})
	}
}

func TestLoadProblemCatalogMissingFile(t *testing.T) {
	_, err := LoadProblemCatalog(filepath.Join(t.TempDir(), "nope.json"))
	if !appErr.Is(err, appErr.CatalogLoadFailed) {
		t.Fatalf("expected CatalogLoadFailed, got %v", err)
	}
}

func TestBundledCatalogLoads(t *testing.T) {
	catalog, err := LoadProblemCatalog("../../../configs/problems.json")
	if err != nil {
		t.Fatalf("load bundled catalog failed: %v", err)
	}
	if catalog.Len() < 5 {
		t.Fatalf("expected at least 5 problems, got %d", catalog.Len())
	}
	p, err := catalog.Get("two_sum")
	if err != nil {
		t.Fatalf("get two_sum failed: %v", err)
	}
	if !p.OrderInsensitive || !p.TestCases[0].NamedArgs() {
		t.Fatalf("unexpected two_sum definition: %+v", p)
	}
	rs, err := catalog.Get("reverse_string")
	if err != nil {
		t.Fatalf("get reverse_string failed: %v", err)
	}
	if rs.TestCases[0].NamedArgs() {
		t.Fatalf("reverse_string takes a positional argument")
	}
}
