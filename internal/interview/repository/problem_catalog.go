package repository

import (
	"encoding/json"
	"os"
	"slices"
	"strings"

	"arete/internal/interview/model"
	appErr "arete/pkg/errors"
)

// ProblemCatalog is the read-only set of interview problems, loaded once.
type ProblemCatalog struct {
	byID  map[string]*model.Problem
	order []string
}

// LoadProblemCatalog reads a JSON array of problems from path.
func LoadProblemCatalog(path string) (*ProblemCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "read problem catalog failed").WithDetail("path", path)
	}
	return ParseProblemCatalog(data)
}

// ParseProblemCatalog builds a catalog from JSON. Every problem must validate and
// ids must be unique.
func ParseProblemCatalog(data []byte) (*ProblemCatalog, error) {
	var problems []*model.Problem
	if err := json.Unmarshal(data, &problems); err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "decode problem catalog failed")
	}
	return NewProblemCatalog(problems)
}

// NewProblemCatalog builds a catalog from already decoded problems.
func NewProblemCatalog(problems []*model.Problem) (*ProblemCatalog, error) {
	c := &ProblemCatalog{byID: make(map[string]*model.Problem, len(problems))}
	for _, p := range problems {
		if err := p.Validate(); err != nil {
			return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "invalid problem")
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, appErr.Newf(appErr.CatalogLoadFailed, "duplicate problem id %q", p.ID)
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c, nil
}

// Get returns the shared problem for id.
func (c *ProblemCatalog) Get(id string) (*model.Problem, error) {
	p, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, appErr.ProblemNotFoundError(id).WithDetail("available", c.IDs())
	}
	return p, nil
}

// List returns summaries in catalog order.
func (c *ProblemCatalog) List() []model.Summary {
	out := make([]model.Summary, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Summary())
	}
	return out
}

// IDs returns the known problem ids in catalog order.
func (c *ProblemCatalog) IDs() []string {
	return slices.Clone(c.order)
}

// Len returns the number of problems.
func (c *ProblemCatalog) Len() int {
	return len(c.order)
}
