package command

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldFile
	FieldTime
)

// Field defines a CLI input field.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
	// Positional fields may be given without the key= prefix, in order.
	Positional bool
}

// Command defines a CLI command binding.
type Command struct {
	Name         string
	Usage        string
	Method       string
	PathTemplate string
	Fields       []Field
}

// NeedsSession reports whether the path addresses a session.
func (c Command) NeedsSession() bool {
	return strings.Contains(c.PathTemplate, ":session_id")
}

// RequestSpec is the built HTTP request.
type RequestSpec struct {
	Method string
	Path   string
	Body   []byte
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

// ParseArgs turns tokens into params. key=value tokens are named; bare tokens fill
// the positional fields in declaration order.
func ParseArgs(cmd Command, tokens []string) (Params, error) {
	params := Params{}
	var positional []Field
	for _, f := range cmd.Fields {
		if f.Positional {
			positional = append(positional, f)
		}
	}
	next := 0
	for _, token := range tokens {
		if key, value, ok := strings.Cut(token, "="); ok && key != "" && !strings.ContainsAny(key, " \t") {
			params.Set(key, value)
			continue
		}
		if next >= len(positional) {
			return nil, fmt.Errorf("invalid param: %s", token)
		}
		params.Set(positional[next].Name, token)
		next++
	}
	params.Canonicalize(cmd.Fields)
	return params, nil
}

func ParseInt(value string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	return int(n), err
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}
