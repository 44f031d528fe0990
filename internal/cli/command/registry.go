package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const sessionPath = "/api/v1/interviews/:session_id"

// Registry returns all CLI commands keyed by name.
func Registry() map[string]Command {
	commands := []Command{
		{
			Name:         "problems",
			Usage:        "problems",
			Method:       "GET",
			PathTemplate: "/api/v1/problems",
		},
		{
			Name:         "start",
			Usage:        "start <candidate_name> <problem_id>",
			Method:       "POST",
			PathTemplate: "/api/v1/interviews",
			Fields: []Field{
				{Name: "candidate_name", Aliases: []string{"name"}, Prompt: "candidate name", Type: FieldString, Required: true, Positional: true},
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem id", Type: FieldString, Required: true, Positional: true},
			},
		},
		{
			Name:         "status",
			Usage:        "status",
			Method:       "GET",
			PathTemplate: sessionPath,
		},
		{
			Name:         "code",
			Usage:        "code <file> [cursor=N]",
			Method:       "POST",
			PathTemplate: sessionPath + "/code",
			Fields: []Field{
				{Name: "file", Prompt: "source file", Type: FieldFile, Required: true, Positional: true},
				{Name: "cursor", Aliases: []string{"cursor_position"}, Type: FieldInt},
			},
		},
		{
			Name:         "run",
			Usage:        "run [file]",
			Method:       "POST",
			PathTemplate: sessionPath + "/run",
			Fields: []Field{
				{Name: "file", Type: FieldFile, Positional: true},
			},
		},
		{
			Name:         "submit",
			Usage:        "submit [file]",
			Method:       "POST",
			PathTemplate: sessionPath + "/submit",
			Fields: []Field{
				{Name: "file", Type: FieldFile, Positional: true},
			},
		},
		{
			Name:         "chat",
			Usage:        "chat \"<message>\" [file=path]",
			Method:       "POST",
			PathTemplate: sessionPath + "/chat",
			Fields: []Field{
				{Name: "message", Aliases: []string{"msg"}, Prompt: "message", Type: FieldString, Required: true, Positional: true},
				{Name: "file", Type: FieldFile},
			},
		},
		{
			Name:         "report",
			Usage:        "report",
			Method:       "GET",
			PathTemplate: sessionPath + "/report",
		},
		{
			Name:         "events",
			Usage:        "events [type=T] [since=RFC3339] [limit=N]",
			Method:       "GET",
			PathTemplate: sessionPath + "/events",
			Fields: []Field{
				{Name: "type", Type: FieldString},
				{Name: "since", Type: FieldTime},
				{Name: "limit", Type: FieldInt},
			},
		},
		{
			Name:         "transcript",
			Usage:        "transcript",
			Method:       "GET",
			PathTemplate: sessionPath + "/transcript",
		},
		{
			Name:         "clear-events",
			Usage:        "clear-events",
			Method:       "DELETE",
			PathTemplate: sessionPath + "/events",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Name] = cmd
	}
	return result
}

// Names returns the registered command names in order.
func Names(commands map[string]Command) []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}
	if err := validate(cmd.Fields, params); err != nil {
		return RequestSpec{}, err
	}

	if cmd.Method == "GET" {
		query := buildQuery(cmd.Fields, params)
		if query != "" {
			path += "?" + query
		}
		return RequestSpec{Method: cmd.Method, Path: path}, nil
	}

	var body []byte
	if cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method: cmd.Method,
		Path:   path,
		Body:   body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	const placeholder = ":session_id"
	if !strings.Contains(template, placeholder) {
		return template, nil
	}
	value := strings.TrimSpace(params.Get("session_id"))
	if value == "" {
		return "", fmt.Errorf("no active session, run start or use <session_id>")
	}
	return strings.ReplaceAll(template, placeholder, url.PathEscape(value)), nil
}

func validate(fields []Field, params Params) error {
	for _, field := range fields {
		value := params.Get(field.Name)
		if field.Required && strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", field.Name)
		}
		if value == "" {
			continue
		}
		switch field.Type {
		case FieldInt:
			if _, err := ParseInt(value); err != nil {
				return fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		case FieldTime:
			if _, err := time.Parse(time.RFC3339, value); err != nil {
				return fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		}
	}
	return nil
}

func buildQuery(fields []Field, params Params) string {
	values := url.Values{}
	for _, field := range fields {
		if value := params.Get(field.Name); value != "" {
			values.Set(field.Name, value)
		}
	}
	return values.Encode()
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Name {
	case "start":
		return map[string]string{
			"candidate_name": params.Get("candidate_name"),
			"problem_id":     params.Get("problem_id"),
		}, nil
	case "code":
		code, err := ReadFile(params.Get("file"))
		if err != nil {
			return nil, err
		}
		payload := map[string]interface{}{"code": code}
		if params.Get("cursor") != "" {
			cursor, _ := ParseInt(params.Get("cursor"))
			payload["cursor_position"] = cursor
		}
		return payload, nil
	case "run", "submit":
		// Without a file the server uses the last snapshot.
		if params.Get("file") == "" {
			return nil, nil
		}
		code, err := ReadFile(params.Get("file"))
		if err != nil {
			return nil, err
		}
		return map[string]string{"code": code}, nil
	case "chat":
		payload := map[string]string{"message": params.Get("message")}
		if params.Get("file") != "" {
			code, err := ReadFile(params.Get("file"))
			if err != nil {
				return nil, err
			}
			payload["code"] = code
		}
		return payload, nil
	}
	return nil, nil
}
