package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"arete/internal/cli/command"
	httpclient "arete/internal/cli/http"
	"arete/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const basePrompt = "arete"

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	state      *state.SessionState
	statePath  string
	prettyJSON bool
	out        io.Writer
	rl         *readline.Instance
}

func New(client *httpclient.Client, commands map[string]command.Command, st *state.SessionState, statePath string, prettyJSON bool, out io.Writer) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		state:      st,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		out:        out,
	}
}

// Run reads commands until exit or EOF.
func (s *Session) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            s.prompt(),
		HistoryFile:       historyFile,
		AutoComplete:      s.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()
	s.rl = rl
	s.out = rl.Stdout()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		quit, err := s.Exec(ctx, line)
		if err != nil {
			s.printLine("error: %v", err)
		}
		if quit {
			s.printLine("bye")
			return nil
		}
		rl.SetPrompt(s.prompt())
	}
}

// Exec handles one input line and reports whether the REPL should stop.
func (s *Session) Exec(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	tokens, err := shlex.Split(line)
	if err != nil {
		return false, fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return false, nil
	}
	if handled, quit := s.handleSystemCommand(tokens); handled {
		return quit, nil
	}
	return false, s.handleCommand(ctx, tokens)
}

func (s *Session) handleSystemCommand(tokens []string) (bool, bool) {
	args := tokens[1:]
	switch tokens[0] {
	case "exit", "quit":
		return true, true
	case "help":
		s.printHelp()
	case "set":
		s.handleSet(args)
	case "show":
		s.handleShow(args)
	case "use":
		if len(args) != 1 {
			s.printLine("usage: use <session_id>")
			return true, false
		}
		s.state.SessionID = args[0]
		s.state.CandidateName = ""
		s.state.ProblemTitle = ""
		s.state.StartedAt = time.Time{}
		s.saveState()
		s.printLine("session set to %s", args[0])
	case "forget":
		*s.state = state.SessionState{}
		if err := state.Clear(s.statePath); err != nil {
			s.printLine("clear session failed: %v", err)
			return true, false
		}
		s.printLine("session cleared")
	default:
		return false, false
	}
	return true, false
}

func (s *Session) handleSet(args []string) {
	if len(args) == 0 {
		s.printLine("usage: set base|timeout")
		return
	}
	switch args[0] {
	case "base":
		if len(args) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8000")
			return
		}
		s.client.SetBaseURL(args[1])
		s.printLine("base set to %s", args[1])
	case "timeout":
		if len(args) < 2 {
			s.printLine("usage: set timeout 30s")
			return
		}
		dur, err := time.ParseDuration(args[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args []string) {
	what := ""
	if len(args) > 0 {
		what = args[0]
	}
	switch what {
	case "session":
		if !s.state.Active() {
			s.printLine("session: <none>")
			return
		}
		s.printLine("session: %s", s.state.SessionID)
		if s.state.CandidateName != "" {
			s.printLine("candidate: %s", s.state.CandidateName)
		}
		if s.state.ProblemTitle != "" {
			s.printLine("problem: %s", s.state.ProblemTitle)
		}
		if !s.state.StartedAt.IsZero() {
			s.printLine("started: %s", s.state.StartedAt.Format(time.RFC3339))
		}
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("statePath: %s", s.statePath)
	default:
		s.printLine("usage: show session|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, tokens []string) error {
	cmd, ok := s.commands[tokens[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s (try help)", tokens[0])
	}
	params, err := command.ParseArgs(cmd, tokens[1:])
	if err != nil {
		return err
	}
	if cmd.NeedsSession() && !params.Has("session_id") {
		params.Set("session_id", s.state.SessionID)
	}
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	if cmd.Name == "start" {
		s.rememberSession(resp)
	}
	return nil
}

// promptMissing asks for required fields interactively. Without a terminal the
// request is built as is and validation reports the gap.
func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	if s.rl == nil {
		return nil
	}
	for _, field := range cmd.Fields {
		if !field.Required || strings.TrimSpace(params.Get(field.Name)) != "" {
			continue
		}
		value, err := s.promptValue(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(prompt string) (string, error) {
	defer s.rl.SetPrompt(s.prompt())
	s.rl.SetPrompt(prompt + ": ")
	line, err := s.rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

type startData struct {
	SessionID      string `json:"session_id"`
	CandidateName  string `json:"candidate_name"`
	ProblemTitle   string `json:"problem_title"`
	WelcomeMessage string `json:"welcome_message"`
}

func (s *Session) rememberSession(resp httpclient.ResponseInfo) {
	env, err := resp.Envelope()
	if err != nil || !env.OK() {
		return
	}
	var data startData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.SessionID == "" {
		return
	}
	*s.state = state.SessionState{
		SessionID:     data.SessionID,
		CandidateName: data.CandidateName,
		ProblemTitle:  data.ProblemTitle,
		StartedAt:     time.Now().UTC(),
	}
	s.saveState()
	if data.WelcomeMessage != "" {
		s.printLine("")
		s.printLine("interviewer: %s", data.WelcomeMessage)
	}
}

func (s *Session) saveState() {
	if err := state.Save(s.statePath, *s.state); err != nil {
		s.printLine("save session failed: %v", err)
	}
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s) trace=%s", resp.StatusCode, resp.Duration.Round(time.Millisecond), resp.TraceID)
	if len(resp.Body) == 0 {
		return
	}
	if env, err := resp.Envelope(); err == nil && !env.OK() {
		s.printLine("error %d: %s", env.Code, env.Message)
		if len(env.Details) > 0 && string(env.Details) != "null" {
			s.printLine("details: %s", string(env.Details))
		}
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) prompt() string {
	if !s.state.Active() {
		return basePrompt + "> "
	}
	id := s.state.SessionID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s[%s]> ", basePrompt, id)
}

func (s *Session) completer() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("use"),
		readline.PcItem("forget"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout")),
		readline.PcItem("show", readline.PcItem("session"), readline.PcItem("config")),
	}
	for _, name := range command.Names(s.commands) {
		items = append(items, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) printHelp() {
	s.printLine("commands:")
	for _, name := range command.Names(s.commands) {
		s.printLine("  %s", s.commands[name].Usage)
	}
	s.printLine("system: help | exit | use <session_id> | forget | set base|timeout | show session|config")
	s.printLine("examples:")
	s.printLine("  start \"Ada Lovelace\" two_sum")
	s.printLine("  code ./solution.py cursor=120")
	s.printLine("  chat \"should I handle duplicates?\"")
	s.printLine("  submit ./solution.py")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
