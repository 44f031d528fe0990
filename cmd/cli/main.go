package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"arete/internal/cli/command"
	"arete/internal/cli/config"
	"arete/internal/cli/http"
	"arete/internal/cli/repl"
	"arete/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 30s)")
	session := flag.String("session", "", "Attach to an existing session id")
	statePath := flag.String("state", "", "Override session state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	sessionState, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load session state failed: %v\n", err)
		os.Exit(1)
	}
	if *session != "" {
		sessionState = state.SessionState{SessionID: *session}
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout)
	r := repl.New(client, command.Registry(), &sessionState, cfg.StatePath, cfg.PrettyJSON != nil && *cfg.PrettyJSON, os.Stdout)
	if err := r.Run(context.Background(), cfg.HistoryFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
