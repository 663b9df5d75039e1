package app

import (
	"errors"
	"fmt"
	"time"
)

// Commands understood by App.Run.
const (
	CommandServe = "serve"
	CommandSend  = "send"
	CommandFetch = "fetch"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Command string

	LogFormat string
	LogLevel  string
	Debug     bool

	// serve
	Listen            string
	HealthcheckPort   int
	ConfigFile        string // hcl file, watched for changes
	OptionsFile       string // yaml file
	SaveDelay         time.Duration
	Defaults          map[string]any
	BroadcastEvent    string
	BroadcastThrottle time.Duration
	AllowLocalFetch   bool
	FetchTimeout      time.Duration

	// send
	URL                string
	Cmd                string
	Data               any
	InsecureSkipVerify bool

	// fetch
	FetchURL     string
	Method       string
	ResponseType string
	Headers      map[string]string
	Body         any

	// send and fetch
	Timeout time.Duration
}

func NewConfig(cfg Config) (*Config, error) {
	switch cfg.Command {
	case CommandServe:
		if cfg.Listen == "" {
			return nil, errors.New("listen address is required")
		}
		if cfg.BroadcastEvent == "" {
			return nil, errors.New("broadcast event name cannot be empty")
		}
	case CommandSend:
		if cfg.URL == "" {
			return nil, errors.New("url is required")
		}
		if cfg.Cmd == "" {
			return nil, errors.New("cmd is required")
		}
	case CommandFetch:
		if cfg.FetchURL == "" {
			return nil, errors.New("URL argument is required")
		}
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("healthcheck port out of range: %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
