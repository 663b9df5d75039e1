package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/vk/ctxbridge/internal/app"
	"github.com/vk/ctxbridge/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

const usage = `
ctxbridge - request/reply and shared options between execution contexts.

Usage:
  ctxbridge serve [options]        run the background host
  ctxbridge send  [options]        send one message to a host
  ctxbridge fetch [options] URL    perform one HTTP request

Run 'ctxbridge <command> -h' for the options of a command.
`

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	if len(args) == 0 {
		fmt.Fprint(output, usage)
		return nil, true, nil
	}

	command, rest := args[0], args[1:]
	var (
		cfg *app.Config
		err error
	)
	switch command {
	case "-h", "--help", "help":
		fmt.Fprint(output, usage)
		return nil, true, nil
	case app.CommandServe:
		cfg, err = parseServe(rest, output)
	case app.CommandSend:
		cfg, err = parseSend(rest, output)
	case app.CommandFetch:
		cfg, err = parseFetch(rest, output)
	default:
		return nil, false, usageError("unknown command %q, expected serve, send or fetch", command)
	}
	if errors.Is(err, flag.ErrHelp) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	slog.Debug("CLI parser finished successfully.", "command", cfg.Command)
	return cfg, false, nil
}

// commonFlags are shared by every command.
type commonFlags struct {
	logFormat *string
	logLevel  *string
}

func newFlagSet(name string, output io.Writer, synopsis string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet("ctxbridge "+name, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "\nUsage:\n  ctxbridge %s %s\n\nOptions:\n", name, synopsis)
		fs.PrintDefaults()
	}
	return fs, commonFlags{
		logFormat: fs.String("log-format", "text", "Log output format. Options: 'text' or 'json'."),
		logLevel:  fs.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'."),
	}
}

func (c commonFlags) validate() (format, level string, err error) {
	return validateLogging(*c.logFormat, *c.logLevel)
}

func validateLogging(format, level string) (string, string, error) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return "", "", usageError("invalid log-format: must be 'text' or 'json'")
	}
	level = strings.ToLower(level)
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return "", "", usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	return format, level, nil
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError("%s", err.Error())
	}
	return nil
}

func parseServe(args []string, output io.Writer) (*app.Config, error) {
	fs, common := newFlagSet(app.CommandServe, output, "[options]")
	configFile := fs.String("config", "", "Path to an HCL config file. It is watched for changes.")
	listen := fs.String("listen", ":7300", "Address the host listens on.")
	healthPort := fs.Int("healthcheck-port", 0, "Port for the health check and metrics server. 0 is disabled.")
	optionsFile := fs.String("options-file", "", "YAML file the options are persisted to. Empty keeps them in memory.")
	saveDelay := fs.Duration("save-delay", 0, "Debounce interval of options writes. 0 uses the default.")
	broadcastEvent := fs.String("broadcast-event", "options", "Event pushed to contexts when options change.")
	broadcastThrottle := fs.Duration("broadcast-throttle", 100*time.Millisecond, "Minimum interval between option broadcasts.")
	allowLocal := fs.Bool("allow-local-fetch", false, "Let contexts Fetch file:, data: and localhost URLs.")
	fetchTimeout := fs.Duration("fetch-timeout", 30*time.Second, "Default timeout of Fetch commands.")
	debug := fs.Bool("debug", false, "Log every rejected message.")

	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, usageError("serve takes no arguments, got %q", fs.Args())
	}

	cfg := app.Config{
		Command:           app.CommandServe,
		ConfigFile:        *configFile,
		Listen:            *listen,
		HealthcheckPort:   *healthPort,
		OptionsFile:       *optionsFile,
		SaveDelay:         *saveDelay,
		BroadcastEvent:    *broadcastEvent,
		BroadcastThrottle: *broadcastThrottle,
		AllowLocalFetch:   *allowLocal,
		FetchTimeout:      *fetchTimeout,
		Debug:             *debug,
		LogFormat:         *common.logFormat,
		LogLevel:          *common.logLevel,
	}
	if *configFile != "" {
		if err := applyFile(&cfg, *configFile, setFlags(fs)); err != nil {
			return nil, err
		}
	}

	var err error
	if cfg.LogFormat, cfg.LogLevel, err = validateLogging(cfg.LogFormat, cfg.LogLevel); err != nil {
		return nil, err
	}
	return newConfig(cfg)
}

// applyFile fills every value the command line did not set from the config
// file.
func applyFile(cfg *app.Config, path string, set map[string]bool) error {
	file, err := config.Load(context.Background(), path)
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	defaults, err := file.DefaultsMap()
	if err != nil {
		return &ExitError{Code: 1, Message: err.Error()}
	}
	cfg.Defaults = defaults

	if file.Listen != "" && !set["listen"] {
		cfg.Listen = file.Listen
	}
	if file.Debug && !set["debug"] {
		cfg.Debug = true
	}
	if file.LogLevel != "" && !set["log-level"] {
		cfg.LogLevel = file.LogLevel
	}
	if file.LogFormat != "" && !set["log-format"] {
		cfg.LogFormat = file.LogFormat
	}
	if file.HealthcheckPort != 0 && !set["healthcheck-port"] {
		cfg.HealthcheckPort = file.HealthcheckPort
	}
	if file.OptionsFile != "" && !set["options-file"] {
		cfg.OptionsFile = file.OptionsFile
	}
	if d := file.SaveDelayDuration(); d > 0 && !set["save-delay"] {
		cfg.SaveDelay = d
	}
	if file.Broadcast != nil {
		if file.Broadcast.Event != "" && !set["broadcast-event"] {
			cfg.BroadcastEvent = file.Broadcast.Event
		}
		if file.Broadcast.Throttle != "" && !set["broadcast-throttle"] {
			cfg.BroadcastThrottle = file.BroadcastThrottle()
		}
	}
	if file.Fetch != nil {
		if file.Fetch.AllowLocal && !set["allow-local-fetch"] {
			cfg.AllowLocalFetch = true
		}
		if d := file.FetchTimeout(); d > 0 && !set["fetch-timeout"] {
			cfg.FetchTimeout = d
		}
	}
	return nil
}

func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func parseSend(args []string, output io.Writer) (*app.Config, error) {
	fs, common := newFlagSet(app.CommandSend, output, "--cmd NAME [options]")
	url := fs.String("url", "http://localhost:7300", "URL of the host.")
	cmd := fs.String("cmd", "", "Command to send.")
	data := fs.String("data", "", "Message data as JSON.")
	timeout := fs.Duration("timeout", 10*time.Second, "Time to wait for the connection and the reply. 0 waits forever.")
	insecure := fs.Bool("insecure", false, "Skip TLS certificate verification.")
	debug := fs.Bool("debug", false, "Log the rejection when the message fails.")

	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	format, level, err := common.validate()
	if err != nil {
		return nil, err
	}

	var payload any
	if *data != "" {
		if err := json.Unmarshal([]byte(*data), &payload); err != nil {
			return nil, usageError("invalid --data: %v", err)
		}
	}

	return newConfig(app.Config{
		Command:            app.CommandSend,
		URL:                *url,
		Cmd:                *cmd,
		Data:               payload,
		Timeout:            *timeout,
		InsecureSkipVerify: *insecure,
		Debug:              *debug,
		LogFormat:          format,
		LogLevel:           level,
	})
}

// headerFlags collects repeated --header K=V values.
type headerFlags map[string]string

func (h headerFlags) String() string {
	parts := make([]string, 0, len(h))
	for k, v := range h {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (h headerFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("header must be KEY=VALUE, got %q", s)
	}
	h[strings.TrimSpace(k)] = v
	return nil
}

func parseFetch(args []string, output io.Writer) (*app.Config, error) {
	fs, common := newFlagSet(app.CommandFetch, output, "[options] URL")
	method := fs.String("method", "GET", "HTTP method.")
	responseType := fs.String("type", "text", "Response type. Options: 'text', 'json', 'blob', 'arraybuffer'.")
	body := fs.String("body", "", "Request body. A valid JSON object is sent as JSON, anything else as text.")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout. 0 disables it.")
	headers := headerFlags{}
	fs.Var(headers, "header", "Request header as KEY=VALUE. Repeatable.")

	if err := parseFlags(fs, args); err != nil {
		return nil, err
	}
	format, level, err := common.validate()
	if err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, usageError("fetch takes exactly one URL")
	}

	return newConfig(app.Config{
		Command:      app.CommandFetch,
		FetchURL:     fs.Arg(0),
		Method:       *method,
		ResponseType: *responseType,
		Headers:      headers,
		Body:         decodeBody(*body),
		Timeout:      *timeout,
		LogFormat:    format,
		LogLevel:     level,
	})
}

// decodeBody turns a JSON object into a structured body; everything else is
// sent verbatim.
func decodeBody(s string) any {
	if s == "" {
		return nil
	}
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") {
		var v map[string]any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return s
}

func newConfig(cfg app.Config) (*app.Config, error) {
	out, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError("%s", err.Error())
	}
	return out, nil
}
