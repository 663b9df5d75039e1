package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/ctxbridge/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// File is the decoded host configuration file.
//
//	listen       = ":7300"
//	debug        = getenv("CTXBRIDGE_DEBUG") != ""
//	options_file = "options.yaml"
//	defaults     = { theme = "dark" }
//
//	broadcast {
//	  event    = "options"
//	  throttle = "100ms"
//	}
type File struct {
	Listen          string     `hcl:"listen,optional"`
	Debug           bool       `hcl:"debug,optional"`
	LogLevel        string     `hcl:"log_level,optional"`
	LogFormat       string     `hcl:"log_format,optional"`
	HealthcheckPort int        `hcl:"healthcheck_port,optional"`
	OptionsFile     string     `hcl:"options_file,optional"`
	SaveDelay       string     `hcl:"save_delay,optional"`
	Defaults        cty.Value  `hcl:"defaults,optional"`
	Broadcast       *Broadcast `hcl:"broadcast,block"`
	Fetch           *Fetch     `hcl:"fetch,block"`

	saveDelay time.Duration
}

// Broadcast controls the options-changed event pushed to connected contexts.
type Broadcast struct {
	Event    string `hcl:"event,optional"`
	Throttle string `hcl:"throttle,optional"`

	throttle time.Duration
}

// Fetch controls the privileged fetch command.
type Fetch struct {
	Timeout    string `hcl:"timeout,optional"`
	AllowLocal bool   `hcl:"allow_local,optional"`

	timeout time.Duration
}

// SaveDelayDuration returns save_delay, or 0 when unset.
func (f *File) SaveDelayDuration() time.Duration {
	return f.saveDelay
}

// BroadcastThrottle returns broadcast.throttle, or 0 when unset.
func (f *File) BroadcastThrottle() time.Duration {
	if f.Broadcast == nil {
		return 0
	}
	return f.Broadcast.throttle
}

// FetchTimeout returns fetch.timeout, or 0 when unset.
func (f *File) FetchTimeout() time.Duration {
	if f.Fetch == nil {
		return 0
	}
	return f.Fetch.timeout
}

// DefaultsMap converts the defaults object to plain Go values.
func (f *File) DefaultsMap() (map[string]any, error) {
	if f.Defaults.IsNull() {
		return nil, nil
	}
	if !f.Defaults.Type().IsObjectType() && !f.Defaults.Type().IsMapType() {
		return nil, fmt.Errorf("defaults must be an object, got %s", f.Defaults.Type().FriendlyName())
	}
	raw, err := ctyjson.Marshal(f.Defaults, f.Defaults.Type())
	if err != nil {
		return nil, fmt.Errorf("failed to convert defaults: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to convert defaults: %w", err)
	}
	return out, nil
}

// Load reads and decodes the file at path with the process environment.
func Load(ctx context.Context, path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(ctx, src, path, EnvMap(os.Environ()))
}

// Parse decodes src. env is exposed to expressions as the env object.
func Parse(ctx context.Context, src []byte, filename string, env map[string]string) (*File, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing config file", "file", filename)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var file File
	diags = gohcl.DecodeBody(hclFile.Body, EvalContext(env), &file)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	if err := file.resolve(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}

	logger.Debug("Config file parsed", "file", filename, "debug", file.Debug, "listen", file.Listen)
	return &file, nil
}

// EvalContext exposes env as an object (env.HOME) and through
// getenv(name, default...), which tolerates unset variables.
func EvalContext(env map[string]string) *hcl.EvalContext {
	vals := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vals[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vals),
		},
		Functions: map[string]function.Function{
			"getenv": getenvFunc(env),
		},
	}
}

func getenvFunc(env map[string]string) function.Function {
	return function.New(&function.Spec{
		Params:   []function.Parameter{{Name: "name", Type: cty.String}},
		VarParam: &function.Parameter{Name: "default", Type: cty.String},
		Type:     function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			if v, ok := env[args[0].AsString()]; ok {
				return cty.StringVal(v), nil
			}
			if len(args) > 1 {
				return args[1], nil
			}
			return cty.StringVal(""), nil
		},
	})
}

// EnvMap turns KEY=value pairs into a map.
func EnvMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

func (f *File) resolve() error {
	var err error
	if f.saveDelay, err = parseDuration("save_delay", f.SaveDelay); err != nil {
		return err
	}
	if f.Broadcast != nil {
		if f.Broadcast.throttle, err = parseDuration("broadcast.throttle", f.Broadcast.Throttle); err != nil {
			return err
		}
	}
	if f.Fetch != nil {
		if f.Fetch.timeout, err = parseDuration("fetch.timeout", f.Fetch.Timeout); err != nil {
			return err
		}
	}
	if f.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(f.LogLevel)); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	switch f.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", f.LogFormat)
	}
	if f.HealthcheckPort < 0 || f.HealthcheckPort > 65535 {
		return fmt.Errorf("healthcheck_port out of range: %d", f.HealthcheckPort)
	}
	if _, err := f.DefaultsMap(); err != nil {
		return err
	}
	return nil
}

func parseDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}
