package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullFile(t *testing.T) {
	src := `
listen           = ":7400"
debug            = getenv("CTXBRIDGE_DEBUG") != ""
log_level        = env.LOG_LEVEL
log_format       = "json"
healthcheck_port = 8081
options_file     = "${env.HOME}/options.yaml"
save_delay       = "2s"
defaults = {
  theme  = "dark"
  editor = { size = 14, tabs = true }
}

broadcast {
  event    = "optionsChanged"
  throttle = "100ms"
}

fetch {
  timeout     = "5s"
  allow_local = true
}
`
	env := map[string]string{"CTXBRIDGE_DEBUG": "1", "LOG_LEVEL": "debug", "HOME": "/home/u"}

	f, err := Parse(context.Background(), []byte(src), "test.hcl", env)
	require.NoError(t, err)

	assert.Equal(t, ":7400", f.Listen)
	assert.True(t, f.Debug)
	assert.Equal(t, "debug", f.LogLevel)
	assert.Equal(t, "json", f.LogFormat)
	assert.Equal(t, 8081, f.HealthcheckPort)
	assert.Equal(t, "/home/u/options.yaml", f.OptionsFile)
	assert.Equal(t, 2*time.Second, f.SaveDelayDuration())
	assert.Equal(t, "optionsChanged", f.Broadcast.Event)
	assert.Equal(t, 100*time.Millisecond, f.BroadcastThrottle())
	assert.Equal(t, 5*time.Second, f.FetchTimeout())
	assert.True(t, f.Fetch.AllowLocal)

	defaults, err := f.DefaultsMap()
	require.NoError(t, err)
	want := map[string]any{
		"theme":  "dark",
		"editor": map[string]any{"size": 14.0, "tabs": true},
	}
	if diff := cmp.Diff(want, defaults); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_EmptyFile(t *testing.T) {
	f, err := Parse(context.Background(), nil, "empty.hcl", nil)
	require.NoError(t, err)

	assert.False(t, f.Debug)
	assert.Zero(t, f.SaveDelayDuration())
	assert.Zero(t, f.BroadcastThrottle())
	assert.Zero(t, f.FetchTimeout())
	defaults, err := f.DefaultsMap()
	require.NoError(t, err)
	assert.Nil(t, defaults)
}

func TestParse_GetenvDefault(t *testing.T) {
	f, err := Parse(context.Background(), []byte(`listen = getenv("LISTEN", ":9000")`), "t.hcl", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, ":9000", f.Listen)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "syntax", src: `listen = `, wantErr: "failed to parse"},
		{name: "unknown attribute", src: `nope = 1`, wantErr: "failed to decode"},
		{name: "missing env attribute", src: `listen = env.NOT_SET`, wantErr: "failed to decode"},
		{name: "bad duration", src: `save_delay = "soon"`, wantErr: "save_delay"},
		{name: "negative duration", src: "broadcast {\n throttle = \"-1s\"\n}", wantErr: "broadcast.throttle"},
		{name: "bad level", src: `log_level = "loud"`, wantErr: "log_level"},
		{name: "bad format", src: `log_format = "xml"`, wantErr: "log_format"},
		{name: "bad port", src: `healthcheck_port = 70000`, wantErr: "healthcheck_port"},
		{name: "scalar defaults", src: `defaults = "x"`, wantErr: "defaults must be an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), []byte(tt.src), "bad.hcl", map[string]string{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctxbridge.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`listen = ":1234"`), 0o644))

	f, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, ":1234", f.Listen)

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
}

func TestEnvMap(t *testing.T) {
	got := EnvMap([]string{"A=1", "B=x=y", "EMPTY=", "=skip", "noequals"})
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "EMPTY": ""}, got)
}
