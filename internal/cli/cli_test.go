package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/loadtest"
	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/internal/loadtest/engine"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func newTarget(t *testing.T, status int) (*httptest.Server, *int64) {
	t.Helper()
	var hits int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseStages(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []config.StageConfig
		wantErr bool
	}{
		{
			name:  "ramp up hold down",
			input: "30s:20,1m:20,30s:0",
			want: []config.StageConfig{
				{Duration: config.Duration(30 * time.Second), Target: 20, Name: "stage-1"},
				{Duration: config.Duration(time.Minute), Target: 20, Name: "stage-2"},
				{Duration: config.Duration(30 * time.Second), Target: 0, Name: "stage-3"},
			},
		},
		{
			name:  "spaces and trailing comma",
			input: " 10s : 5 , ",
			want: []config.StageConfig{
				{Duration: config.Duration(10 * time.Second), Target: 5, Name: "stage-1"},
			},
		},
		{name: "missing colon", input: "30s", wantErr: true},
		{name: "bad duration", input: "soon:10", wantErr: true},
		{name: "bad target", input: "30s:many", wantErr: true},
		{name: "negative target", input: "30s:-1", wantErr: true},
		{name: "empty", input: " , ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStages(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailed, ExitCode(ErrThresholdsFailed))
	assert.Equal(t, ExitFailed, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitConfigError, ExitCode(&loadtest.ConfigurationError{Err: errors.New("bad")}))
	assert.Equal(t, ExitConfigError, ExitCode(fmt.Errorf("wrapped: %w", &loadtest.ConfigurationError{Err: errors.New("bad")})))
}

func TestRunCmd_QuickMode(t *testing.T) {
	server, hits := newTarget(t, http.StatusOK)
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "result.json")
	dbPath := filepath.Join(dir, "runs.db")

	_, err := execute(t, "run",
		"--url", server.URL,
		"--vus", "2",
		"--duration", "300ms",
		"--quiet", "--no-color",
		"--json", jsonPath,
		"--history", dbPath,
	)
	require.NoError(t, err)
	assert.Greater(t, atomic.LoadInt64(hits), int64(0))

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var result engine.Result
	require.NoError(t, json.Unmarshal(data, &result))
	assert.True(t, result.Passed)
	assert.Greater(t, result.Report.Iterations, int64(0))
	assert.Equal(t, int64(0), result.Report.FailedIterations)
	assert.Equal(t, 2, result.MaxVUs)

	out, err := execute(t, "history", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, result.RunID)
	assert.Contains(t, out, "Quick run")
	assert.Contains(t, out, "passed")

	out, err = execute(t, "history", "show", result.RunID, "--db", dbPath, "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "iterations")
}

func TestRunCmd_ConfigFile(t *testing.T) {
	server, _ := newTarget(t, http.StatusOK)
	path := writeConfig(t, `
name: "Health"
settings:
  baseUrl: "http://unused.invalid"
vus: 1
duration: 200ms
gracefulStop: 1s
variables:
  path: nowhere
requests:
  - name: health
    url: /{{path}}
    checks:
      - type: status
        value: "200"
thresholds:
  checks: ["rate > 0.99"]
`)

	out, err := execute(t, "run", "-c", path, "--url", server.URL, "--var", "path=health", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "Health")
	assert.Contains(t, out, "status is 200")
}

func TestRunCmd_FailedThresholdsExitOne(t *testing.T) {
	server, _ := newTarget(t, http.StatusInternalServerError)
	path := writeConfig(t, `
name: "Broken"
vus: 1
duration: 200ms
gracefulStop: 1s
requests:
  - name: broken
    url: `+server.URL+`
    checks:
      - type: status
        value: "200"
thresholds:
  checks: ["rate > 0.99"]
`)

	_, err := execute(t, "run", "-c", path, "--quiet", "--no-color")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrThresholdsFailed)
	assert.Equal(t, ExitFailed, ExitCode(err))
}

func TestRunCmd_ConfigurationErrors(t *testing.T) {
	conflicting := writeConfig(t, `
vus: 2
duration: 1s
stages:
  - duration: 1s
    target: 2
requests:
  - url: http://localhost/
`)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no target", args: []string{"run"}},
		{name: "missing file", args: []string{"run", "-c", filepath.Join(t.TempDir(), "nope.yaml")}},
		{name: "vus and stages in file", args: []string{"run", "-c", conflicting}},
		{name: "stages with vus flag", args: []string{"run", "--url", "http://localhost/", "--stages", "1s:1", "--vus", "2"}},
		{name: "bad stages", args: []string{"run", "--url", "http://localhost/", "--stages", "1s"}},
		{name: "bad duration", args: []string{"run", "--url", "http://localhost/", "--duration", "forever"}},
		{name: "unknown flag", args: []string{"run", "--frobnicate"}},
		{name: "bad log level", args: []string{"--log-level", "loud", "run", "--url", "http://localhost/"}},
		{name: "bad log format", args: []string{"--log-format", "xml", "run", "--url", "http://localhost/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitConfigError, ExitCode(err), "error: %v", err)
		})
	}
}

func TestRunOptions_ApplyProfile(t *testing.T) {
	t.Run("stages replace fixed profile", func(t *testing.T) {
		cfg := quickConfig("http://localhost/")
		o := &runOptions{stages: "1s:3,1s:0"}
		require.NoError(t, o.applyProfile(cfg))
		assert.Equal(t, 0, cfg.VUs)
		assert.Equal(t, config.Duration(0), cfg.Duration)
		assert.Len(t, cfg.Stages, 2)
	})

	t.Run("vus replace stages", func(t *testing.T) {
		cfg := &config.RunConfig{Stages: []config.StageConfig{{Duration: config.Duration(time.Second), Target: 1}}, Duration: config.Duration(time.Minute)}
		o := &runOptions{vus: 4}
		require.NoError(t, o.applyProfile(cfg))
		assert.Nil(t, cfg.Stages)
		assert.Equal(t, 4, cfg.VUs)
		assert.Equal(t, config.Duration(time.Minute), cfg.Duration)
	})

	t.Run("no flags keep file", func(t *testing.T) {
		cfg := quickConfig("http://localhost/")
		require.NoError(t, (&runOptions{}).applyProfile(cfg))
		assert.Equal(t, defaultQuickVUs, cfg.VUs)
		assert.Equal(t, config.Duration(defaultQuickDuration), cfg.Duration)
	})
}

func TestHistoryCmd_Empty(t *testing.T) {
	out, err := execute(t, "history", "--db", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestHistoryCmd_ShowUnknown(t *testing.T) {
	_, err := execute(t, "history", "show", "missing", "--db", filepath.Join(t.TempDir(), "runs.db"))
	require.Error(t, err)
	assert.Equal(t, ExitFailed, ExitCode(err))
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := config.LoadConfig(filepath.Join("..", "..", "examples", "exchange.yaml"))
	require.NoError(t, err)

	_, err = engine.NewEngine(cfg)
	require.NoError(t, err)
	assert.True(t, cfg.IsStaged())
	require.NotNil(t, cfg.Setup)
	require.NotNil(t, cfg.Setup.Credentials)
	assert.Equal(t, "data.token", cfg.Setup.Credentials.TokenPath)
	assert.Len(t, cfg.Requests, 3)
}
