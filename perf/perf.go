package perf

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/stampede/internal/loadtest"
	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/internal/loadtest/engine"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

// Configuration types.
type (
	Config        = config.RunConfig
	Settings      = config.Settings
	StageConfig   = config.StageConfig
	RequestConfig = config.RequestConfig
	CheckConfig   = config.CheckConfig
	ExtractConfig = config.ExtractConfig
	Duration      = config.Duration
)

// Execution and result types.
type (
	Workload        = loadtest.Workload
	WorkloadFunc    = loadtest.WorkloadFunc
	Iteration       = loadtest.Iteration
	Progress        = engine.Progress
	TestResult      = engine.Result
	ThresholdResult = engine.ThresholdResult
	Report          = metrics.Report
)

// LoadConfig loads a run configuration from a YAML or JSON file.
func LoadConfig(path string) (*Config, error) {
	return config.LoadConfig(path)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(r *Runner) { r.opts = append(r.opts, engine.WithLogger(logger)) }
}

// WithWorkload replaces the configured requests.
func WithWorkload(w Workload) Option {
	return func(r *Runner) { r.opts = append(r.opts, engine.WithWorkload(w)) }
}

// WithProgress registers a progress callback, called on every control tick.
func WithProgress(fn func(Progress)) Option {
	return func(r *Runner) { r.opts = append(r.opts, engine.WithObserver(fn)) }
}

// Runner provides a high-level API for running load tests.
//
// For programmatic test execution, create a Runner and call Run:
//
//	cfg, _ := perf.LoadConfig("test.yaml")
//	runner, _ := perf.NewRunner(cfg)
//	result, _ := runner.Run(context.Background())
type Runner struct {
	engine *engine.Engine
	opts   []engine.Option
}

// NewRunner validates cfg and creates a runner. An invalid configuration is
// reported as a *loadtest.ConfigurationError listing every problem.
func NewRunner(cfg *Config, opts ...Option) (*Runner, error) {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}

	eng, err := engine.NewEngine(cfg, r.opts...)
	if err != nil {
		return nil, err
	}
	r.engine = eng
	return r, nil
}

// Run executes the load test. A runner can be run again once a previous Run
// has returned.
func (r *Runner) Run(ctx context.Context) (*TestResult, error) {
	return r.engine.Run(ctx)
}

// RunID returns the id of the run.
func (r *Runner) RunID() string {
	return r.engine.RunID()
}

// GetMetrics returns the current metrics snapshot, nil before the first run.
// Can be called during test execution to get real-time metrics.
func (r *Runner) GetMetrics() *Report {
	return r.engine.Snapshot()
}

// RunTest is a convenience wrapper around NewRunner and Run.
func RunTest(ctx context.Context, cfg *Config, opts ...Option) (*TestResult, error) {
	r, err := NewRunner(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}
