// Package engine runs a complete load test from a run configuration.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/loadtest"
	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
	"github.com/wesleyorama2/stampede/internal/loadtest/ramp"
	"github.com/wesleyorama2/stampede/internal/loadtest/setup"
)

// ErrAlreadyRunning is returned when Run is called on a running engine.
var ErrAlreadyRunning = errors.New("engine is already running")

// Engine is the orchestrator of a run.
//
// A run goes through these phases, each exactly once:
//   - setup, before any virtual user starts
//   - the ramp, driven by the VU scheduler
//   - teardown, after every virtual user stopped
//   - threshold evaluation on the final report
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("test.yaml")
//	e, _ := engine.NewEngine(cfg)
//	result, _ := e.Run(context.Background())
//	fmt.Printf("Thresholds passed: %v\n", result.Passed)
type Engine struct {
	config  *config.RunConfig
	planner ramp.Planner
	stats   []metrics.TrendStat
	runID   string
	logger  log.FieldLogger

	workload      loadtest.Workload
	authenticator setup.Authenticator
	setupFuncs    []setup.SetupFunc
	teardownFuncs []setup.TeardownFunc
	observers     []Observer

	mu        sync.Mutex
	running   bool
	agg       *metrics.Aggregator
	scheduler *loadtest.VUScheduler
}

// Progress is published to observers after every scheduler tick.
type Progress struct {
	RunID   string
	Elapsed time.Duration
	Target  int
	Active  int
	Report  *metrics.Report
}

// Observer receives progress updates. It is called from the control loop
// and must not block.
type Observer func(Progress)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithWorkload replaces the configured requests with a Go workload.
func WithWorkload(w loadtest.Workload) Option {
	return func(e *Engine) {
		e.workload = w
	}
}

// WithAuthenticator replaces the login request of the credential phase.
func WithAuthenticator(a setup.Authenticator) Option {
	return func(e *Engine) {
		e.authenticator = a
	}
}

// WithSetupFunc adds a setup hook.
func WithSetupFunc(fn setup.SetupFunc) Option {
	return func(e *Engine) {
		e.setupFuncs = append(e.setupFuncs, fn)
	}
}

// WithTeardownFunc adds a teardown hook.
func WithTeardownFunc(fn setup.TeardownFunc) Option {
	return func(e *Engine) {
		e.teardownFuncs = append(e.teardownFuncs, fn)
	}
}

// WithObserver registers a progress observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// WithRunID sets the run id instead of a random UUID.
func WithRunID(id string) Option {
	return func(e *Engine) {
		e.runID = id
	}
}

// NewEngine validates cfg and applies its defaults. Every configuration
// problem is reported at once in a *loadtest.ConfigurationError.
func NewEngine(cfg *config.RunConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &loadtest.ConfigurationError{Err: err}
	}
	config.ApplyDefaults(cfg)

	planner, err := cfg.Planner()
	if err != nil {
		return nil, &loadtest.ConfigurationError{Err: err}
	}
	stats, err := cfg.TrendStats()
	if err != nil {
		return nil, &loadtest.ConfigurationError{Err: err}
	}

	e := &Engine{
		config:  cfg,
		planner: planner,
		stats:   stats,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runID == "" {
		e.runID = uuid.NewString()
	}
	if e.logger == nil {
		e.logger = log.StandardLogger()
	}
	e.logger = e.logger.WithField("run", e.runID)

	return e, nil
}

// RunID returns the id of the run.
func (e *Engine) RunID() string {
	return e.runID
}

// Planner returns the ramp planner of the run.
func (e *Engine) Planner() ramp.Planner {
	return e.planner
}

// Run executes the run and returns its result.
//
// Only a fatal scheduling error is returned as an error, together with the
// partial result. Setup item failures, check failures and transport errors
// are counted in the report. Cancelling ctx ends the ramp early; teardown
// still runs.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.agg = metrics.NewAggregator(e.stats...)
	agg := e.agg
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	cfg := e.config
	start := time.Now()
	e.logger.WithFields(log.Fields{
		"name":     cfg.Name,
		"duration": e.planner.Duration(),
		"maxVUs":   e.planner.MaxTarget(),
	}).Info("starting run")

	client := e.newClient()
	defer client.CloseIdleConnections()

	workload := e.workload
	if workload == nil {
		w, err := loadtest.NewHTTPWorkload(client, cfg.Requests, cfg.Variables)
		if err != nil {
			return nil, err
		}
		workload = w
	}

	coord := setup.NewCoordinator(setup.Options{
		Setup:         cfg.Setup,
		Teardown:      cfg.Teardown,
		Client:        client,
		Authenticator: e.authenticator,
		BaseURL:       cfg.Settings.BaseURL,
		Headers:       e.defaultHeaders(),
		Timeout:       time.Duration(cfg.Settings.Timeout),
		Variables:     cfg.Variables,
		SetupFuncs:    e.setupFuncs,
		TeardownFuncs: e.teardownFuncs,
		Logger:        e.logger,
	})

	shared, setupErr := coord.Setup(ctx)

	scheduler := loadtest.NewVUScheduler(workload, shared, agg, loadtest.SchedulerConfig{
		ControlInterval: time.Duration(cfg.ControlInterval),
		GracefulStop:    time.Duration(cfg.GracefulStop),
		Seed:            cfg.Seed,
		ThinkTime:       loadtest.ThinkTimeFromConfig(cfg.ThinkTime),
	}, e.logger)
	if len(e.observers) > 0 {
		scheduler.OnTick(e.publish)
	}
	e.mu.Lock()
	e.scheduler = scheduler
	e.mu.Unlock()

	var runErr error
	if setupErr == nil {
		runErr = scheduler.Run(ctx, e.planner)
	} else {
		e.logger.WithError(setupErr).Warn("run cancelled during setup")
	}

	report := agg.Snapshot()
	coord.Teardown(context.WithoutCancel(ctx), report)

	end := time.Now()
	thresholds := e.evaluateThresholds(agg, report)
	result := &Result{
		RunID:       e.runID,
		Name:        cfg.Name,
		Description: cfg.Description,
		StartTime:   start,
		EndTime:     end,
		Duration:    end.Sub(start),
		Report:      report,
		Setup:       coord.Result(),
		StartedVUs:  scheduler.StartedVUs(),
		MaxVUs:      scheduler.MaxObservedRunning(),
		Thresholds:  thresholds,
		Passed:      allPassed(thresholds),
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}

	e.logger.WithFields(log.Fields{
		"iterations": report.Iterations,
		"failed":     report.FailedIterations,
		"duration":   result.Duration,
		"passed":     result.Passed,
	}).Info("run finished")

	return result, runErr
}

func (e *Engine) publish(tick loadtest.Tick) {
	p := Progress{
		RunID:   e.runID,
		Elapsed: tick.Elapsed,
		Target:  tick.Target,
		Active:  tick.Active,
		Report:  e.agg.Snapshot(),
	}
	for _, o := range e.observers {
		o(p)
	}
}

func (e *Engine) newClient() *http.Client {
	s := e.config.Settings
	cc := http.DefaultClientConfig()
	cc.Timeout = time.Duration(s.Timeout)
	cc.MaxIdleConnsPerHost = s.MaxIdleConnsPerHost
	cc.MaxConnsPerHost = s.MaxConnectionsPerHost
	cc.InsecureSkipVerify = s.InsecureSkipVerify

	opts := []http.ClientOption{http.WithBaseURL(s.BaseURL)}
	for k, v := range e.defaultHeaders() {
		opts = append(opts, http.WithHeader(k, v))
	}
	return http.NewClient(cc, opts...)
}

func (e *Engine) defaultHeaders() map[string]string {
	headers := make(map[string]string, len(e.config.Settings.Headers)+1)
	if ua := e.config.Settings.UserAgent; ua != "" {
		headers["User-Agent"] = ua
	}
	for k, v := range e.config.Settings.Headers {
		headers[k] = v
	}
	return headers
}

// Snapshot returns the current report of a running engine, or nil before
// the first run.
func (e *Engine) Snapshot() *metrics.Report {
	e.mu.Lock()
	agg := e.agg
	e.mu.Unlock()
	if agg == nil {
		return nil
	}
	return agg.Snapshot()
}

// IsRunning reports whether Run is in progress.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Progress returns the elapsed fraction of the planned duration in [0, 1].
func (e *Engine) Progress(elapsed time.Duration) float64 {
	total := e.planner.Duration()
	if total <= 0 {
		return 1
	}
	p := float64(elapsed) / float64(total)
	if p > 1 {
		return 1
	}
	return p
}

// Result is the outcome of a run.
type Result struct {
	RunID       string          `json:"runId"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     time.Time       `json:"endTime"`
	Duration    time.Duration   `json:"duration"`
	Report      *metrics.Report `json:"report"`
	Setup       setup.Result    `json:"setup"`
	StartedVUs  int             `json:"startedVUs"`
	MaxVUs      int             `json:"maxVUs"`

	// Threshold evaluation
	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`

	// Error is set when the run was aborted
	Error string `json:"error,omitempty"`
}

// Summary returns a one-line description of the result.
func (r *Result) Summary() string {
	status := "passed"
	if !r.Passed {
		status = "failed"
	}
	return fmt.Sprintf("%s: %d iterations (%d failed) in %v, thresholds %s",
		r.Name, r.Report.Iterations, r.Report.FailedIterations, r.Duration.Round(time.Millisecond), status)
}
