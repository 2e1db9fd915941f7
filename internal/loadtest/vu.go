package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU was created but has not started.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is running iterations.
	VUStateRunning
	// VUStateStopping indicates the VU was asked to stop and is finishing
	// its current iteration.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ThinkTime is the pause between two iterations, drawn uniformly from
// [Min, Max]. Min == Max gives a constant pause.
type ThinkTime struct {
	Min time.Duration
	Max time.Duration
}

// ThinkTimeFromConfig converts a defaulted configuration.
func ThinkTimeFromConfig(c *config.ThinkTimeConfig) ThinkTime {
	if c == nil {
		return ThinkTime{}
	}
	switch c.Type {
	case "constant":
		d := time.Duration(c.Duration)
		return ThinkTime{Min: d, Max: d}
	case "random":
		return ThinkTime{Min: time.Duration(c.Min), Max: time.Duration(c.Max)}
	}
	return ThinkTime{}
}

// Next returns the next pause.
func (t ThinkTime) Next(rng *rand.Rand) time.Duration {
	if t.Max <= t.Min {
		return t.Min
	}
	return t.Min + time.Duration(rng.Int63n(int64(t.Max-t.Min)+1))
}

// VUOptions holds what a virtual user needs besides its id.
type VUOptions struct {
	Workload   Workload
	Shared     *SharedData
	Aggregator *metrics.Aggregator
	ThinkTime  ThinkTime
	Rand       *rand.Rand
	Faker      *gofakeit.Faker
	Logger     log.FieldLogger
}

// VirtualUser is a single simulated user running iterations of a workload
// until it is asked to stop.
//
// Stopping is cooperative: RequestStop lets the current iteration finish
// and interrupts only the think-time pause. Requests in flight are
// cancelled only through the context passed to Run.
type VirtualUser struct {
	// Unique identifier for this VU
	ID int

	opts VUOptions

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}

	iteration atomic.Int64
	failures  atomic.Int64
}

// NewVirtualUser creates an idle virtual user.
func NewVirtualUser(id int, opts VUOptions) *VirtualUser {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(int64(id)))
	}
	if opts.Faker == nil {
		opts.Faker = gofakeit.New(uint64(id))
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Aggregator == nil {
		opts.Aggregator = metrics.NewAggregator()
	}

	return &VirtualUser{
		ID:     id,
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// State returns the current VU state.
func (vu *VirtualUser) State() VUState {
	return VUState(vu.state.Load())
}

// Iterations returns the number of iterations started.
func (vu *VirtualUser) Iterations() int64 {
	return vu.iteration.Load()
}

// Failures returns the number of failed iterations.
func (vu *VirtualUser) Failures() int64 {
	return vu.failures.Load()
}

// Done is closed once the VU reached VUStateStopped.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// Run executes iterations until RequestStop is called or ctx is cancelled.
// It must be called at most once.
func (vu *VirtualUser) Run(ctx context.Context) {
	defer close(vu.doneCh)
	defer vu.state.Store(int32(VUStateStopped))

	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return
	}

	for !vu.stopping(ctx) {
		vu.runIteration(ctx)

		if vu.stopping(ctx) {
			break
		}
		if !vu.sleep(ctx, vu.opts.ThinkTime.Next(vu.opts.Rand)) {
			break
		}
	}

	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping))
}

func (vu *VirtualUser) stopping(ctx context.Context) bool {
	select {
	case <-vu.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// sleep pauses for d. It returns false when interrupted by a stop.
func (vu *VirtualUser) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-vu.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (vu *VirtualUser) runIteration(ctx context.Context) {
	n := vu.iteration.Add(1)
	logger := vu.opts.Logger.WithField("iteration", n)

	it := &Iteration{
		VU:     vu.ID,
		Number: n,
		Shared: vu.opts.Shared,
		Rand:   vu.opts.Rand,
		Faker:  vu.opts.Faker,
		Logger: logger,
		agg:    vu.opts.Aggregator,
	}

	start := time.Now()
	err := vu.iterate(ctx, it)
	sample := metrics.Sample{
		Metric:    metrics.IterationDuration,
		Timestamp: start,
		Duration:  time.Since(start),
	}

	if err != nil {
		vu.failures.Add(1)
		kind := KindOf(err)
		sample.Outcome = metrics.Fail
		sample.Kind = kind.SampleKind()
		logger.WithField("kind", kind.String()).WithError(err).Debug("iteration failed")
	}
	vu.opts.Aggregator.Record(sample)
}

// iterate runs the workload, turning a panic into a failed iteration.
func (vu *VirtualUser) iterate(ctx context.Context, it *Iteration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
			vu.opts.Logger.WithField("panic", fmt.Sprint(r)).Error("workload panicked")
		}
	}()
	return vu.opts.Workload.Iterate(ctx, it)
}

// RequestStop asks the VU to stop after its current iteration. It is
// idempotent and safe to call before Run.
func (vu *VirtualUser) RequestStop() {
	vu.stopOnce.Do(func() {
		if !vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) {
			vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping))
		}
		close(vu.stopCh)
	})
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}
