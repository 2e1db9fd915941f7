package loadtest

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
	"github.com/wesleyorama2/stampede/internal/loadtest/ramp"
)

// SchedulerConfig controls the VU control loop.
type SchedulerConfig struct {
	// ControlInterval is how often the pool is reconciled (default: 100ms)
	ControlInterval time.Duration

	// GracefulStop is how long stopping VUs may take before their
	// in-flight requests are cancelled (default: 30s)
	GracefulStop time.Duration

	// Seed derives every VU's random source: seed + VU id
	Seed int64

	// ThinkTime between iterations
	ThinkTime ThinkTime
}

// DefaultSchedulerConfig returns the defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ControlInterval: 100 * time.Millisecond,
		GracefulStop:    30 * time.Second,
	}
}

// Tick describes one reconciliation of the control loop.
type Tick struct {
	Elapsed time.Duration
	Target  int
	Active  int
}

// VUScheduler keeps the number of running virtual users on the target of
// a ramp planner.
//
// It reconciles once at start and then on every ControlInterval tick.
// Scaling up starts new VUs immediately; scaling down gracefully stops the
// most recently started ones first (LIFO). A VU that was asked to stop no
// longer counts toward the running total.
type VUScheduler struct {
	workload Workload
	shared   *SharedData
	agg      *metrics.Aggregator
	config   SchedulerConfig
	logger   log.FieldLogger

	// VUs in start order, including stopping ones
	vus   []*VirtualUser
	vusMu sync.Mutex

	nextVUID atomic.Int32
	wg       sync.WaitGroup

	target     atomic.Int64
	maxRunning atomic.Int64

	onTick func(Tick)
}

// NewVUScheduler creates a scheduler. shared is handed to every VU.
func NewVUScheduler(workload Workload, shared *SharedData, agg *metrics.Aggregator, config SchedulerConfig, logger log.FieldLogger) *VUScheduler {
	defaults := DefaultSchedulerConfig()
	if config.ControlInterval <= 0 {
		config.ControlInterval = defaults.ControlInterval
	}
	if config.GracefulStop <= 0 {
		config.GracefulStop = defaults.GracefulStop
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if agg == nil {
		agg = metrics.NewAggregator()
	}

	return &VUScheduler{
		workload: workload,
		shared:   shared,
		agg:      agg,
		config:   config,
		logger:   logger,
	}
}

// OnTick registers a callback invoked after every reconciliation.
// It must be set before Run.
func (s *VUScheduler) OnTick(fn func(Tick)) {
	s.onTick = fn
}

// Run drives the pool until the planner's duration has elapsed or ctx is
// cancelled, then stops every VU and waits for them. It returns only after
// all VUs reached VUStateStopped.
//
// A negative target aborts the run with a *FatalSchedulingError.
func (s *VUScheduler) Run(ctx context.Context, planner ramp.Planner) error {
	// Requests only see hardCtx, so cancelling ctx never interrupts them.
	hardCtx, hardCancel := context.WithCancel(context.Background())
	defer hardCancel()

	ticker := time.NewTicker(s.config.ControlInterval)
	defer ticker.Stop()

	start := time.Now()
	total := planner.Duration()

	var runErr error
loop:
	for {
		elapsed := time.Since(start)
		if elapsed >= total {
			break
		}

		target := planner.Target(elapsed)
		if target < 0 {
			runErr = &FatalSchedulingError{Reason: "planner yielded a negative target", Target: target, Elapsed: elapsed}
			s.logger.WithError(runErr).Error("aborting run")
			break
		}

		active := s.reconcile(hardCtx, target)
		if s.onTick != nil {
			s.onTick(Tick{Elapsed: elapsed, Target: target, Active: active})
		}

		select {
		case <-ctx.Done():
			s.logger.Info("run cancelled, stopping virtual users")
			break loop
		case <-ticker.C:
		}
	}

	s.shutdown(hardCancel)
	return runErr
}

// reconcile spawns or stops VUs to reach target and returns the number of
// active VUs afterwards.
func (s *VUScheduler) reconcile(hardCtx context.Context, target int) int {
	s.target.Store(int64(target))

	s.vusMu.Lock()
	s.pruneLocked()
	active := s.activeLocked()

	switch {
	case target > len(active):
		for i := len(active); i < target; i++ {
			s.spawnLocked(hardCtx)
		}
	case target < len(active):
		for i := len(active) - 1; i >= target; i-- {
			active[i].RequestStop()
		}
	}
	s.vusMu.Unlock()

	if int64(target) > s.maxRunning.Load() {
		s.maxRunning.Store(int64(target))
	}
	s.agg.SetActiveVUs(target)
	return target
}

// activeLocked returns idle and running VUs in start order.
func (s *VUScheduler) activeLocked() []*VirtualUser {
	active := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		if st := vu.State(); st == VUStateIdle || st == VUStateRunning {
			active = append(active, vu)
		}
	}
	return active
}

// pruneLocked forgets stopped VUs.
func (s *VUScheduler) pruneLocked() {
	kept := s.vus[:0]
	for _, vu := range s.vus {
		if vu.State() != VUStateStopped {
			kept = append(kept, vu)
		}
	}
	for i := len(kept); i < len(s.vus); i++ {
		s.vus[i] = nil
	}
	s.vus = kept
}

func (s *VUScheduler) spawnLocked(hardCtx context.Context) {
	id := int(s.nextVUID.Add(1))
	seed := s.config.Seed + int64(id)

	vu := NewVirtualUser(id, VUOptions{
		Workload:   s.workload,
		Shared:     s.shared,
		Aggregator: s.agg,
		ThinkTime:  s.config.ThinkTime,
		Rand:       rand.New(rand.NewSource(seed)),
		Faker:      gofakeit.New(uint64(seed)),
		Logger:     s.logger.WithField("vu", id),
	})
	s.vus = append(s.vus, vu)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		vu.Run(hardCtx)
	}()
}

// shutdown stops every VU, waiting up to GracefulStop before cancelling
// in-flight requests.
func (s *VUScheduler) shutdown(hardCancel context.CancelFunc) {
	s.target.Store(0)

	s.vusMu.Lock()
	for _, vu := range s.vus {
		vu.RequestStop()
	}
	s.vusMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.config.GracefulStop)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.logger.WithField("gracefulStop", s.config.GracefulStop).Warn("graceful stop exceeded, interrupting in-flight iterations")
		hardCancel()
		<-done
	}

	s.vusMu.Lock()
	s.pruneLocked()
	s.vusMu.Unlock()
	s.agg.SetActiveVUs(0)
}

// VUs returns the VUs that have not stopped yet, in start order.
func (s *VUScheduler) VUs() []*VirtualUser {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	out := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		if vu.State() != VUStateStopped {
			out = append(out, vu)
		}
	}
	return out
}

// RunningVUs returns the number of VUs in VUStateRunning.
func (s *VUScheduler) RunningVUs() int {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	n := 0
	for _, vu := range s.vus {
		if vu.State() == VUStateRunning {
			n++
		}
	}
	return n
}

// TargetVUs returns the target of the last reconciliation.
func (s *VUScheduler) TargetVUs() int {
	return int(s.target.Load())
}

// MaxObservedRunning returns the highest active VU count reached.
func (s *VUScheduler) MaxObservedRunning() int {
	return int(s.maxRunning.Load())
}

// StartedVUs returns how many VUs were created in total.
func (s *VUScheduler) StartedVUs() int {
	return int(s.nextVUID.Load())
}
