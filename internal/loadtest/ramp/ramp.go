// Package ramp converts a declarative load profile into a concurrency
// target over elapsed time.
//
// Planners are pure: Target depends only on its argument, so the scheduler
// can sample it as often as it likes and tests can sample any instant.
//
// Staged profiles interpolate linearly from the previous stage's target
// (0 before the first stage) to the current stage's target, rounding to the
// nearest integer. Once the last stage has elapsed the target is 0.
//
//	stages:
//	  - duration: 30s
//	    target: 20     # 0 -> 20 VUs over 30s
//	  - duration: 1m
//	    target: 20     # hold 20 VUs
//	  - duration: 30s
//	    target: 0      # 20 -> 0 VUs over 30s
package ramp

import (
	"fmt"
	"time"
)

// Planner yields the desired number of running virtual users.
type Planner interface {
	// Target returns the desired concurrency at elapsed time since run start.
	Target(elapsed time.Duration) int

	// Duration is the total length of the profile. Target is 0 from then on.
	Duration() time.Duration

	// MaxTarget is the highest target the profile ever asks for.
	MaxTarget() int
}

// Stage is one segment of a staged profile.
type Stage struct {
	Duration time.Duration
	Target   int
	Name     string
}

// Fixed keeps a constant number of VUs for a duration.
type Fixed struct {
	vus      int
	duration time.Duration
}

// NewFixed creates a constant profile.
func NewFixed(vus int, duration time.Duration) (*Fixed, error) {
	if vus < 0 {
		return nil, fmt.Errorf("vus cannot be negative: %d", vus)
	}
	if duration < 0 {
		return nil, fmt.Errorf("duration cannot be negative: %v", duration)
	}
	return &Fixed{vus: vus, duration: duration}, nil
}

// Target returns the configured VUs while elapsed is inside the run.
func (f *Fixed) Target(elapsed time.Duration) int {
	if elapsed < 0 || elapsed >= f.duration {
		return 0
	}
	return f.vus
}

// Duration returns the run length.
func (f *Fixed) Duration() time.Duration {
	return f.duration
}

// MaxTarget returns the configured VUs.
func (f *Fixed) MaxTarget() int {
	return f.vus
}

// Staged ramps between stage targets.
type Staged struct {
	stages []Stage
	ends   []time.Duration
	total  time.Duration
	max    int
}

// NewStaged creates a staged profile. The stages are copied.
func NewStaged(stages []Stage) (*Staged, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	s := &Staged{
		stages: make([]Stage, len(stages)),
		ends:   make([]time.Duration, len(stages)),
	}
	copy(s.stages, stages)

	for i, stage := range s.stages {
		if stage.Duration < 0 {
			return nil, fmt.Errorf("stage %d: duration cannot be negative: %v", i, stage.Duration)
		}
		if stage.Target < 0 {
			return nil, fmt.Errorf("stage %d: target cannot be negative: %d", i, stage.Target)
		}
		s.total += stage.Duration
		s.ends[i] = s.total
		if stage.Target > s.max {
			s.max = stage.Target
		}
	}

	return s, nil
}

// Target returns the interpolated target at elapsed.
func (s *Staged) Target(elapsed time.Duration) int {
	idx := s.StageAt(elapsed)
	if idx < 0 {
		return 0
	}

	stage := s.stages[idx]
	start := s.ends[idx] - stage.Duration
	prevTarget := 0
	if idx > 0 {
		prevTarget = s.stages[idx-1].Target
	}

	// StageAt never returns a zero-length stage
	progress := float64(elapsed-start) / float64(stage.Duration)
	target := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
	return int(target + 0.5)
}

// StageAt returns the index of the stage active at elapsed, or -1 outside
// the profile. Zero-length stages are never active.
func (s *Staged) StageAt(elapsed time.Duration) int {
	if elapsed < 0 || elapsed >= s.total {
		return -1
	}
	for i, end := range s.ends {
		if elapsed < end {
			return i
		}
	}
	return -1
}

// Stages returns a copy of the stages.
func (s *Staged) Stages() []Stage {
	out := make([]Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// Duration returns the sum of all stage durations.
func (s *Staged) Duration() time.Duration {
	return s.total
}

// MaxTarget returns the highest stage target.
func (s *Staged) MaxTarget() int {
	return s.max
}

var (
	_ Planner = (*Fixed)(nil)
	_ Planner = (*Staged)(nil)
)
