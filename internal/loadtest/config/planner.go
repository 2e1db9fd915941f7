package config

import (
	"time"

	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
	"github.com/wesleyorama2/stampede/internal/loadtest/ramp"
)

// IsStaged reports whether the run ramps through stages.
func (c *RunConfig) IsStaged() bool {
	return len(c.Stages) > 0
}

// Planner builds the ramp planner for the configured load profile.
func (c *RunConfig) Planner() (ramp.Planner, error) {
	if !c.IsStaged() {
		return ramp.NewFixed(c.VUs, time.Duration(c.Duration))
	}

	stages := make([]ramp.Stage, len(c.Stages))
	for i, s := range c.Stages {
		stages[i] = ramp.Stage{Duration: time.Duration(s.Duration), Target: s.Target, Name: s.Name}
	}
	return ramp.NewStaged(stages)
}

// TrendStats parses SummaryTrendStats.
func (c *RunConfig) TrendStats() ([]metrics.TrendStat, error) {
	return metrics.ParseTrendStats(c.SummaryTrendStats)
}
