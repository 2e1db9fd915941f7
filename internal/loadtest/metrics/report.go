package metrics

import (
	"strings"
	"time"
)

// Report is a point-in-time view of everything the aggregator has seen.
type Report struct {
	Timestamp        time.Time              `json:"timestamp"`
	Elapsed          time.Duration          `json:"elapsed"`
	Stats            []string               `json:"stats"`
	Trends           map[string]TrendReport `json:"trends"`
	Checks           []CheckReport          `json:"checks"`
	Iterations       int64                  `json:"iterations"`
	FailedIterations int64                  `json:"failedIterations"`
	ErrorKinds       map[string]int64       `json:"errorKinds"`
	ActiveVUs        int64                  `json:"activeVUs"`
	MaxVUs           int64                  `json:"maxVUs"`
}

// TrendReport holds the statistics of one metric.
type TrendReport struct {
	Count  int64                    `json:"count"`
	Passes int64                    `json:"passes"`
	Fails  int64                    `json:"fails"`
	Min    time.Duration            `json:"min"`
	Max    time.Duration            `json:"max"`
	Mean   time.Duration            `json:"mean"`
	Median time.Duration            `json:"median"`
	P95    time.Duration            `json:"p95"` // always kept, whatever the selected stats
	Values map[string]time.Duration `json:"values"`
	Errors map[string]int64         `json:"errors,omitempty"`
}

// PassRate is passes over all samples, 0 without samples.
func (t TrendReport) PassRate() float64 {
	if t.Count == 0 {
		return 0
	}
	return float64(t.Passes) / float64(t.Count)
}

// FailRate is fails over all samples, 0 without samples.
func (t TrendReport) FailRate() float64 {
	if t.Count == 0 {
		return 0
	}
	return float64(t.Fails) / float64(t.Count)
}

// CheckReport counts evaluations of one named check.
type CheckReport struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// PassRate is passes over evaluations.
func (c CheckReport) PassRate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}

// CheckTotals sums all check evaluations.
func (r *Report) CheckTotals() (passes, fails int64) {
	for _, c := range r.Checks {
		passes += c.Passes
		fails += c.Fails
	}
	return passes, fails
}

// ChecksRate is the pass rate across all checks, 1 when nothing was checked.
func (r *Report) ChecksRate() float64 {
	passes, fails := r.CheckTotals()
	if passes+fails == 0 {
		return 1
	}
	return float64(passes) / float64(passes+fails)
}

// PassRate is the iteration pass rate, 0 when no iteration completed.
func (r *Report) PassRate() float64 {
	if r.Iterations == 0 {
		return 0
	}
	return float64(r.Iterations-r.FailedIterations) / float64(r.Iterations)
}

// Trend returns the report for a metric.
func (r *Report) Trend(metric string) (TrendReport, bool) {
	t, ok := r.Trends[metric]
	return t, ok
}

// SubTrends returns the per-request sub-trends of metric keyed by name.
func (r *Report) SubTrends(metric string) map[string]TrendReport {
	prefix := metric + "{" + LabelName + ":"
	out := make(map[string]TrendReport)
	for key, t := range r.Trends {
		if strings.HasPrefix(key, prefix) && strings.HasSuffix(key, "}") {
			out[key[len(prefix):len(key)-1]] = t
		}
	}
	return out
}
