package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Metric     string  `json:"metric"`
	Expression string  `json:"expression"`
	Passed     bool    `json:"passed"`
	Actual     float64 `json:"actual"`
	Value      string  `json:"value"`
	Message    string  `json:"message,omitempty"`
}

// evaluateThresholds checks every configured threshold against the final
// report. A metric without samples fails its thresholds.
func (e *Engine) evaluateThresholds(agg *metrics.Aggregator, report *metrics.Report) []ThresholdResult {
	thresholds, err := e.config.ParseThresholds()
	if err != nil {
		// Validated in NewEngine.
		e.logger.WithError(err).Error("failed to parse thresholds")
		return nil
	}

	results := make([]ThresholdResult, 0, len(thresholds))
	for _, th := range thresholds {
		results = append(results, evaluateThreshold(th, agg, report))
	}
	return results
}

func evaluateThreshold(th config.Threshold, agg *metrics.Aggregator, report *metrics.Report) ThresholdResult {
	result := ThresholdResult{Metric: th.Metric, Expression: th.Raw}

	actual, value, ok := thresholdActual(th, agg, report)
	if !ok {
		result.Message = "no samples"
		return result
	}

	result.Actual = actual
	result.Value = value
	result.Passed = th.Compare(actual)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s %s: got %s", th.Metric, th.Raw, value)
	}
	return result
}

// thresholdActual returns the observed value in the unit of the threshold:
// milliseconds for trends, a ratio for rates, a count or per-second rate
// for counters.
func thresholdActual(th config.Threshold, agg *metrics.Aggregator, report *metrics.Report) (float64, string, bool) {
	switch config.TypeOf(th.Metric) {
	case config.MetricTrend:
		stat, err := metrics.ParseTrendStat(th.Stat)
		if err != nil {
			return 0, "", false
		}
		d, ok := agg.Stat(th.Metric, stat)
		if !ok {
			return 0, "", false
		}
		ms := float64(d) / float64(time.Millisecond)
		return ms, d.Round(time.Microsecond).String(), true

	case config.MetricRate:
		switch th.Metric {
		case config.MetricHTTPReqFailed:
			t, ok := report.Trend(metrics.HTTPReqDuration)
			if !ok || t.Count == 0 {
				return 0, "", false
			}
			return t.FailRate(), formatRate(t.FailRate()), true
		case config.MetricChecks:
			passes, fails := report.CheckTotals()
			if passes+fails == 0 {
				return 0, "", false
			}
			return report.ChecksRate(), formatRate(report.ChecksRate()), true
		}

	case config.MetricCounter:
		var count int64
		switch th.Metric {
		case config.MetricIterations:
			count = report.Iterations
		case config.MetricHTTPReqs:
			if t, ok := report.Trend(metrics.HTTPReqDuration); ok {
				count = t.Count
			}
		}
		if th.Stat == "rate" {
			secs := report.Elapsed.Seconds()
			if secs <= 0 {
				return 0, "", false
			}
			perSec := float64(count) / secs
			return perSec, strconv.FormatFloat(perSec, 'f', 2, 64) + "/s", true
		}
		return float64(count), strconv.FormatInt(count, 10), true
	}

	return 0, "", false
}

func formatRate(r float64) string {
	return strings.TrimRight(strings.TrimRight(strconv.FormatFloat(r*100, 'f', 2, 64), "0"), ".") + "%"
}

func allPassed(results []ThresholdResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
