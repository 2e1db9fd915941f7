package config

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

// MetricType tells how a metric's thresholds are evaluated.
type MetricType int

const (
	// MetricUnknown is not a built-in metric.
	MetricUnknown MetricType = iota
	// MetricTrend is a duration trend, e.g. http_req_duration.
	MetricTrend
	// MetricRate is a ratio in [0, 1], e.g. http_req_failed.
	MetricRate
	// MetricCounter is an event count, e.g. iterations.
	MetricCounter
)

// Built-in threshold metrics that are not trends.
const (
	MetricHTTPReqFailed = "http_req_failed"
	MetricChecks        = "checks"
	MetricIterations    = "iterations"
	MetricHTTPReqs      = "http_reqs"
)

// TypeOf classifies a threshold metric name. Sub-trends such as
// http_req_duration{name:login} are trends.
func TypeOf(metric string) MetricType {
	base := metric
	if i := strings.Index(metric, "{"); i >= 0 && strings.HasSuffix(metric, "}") {
		base = metric[:i]
	}

	switch base {
	case metrics.HTTPReqDuration, metrics.IterationDuration:
		return MetricTrend
	case MetricHTTPReqFailed, MetricChecks:
		if base != metric {
			return MetricUnknown
		}
		return MetricRate
	case MetricIterations, MetricHTTPReqs:
		if base != metric {
			return MetricUnknown
		}
		return MetricCounter
	}
	return MetricUnknown
}

var thresholdPattern = regexp.MustCompile(`^([A-Za-z]+(?:\(\s*[0-9.]+\s*\)|[0-9.]*))\s*(<=|>=|==|!=|<|>)\s*(.+)$`)

// Threshold is a parsed pass/fail criterion such as "p(95) < 500ms".
type Threshold struct {
	Metric string
	Stat   string
	Op     string
	// Value is in milliseconds for trend metrics.
	Value float64
	Raw   string
}

// ParseThreshold parses an expression for the given metric.
func ParseThreshold(metric, expr string) (Threshold, error) {
	raw := strings.TrimSpace(expr)
	m := thresholdPattern.FindStringSubmatch(raw)
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold expression %q (want e.g. \"p(95) < 500ms\")", expr)
	}

	th := Threshold{Metric: metric, Stat: m[1], Op: m[2], Raw: raw}
	value := strings.TrimSpace(m[3])

	switch TypeOf(metric) {
	case MetricTrend:
		if _, err := metrics.ParseTrendStat(th.Stat); err != nil {
			return Threshold{}, err
		}
		d, err := ParseMillis(value)
		if err != nil {
			return Threshold{}, err
		}
		th.Value = float64(d) / float64(time.Millisecond)
	case MetricRate:
		if th.Stat != "rate" {
			return Threshold{}, fmt.Errorf("metric %s only supports rate, got %q", metric, th.Stat)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Threshold{}, fmt.Errorf("invalid rate %q: %w", value, err)
		}
		th.Value = v
	case MetricCounter:
		if th.Stat != "count" && th.Stat != "rate" {
			return Threshold{}, fmt.Errorf("metric %s only supports count or rate, got %q", metric, th.Stat)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Threshold{}, fmt.Errorf("invalid number %q: %w", value, err)
		}
		th.Value = v
	default:
		return Threshold{}, fmt.Errorf("unknown metric %q", metric)
	}

	return th, nil
}

// Compare applies the threshold operator to actual.
func (t Threshold) Compare(actual float64) bool {
	switch t.Op {
	case "<":
		return actual < t.Value
	case "<=":
		return actual <= t.Value
	case ">":
		return actual > t.Value
	case ">=":
		return actual >= t.Value
	case "==":
		return actual == t.Value
	case "!=":
		return actual != t.Value
	}
	return false
}

// ParseThresholds parses every configured threshold in a stable order.
func (c *RunConfig) ParseThresholds() ([]Threshold, error) {
	names := make([]string, 0, len(c.Thresholds))
	for name := range c.Thresholds {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Threshold
	for _, name := range names {
		for _, expr := range c.Thresholds[name] {
			th, err := ParseThreshold(name, expr)
			if err != nil {
				return nil, fmt.Errorf("thresholds.%s: %w", name, err)
			}
			out = append(out, th)
		}
	}
	return out, nil
}
