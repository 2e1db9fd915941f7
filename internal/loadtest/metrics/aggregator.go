// Package metrics aggregates samples emitted by virtual users into trend
// statistics and pass/fail counts.
//
// Trends keep an HDR histogram (1µs to 1h, 3 significant figures) for
// percentiles and the median, next to exact count, sum, min and max. Memory
// per trend is fixed no matter how many samples arrive, and every
// accumulator is commutative, so a snapshot does not depend on the order in
// which concurrent virtual users submitted their samples.
//
// Counters (pass/fail per metric, error kinds, checks) and the active VU
// gauge live in a private go-metrics registry.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	gometrics "github.com/rcrowley/go-metrics"
)

// Histogram bounds in microseconds.
const (
	histogramMin     = 1
	histogramMax     = 3600000000
	histogramSigFigs = 3
)

type trend struct {
	hist  *hdrhistogram.Histogram
	count int64
	sum   time.Duration
	min   time.Duration
	max   time.Duration
}

func newTrend() *trend {
	return &trend{hist: hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs)}
}

func (t *trend) add(d time.Duration) {
	if d < 0 {
		d = 0
	}

	micros := d.Microseconds()
	if micros < histogramMin {
		micros = histogramMin
	}
	if micros > histogramMax {
		micros = histogramMax
	}
	// RecordValue only fails outside the bounds clamped above
	_ = t.hist.RecordValue(micros)

	if t.count == 0 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
	t.count++
	t.sum += d
}

// quantile clamps the HDR bucket value into the exact [min, max] range.
func (t *trend) quantile(q float64) time.Duration {
	if t.count == 0 {
		return 0
	}
	v := time.Duration(t.hist.ValueAtQuantile(q)) * time.Microsecond
	if v < t.min {
		v = t.min
	}
	if v > t.max {
		v = t.max
	}
	return v
}

func (t *trend) stat(s TrendStat) time.Duration {
	if t.count == 0 {
		return 0
	}
	switch s.kind {
	case statMin:
		return t.min
	case statMax:
		return t.max
	case statMean:
		return t.sum / time.Duration(t.count)
	case statMedian:
		return t.quantile(50)
	default:
		return t.quantile(s.Percentile)
	}
}

type checkCounters struct {
	pass gometrics.Counter
	fail gometrics.Counter
}

// Aggregator is a concurrency-safe sink for samples.
type Aggregator struct {
	mu     sync.Mutex
	trends map[string]*trend
	checks map[string]*checkCounters
	order  []string

	registry  gometrics.Registry
	activeVUs gometrics.Gauge
	maxVUs    gometrics.Gauge

	stats     []TrendStat
	startTime time.Time
}

// NewAggregator creates an aggregator that reports the given stats.
// With no stats, DefaultTrendStats are used.
func NewAggregator(stats ...TrendStat) *Aggregator {
	if len(stats) == 0 {
		stats = mustParseTrendStats(DefaultTrendStats)
	}

	registry := gometrics.NewRegistry()
	return &Aggregator{
		trends:    make(map[string]*trend),
		checks:    make(map[string]*checkCounters),
		registry:  registry,
		activeVUs: gometrics.GetOrRegisterGauge("vus", registry),
		maxVUs:    gometrics.GetOrRegisterGauge("vus_max", registry),
		stats:     stats,
		startTime: time.Now(),
	}
}

// Stats returns the configured summary stats.
func (a *Aggregator) Stats() []TrendStat {
	out := make([]TrendStat, len(a.stats))
	copy(out, a.stats)
	return out
}

// Record adds a sample. The sample's labels are copied.
func (a *Aggregator) Record(s Sample) {
	s = s.clone()

	keys := []string{s.Metric}
	if name := s.Labels[LabelName]; name != "" {
		keys = append(keys, SubMetric(s.Metric, name))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, key := range keys {
		a.trendFor(key).add(s.Duration)
		if s.Outcome == Fail {
			a.counter(key, "fail").Inc(1)
			a.counter(key, "errors", s.Kind.String()).Inc(1)
		} else {
			a.counter(key, "pass").Inc(1)
		}
	}
}

// RecordCheck counts one evaluation of the named check.
func (a *Aggregator) RecordCheck(name string, passed bool) {
	a.mu.Lock()
	c, ok := a.checks[name]
	if !ok {
		c = &checkCounters{
			pass: gometrics.GetOrRegisterCounter("checks/"+name+"/pass", a.registry),
			fail: gometrics.GetOrRegisterCounter("checks/"+name+"/fail", a.registry),
		}
		a.checks[name] = c
		a.order = append(a.order, name)
	}
	a.mu.Unlock()

	if passed {
		c.pass.Inc(1)
	} else {
		c.fail.Inc(1)
	}
}

// SetActiveVUs publishes the number of running virtual users.
func (a *Aggregator) SetActiveVUs(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.activeVUs.Update(int64(n))
	if int64(n) > a.maxVUs.Value() {
		a.maxVUs.Update(int64(n))
	}
}

// ActiveVUs returns the last published VU count.
func (a *Aggregator) ActiveVUs() int {
	return int(a.activeVUs.Value())
}

// Stat computes a single statistic for a metric. ok is false when the
// metric has no samples.
func (a *Aggregator) Stat(metric string, stat TrendStat) (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.trends[metric]
	if !ok || t.count == 0 {
		return 0, false
	}
	return t.stat(stat), true
}

// Snapshot builds the current report. It may be called while samples are
// still being recorded.
func (a *Aggregator) Snapshot() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := &Report{
		Timestamp:  time.Now(),
		Elapsed:    time.Since(a.startTime),
		Stats:      make([]string, len(a.stats)),
		Trends:     make(map[string]TrendReport, len(a.trends)),
		Checks:     make([]CheckReport, 0, len(a.order)),
		ActiveVUs:  a.activeVUs.Value(),
		MaxVUs:     a.maxVUs.Value(),
		ErrorKinds: make(map[string]int64),
	}
	for i, st := range a.stats {
		report.Stats[i] = st.Name
	}

	for name, t := range a.trends {
		tr := TrendReport{
			Count:  t.count,
			Min:    t.stat(TrendStat{kind: statMin}),
			Max:    t.stat(TrendStat{kind: statMax}),
			Mean:   t.stat(TrendStat{kind: statMean}),
			Median: t.stat(TrendStat{kind: statMedian}),
			P95:    t.stat(TrendStat{kind: statPercentile, Percentile: 95}),
			Values: make(map[string]time.Duration, len(a.stats)),
			Errors: make(map[string]int64),
		}
		for _, st := range a.stats {
			tr.Values[st.Name] = t.stat(st)
		}
		tr.Passes = a.counter(name, "pass").Count()
		tr.Fails = a.counter(name, "fail").Count()
		for _, k := range []Kind{KindCheck, KindTransport, KindPanic} {
			if n := a.counter(name, "errors", k.String()).Count(); n > 0 {
				tr.Errors[k.String()] = n
			}
		}
		report.Trends[name] = tr
	}

	if it, ok := report.Trends[IterationDuration]; ok {
		report.Iterations = it.Count
		report.FailedIterations = it.Fails
		for k, n := range it.Errors {
			report.ErrorKinds[k] = n
		}
	}

	for _, name := range a.order {
		c := a.checks[name]
		report.Checks = append(report.Checks, CheckReport{
			Name:   name,
			Passes: c.pass.Count(),
			Fails:  c.fail.Count(),
		})
	}

	return report
}

// Counters returns every registered counter and gauge by name.
func (a *Aggregator) Counters() map[string]int64 {
	out := make(map[string]int64)
	a.registry.Each(func(name string, m interface{}) {
		switch v := m.(type) {
		case gometrics.Counter:
			out[name] = v.Count()
		case gometrics.Gauge:
			out[name] = v.Value()
		}
	})
	return out
}

// Metrics lists the recorded trend names in sorted order.
func (a *Aggregator) Metrics() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.trends))
	for name := range a.trends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// trendFor must be called with a.mu held.
func (a *Aggregator) trendFor(metric string) *trend {
	t, ok := a.trends[metric]
	if !ok {
		t = newTrend()
		a.trends[metric] = t
	}
	return t
}

func (a *Aggregator) counter(parts ...string) gometrics.Counter {
	name := parts[0]
	for _, p := range parts[1:] {
		name += "." + p
	}
	return gometrics.GetOrRegisterCounter(name, a.registry)
}

// SubMetric names the per-request sub-trend of a metric.
func SubMetric(metric, name string) string {
	return metric + "{" + LabelName + ":" + name + "}"
}
