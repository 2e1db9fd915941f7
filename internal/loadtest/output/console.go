// Package output renders run results: a console summary, one-line progress
// updates and a JSON document.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/internal/loadtest/engine"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

const (
	boxHorizontal = "━"
	labelWidth    = 32
)

// Console prints the header, progress and final summary of a run.
type Console struct {
	writer io.Writer
	scheme *ColorScheme
	isTTY  bool
	quiet  bool

	mu       sync.Mutex
	lastLine time.Time
	interval time.Duration
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer io.Writer
	Quiet  bool

	// NoColor disables colors; ForceColors enables them on non-terminals
	NoColor     bool
	ForceColors bool

	// UpdateInterval throttles progress lines (default: 1s)
	UpdateInterval time.Duration
}

// NewConsole creates a console printer.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = time.Second
	}

	isTTY := isTerminal(cfg.Writer)
	var scheme *ColorScheme
	switch {
	case cfg.NoColor:
		scheme = NoColorScheme()
	case cfg.ForceColors:
		scheme = ForcedColorScheme()
	case isTTY && supportsColors():
		scheme = DefaultColorScheme()
	default:
		scheme = NoColorScheme()
	}

	return &Console{
		writer:   cfg.Writer,
		scheme:   scheme,
		isTTY:    isTTY,
		quiet:    cfg.Quiet,
		interval: cfg.UpdateInterval,
	}
}

// PrintHeader prints the run name and load profile.
func (c *Console) PrintHeader(cfg *config.RunConfig) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 56)
	c.writeln(c.scheme.Title.Sprint(line))
	c.writeln(c.scheme.Highlight.Sprint(cfg.Name))
	if cfg.IsStaged() {
		var total time.Duration
		parts := make([]string, len(cfg.Stages))
		for i, s := range cfg.Stages {
			total += time.Duration(s.Duration)
			parts[i] = fmt.Sprintf("%s→%d", time.Duration(s.Duration), s.Target)
		}
		c.writeln(fmt.Sprintf("  stages: %s (%s)", strings.Join(parts, ", "), formatDuration(total)))
	} else {
		c.writeln(fmt.Sprintf("  vus: %d, duration: %s", cfg.VUs, formatDuration(time.Duration(cfg.Duration))))
	}
	if cfg.Settings.BaseURL != "" {
		c.writeln("  target: " + cfg.Settings.BaseURL)
	}
	c.writeln(c.scheme.Title.Sprint(line))
}

// Progress prints a one-line status, at most once per update interval.
func (c *Console) Progress(p engine.Progress, fraction float64) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastLine) < c.interval {
		return
	}
	c.lastLine = now

	var reqs, fails int64
	var p95 time.Duration
	if p.Report != nil {
		if t, ok := p.Report.Trend(metrics.HTTPReqDuration); ok {
			reqs, fails = t.Count, t.Fails
			p95 = t.P95
		}
	}
	c.writeln(fmt.Sprintf("[%s] %3.0f%% | VUs: %d/%d | reqs: %s | failed: %s | p(95): %s",
		formatDuration(p.Elapsed), fraction*100, p.Active, p.Target,
		formatNumber(reqs), formatNumber(fails), formatDurationShort(p95)))
}

// PrintSummary prints the final report.
func (c *Console) PrintSummary(result *engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if result.Passed && result.Error == "" {
			c.writeln(c.scheme.Pass.Sprint("PASSED"))
		} else {
			c.writeln(c.scheme.Fail.Sprint("FAILED"))
		}
		return
	}

	report := result.Report
	line := strings.Repeat(boxHorizontal, 56)
	status := c.scheme.Pass.Sprint("completed ✓")
	if !result.Passed || result.Error != "" {
		status = c.scheme.Fail.Sprint("failed ✗")
	}

	c.writeln("")
	c.writeln(c.scheme.Title.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.scheme.Highlight.Sprint(result.Name), status))
	c.writeln(c.scheme.Title.Sprint(line))
	if result.Error != "" {
		c.writeln(c.scheme.Fail.Sprint("  aborted: " + result.Error))
	}
	c.writeln("")

	if len(report.Checks) > 0 {
		c.printChecks(report)
	}

	passes, fails := report.CheckTotals()
	if passes+fails > 0 {
		c.metricLine("checks", fmt.Sprintf("%s %s %d %s %d",
			c.scheme.rateColor(report.ChecksRate()).Sprint(formatPercent(report.ChecksRate())),
			c.scheme.PassIcon(), passes, c.scheme.FailIcon(), fails))
	}

	if t, ok := report.Trend(metrics.HTTPReqDuration); ok {
		c.trendLine(metrics.HTTPReqDuration, t, report.Stats)
		subs := report.SubTrends(metrics.HTTPReqDuration)
		names := make([]string, 0, len(subs))
		for name := range subs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c.trendLine("  { name:"+name+" }", subs[name], report.Stats)
		}
		c.metricLine("http_req_failed", fmt.Sprintf("%s %s",
			c.scheme.rateColor(t.PassRate()).Sprint(formatPercent(t.FailRate())),
			c.scheme.Dim.Sprintf("%d of %d", t.Fails, t.Count)))
		c.metricLine("http_reqs", c.scheme.Value.Sprint(formatNumber(t.Count))+
			c.scheme.Dim.Sprintf("  %.1f/s", perSecond(t.Count, report.Elapsed)))
	}

	if t, ok := report.Trend(metrics.IterationDuration); ok {
		c.trendLine(metrics.IterationDuration, t, report.Stats)
	}
	c.metricLine("iterations", c.scheme.Value.Sprint(formatNumber(report.Iterations))+
		c.scheme.Dim.Sprintf("  %.1f/s", perSecond(report.Iterations, report.Elapsed)))
	if report.FailedIterations > 0 {
		c.metricLine("iterations_failed", c.scheme.Fail.Sprint(formatNumber(report.FailedIterations))+
			c.scheme.Dim.Sprint("  "+formatKinds(report.ErrorKinds)))
	}
	c.metricLine("vus_max", c.scheme.Value.Sprint(result.MaxVUs))
	c.metricLine("duration", c.scheme.Value.Sprint(formatDuration(result.Duration)))

	if result.Setup.Identities > 0 || result.Setup.Failures > 0 {
		c.writeln("")
		c.writeln(fmt.Sprintf("  setup: %d/%d identities authenticated, %d failed item(s)",
			result.Setup.Authenticated, result.Setup.Identities, result.Setup.Failures))
	}

	if len(result.Thresholds) > 0 {
		c.writeln("")
		c.writeln(c.scheme.Title.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			icon := c.scheme.PassIcon()
			if !t.Passed {
				icon = c.scheme.FailIcon()
			}
			actual := t.Value
			if actual == "" {
				actual = t.Message
			}
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", icon, t.Metric, t.Expression, actual))
		}
	}
	c.writeln("")
}

func (c *Console) printChecks(report *metrics.Report) {
	for _, chk := range report.Checks {
		icon := c.scheme.PassIcon()
		if chk.Fails > 0 {
			icon = c.scheme.FailIcon()
		}
		detail := ""
		if chk.Fails > 0 {
			detail = c.scheme.Dim.Sprintf("  %s (✓ %d / ✗ %d)", formatPercent(chk.PassRate()), chk.Passes, chk.Fails)
		}
		c.writeln(fmt.Sprintf("  %s %s%s", icon, chk.Name, detail))
	}
	c.writeln("")
}

func (c *Console) trendLine(name string, t metrics.TrendReport, stats []string) {
	parts := make([]string, 0, len(stats))
	for _, st := range stats {
		parts = append(parts, fmt.Sprintf("%s=%s", st, c.scheme.Value.Sprint(formatDurationShort(t.Values[st]))))
	}
	c.metricLine(name, strings.Join(parts, " "))
}

func (c *Console) metricLine(name, value string) {
	dots := labelWidth - len([]rune(name))
	if dots < 3 {
		dots = 3
	}
	c.writeln(fmt.Sprintf("  %s%s: %s", c.scheme.Metric.Sprint(name), c.scheme.Dim.Sprint(strings.Repeat(".", dots)), value))
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a duration in a short format.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

func formatPercent(r float64) string {
	return fmt.Sprintf("%.2f%%", r*100)
}

func formatKinds(kinds map[string]int64) string {
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = fmt.Sprintf("%s=%d", k, kinds[k])
	}
	return strings.Join(parts, " ")
}

func perSecond(n int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}
