package metrics

import (
	"fmt"
	"strconv"
	"strings"
)

type statKind int

const (
	statMin statKind = iota
	statMax
	statMean
	statMedian
	statPercentile
)

// TrendStat is one summary statistic of a trend, such as "p(95)".
type TrendStat struct {
	Name       string
	Percentile float64
	kind       statKind
}

// DefaultTrendStats are reported when no selection is configured.
var DefaultTrendStats = []string{"avg", "min", "med", "max", "p(90)", "p(95)"}

// ParseTrendStat parses min, max, avg, mean, med, p(N) and pN.
func ParseTrendStat(s string) (TrendStat, error) {
	name := strings.TrimSpace(s)
	switch strings.ToLower(name) {
	case "min":
		return TrendStat{Name: name, kind: statMin}, nil
	case "max":
		return TrendStat{Name: name, kind: statMax}, nil
	case "avg", "mean":
		return TrendStat{Name: name, kind: statMean}, nil
	case "med", "median":
		return TrendStat{Name: name, kind: statMedian, Percentile: 50}, nil
	}

	lower := strings.ToLower(name)
	if !strings.HasPrefix(lower, "p") {
		return TrendStat{}, fmt.Errorf("unknown trend stat %q", s)
	}
	num := strings.TrimPrefix(lower, "p")
	if strings.HasPrefix(num, "(") {
		if !strings.HasSuffix(num, ")") {
			return TrendStat{}, fmt.Errorf("unbalanced parentheses in trend stat %q", s)
		}
		num = num[1 : len(num)-1]
	}

	p, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return TrendStat{}, fmt.Errorf("invalid percentile in trend stat %q: %w", s, err)
	}
	if p <= 0 || p > 100 {
		return TrendStat{}, fmt.Errorf("percentile out of range (0, 100] in trend stat %q", s)
	}

	return TrendStat{Name: name, kind: statPercentile, Percentile: p}, nil
}

// ParseTrendStats parses a list of stat names, stopping at the first error.
func ParseTrendStats(names []string) ([]TrendStat, error) {
	stats := make([]TrendStat, 0, len(names))
	for _, n := range names {
		st, err := ParseTrendStat(n)
		if err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, nil
}

func mustParseTrendStats(names []string) []TrendStat {
	stats, err := ParseTrendStats(names)
	if err != nil {
		panic(err)
	}
	return stats
}
