package metrics

import "time"

// Built-in metric names.
const (
	HTTPReqDuration   = "http_req_duration"
	IterationDuration = "iteration_duration"
)

// LabelName is the label that splits a trend into a per-request sub-trend.
const LabelName = "name"

// Outcome is the pass/fail classification of a sample.
type Outcome int

const (
	Pass Outcome = iota
	Fail
)

func (o Outcome) String() string {
	if o == Fail {
		return "fail"
	}
	return "pass"
}

// Kind tags why a failed sample failed.
type Kind int

const (
	KindNone Kind = iota
	KindCheck
	KindTransport
	KindPanic
)

func (k Kind) String() string {
	switch k {
	case KindCheck:
		return "check"
	case KindTransport:
		return "transport"
	case KindPanic:
		return "panic"
	default:
		return "none"
	}
}

// Sample is one timed observation emitted by a virtual user.
type Sample struct {
	Metric    string
	Timestamp time.Time
	Duration  time.Duration
	Outcome   Outcome
	Kind      Kind
	Labels    map[string]string
}

func (s Sample) clone() Sample {
	if s.Labels != nil {
		labels := make(map[string]string, len(s.Labels))
		for k, v := range s.Labels {
			labels[k] = v
		}
		s.Labels = labels
	}
	return s
}
