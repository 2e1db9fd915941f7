package loadtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

// ErrorKind classifies errors for reporting and run continuation.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindConfiguration
	KindSetupItem
	KindCheck
	KindTransport
	KindFatalScheduling
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindSetupItem:
		return "setup"
	case KindCheck:
		return "check"
	case KindTransport:
		return "transport"
	case KindFatalScheduling:
		return "fatal_scheduling"
	case KindPanic:
		return "panic"
	default:
		return "none"
	}
}

// SampleKind maps the kind to the tag carried by failed samples.
func (k ErrorKind) SampleKind() metrics.Kind {
	switch k {
	case KindCheck:
		return metrics.KindCheck
	case KindTransport:
		return metrics.KindTransport
	case KindPanic:
		return metrics.KindPanic
	default:
		return metrics.KindNone
	}
}

// ErrNoCredentials is returned by iterations that need a credential when
// setup produced none.
var ErrNoCredentials = errors.New("no credentials available")

// ConfigurationError reports a contradictory or malformed run configuration.
// The run never starts.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// SetupItemError reports one failed setup step. The item is excluded and
// setup continues.
type SetupItemError struct {
	Step     string
	Identity string
	Err      error
}

func (e *SetupItemError) Error() string {
	if e.Identity != "" {
		return fmt.Sprintf("setup %s failed for %s: %v", e.Step, e.Identity, e.Err)
	}
	return fmt.Sprintf("setup %s failed: %v", e.Step, e.Err)
}

func (e *SetupItemError) Unwrap() error {
	return e.Err
}

// CheckFailure reports a failed assertion. It ends the iteration.
type CheckFailure struct {
	Request  string
	Check    string
	Status   int
	Duration time.Duration
	Err      error
}

func (e *CheckFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("check %q failed on %s: %v", e.Check, e.Request, e.Err)
	}
	return fmt.Sprintf("check %q failed on %s (status %d, %v)", e.Check, e.Request, e.Status, e.Duration)
}

func (e *CheckFailure) Unwrap() error {
	return e.Err
}

// TransportError reports a request that produced no response.
type TransportError struct {
	Request string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s failed: %v", e.Request, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FatalSchedulingError reports a violated scheduler invariant. The run is
// aborted.
type FatalSchedulingError struct {
	Reason  string
	Target  int
	Elapsed time.Duration
}

func (e *FatalSchedulingError) Error() string {
	return fmt.Sprintf("fatal scheduling error at %v: %s (target %d)", e.Elapsed, e.Reason, e.Target)
}

// PanicError wraps a value recovered from a panicking iteration.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("iteration panicked: %v", e.Value)
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors count as check failures: the iteration failed
// without a transport problem.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		configErr *ConfigurationError
		setupErr  *SetupItemError
		checkErr  *CheckFailure
		transErr  *TransportError
		fatalErr  *FatalSchedulingError
		panicErr  *PanicError
	)
	switch {
	case errors.As(err, &configErr):
		return KindConfiguration
	case errors.As(err, &fatalErr):
		return KindFatalScheduling
	case errors.As(err, &panicErr):
		return KindPanic
	case errors.As(err, &transErr):
		return KindTransport
	case errors.As(err, &checkErr):
		return KindCheck
	case errors.As(err, &setupErr):
		return KindSetupItem
	}
	return KindCheck
}

// IsFatal reports whether err must terminate the run.
func IsFatal(err error) bool {
	k := KindOf(err)
	return k == KindConfiguration || k == KindFatalScheduling
}
