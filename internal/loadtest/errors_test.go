package loadtest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name  string
		err   error
		kind  ErrorKind
		fatal bool
	}{
		{"nil", nil, KindNone, false},
		{"configuration", &ConfigurationError{Err: base}, KindConfiguration, true},
		{"setup item", &SetupItemError{Step: "login", Identity: "alice", Err: base}, KindSetupItem, false},
		{"check", &CheckFailure{Request: "r", Check: "status is 200"}, KindCheck, false},
		{"transport", &TransportError{Request: "r", Err: base}, KindTransport, false},
		{"fatal scheduling", &FatalSchedulingError{Reason: "negative", Target: -1}, KindFatalScheduling, true},
		{"panic", &PanicError{Value: "oops"}, KindPanic, false},
		{"wrapped transport", fmt.Errorf("iteration: %w", &TransportError{Err: base}), KindTransport, false},
		{"unclassified", base, KindCheck, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestErrorKind_SampleKind(t *testing.T) {
	assert.Equal(t, metrics.KindCheck, KindCheck.SampleKind())
	assert.Equal(t, metrics.KindTransport, KindTransport.SampleKind())
	assert.Equal(t, metrics.KindPanic, KindPanic.SampleKind())
	assert.Equal(t, metrics.KindNone, KindConfiguration.SampleKind())
}

func TestErrors_Unwrap(t *testing.T) {
	base := errors.New("connection refused")

	assert.True(t, errors.Is(&TransportError{Request: "r", Err: base}, base))
	assert.True(t, errors.Is(&SetupItemError{Step: "login", Err: base}, base))
	assert.True(t, errors.Is(&ConfigurationError{Err: base}, base))
	assert.True(t, errors.Is(&CheckFailure{Err: ErrNoCredentials}, ErrNoCredentials))
}

func TestErrors_Messages(t *testing.T) {
	assert.Equal(t, "setup login failed for alice: boom",
		(&SetupItemError{Step: "login", Identity: "alice", Err: errors.New("boom")}).Error())
	assert.Equal(t, "setup readiness failed: boom",
		(&SetupItemError{Step: "readiness", Err: errors.New("boom")}).Error())
	assert.Contains(t, (&CheckFailure{Request: "orders", Check: "status is 200", Status: 500}).Error(), "status 500")
	assert.Contains(t, (&FatalSchedulingError{Reason: "negative target", Target: -1}).Error(), "target -1")
}
