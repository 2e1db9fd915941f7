package cli

import (
	"errors"

	"github.com/wesleyorama2/stampede/internal/loadtest"
)

// Exit codes
const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitConfigError = 2
)

// ErrThresholdsFailed is returned by run when at least one threshold did
// not pass.
var ErrThresholdsFailed = errors.New("thresholds failed")

// ExitCode maps an error returned by Execute to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var configErr *loadtest.ConfigurationError
	if errors.As(err, &configErr) {
		return ExitConfigError
	}
	return ExitFailed
}
