package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/loadtest/config"
)

// WaitReady polls the readiness URL with exponential backoff until it
// answers with the expected status, retries run out or ctx is done.
func WaitReady(ctx context.Context, client *http.Client, c *config.ReadinessConfig, logger log.FieldLogger) error {
	if c == nil {
		return nil
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	expect := c.ExpectStatus
	if expect == 0 {
		expect = 200
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	if c.MaxElapsed > 0 {
		b.MaxElapsedTime = time.Duration(c.MaxElapsed)
	}

	try := 1
	return backoff.Retry(func() error {
		logger.WithField("try", try).Debug("probing readiness")
		try++

		res, err := client.Do(ctx, http.NewRequest("GET", c.URL))
		if err != nil {
			return err
		}
		if res.StatusCode != expect {
			return fmt.Errorf("readiness returned status %d, want %d", res.StatusCode, expect)
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.MaxRetries)), ctx))
}
