package setup

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/loadtest"
	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

// SetupFunc runs after the configured setup steps. The returned variables
// are added to the shared data. An error is logged and its variables are
// dropped.
type SetupFunc func(ctx context.Context, creds []loadtest.Credential) (map[string]string, error)

// TeardownFunc runs after the configured teardown requests.
type TeardownFunc func(ctx context.Context, data *loadtest.SharedData, report *metrics.Report) error

// Options configures a Coordinator.
type Options struct {
	Setup    *config.SetupConfig
	Teardown *config.TeardownConfig

	// Client executes readiness, setup and teardown requests
	Client *http.Client

	// Authenticator logs identities in. When nil and credentials are
	// configured, an HTTPAuthenticator is built from Setup.Credentials.
	Authenticator Authenticator

	// BaseURL and Headers are used by the default authenticator
	BaseURL string
	Headers map[string]string
	Timeout time.Duration

	// Variables are the static configuration variables
	Variables map[string]string

	SetupFuncs    []SetupFunc
	TeardownFuncs []TeardownFunc

	Logger log.FieldLogger
}

// Result counts what setup did.
type Result struct {
	Identities    int `json:"identities"`
	Authenticated int `json:"authenticated"`
	Failures      int `json:"failures"`
}

// Coordinator runs the one-time setup before any virtual user starts and
// the one-time teardown after all of them stopped.
//
// Setup never aborts the run: each failed item is logged as a
// *loadtest.SetupItemError and excluded. An empty credential pool is a
// valid outcome.
type Coordinator struct {
	opts   Options
	logger log.FieldLogger

	setupOnce sync.Once
	data      *loadtest.SharedData
	result    Result
	errs      []error

	teardownOnce sync.Once
}

// NewCoordinator creates a coordinator.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Client == nil {
		opts.Client = http.NewClient(http.DefaultClientConfig(), http.WithBaseURL(opts.BaseURL))
	}

	return &Coordinator{
		opts:   opts,
		logger: opts.Logger.WithField("phase", "setup"),
	}
}

// Setup runs the setup phase once. Later calls return the same data.
func (c *Coordinator) Setup(ctx context.Context) (*loadtest.SharedData, error) {
	c.setupOnce.Do(func() {
		c.data = c.runSetup(ctx)
	})
	return c.data, ctx.Err()
}

// Result returns the setup counts. Valid after Setup.
func (c *Coordinator) Result() Result {
	return c.result
}

// Errors returns the setup item errors in order. Valid after Setup.
func (c *Coordinator) Errors() []error {
	return append([]error(nil), c.errs...)
}

func (c *Coordinator) runSetup(ctx context.Context) *loadtest.SharedData {
	start := time.Now()
	cfg := c.opts.Setup
	if cfg == nil {
		cfg = &config.SetupConfig{}
	}

	if cfg.Readiness != nil {
		if err := WaitReady(ctx, c.opts.Client, cfg.Readiness, c.logger); err != nil {
			c.fail(&loadtest.SetupItemError{Step: "readiness", Err: err})
		} else {
			c.logger.WithField("url", cfg.Readiness.URL).Info("target is ready")
		}
	}

	creds := c.authenticate(ctx, cfg.Credentials)

	vars := make(map[string]string)
	c.runRequests(ctx, cfg.Requests, creds, vars)

	for i, fn := range c.opts.SetupFuncs {
		extra, err := fn(ctx, creds)
		if err != nil {
			c.fail(&loadtest.SetupItemError{Step: "hook " + strconv.Itoa(i), Err: err})
			continue
		}
		for k, v := range extra {
			vars[k] = v
		}
	}

	c.logger.WithFields(log.Fields{
		"identities":    c.result.Identities,
		"authenticated": c.result.Authenticated,
		"failures":      c.result.Failures,
		"duration":      time.Since(start),
	}).Info("setup complete")

	return loadtest.NewSharedData(creds, vars)
}

func (c *Coordinator) authenticate(ctx context.Context, cc *config.CredentialsConfig) []loadtest.Credential {
	if cc == nil {
		return nil
	}

	identities, err := LoadCredentials(cc, c.logger)
	if err != nil {
		c.fail(&loadtest.SetupItemError{Step: "credentials", Err: err})
	}
	c.result.Identities = len(identities)
	if len(identities) == 0 {
		c.logger.Warn("credential source is empty")
		return nil
	}

	auth := c.opts.Authenticator
	if auth == nil {
		auth = NewHTTPAuthenticator(HTTPAuthenticatorConfig{
			BaseURL:    c.opts.BaseURL,
			Headers:    c.opts.Headers,
			Login:      cc.Login,
			TokenPath:  cc.TokenPath,
			Timeout:    c.opts.Timeout,
			MaxRetries: cc.MaxRetries,
			Variables:  c.opts.Variables,
			Logger:     c.logger,
		})
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cc.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cc.RatePerSecond), 1)
	}

	creds := make([]loadtest.Credential, 0, len(identities))
	for _, id := range identities {
		if err := limiter.Wait(ctx); err != nil {
			c.fail(&loadtest.SetupItemError{Step: "login", Identity: id.Name, Err: err})
			break
		}

		cred, err := auth.Authenticate(ctx, id)
		if err != nil {
			c.fail(&loadtest.SetupItemError{Step: "login", Identity: id.Name, Err: err})
			continue
		}
		creds = append(creds, cred)
	}
	c.result.Authenticated = len(creds)

	return creds
}

// runRequests executes setup requests in order. Extracted values are stored
// in vars and visible to later requests.
func (c *Coordinator) runRequests(ctx context.Context, requests []config.RequestConfig, creds []loadtest.Credential, vars map[string]string) {
	scope := make(map[string]string)
	if len(creds) > 0 {
		scope["token"] = creds[0].Token
		scope["identity"] = creds[0].Identity
	}
	faker := gofakeit.New(0)

	for _, rc := range requests {
		name := rc.Name
		if name == "" {
			name = rc.Method + " " + rc.URL
		}

		res, err := c.opts.Client.Do(ctx, loadtest.RenderRequest(rc, faker, vars, scope, c.opts.Variables))
		if err != nil {
			c.fail(&loadtest.SetupItemError{Step: "request " + name, Err: err})
			continue
		}

		checks, err := loadtest.BuildChecks(rc.Checks)
		if err != nil {
			c.fail(&loadtest.SetupItemError{Step: "request " + name, Err: err})
			continue
		}
		if failed := firstFailed(checks, res); failed != "" {
			c.fail(&loadtest.SetupItemError{Step: "request " + name, Err: errors.New("check " + strconv.Quote(failed) + " failed")})
			continue
		}

		for _, ex := range rc.Extract {
			if v, ok := loadtest.ExtractValue(ex, res); ok {
				vars[ex.Name] = v
			}
		}
	}
}

func firstFailed(checks []loadtest.Check, res *http.Response) string {
	for _, chk := range checks {
		if !chk.Evaluate(res) {
			return chk.Name()
		}
	}
	return ""
}

func (c *Coordinator) fail(err *loadtest.SetupItemError) {
	c.result.Failures++
	c.errs = append(c.errs, err)

	entry := c.logger.WithField("step", err.Step)
	if err.Identity != "" {
		entry = entry.WithField("identity", err.Identity)
	}
	entry.WithError(err.Err).Warn("setup item failed")
}

// Teardown runs the teardown phase once. Failures are logged only.
func (c *Coordinator) Teardown(ctx context.Context, report *metrics.Report) {
	c.teardownOnce.Do(func() {
		c.runTeardown(ctx, report)
	})
}

func (c *Coordinator) runTeardown(ctx context.Context, report *metrics.Report) {
	logger := c.opts.Logger.WithField("phase", "teardown")

	scope := c.data.Vars()
	if creds := c.data.Credentials(); len(creds) > 0 {
		scope["token"] = creds[0].Token
		scope["identity"] = creds[0].Identity
	}
	faker := gofakeit.New(0)

	if c.opts.Teardown != nil {
		for _, rc := range c.opts.Teardown.Requests {
			res, err := c.opts.Client.Do(ctx, loadtest.RenderRequest(rc, faker, scope, c.opts.Variables))
			if err != nil {
				logger.WithField("request", rc.Name).WithError(err).Error("teardown request failed")
				continue
			}
			if !res.IsSuccess() {
				logger.WithFields(log.Fields{"request": rc.Name, "status": res.StatusCode}).Error("teardown request failed")
			}
		}
	}

	for i, fn := range c.opts.TeardownFuncs {
		if err := fn(ctx, c.data, report); err != nil {
			logger.WithField("hook", i).WithError(err).Error("teardown hook failed")
		}
	}

	logger.Info("teardown complete")
}
