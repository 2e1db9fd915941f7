package setup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/sethgrid/pester"
	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/stampede/internal/loadtest"
	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/pkg/jsonpath"
)

// DefaultLoginTries is the number of attempts per login (0 and 1 both mean
// a single try).
const DefaultLoginTries = 3

// Authenticator exchanges an identity for a token.
type Authenticator interface {
	Authenticate(ctx context.Context, id Identity) (loadtest.Credential, error)
}

// AuthenticatorFunc adapts a function to an Authenticator.
type AuthenticatorFunc func(ctx context.Context, id Identity) (loadtest.Credential, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, id Identity) (loadtest.Credential, error) {
	return f(ctx, id)
}

// HTTPAuthenticator logs identities in with a templated request and reads
// the token from the JSON response.
type HTTPAuthenticator struct {
	client    *pester.Client
	baseURL   string
	headers   map[string]string
	login     config.RequestConfig
	tokenPath string
	vars      map[string]string
}

// HTTPAuthenticatorConfig configures an HTTPAuthenticator.
type HTTPAuthenticatorConfig struct {
	BaseURL   string
	Headers   map[string]string
	Login     config.RequestConfig
	TokenPath string
	Timeout   time.Duration

	// MaxRetries retries logins failing on transport errors or 5xx
	MaxRetries int

	// Variables are available to the login templates
	Variables map[string]string

	Logger log.FieldLogger
}

// MakePesterClient returns a retrying client with exponential backoff that
// logs every failed attempt.
func MakePesterClient(tries int, timeout time.Duration, logger log.FieldLogger) *pester.Client {
	if tries <= 0 {
		tries = DefaultLoginTries
	}
	if logger == nil {
		logger = log.StandardLogger()
	}

	client := pester.NewExtendedClient(&http.Client{Timeout: timeout})
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = tries
	client.LogHook = func(e pester.ErrEntry) {
		logger.WithFields(log.Fields{
			"url":     e.URL,
			"attempt": e.Attempt,
		}).WithError(e.Err).Debug("retrying login after failed attempt")
	}
	return client
}

// NewHTTPAuthenticator creates an authenticator from its configuration.
func NewHTTPAuthenticator(cfg HTTPAuthenticatorConfig) *HTTPAuthenticator {
	if cfg.TokenPath == "" {
		cfg.TokenPath = config.DefaultTokenPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultTimeout
	}

	return &HTTPAuthenticator{
		client:    MakePesterClient(cfg.MaxRetries, cfg.Timeout, cfg.Logger),
		baseURL:   cfg.BaseURL,
		headers:   cfg.Headers,
		login:     cfg.Login,
		tokenPath: cfg.TokenPath,
		vars:      cfg.Variables,
	}
}

// Authenticate sends the login request for id. Any non-2xx status or a
// response without a token is an error.
func (a *HTTPAuthenticator) Authenticate(ctx context.Context, id Identity) (loadtest.Credential, error) {
	scope := map[string]string{"identity": id.Name, "secret": id.Secret}
	req := loadtest.RenderRequest(a.login, gofakeit.New(0), scope, a.vars)

	httpReq, err := req.Build(ctx, a.baseURL)
	if err != nil {
		return loadtest.Credential{}, err
	}
	for k, v := range a.headers {
		if httpReq.Header.Get(k) == "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return loadtest.Credential{}, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return loadtest.Credential{}, fmt.Errorf("failed to read login response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return loadtest.Credential{}, fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	token, err := jsonpath.Extract(body, a.tokenPath)
	if err != nil {
		return loadtest.Credential{}, fmt.Errorf("no token in login response: %w", err)
	}
	if token == "" || token == "null" {
		return loadtest.Credential{}, fmt.Errorf("empty token at %s", a.tokenPath)
	}

	return loadtest.Credential{Identity: id.Name, Token: token}, nil
}
