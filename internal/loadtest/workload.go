package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
	"github.com/wesleyorama2/stampede/pkg/jsonpath"
)

// Workload is the body of one iteration. Implementations must be safe for
// concurrent use by many virtual users; per-user state lives in Iteration.
type Workload interface {
	Iterate(ctx context.Context, it *Iteration) error
}

// WorkloadFunc adapts a function to a Workload.
type WorkloadFunc func(ctx context.Context, it *Iteration) error

// Iterate calls f.
func (f WorkloadFunc) Iterate(ctx context.Context, it *Iteration) error {
	return f(ctx, it)
}

// Iteration carries everything one iteration of one virtual user may use.
type Iteration struct {
	VU     int
	Number int64
	Shared *SharedData
	Rand   *rand.Rand
	Faker  *gofakeit.Faker
	Logger log.FieldLogger

	agg *metrics.Aggregator
}

// Emit records a sample.
func (it *Iteration) Emit(s metrics.Sample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	it.agg.Record(s)
}

// RecordCheck counts one check evaluation.
func (it *Iteration) RecordCheck(name string, passed bool) {
	it.agg.RecordCheck(name, passed)
}

type compiledRequest struct {
	config config.RequestConfig
	name   string
	checks []Check
}

// HTTPWorkload runs a fixed sequence of configured requests.
//
// Every request emits an http_req_duration sample and has all of its checks
// evaluated and counted. A transport error or a failed check ends the
// iteration; there is no retry. Extracted values are visible to later
// requests of the same iteration.
type HTTPWorkload struct {
	client    *http.Client
	requests  []compiledRequest
	variables map[string]string

	// set when any template references the credential pool
	needsCredential bool
}

// NewHTTPWorkload compiles the request configurations. Checks are built
// once here and shared by all virtual users.
func NewHTTPWorkload(client *http.Client, requests []config.RequestConfig, variables map[string]string) (*HTTPWorkload, error) {
	w := &HTTPWorkload{
		client:    client,
		requests:  make([]compiledRequest, 0, len(requests)),
		variables: config.MergeVariables(variables),
	}

	for i, rc := range requests {
		checks, err := BuildChecks(rc.Checks)
		if err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("requests[%d].%w", i, err)}
		}

		name := rc.Name
		if name == "" {
			name = strings.ToUpper(rc.Method) + " " + rc.URL
		}
		w.requests = append(w.requests, compiledRequest{config: rc, name: name, checks: checks})

		if usesCredential(rc) {
			w.needsCredential = true
		}
	}

	return w, nil
}

func usesCredential(rc config.RequestConfig) bool {
	texts := []string{rc.URL, rc.Body}
	for _, v := range rc.Headers {
		texts = append(texts, v)
	}
	for _, t := range texts {
		for _, m := range placeholderPattern.FindAllStringSubmatch(t, -1) {
			switch strings.TrimSpace(m[1]) {
			case "token", "identity":
				return true
			}
		}
	}
	return false
}

// Iterate executes the requests in order.
func (w *HTTPWorkload) Iterate(ctx context.Context, it *Iteration) error {
	scope := map[string]string{
		"vu":        strconv.Itoa(it.VU),
		"iteration": strconv.FormatInt(it.Number, 10),
	}

	if w.needsCredential {
		cred, ok := it.Shared.PickCredential(it.Rand)
		if !ok {
			return &CheckFailure{Request: w.requests[0].name, Check: "credential available", Err: ErrNoCredentials}
		}
		scope["token"] = cred.Token
		scope["identity"] = cred.Identity
	}

	var sharedVars map[string]string
	if it.Shared != nil {
		sharedVars = it.Shared.vars
	}

	for _, req := range w.requests {
		rendered := RenderRequest(req.config, it.Faker, scope, sharedVars, w.variables)
		labels := map[string]string{metrics.LabelName: req.name, "method": rendered.Method}

		res, err := w.client.Do(ctx, rendered)
		if err != nil {
			var reqErr *http.RequestError
			var d time.Duration
			if errors.As(err, &reqErr) {
				d = reqErr.Duration
			}
			it.Emit(metrics.Sample{
				Metric:   metrics.HTTPReqDuration,
				Duration: d,
				Outcome:  metrics.Fail,
				Kind:     metrics.KindTransport,
				Labels:   labels,
			})
			return &TransportError{Request: req.name, Err: err}
		}

		var failed Check
		for _, c := range req.checks {
			ok := c.Evaluate(res)
			it.RecordCheck(c.Name(), ok)
			if !ok && failed == nil {
				failed = c
			}
		}

		labels["status"] = strconv.Itoa(res.StatusCode)
		sample := metrics.Sample{
			Metric:   metrics.HTTPReqDuration,
			Duration: res.Duration,
			Labels:   labels,
		}
		if failed != nil {
			sample.Outcome = metrics.Fail
			sample.Kind = metrics.KindCheck
		}
		it.Emit(sample)

		if failed != nil {
			it.Logger.WithFields(log.Fields{
				"request":  req.name,
				"check":    failed.Name(),
				"status":   res.StatusCode,
				"duration": res.Duration,
				"body":     snippet(res.Body, 200),
			}).Debug("check failed")
			return &CheckFailure{Request: req.name, Check: failed.Name(), Status: res.StatusCode, Duration: res.Duration}
		}

		for _, ex := range req.config.Extract {
			if v, ok := ExtractValue(ex, res); ok {
				scope[ex.Name] = v
			}
		}
	}

	return nil
}

// RenderRequest renders the templates of a request configuration.
func RenderRequest(rc config.RequestConfig, faker *gofakeit.Faker, scopes ...map[string]string) *http.Request {
	req := http.NewRequest(strings.ToUpper(rc.Method), Render(rc.URL, faker, scopes...))
	for k, v := range rc.Headers {
		req.WithHeader(k, Render(v, faker, scopes...))
	}
	if rc.Body != "" {
		req.WithBody(Render(rc.Body, faker, scopes...))
	}
	return req
}

// ExtractValue reads the value an extraction refers to.
func ExtractValue(ex config.ExtractConfig, res *http.Response) (string, bool) {
	switch ex.Source {
	case "header":
		v := res.GetHeader(ex.Path)
		return v, v != ""
	case "status":
		return strconv.Itoa(res.StatusCode), true
	default:
		v, err := jsonpath.Extract(res.Body, ex.Path)
		return v, err == nil
	}
}

func snippet(body []byte, max int) string {
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
