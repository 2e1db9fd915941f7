package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lthttp "github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

func newIteration(agg *metrics.Aggregator, shared *SharedData) *Iteration {
	return &Iteration{
		VU:     1,
		Number: 1,
		Shared: shared,
		Rand:   rand.New(rand.NewSource(1)),
		Faker:  gofakeit.New(1),
		Logger: log.NewEntry(log.StandardLogger()),
		agg:    agg,
	}
}

func newTestClient(baseURL string) *lthttp.Client {
	return lthttp.NewClient(lthttp.DefaultClientConfig(), lthttp.WithBaseURL(baseURL))
}

func statusCheck(code string) config.CheckConfig {
	return config.CheckConfig{Name: "status is " + code, Type: "status", Condition: "eq", Value: code}
}

func TestHTTPWorkload_CheckFailureKeepsVURunning(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	w, err := NewHTTPWorkload(newTestClient(server.URL), []config.RequestConfig{
		{Name: "orders", Method: "GET", URL: "/orders", Checks: []config.CheckConfig{statusCheck("200")}},
	}, nil)
	require.NoError(t, err)

	agg := metrics.NewAggregator()
	vu := NewVirtualUser(1, VUOptions{Workload: w, Aggregator: agg})
	go vu.Run(context.Background())

	require.Eventually(t, func() bool { return vu.Iterations() >= 3 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, VUStateRunning, vu.State(), "a failed check must not stop the VU")

	vu.RequestStop()
	require.True(t, vu.WaitForStop(5*time.Second))

	report := agg.Snapshot()
	assert.Equal(t, report.Iterations, report.FailedIterations)
	assert.Positive(t, report.ErrorKinds[metrics.KindCheck.String()])

	trend, ok := report.Trend(metrics.HTTPReqDuration)
	require.True(t, ok)
	assert.Equal(t, trend.Count, trend.Fails)

	require.Len(t, report.Checks, 1)
	assert.Equal(t, "status is 200", report.Checks[0].Name)
	assert.Equal(t, int64(0), report.Checks[0].Passes)
	assert.Equal(t, int64(hits.Load()), report.Checks[0].Fails)
}

func TestHTTPWorkload_CheckFailureError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	w, err := NewHTTPWorkload(newTestClient(server.URL), []config.RequestConfig{
		{Name: "orders", Method: "GET", URL: "/orders", Checks: []config.CheckConfig{statusCheck("200")}},
		{Name: "never", Method: "GET", URL: "/never"},
	}, nil)
	require.NoError(t, err)

	agg := metrics.NewAggregator()
	err = w.Iterate(context.Background(), newIteration(agg, nil))

	var cf *CheckFailure
	require.True(t, errors.As(err, &cf), "got %v", err)
	assert.Equal(t, "orders", cf.Request)
	assert.Equal(t, "status is 200", cf.Check)
	assert.Equal(t, http.StatusInternalServerError, cf.Status)
	assert.Equal(t, KindCheck, KindOf(err))

	subs := agg.Snapshot().SubTrends(metrics.HTTPReqDuration)
	assert.Contains(t, subs, "orders")
	assert.NotContains(t, subs, "never", "the iteration must end at the failed check")
}

func TestHTTPWorkload_EvaluatesEveryCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	w, err := NewHTTPWorkload(newTestClient(server.URL), []config.RequestConfig{
		{Name: "ping", Method: "GET", URL: "/", Checks: []config.CheckConfig{
			statusCheck("200"),
			{Name: "ok flag", Type: "jsonpath", Condition: "eq", Path: "$.ok", Value: "true"},
		}},
	}, nil)
	require.NoError(t, err)

	agg := metrics.NewAggregator()
	require.Error(t, w.Iterate(context.Background(), newIteration(agg, nil)))

	report := agg.Snapshot()
	require.Len(t, report.Checks, 2)
	passes, fails := report.CheckTotals()
	assert.Equal(t, int64(1), passes)
	assert.Equal(t, int64(1), fails)
}

func TestHTTPWorkload_ExtractionFeedsLaterRequests(t *testing.T) {
	var gotPath atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"data":{"id":"ord-42"}}`)
		default:
			gotPath.Store(r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	w, err := NewHTTPWorkload(newTestClient(server.URL), []config.RequestConfig{
		{
			Name: "create", Method: "POST", URL: "/orders", Body: `{"side":"BUY"}`,
			Extract: []config.ExtractConfig{{Name: "orderId", Source: "body", Path: "$.data.id"}},
			Checks:  []config.CheckConfig{statusCheck("201")},
		},
		{Name: "get", Method: "GET", URL: "/orders/{{orderId}}", Checks: []config.CheckConfig{statusCheck("200")}},
	}, nil)
	require.NoError(t, err)

	agg := metrics.NewAggregator()
	require.NoError(t, w.Iterate(context.Background(), newIteration(agg, nil)))
	assert.Equal(t, "/orders/ord-42", gotPath.Load())
	assert.Equal(t, 1.0, agg.Snapshot().Trends[metrics.HTTPReqDuration].PassRate())
}

func TestHTTPWorkload_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	w, err := NewHTTPWorkload(newTestClient(url), []config.RequestConfig{
		{Name: "down", Method: "GET", URL: "/", Checks: []config.CheckConfig{statusCheck("200")}},
	}, nil)
	require.NoError(t, err)

	agg := metrics.NewAggregator()
	err = w.Iterate(context.Background(), newIteration(agg, nil))

	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, "down", te.Request)
	assert.Equal(t, KindTransport, KindOf(err))

	trend := agg.Snapshot().Trends[metrics.HTTPReqDuration]
	assert.Equal(t, int64(1), trend.Fails)
	assert.Equal(t, int64(1), trend.Errors[metrics.KindTransport.String()])
	assert.Empty(t, agg.Snapshot().Checks, "checks are not evaluated without a response")
}

func TestHTTPWorkload_Credentials(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
	}))
	defer server.Close()

	requests := []config.RequestConfig{
		{Name: "me", Method: "GET", URL: "/me", Headers: map[string]string{"Authorization": "Bearer {{token}}"}},
	}
	w, err := NewHTTPWorkload(newTestClient(server.URL), requests, nil)
	require.NoError(t, err)

	t.Run("empty pool fails the iteration", func(t *testing.T) {
		err := w.Iterate(context.Background(), newIteration(metrics.NewAggregator(), NewSharedData(nil, nil)))
		assert.True(t, errors.Is(err, ErrNoCredentials))
		assert.Equal(t, KindCheck, KindOf(err))
	})

	t.Run("token is injected", func(t *testing.T) {
		shared := NewSharedData([]Credential{{Identity: "alice", Token: "tok-alice"}}, nil)
		require.NoError(t, w.Iterate(context.Background(), newIteration(metrics.NewAggregator(), shared)))
		assert.Equal(t, "Bearer tok-alice", gotAuth.Load())
	})
}

func TestHTTPWorkload_SpacedCredentialPlaceholders(t *testing.T) {
	var gotAuth, gotUser atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		gotUser.Store(r.URL.Query().Get("user"))
	}))
	defer server.Close()

	requests := []config.RequestConfig{
		{Name: "me", Method: "GET", URL: "/me?user={{ identity }}", Headers: map[string]string{"Authorization": "Bearer {{ token }}"}},
	}
	w, err := NewHTTPWorkload(newTestClient(server.URL), requests, nil)
	require.NoError(t, err)

	shared := NewSharedData([]Credential{{Identity: "alice", Token: "tok-alice"}}, nil)
	require.NoError(t, w.Iterate(context.Background(), newIteration(metrics.NewAggregator(), shared)))
	assert.Equal(t, "Bearer tok-alice", gotAuth.Load())
	assert.Equal(t, "alice", gotUser.Load())

	err = w.Iterate(context.Background(), newIteration(metrics.NewAggregator(), NewSharedData(nil, nil)))
	assert.True(t, errors.Is(err, ErrNoCredentials))
}

func TestUsesCredential(t *testing.T) {
	tests := []struct {
		name string
		rc   config.RequestConfig
		want bool
	}{
		{name: "plain token", rc: config.RequestConfig{URL: "/{{token}}"}, want: true},
		{name: "spaced token in header", rc: config.RequestConfig{URL: "/", Headers: map[string]string{"Authorization": "Bearer {{  token }}"}}, want: true},
		{name: "identity in body", rc: config.RequestConfig{URL: "/", Body: `{"user":"{{ identity}}"}`}, want: true},
		{name: "other variables", rc: config.RequestConfig{URL: "/{{tokens}}/{{uuid}}", Body: "{{fake.name}}"}, want: false},
		{name: "no placeholders", rc: config.RequestConfig{URL: "/token"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, usesCredential(tt.rc))
		})
	}
}

func TestHTTPWorkload_VariablePrecedence(t *testing.T) {
	var gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
	}))
	defer server.Close()

	w, err := NewHTTPWorkload(newTestClient(server.URL), []config.RequestConfig{
		{Name: "q", Method: "GET", URL: "/?env={{env}}&region={{region}}&vu={{vu}}"},
	}, map[string]string{"env": "config", "region": "eu"})
	require.NoError(t, err)

	shared := NewSharedData(nil, map[string]string{"env": "setup"})
	require.NoError(t, w.Iterate(context.Background(), newIteration(metrics.NewAggregator(), shared)))
	assert.Equal(t, "env=setup&region=eu&vu=1", gotQuery.Load())
}

func TestNewHTTPWorkload_InvalidCheck(t *testing.T) {
	_, err := NewHTTPWorkload(newTestClient("http://localhost"), []config.RequestConfig{
		{Name: "bad", Method: "GET", URL: "/", Checks: []config.CheckConfig{{Type: "status", Value: "abc"}}},
	}, nil)

	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.True(t, IsFatal(err))
}

func TestExtractValue(t *testing.T) {
	res := &lthttp.Response{
		StatusCode: 201,
		Headers:    http.Header{"Location": []string{"/orders/7"}},
		Body:       []byte(`{"id":7}`),
	}

	tests := []struct {
		name   string
		ex     config.ExtractConfig
		want   string
		wantOK bool
	}{
		{"body", config.ExtractConfig{Source: "body", Path: "$.id"}, "7", true},
		{"missing body path", config.ExtractConfig{Source: "body", Path: "$.nope"}, "", false},
		{"header", config.ExtractConfig{Source: "header", Path: "Location"}, "/orders/7", true},
		{"missing header", config.ExtractConfig{Source: "header", Path: "X-None"}, "", false},
		{"status", config.ExtractConfig{Source: "status"}, "201", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractValue(tt.ex, res)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
