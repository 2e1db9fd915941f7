// Package config defines the run configuration of a load test and loads it
// from YAML or JSON.
package config

// RunConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: "Order API"
//	settings:
//	  baseUrl: "http://localhost:8080"
//	  timeout: 10s
//	stages:
//	  - duration: 30s
//	    target: 20
//	  - duration: 30s
//	    target: 0
//	thinkTime:
//	  type: constant
//	  duration: 1s
//	requests:
//	  - name: health
//	    method: GET
//	    url: /health
//	    checks:
//	      - type: status
//	        value: "200"
//
// Either vus and duration or stages must be set, never both.
type RunConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name" yaml:"name" validate:"max=200"`

	// Description of the run (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains HTTP transport settings
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// VUs is the fixed number of virtual users
	VUs int `json:"vus,omitempty" yaml:"vus,omitempty" validate:"gte=0"`

	// Duration is how long fixed VUs run
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty" validate:"gte=0"`

	// Stages ramps the number of virtual users over time
	Stages []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty" validate:"dive"`

	// SummaryTrendStats selects the reported statistics, e.g. ["avg", "p(95)"]
	SummaryTrendStats []string `json:"summaryTrendStats,omitempty" yaml:"summaryTrendStats,omitempty"`

	// ThinkTime is the pause between iterations of a virtual user
	ThinkTime *ThinkTimeConfig `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// GracefulStop is how long stopping VUs may take to finish their iteration
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty" validate:"gte=0"`

	// ControlInterval is how often the scheduler reconciles the VU pool
	ControlInterval Duration `json:"controlInterval,omitempty" yaml:"controlInterval,omitempty" validate:"gte=0"`

	// Seed makes per-VU randomness reproducible
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Variables are available to every template as {{name}}
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Setup runs once before any virtual user starts
	Setup *SetupConfig `json:"setup,omitempty" yaml:"setup,omitempty"`

	// Requests are executed in order by every iteration
	Requests []RequestConfig `json:"requests" yaml:"requests" validate:"required,min=1,dive"`

	// Teardown runs once after all virtual users stopped
	Teardown *TeardownConfig `json:"teardown,omitempty" yaml:"teardown,omitempty"`

	// Thresholds are pass/fail criteria keyed by metric name,
	// e.g. http_req_duration: ["p(95) < 500ms"]
	Thresholds map[string][]string `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Settings contains HTTP transport settings.
type Settings struct {
	// BaseURL is prepended to relative request URLs
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty" validate:"omitempty,url"`

	// Timeout is the per-request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gte=0"`

	// MaxConnectionsPerHost limits connections per host
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty" validate:"gte=0"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty" validate:"gte=0"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are default headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// StageConfig is one segment of a ramping profile.
type StageConfig struct {
	Duration Duration `json:"duration" yaml:"duration" validate:"gte=0"`
	Target   int      `json:"target" yaml:"target" validate:"gte=0"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// ThinkTimeConfig controls the pause between iterations.
type ThinkTimeConfig struct {
	// Type is "none", "constant" or "random"
	Type string `json:"type" yaml:"type" validate:"omitempty,oneof=none constant random"`

	// Duration is the pause for constant think time
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty" validate:"gte=0"`

	// Min and Max bound random think time
	Min Duration `json:"min,omitempty" yaml:"min,omitempty" validate:"gte=0"`
	Max Duration `json:"max,omitempty" yaml:"max,omitempty" validate:"gte=0"`
}

// RequestConfig defines a single HTTP request.
type RequestConfig struct {
	// Name for this request (used in metrics)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method is the HTTP method, GET when empty
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// URL is the request URL, absolute or relative to settings.baseUrl
	URL string `json:"url" yaml:"url" validate:"required"`

	// Headers are request-specific headers
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is the request body
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Extract stores response values as variables for later requests
	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty" validate:"dive"`

	// Checks are named assertions on the response
	Checks []CheckConfig `json:"checks,omitempty" yaml:"checks,omitempty" validate:"dive"`
}

// ExtractConfig defines how to extract a variable from a response.
type ExtractConfig struct {
	// Name of the variable to store
	Name string `json:"name" yaml:"name" validate:"required"`

	// Source is "body", "header" or "status"
	Source string `json:"source" yaml:"source" validate:"required,oneof=body header status"`

	// Path is the gjson path for body, or the header name
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// CheckConfig defines a named assertion on a response.
type CheckConfig struct {
	// Name as reported, derived from the check when empty
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Type is "status", "duration", "body", "jsonpath", "schema" or "header"
	Type string `json:"type" yaml:"type" validate:"required,oneof=status duration body jsonpath schema header"`

	// Condition is the comparison, defaulted per type
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty" validate:"omitempty,oneof=eq ne in lt contains exists"`

	// Value is the expected value
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// Path is the gjson path for jsonpath checks or the header name
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Schema is an inline JSON schema for schema checks
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// SetupConfig describes the one-time preparation phase.
type SetupConfig struct {
	// Readiness waits for the target before anything else
	Readiness *ReadinessConfig `json:"readiness,omitempty" yaml:"readiness,omitempty"`

	// Credentials authenticates identities and pools their tokens
	Credentials *CredentialsConfig `json:"credentials,omitempty" yaml:"credentials,omitempty"`

	// Requests are executed once, in order, after credentials
	Requests []RequestConfig `json:"requests,omitempty" yaml:"requests,omitempty" validate:"dive"`
}

// ReadinessConfig polls a URL until it answers with the expected status.
type ReadinessConfig struct {
	URL          string   `json:"url" yaml:"url" validate:"required"`
	ExpectStatus int      `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty" validate:"omitempty,gte=100,lte=599"`
	MaxRetries   int      `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty" validate:"gte=0"`
	MaxElapsed   Duration `json:"maxElapsed,omitempty" yaml:"maxElapsed,omitempty" validate:"gte=0"`
}

// CredentialsConfig reads identities and logs each one in.
//
// Source lines are "identity<delimiter>secret". Lines starting with # and
// lines without a delimiter are skipped.
type CredentialsConfig struct {
	// File is the path of the credential source
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// Inline lines, used in addition to File
	Inline []string `json:"inline,omitempty" yaml:"inline,omitempty"`

	// Delimiter separates identity and secret, "," when empty
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`

	// Login is the authentication request; {{identity}} and {{secret}} are available
	Login RequestConfig `json:"login" yaml:"login"`

	// TokenPath is the gjson path of the token in the login response
	TokenPath string `json:"tokenPath,omitempty" yaml:"tokenPath,omitempty"`

	// RatePerSecond paces login requests, unlimited when zero
	RatePerSecond float64 `json:"ratePerSecond,omitempty" yaml:"ratePerSecond,omitempty" validate:"gte=0"`

	// MaxRetries retries logins failing with a transport error or 5xx
	MaxRetries int `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty" validate:"gte=0"`
}

// TeardownConfig describes the one-time cleanup phase.
type TeardownConfig struct {
	Requests []RequestConfig `json:"requests,omitempty" yaml:"requests,omitempty" validate:"dive"`
}
