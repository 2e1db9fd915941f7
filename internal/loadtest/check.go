package loadtest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/stampede/internal/http"
	"github.com/wesleyorama2/stampede/internal/loadtest/config"
	"github.com/wesleyorama2/stampede/pkg/jsonpath"
	"github.com/wesleyorama2/stampede/pkg/jsonschema"
)

// Check is a named predicate over a response.
type Check interface {
	Name() string
	Evaluate(res *http.Response) bool
}

// CheckFunc adapts a function to a Check.
type CheckFunc struct {
	name string
	fn   func(res *http.Response) bool
}

// NewCheckFunc returns a Check calling fn.
func NewCheckFunc(name string, fn func(res *http.Response) bool) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string { return c.name }

func (c *CheckFunc) Evaluate(res *http.Response) bool { return c.fn(res) }

// StatusCheck passes when the status is (or, negated, is not) one of Codes.
type StatusCheck struct {
	name   string
	Codes  []int
	Negate bool
}

// NewStatusCheck checks for any of codes.
func NewStatusCheck(name string, codes ...int) *StatusCheck {
	if name == "" {
		name = config.DefaultCheckName(config.CheckConfig{Type: "status", Value: joinInts(codes)})
	}
	return &StatusCheck{name: name, Codes: codes}
}

func (c *StatusCheck) Name() string { return c.name }

func (c *StatusCheck) Evaluate(res *http.Response) bool {
	found := false
	for _, code := range c.Codes {
		if res.StatusCode == code {
			found = true
			break
		}
	}
	return found != c.Negate
}

// DurationCheck passes when the response took less than Max.
type DurationCheck struct {
	name string
	Max  time.Duration
}

// NewDurationCheck checks the response time against max.
func NewDurationCheck(name string, max time.Duration) *DurationCheck {
	if name == "" {
		name = "response time is less than " + max.String()
	}
	return &DurationCheck{name: name, Max: max}
}

func (c *DurationCheck) Name() string { return c.name }

func (c *DurationCheck) Evaluate(res *http.Response) bool {
	return res.Duration < c.Max
}

// BodyContainsCheck passes when the body contains Substring.
type BodyContainsCheck struct {
	name      string
	Substring string
}

func (c *BodyContainsCheck) Name() string { return c.name }

func (c *BodyContainsCheck) Evaluate(res *http.Response) bool {
	return strings.Contains(string(res.Body), c.Substring)
}

// JSONPathCheck compares the value at Path in a JSON body.
type JSONPathCheck struct {
	name      string
	Path      string
	Expected  string
	Condition string
}

func (c *JSONPathCheck) Name() string { return c.name }

func (c *JSONPathCheck) Evaluate(res *http.Response) bool {
	result, ok := jsonpath.Lookup(res.Body, c.Path)
	switch c.Condition {
	case "exists":
		return ok
	case "ne":
		return !ok || result.String() != c.Expected
	default:
		return ok && result.String() == c.Expected
	}
}

// SchemaCheck validates the body against a JSON schema compiled once.
type SchemaCheck struct {
	name   string
	schema *jsonschema.Schema
}

// NewSchemaCheck compiles schema.
func NewSchemaCheck(name, schema string) (*SchemaCheck, error) {
	compiled, err := jsonschema.Compile(schema)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "body matches schema"
	}
	return &SchemaCheck{name: name, schema: compiled}, nil
}

func (c *SchemaCheck) Name() string { return c.name }

func (c *SchemaCheck) Evaluate(res *http.Response) bool {
	return c.schema.Validate(res.Body) == nil
}

// HeaderCheck compares a response header.
type HeaderCheck struct {
	name      string
	Header    string
	Expected  string
	Condition string
}

func (c *HeaderCheck) Name() string { return c.name }

func (c *HeaderCheck) Evaluate(res *http.Response) bool {
	value := res.GetHeader(c.Header)
	switch c.Condition {
	case "exists":
		return value != ""
	case "ne":
		return value != c.Expected
	case "contains":
		return strings.Contains(value, c.Expected)
	default:
		return value == c.Expected
	}
}

// BuildCheck creates a Check from its configuration. The configuration is
// expected to be defaulted.
func BuildCheck(cc config.CheckConfig) (Check, error) {
	switch cc.Type {
	case "status":
		codes, err := parseCodes(cc.Value)
		if err != nil {
			return nil, err
		}
		return &StatusCheck{name: cc.Name, Codes: codes, Negate: cc.Condition == "ne"}, nil

	case "duration":
		max, err := config.ParseMillis(cc.Value)
		if err != nil {
			return nil, err
		}
		return &DurationCheck{name: cc.Name, Max: max}, nil

	case "body":
		return &BodyContainsCheck{name: cc.Name, Substring: cc.Value}, nil

	case "jsonpath":
		return &JSONPathCheck{name: cc.Name, Path: cc.Path, Expected: cc.Value, Condition: cc.Condition}, nil

	case "schema":
		return NewSchemaCheck(cc.Name, cc.Schema)

	case "header":
		return &HeaderCheck{name: cc.Name, Header: cc.Path, Expected: cc.Value, Condition: cc.Condition}, nil
	}
	return nil, fmt.Errorf("unknown check type %q", cc.Type)
}

// BuildChecks creates every check of a request.
func BuildChecks(configs []config.CheckConfig) ([]Check, error) {
	checks := make([]Check, 0, len(configs))
	for i, cc := range configs {
		c, err := BuildCheck(cc)
		if err != nil {
			return nil, fmt.Errorf("checks[%d]: %w", i, err)
		}
		checks = append(checks, c)
	}
	return checks, nil
}

func parseCodes(value string) ([]int, error) {
	var codes []int
	for _, part := range strings.Split(value, ",") {
		code, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid status code %q", part)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
