package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Has reports whether a field has at least one error.
func (e *ValidationErrors) Has(field string) bool {
	for _, err := range e.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

// fieldValidator returns a validator that reports fields by their YAML name.
func fieldValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// Validate validates the configuration. Field rules come from the struct
// tags; rules spanning several fields are checked here. It returns nil or a
// *ValidationErrors holding every problem found.
func (c *RunConfig) Validate() error {
	errs := &ValidationErrors{}

	if err := fieldValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			errs.Add("", err.Error())
		}
		for _, fe := range fieldErrs {
			errs.Add(fieldPath(fe.Namespace()), fieldMessage(fe))
		}
	}

	validateLoadProfile(c, errs)
	validateTrendStats(c.SummaryTrendStats, errs)
	if c.ThinkTime != nil {
		validateThinkTime(c.ThinkTime, errs)
	}
	for i := range c.Requests {
		validateRequest(fmt.Sprintf("requests[%d]", i), &c.Requests[i], errs)
	}
	if c.Setup != nil {
		validateSetup(c.Setup, errs)
	}
	if c.Teardown != nil {
		for i := range c.Teardown.Requests {
			validateRequest(fmt.Sprintf("teardown.requests[%d]", i), &c.Teardown.Requests[i], errs)
		}
	}
	for name, exprs := range c.Thresholds {
		for i, expr := range exprs {
			if _, err := ParseThreshold(name, expr); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", name, i), err.Error())
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s element(s)", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		if fe.Param() == "0" {
			return "cannot be negative"
		}
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", strings.ReplaceAll(fe.Param(), " ", ", "), fmt.Sprint(fe.Value()))
	case "url":
		return fmt.Sprintf("invalid URL: %v", fe.Value())
	}
	return fmt.Sprintf("failed %s validation", fe.Tag())
}

// validateLoadProfile enforces vus+duration XOR stages.
func validateLoadProfile(c *RunConfig, errs *ValidationErrors) {
	fixed := c.VUs != 0 || c.Duration != 0
	staged := len(c.Stages) > 0

	switch {
	case fixed && staged:
		errs.Add("stages", "vus/duration and stages are mutually exclusive")
	case !fixed && !staged:
		errs.Add("vus", "either vus and duration or stages must be set")
	case fixed:
		if c.VUs <= 0 {
			errs.Add("vus", "vus must be greater than 0")
		}
		if c.Duration <= 0 {
			errs.Add("duration", "duration must be greater than 0")
		}
	case staged:
		var total Duration
		for _, s := range c.Stages {
			total += s.Duration
		}
		if total <= 0 {
			errs.Add("stages", "total stage duration must be greater than 0")
		}
	}
}

func validateTrendStats(stats []string, errs *ValidationErrors) {
	for i, s := range stats {
		if _, err := metrics.ParseTrendStat(s); err != nil {
			errs.Add(fmt.Sprintf("summaryTrendStats[%d]", i), err.Error())
		}
	}
}

func validateThinkTime(t *ThinkTimeConfig, errs *ValidationErrors) {
	switch t.Type {
	case "constant":
		if t.Duration <= 0 {
			errs.Add("thinkTime.duration", "duration is required for constant think time")
		}
	case "random":
		if t.Max <= 0 {
			errs.Add("thinkTime.max", "max is required for random think time")
		}
		if t.Min > t.Max {
			errs.Add("thinkTime", "min must be less than or equal to max")
		}
	}
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

func validateRequest(prefix string, req *RequestConfig, errs *ValidationErrors) {
	if req.Method != "" && !validMethods[strings.ToUpper(req.Method)] {
		errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", req.Method))
	}

	for i, ex := range req.Extract {
		if ex.Source != "status" && ex.Path == "" {
			errs.Add(fmt.Sprintf("%s.extract[%d].path", prefix, i), "path is required for "+ex.Source+" extraction")
		}
	}

	for i := range req.Checks {
		validateCheck(fmt.Sprintf("%s.checks[%d]", prefix, i), &req.Checks[i], errs)
	}
}

var checkConditions = map[string]map[string]bool{
	"status":   {"": true, "eq": true, "ne": true, "in": true},
	"duration": {"": true, "lt": true},
	"body":     {"": true, "contains": true},
	"jsonpath": {"": true, "eq": true, "ne": true, "exists": true},
	"schema":   {"": true},
	"header":   {"": true, "eq": true, "ne": true, "contains": true, "exists": true},
}

func validateCheck(prefix string, c *CheckConfig, errs *ValidationErrors) {
	if conds, ok := checkConditions[c.Type]; ok && !conds[c.Condition] {
		errs.Add(prefix+".condition", fmt.Sprintf("condition %q is not supported for %s checks", c.Condition, c.Type))
	}

	switch c.Type {
	case "status":
		for _, code := range strings.Split(c.Value, ",") {
			if _, err := strconv.Atoi(strings.TrimSpace(code)); err != nil {
				errs.Add(prefix+".value", fmt.Sprintf("invalid status code %q", code))
				break
			}
		}
	case "duration":
		if _, err := ParseMillis(c.Value); err != nil {
			errs.Add(prefix+".value", err.Error())
		}
	case "body":
		if c.Value == "" {
			errs.Add(prefix+".value", "value is required for body checks")
		}
	case "jsonpath", "header":
		if c.Path == "" {
			errs.Add(prefix+".path", "path is required for "+c.Type+" checks")
		}
	case "schema":
		if c.Schema == "" {
			errs.Add(prefix+".schema", "schema is required for schema checks")
		} else if !json.Valid([]byte(c.Schema)) {
			errs.Add(prefix+".schema", "schema is not valid JSON")
		}
	}
}

func validateSetup(s *SetupConfig, errs *ValidationErrors) {
	if c := s.Credentials; c != nil {
		if c.File == "" && len(c.Inline) == 0 {
			errs.Add("setup.credentials", "file or inline credentials are required")
		}
		validateRequest("setup.credentials.login", &c.Login, errs)
	}
	for i := range s.Requests {
		validateRequest(fmt.Sprintf("setup.requests[%d]", i), &s.Requests[i], errs)
	}
}
