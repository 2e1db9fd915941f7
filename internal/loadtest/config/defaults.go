package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

// Defaults.
const (
	DefaultTimeout             = 30 * time.Second
	DefaultMaxIdleConnsPerHost = 100
	DefaultUserAgent           = "stampede/1.0"
	DefaultGracefulStop        = 30 * time.Second
	DefaultControlInterval     = 100 * time.Millisecond
	DefaultDelimiter           = ","
	DefaultTokenPath           = "data.token"
	DefaultReadinessRetries    = 5
)

// ApplyDefaults fills unset fields. It is safe to call more than once.
func ApplyDefaults(config *RunConfig) {
	s := &config.Settings
	if s.Timeout == 0 {
		s.Timeout = Duration(DefaultTimeout)
	}
	if s.MaxIdleConnsPerHost == 0 {
		s.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if s.UserAgent == "" {
		s.UserAgent = DefaultUserAgent
	}

	if config.GracefulStop == 0 {
		config.GracefulStop = Duration(DefaultGracefulStop)
	}
	if config.ControlInterval == 0 {
		config.ControlInterval = Duration(DefaultControlInterval)
	}
	if len(config.SummaryTrendStats) == 0 {
		config.SummaryTrendStats = append([]string(nil), metrics.DefaultTrendStats...)
	}
	if config.ThinkTime == nil {
		config.ThinkTime = &ThinkTimeConfig{Type: "none"}
	} else if config.ThinkTime.Type == "" {
		if config.ThinkTime.Max > 0 {
			config.ThinkTime.Type = "random"
		} else if config.ThinkTime.Duration > 0 {
			config.ThinkTime.Type = "constant"
		} else {
			config.ThinkTime.Type = "none"
		}
	}

	for i := range config.Requests {
		applyRequestDefaults(&config.Requests[i], "GET")
	}

	if config.Setup != nil {
		if r := config.Setup.Readiness; r != nil {
			if r.ExpectStatus == 0 {
				r.ExpectStatus = 200
			}
			if r.MaxRetries == 0 {
				r.MaxRetries = DefaultReadinessRetries
			}
		}
		if c := config.Setup.Credentials; c != nil {
			if c.Delimiter == "" {
				c.Delimiter = DefaultDelimiter
			}
			if c.TokenPath == "" {
				c.TokenPath = DefaultTokenPath
			}
			if c.Login.Name == "" {
				c.Login.Name = "login"
			}
			applyRequestDefaults(&c.Login, "POST")
		}
		for i := range config.Setup.Requests {
			applyRequestDefaults(&config.Setup.Requests[i], "GET")
		}
	}

	if config.Teardown != nil {
		for i := range config.Teardown.Requests {
			applyRequestDefaults(&config.Teardown.Requests[i], "GET")
		}
	}
}

func applyRequestDefaults(req *RequestConfig, method string) {
	if req.Method == "" {
		req.Method = method
	}
	req.Method = strings.ToUpper(req.Method)

	for i := range req.Checks {
		applyCheckDefaults(&req.Checks[i])
	}
	for i := range req.Extract {
		if req.Extract[i].Source == "" {
			req.Extract[i].Source = "body"
		}
	}
}

func applyCheckDefaults(c *CheckConfig) {
	if c.Condition == "" {
		switch c.Type {
		case "status", "header":
			c.Condition = "eq"
		case "jsonpath":
			c.Condition = "eq"
			if c.Value == "" {
				c.Condition = "exists"
			}
		case "duration":
			c.Condition = "lt"
		case "body":
			c.Condition = "contains"
		}
	}

	if c.Name == "" {
		c.Name = DefaultCheckName(*c)
	}
}

// DefaultCheckName derives a readable name such as "status is 200" or
// "response time is less than 1000ms".
func DefaultCheckName(c CheckConfig) string {
	switch c.Type {
	case "status":
		switch c.Condition {
		case "ne":
			return "status is not " + c.Value
		case "in":
			return "status is one of " + c.Value
		default:
			return "status is " + c.Value
		}
	case "duration":
		return "response time is less than " + c.Value
	case "body":
		return "body contains " + c.Value
	case "jsonpath":
		if c.Condition == "exists" {
			return c.Path + " exists"
		}
		return fmt.Sprintf("%s is %s", c.Path, c.Value)
	case "schema":
		return "body matches schema"
	case "header":
		return fmt.Sprintf("header %s is %s", c.Path, c.Value)
	}
	return c.Type
}
