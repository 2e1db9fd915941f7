package jsonschema

import (
	"errors"
	"strings"
	"testing"
)

const orderSchema = `{
	"type": "object",
	"properties": {
		"code": {"type": "integer"},
		"data": {
			"type": "object",
			"properties": {
				"side": {"enum": ["BUY", "SELL"]},
				"quantity": {"type": "number", "exclusiveMinimum": 0}
			},
			"required": ["side", "quantity"]
		}
	},
	"required": ["code", "data"]
}`

func TestCompile_Invalid(t *testing.T) {
	if _, err := Compile(`{"type": 12}`); err == nil {
		t.Error("Compile() should reject an invalid schema")
	}
	if _, err := Compile(`{`); err == nil {
		t.Error("Compile() should reject malformed JSON")
	}
}

func TestSchema_Validate(t *testing.T) {
	schema, err := Compile(orderSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	tests := []struct {
		name      string
		body      string
		wantValid bool
		wantInErr string
	}{
		{"valid", `{"code": 0, "data": {"side": "BUY", "quantity": 1.5}}`, true, ""},
		{"missing data", `{"code": 0}`, false, "data"},
		{"bad side", `{"code": 0, "data": {"side": "HOLD", "quantity": 1}}`, false, "/data/side"},
		{"zero quantity", `{"code": 0, "data": {"side": "SELL", "quantity": 0}}`, false, "/data/quantity"},
		{"not json", `<html>`, false, "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate([]byte(tt.body))
			if (err == nil) != tt.wantValid {
				t.Fatalf("Validate() error = %v, wantValid %v", err, tt.wantValid)
			}
			if err != nil && !strings.Contains(err.Error(), tt.wantInErr) {
				t.Errorf("Validate() error = %q, want it to mention %q", err, tt.wantInErr)
			}
		})
	}
}

func TestSchema_ValidateReportsEveryViolation(t *testing.T) {
	schema, err := Compile(orderSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	err = schema.Validate([]byte(`{"code": "x", "data": {"side": "HOLD", "quantity": -1}}`))
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %T, want ValidationErrors", err)
	}
	if len(verrs) < 3 {
		t.Errorf("len(ValidationErrors) = %d, want >= 3: %v", len(verrs), verrs)
	}
}
