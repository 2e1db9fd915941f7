package config

import (
	"testing"
	"time"
)

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		metric  string
		expr    string
		stat    string
		op      string
		value   float64
		wantErr bool
	}{
		{"http_req_duration", "p(95) < 500ms", "p(95)", "<", 500, false},
		{"http_req_duration", "p95<1s", "p95", "<", 1000, false},
		{"http_req_duration", "avg <= 200", "avg", "<=", 200, false},
		{"http_req_duration{name:login}", "max < 2s", "max", "<", 2000, false},
		{"iteration_duration", "med >= 1.5s", "med", ">=", 1500, false},
		{"http_req_failed", "rate < 0.01", "rate", "<", 0.01, false},
		{"checks", "rate > 0.99", "rate", ">", 0.99, false},
		{"iterations", "count > 100", "count", ">", 100, false},
		{"http_req_failed", "p(95) < 1", "", "", 0, true},
		{"http_req_duration", "rate < 1", "", "", 0, true},
		{"http_req_duration", "p(95) < fast", "", "", 0, true},
		{"latency", "p(95) < 1s", "", "", 0, true},
		{"checks{name:x}", "rate > 0.5", "", "", 0, true},
		{"http_req_duration", "", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.metric+" "+tt.expr, func(t *testing.T) {
			got, err := ParseThreshold(tt.metric, tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseThreshold() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Stat != tt.stat || got.Op != tt.op || got.Value != tt.value {
				t.Errorf("ParseThreshold() = {%s %s %v}, want {%s %s %v}", got.Stat, got.Op, got.Value, tt.stat, tt.op, tt.value)
			}
		})
	}
}

func TestThreshold_Compare(t *testing.T) {
	tests := []struct {
		op     string
		actual float64
		want   bool
	}{
		{"<", 1, true},
		{"<", 2, false},
		{"<=", 2, true},
		{">", 3, true},
		{">=", 2, true},
		{"==", 2, true},
		{"!=", 2, false},
	}

	for _, tt := range tests {
		th := Threshold{Op: tt.op, Value: 2}
		if got := th.Compare(tt.actual); got != tt.want {
			t.Errorf("Compare(%v %s 2) = %v, want %v", tt.actual, tt.op, got, tt.want)
		}
	}
}

func TestParseMillis(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "1000", want: time.Second},
		{in: "250.5", want: 250500 * time.Microsecond},
		{in: "1.5s", want: 1500 * time.Millisecond},
		{in: " 150ms ", want: 150 * time.Millisecond},
		{in: "soon", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMillis(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMillis(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMillis(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMillis(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	// A duration check value and a threshold value parse the same way.
	th, err := ParseThreshold("http_req_duration", "p(95) < 250.5")
	if err != nil {
		t.Fatalf("ParseThreshold: %v", err)
	}
	if th.Value != 250.5 {
		t.Errorf("threshold value = %v, want 250.5", th.Value)
	}
}
