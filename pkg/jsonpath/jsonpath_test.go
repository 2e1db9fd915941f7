package jsonpath

import "testing"

const doc = `{
	"code": 0,
	"message": "ok",
	"data": {
		"email": "trader@example.com",
		"token": "eyJhbGciOi"
	},
	"orders": [
		{"id": 7, "side": "BUY"},
		{"id": 8, "side": "SELL"}
	],
	"active": true,
	"metadata": null
}`

func TestToGjson(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"$", "@this"},
		{"$.", "@this"},
		{"data.token", "data.token"},
		{"$.data.token", "data.token"},
		{"$.orders[1].side", "orders.1.side"},
		{"$['data']['token']", "data.token"},
		{`$["data"].email`, "data.email"},
		{"$[0]", "0"},
		{"orders[0].id", "orders.0.id"},
	}

	for _, tt := range tests {
		if got := ToGjson(tt.path); got != tt.want {
			t.Errorf("ToGjson(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"gjson path", "data.token", "eyJhbGciOi", false},
		{"jsonpath", "$.data.email", "trader@example.com", false},
		{"array element", "$.orders[1].side", "SELL", false},
		{"number", "code", "0", false},
		{"boolean", "$.active", "true", false},
		{"null", "$.metadata", "null", false},
		{"missing", "$.data.secret", "", true},
		{"empty path", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract([]byte(doc), tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Extract() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLookup_NotJSON(t *testing.T) {
	if _, ok := Lookup([]byte("<html>"), "data"); ok {
		t.Error("Lookup() on non-JSON body should not find anything")
	}
	if _, err := Extract(nil, "data"); err == nil {
		t.Error("Extract() on empty body should fail")
	}
}
