// Package jsonpath looks up values in JSON response bodies.
//
// Paths may be written in gjson syntax ("data.token", "items.0.id") or in
// the common JSONPath subset ("$.data.token", "$.items[0].id",
// "$['data']['token']").
package jsonpath

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup returns the value at path. ok is false when the body is not JSON
// or the path does not exist.
func Lookup(body []byte, path string) (gjson.Result, bool) {
	if len(body) == 0 || path == "" || !gjson.ValidBytes(body) {
		return gjson.Result{}, false
	}

	result := gjson.GetBytes(body, ToGjson(path))
	return result, result.Exists()
}

// Extract returns the value at path as a string. JSON null yields "null".
func Extract(body []byte, path string) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty JSON body")
	}
	if path == "" {
		return "", fmt.Errorf("empty path")
	}

	result, ok := Lookup(body, path)
	if !ok {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// ToGjson converts a JSONPath expression to gjson syntax. gjson paths pass
// through unchanged.
func ToGjson(path string) string {
	if path == "$" {
		return "@this"
	}
	if !strings.HasPrefix(path, "$") && !strings.Contains(path, "[") {
		return path
	}

	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '[':
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				sb.WriteString(path[i:])
				return sb.String()
			}
			key := strings.Trim(path[i+1:i+end], `'"`)
			if sb.Len() > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(key)
			i += end
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
