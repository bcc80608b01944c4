package diaglog

import (
	"fmt"
	"strings"
)

// sensitiveKeys are replaced with "[REDACTED]" wherever they appear.
var sensitiveKeys = map[string]bool{
	"authorization": true,
	"api_key":       true,
	"token":         true,
	"secret":        true,
	"password":      true,
	"audio":         true,
}

// sensitiveSuffixes catch prefixed variants such as "openai_api_key" or
// "jwt_secret".
var sensitiveSuffixes = []string{"_api_key", "_token", "_secret", "_password"}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	if sensitiveKeys[k] {
		return true
	}
	for _, suf := range sensitiveSuffixes {
		if strings.HasSuffix(k, suf) {
			return true
		}
	}
	return false
}

// Redact returns a copy of v with sensitive keys masked and encoded audio
// (data URIs) collapsed to a size marker. v is not mutated.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if isSensitive(k) {
				out[k] = "[REDACTED]"
			} else {
				out[k] = Redact(child)
			}
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			if isSensitive(k) {
				out[k] = "[REDACTED]"
			} else {
				out[k] = Redact(child)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Redact(elem)
		}
		return out
	case string:
		if strings.HasPrefix(val, "data:") && strings.Contains(val, ";base64,") {
			return fmt.Sprintf("[data uri, %d bytes]", len(val))
		}
		return val
	default:
		return v
	}
}
