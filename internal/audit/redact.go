package audit

import (
	"encoding/json"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// sensitiveKeyPatterns flags JSON keys whose string values must not reach
// the audit log verbatim.
var sensitiveKeyPatterns = []string{
	"password", "secret", "token", "api_key", "apikey",
	"auth", "credential", "bearer", "private_key", "signing_key",
}

// RedactSensitiveParams replaces the string values of sensitive JSON keys
// with [REDACTED], recursively through objects and arrays. Non-JSON input
// is returned unchanged.
func RedactSensitiveParams(raw string) string {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return raw
	}
	redactValue(&value)
	out, err := json.Marshal(value)
	if err != nil {
		return raw
	}
	return string(out)
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func redactValue(value *any) {
	switch v := (*value).(type) {
	case map[string]any:
		for key, val := range v {
			if isSensitiveKey(key) {
				if _, isString := val.(string); isString {
					v[key] = redactedPlaceholder
				}
				continue
			}
			redactValue(&val)
			v[key] = val
		}
	case []any:
		for i := range v {
			redactValue(&v[i])
		}
	}
}
