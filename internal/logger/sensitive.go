package logger

import (
	"regexp"
	"strings"
)

const redactedValue = "[REDACTED]"

// sensitiveDataPatterns match credentials that can leak into log messages,
// including FIRMS map keys embedded in request paths.
var sensitiveDataPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9-._~+/]+=*)`),
	regexp.MustCompile(`(?i)((api|access|auth|token|secret|map_?key|appid|passw(or)?d)[0-9a-z\-_\.]*[\s:=]+)([^;,&\s]{5,})`),
	regexp.MustCompile(`(/api/area/csv/)([^/\s]+)`),
}

// sensitiveKeywords mark field keys whose values are always redacted
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey", "map_key", "authorization", "dsn",
}

// RedactSensitiveData replaces credentials in free text with "[REDACTED]"
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range sensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "${1}"+redactedValue)
	}
	return input
}

func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(keyLower, keyword) {
			return true
		}
	}
	return false
}
