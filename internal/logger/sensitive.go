package logger

import (
	"regexp"
	"strings"
)

// SensitiveDataPatterns match credentials that must never reach log output
var SensitiveDataPatterns = []*regexp.Regexp{
	// user:password@tcp(host) style DSNs
	regexp.MustCompile(`([A-Za-z0-9_.-]+:)([^@\s/]+)(@)`),
	// bcrypt hashes stored in password columns
	regexp.MustCompile(`()(\$2[aby]\$\d{2}\$[./A-Za-z0-9]{53})()`),
	regexp.MustCompile(`(?i)((?:passw(?:or)?d|secret|token|dsn)[\s:=]+)([^;,\s]{3,})()`),
}

// SensitiveKeywords flag field names whose values are redacted wholesale
var SensitiveKeywords = []string{"password", "passwd", "secret", "token", "dsn", "credential"}

// RedactSensitiveData masks credentials inside free text
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range SensitiveDataPatterns {
		input = pattern.ReplaceAllString(input, "${1}[REDACTED]${3}")
	}
	return input
}

// IsSensitiveKey reports whether a field name should have its value redacted
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitive := range SensitiveKeywords {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}
