package security

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

var sensitiveSubstrings = []string{
	"token",
	"password",
	"authorization",
	"apikey",
	"api_key",
	"access_key",
	"private_key",
	"credentials",
	"auth",
	"passwd",
	"key",
	"sig",
	"signature",
	"cookie",
	"session",
	"jwt",
	"bearer",
	"credential",
	"pwd",
	"passphrase",
	"secret_value",
}

var allowList = map[string]struct{}{
	"secret_name": {},
}

// bulkyParams hold file bodies that are truncated rather than logged in full.
var bulkyParams = map[string]struct{}{
	"content": {},
	"diff":    {},
	"result":  {},
}

// MaxLoggedValue is the number of runes of a bulky value kept in logs.
const MaxLoggedValue = 120

// RedactArguments returns a copy of arguments with sensitive values replaced.
func RedactArguments(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	redacted := make(map[string]any, len(values))
	for key, value := range values {
		if isSensitiveKey(key) {
			redacted[key] = "***"
			continue
		}
		redacted[key] = value
	}
	return redacted
}

// RedactParams returns a copy of instruction parameters safe for logging:
// sensitive values are masked and file bodies are truncated.
func RedactParams(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	redacted := make(map[string]string, len(values))
	for key, value := range values {
		switch {
		case isSensitiveKey(key):
			redacted[key] = "***"
		case isBulky(key):
			redacted[key] = truncate(value)
		default:
			redacted[key] = value
		}
	}
	return redacted
}

func isBulky(key string) bool {
	_, ok := bulkyParams[strings.ToLower(key)]
	return ok
}

func truncate(value string) string {
	n := utf8.RuneCountInString(value)
	if n <= MaxLoggedValue {
		return value
	}
	runes := []rune(value)
	return fmt.Sprintf("%s... (%d chars)", string(runes[:MaxLoggedValue]), n)
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if _, ok := allowList[lower]; ok {
		return false
	}
	if strings.Contains(lower, "secret") && strings.Contains(lower, "name") {
		return false
	}
	for _, part := range sensitiveSubstrings {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
