package render

import (
	"os"
	"strconv"
	"strings"
	"text/template"
)

// FuncMap returns template helpers for policy rendering.
func FuncMap(tracker *EnvTracker) template.FuncMap {
	lookup := func(key string) (string, bool) {
		if tracker != nil {
			tracker.markUsed(key)
		}
		return os.LookupEnv(key)
	}
	return template.FuncMap{
		"env": func(key string) string {
			value, ok := lookup(key)
			if !ok && tracker != nil {
				tracker.markMissing(key)
			}
			return value
		},
		"envOr": func(key, def string) string {
			if value, ok := lookup(key); ok {
				return value
			}
			return def
		},
		"envBool": func(key string, def bool) bool {
			value, ok := lookup(key)
			if !ok {
				return def
			}
			parsed, err := strconv.ParseBool(strings.TrimSpace(value))
			if err != nil {
				return def
			}
			return parsed
		},
		"default": func(def, value string) string {
			if value == "" {
				return def
			}
			return value
		},
		// quote renders a YAML double-quoted scalar.
		"quote": strconv.Quote,
		"join": func(sep string, items []string) string {
			return strings.Join(items, sep)
		},
		"lower":   strings.ToLower,
		"upper":   strings.ToUpper,
		"replace": strings.ReplaceAll,
	}
}
