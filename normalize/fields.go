// ABOUTME: JSON-or-passthrough coercion helpers for inconsistently shaped payload fields
// ABOUTME: Array/object fields may arrive native, JSON-string-encoded, or absent
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ObjectList coerces a field that should hold a list of objects. Accepts a
// native list, a JSON-encoded string, or anything else (which yields the
// fallback). Parse failures never propagate.
func ObjectList(v any, fallback []map[string]any) []map[string]any {
	switch val := v.(type) {
	case nil:
		return fallback
	case []map[string]any:
		return val
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case string:
		if strings.TrimSpace(val) == "" {
			return fallback
		}
		var parsed []map[string]any
		if err := json.Unmarshal([]byte(val), &parsed); err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

// StringList coerces a field that should hold a list of strings.
func StringList(v any, fallback []string) []string {
	switch val := v.(type) {
	case nil:
		return fallback
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(val) == "" {
			return fallback
		}
		var parsed []string
		if err := json.Unmarshal([]byte(val), &parsed); err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

// ObjectField coerces a field that should hold a single object.
func ObjectField(v any, fallback map[string]any) map[string]any {
	switch val := v.(type) {
	case nil:
		return fallback
	case map[string]any:
		return val
	case string:
		if strings.TrimSpace(val) == "" {
			return fallback
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(val), &parsed); err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

// starredListKeys are relation fields whose non-emptiness implies starred.
var starredListKeys = []string{"starredBy", "starredClients", "starred_leads"}

// ResolveStarred derives the starred flag from the several representations
// the API has used over time.
func ResolveStarred(raw map[string]any) bool {
	if truthy(raw["isStarred"]) || truthy(raw["starred"]) {
		return true
	}
	for _, key := range starredListKeys {
		switch val := raw[key].(type) {
		case []any:
			if len(val) > 0 {
				return true
			}
		case []map[string]any:
			if len(val) > 0 {
				return true
			}
		}
	}
	return false
}

// truthy reports whether a flag value coerces to true: boolean true,
// numeric 1, or the strings "true"/"1"/"yes" case-insensitive.
func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val == 1
	case int:
		return val == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes":
			return true
		}
	}
	return false
}

// asString renders scalar values as strings; objects and lists yield "".
func asString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// asFloat extracts a numeric value from a number or numeric string.
func asFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// ParseTime extracts a timestamp from an RFC3339 string, a date-only
// string, or an epoch number (seconds or milliseconds). The zero time means
// no timestamp was present.
func ParseTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t
		}
		return time.Time{}
	case float64:
		return epochTime(int64(val))
	case int64:
		return epochTime(val)
	case int:
		return epochTime(int64(val))
	default:
		return time.Time{}
	}
}

// epochTime treats values above 1e12 as milliseconds, otherwise seconds.
func epochTime(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}
