package docstore

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Backends hand field values back in their own shapes (int64 from Firestore,
// json.Number from Postgres JSONB, the original Go value from memory). The
// helpers below read them uniformly.

func AsString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return ""
	}
}

func AsInt64(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float32:
		return int64(math.Round(float64(t)))
	case float64:
		return int64(math.Round(t))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return int64(math.Round(f))
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func AsInt(v any) int {
	return int(AsInt64(v))
}

func AsBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}

func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return t.UTC(), !t.IsZero()
	case string:
		if t == "" {
			return time.Time{}, false
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}

func AsSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []map[string]any:
		out := make([]any, 0, len(t))
		for _, m := range t {
			out = append(out, m)
		}
		return out
	case []string:
		out := make([]any, 0, len(t))
		for _, s := range t {
			out = append(out, s)
		}
		return out
	}
	return nil
}

func AsMap(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	}
	return nil
}

func AsStringMap(v any) map[string]string {
	m := AsMap(v)
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		out[k] = AsString(val)
	}
	return out
}

func equalValues(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		return AsInt64(a) == AsInt64(b)
	}
	switch av := a.(type) {
	case string:
		return av == AsString(b)
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bt, ok := AsTime(b)
		return ok && av.Equal(bt)
	}
	return a == b
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64, json.Number:
		return true
	}
	return false
}

// Clone deep-copies a field map so callers cannot alias stored state.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = Clone(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Matches reports whether data satisfies every filter.
func Matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok || !equalValues(f.Value, v) {
			return false
		}
	}
	return true
}
