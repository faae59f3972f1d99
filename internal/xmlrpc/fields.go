package xmlrpc

import (
	"strconv"
	"strings"
)

// Fields is a decoded struct result. The switch is loose about wire types
// for some members (flags as ints, amounts as strings), so the accessors
// coerce across the scalar kinds instead of failing on a tag mismatch.
type Fields map[string]any

// String returns the named field as a string, or "" when absent.
func (f Fields) String(name string) string {
	switch v := f[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return stringify(v)
	}
}

// Int returns the named field as an int, or def when absent or
// non-numeric.
func (f Fields) Int(name string, def int) int {
	switch v := f[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

// Float returns the named field as a float64, or def when absent or
// non-numeric.
func (f Fields) Float(name string, def float64) float64 {
	switch v := f[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

// Bool returns the named field as a bool. Integer 1 and string "1"/"true"
// count as true; anything else is false.
func (f Fields) Bool(name string) bool {
	switch v := f[name].(type) {
	case bool:
		return v
	case int:
		return v == 1
	case string:
		return v == "1" || v == "true"
	default:
		return false
	}
}

// Has reports whether the named field is present at all.
func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

func stringify(v any) string {
	switch t := v.(type) {
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}
