package session

import (
	"encoding/json"
	"strconv"
)

// Context is the per-session key/value blob wizards accumulate fields in.
// Values are JSON-compatible scalars or string-keyed maps; typed accessors
// below absorb the numeric widening a JSON round trip introduces.
type Context map[string]any

// Clone returns a shallow copy; nested maps are copied one level deep,
// which covers the selection maps destructive flows store.
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		if m, ok := v.(map[string]any); ok {
			mc := make(map[string]any, len(m))
			for mk, mv := range m {
				mc[mk] = mv
			}
			out[k] = mc
			continue
		}
		out[k] = v
	}
	return out
}

// Merge overlays delta on top of c and returns the result; c is not mutated.
func (c Context) Merge(delta Context) Context {
	out := c.Clone()
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// Without returns a copy of c with the given keys removed.
func (c Context) Without(keys []string) Context {
	out := c.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// String returns the value under key as a string.
func (c Context) String(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int64 returns the value under key as an int64.
func (c Context) Int64(key string) (int64, bool) {
	v, ok := c[key]
	if !ok {
		return 0, false
	}
	return AsInt64(v)
}

// Float returns the value under key as a float64.
func (c Context) Float(key string) (float64, bool) {
	v, ok := c[key]
	if !ok {
		return 0, false
	}
	return AsFloat(v)
}

// StringMap returns the value under key as a string-keyed map.
func (c Context) StringMap(key string) (map[string]any, bool) {
	v, ok := c[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// AsInt64 converts a JSON-compatible scalar to int64.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// AsFloat converts a JSON-compatible scalar to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
