package configloader

import (
	"fmt"
	"sort"
)

// Config is a read-only view of a YAML mapping. Keys and values are passed
// through exactly as the file declares them.
type Config struct {
	values map[string]any
}

// Get returns the value stored under key.
func (c Config) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// String returns the value under key formatted as a string, or "" when absent.
func (c Config) String(key string) string {
	v, ok := c.values[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Section returns the nested mapping under key, or an empty Config.
func (c Config) Section(key string) Config {
	if m, ok := c.values[key].(map[string]any); ok {
		return Config{values: m}
	}
	return Config{}
}

// Keys returns the top-level keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of top-level keys.
func (c Config) Len() int {
	return len(c.values)
}

// Map returns a shallow copy of the top-level mapping.
func (c Config) Map() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
