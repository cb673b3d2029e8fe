package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

func join(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func index(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}

func (c *collector) decodeObject(payload []byte) (map[string]any, bool) {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		c.add("", "payload is not valid JSON: %v", err)
		return nil, false
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		c.add("", "payload must be a JSON object")
		return nil, false
	}
	return obj, true
}

func (c *collector) object(obj map[string]any, key, base string) (map[string]any, bool) {
	path := join(base, key)
	v, ok := obj[key]
	if !ok || v == nil {
		c.add(path, "is required")
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		c.add(path, "must be an object")
		return nil, false
	}
	return m, true
}

func (c *collector) array(obj map[string]any, key, base string, nonEmpty bool) ([]any, bool) {
	path := join(base, key)
	v, ok := obj[key]
	if !ok || v == nil {
		c.add(path, "is required")
		return nil, false
	}
	arr, ok := v.([]any)
	if !ok {
		c.add(path, "must be an array")
		return nil, false
	}
	if nonEmpty && len(arr) == 0 {
		c.add(path, "must not be empty")
		return arr, false
	}
	return arr, true
}

// str checks a required string field. nonEmpty rejects blank values.
func (c *collector) str(obj map[string]any, key, base string, nonEmpty bool) (string, bool) {
	path := join(base, key)
	v, ok := obj[key]
	if !ok || v == nil {
		c.add(path, "is required")
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		c.add(path, "must be a string")
		return "", false
	}
	if nonEmpty && strings.TrimSpace(s) == "" {
		c.add(path, "must not be empty")
		return s, false
	}
	return s, true
}

// optStr accepts a missing or null field; present values must be strings.
func (c *collector) optStr(obj map[string]any, key, base string) (string, bool) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", true
	}
	s, ok := v.(string)
	if !ok {
		c.add(join(base, key), "must be a string")
		return "", false
	}
	return s, true
}

func (c *collector) boolean(obj map[string]any, key, base string, required bool) (bool, bool) {
	path := join(base, key)
	v, ok := obj[key]
	if !ok || v == nil {
		if required {
			c.add(path, "is required")
			return false, false
		}
		return false, true
	}
	b, ok := v.(bool)
	if !ok {
		c.add(path, "must be a boolean")
		return false, false
	}
	return b, true
}

func (c *collector) number(obj map[string]any, key, base string) (float64, bool) {
	path := join(base, key)
	v, ok := obj[key]
	if !ok || v == nil {
		c.add(path, "is required")
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		c.add(path, "must be a number")
		return 0, false
	}
	return f, true
}

func (c *collector) integer(obj map[string]any, key, base string) (int, bool) {
	f, ok := c.number(obj, key, base)
	if !ok {
		return 0, false
	}
	if f != math.Trunc(f) {
		c.add(join(base, key), "must be an integer")
		return 0, false
	}
	return int(f), true
}

func (c *collector) stringList(obj map[string]any, key, base string, nonEmpty bool) ([]string, bool) {
	path := join(base, key)
	arr, ok := c.array(obj, key, base, nonEmpty)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	valid := true
	for i, item := range arr {
		s, isStr := item.(string)
		if !isStr {
			c.add(index(path, i), "must be a string")
			valid = false
			continue
		}
		out = append(out, s)
	}
	return out, valid
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
