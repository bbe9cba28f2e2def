// Package kv parses the KEY=VALUE specs of the command line flags.
package kv

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var keyRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

// ParseSpecs parses KEY=VALUE specs into a map. Values are decoded as YAML
// scalars so `fast=10` is an int, `ratio=0.5` a float and `trail=true` a
// bool; anything else is kept as a string. Later specs override earlier ones.
func ParseSpecs(specs []string) (map[string]any, error) {
	values := make(map[string]any, len(specs))

	for _, spec := range specs {
		if spec == "" {
			return nil, fmt.Errorf("key value spec cannot be empty")
		}

		key, raw, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("key value spec %q must be KEY=VALUE", spec)
		}
		if !keyRegexp.MatchString(key) {
			return nil, fmt.Errorf("invalid key %q", key)
		}

		values[key] = ParseValue(raw)
	}

	return values, nil
}

// ParseValue decodes a raw flag value as an int, float or bool YAML scalar,
// falling back to the raw string.
func ParseValue(raw string) any {
	if raw == "" {
		return ""
	}

	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case int, float64, bool:
		return v
	}
	return raw
}

// MergeMaps returns a new map with the base values overridden by the
// override values.
func MergeMaps(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}

	return merged
}
