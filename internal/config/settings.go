// Package config loads rulefire settings from flags, RULEFIRE_* environment
// variables and an optional config file.
package config

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// settings is the merged view of config file and environment values. Keys
// are folded so that batch_size, batchSize and batch-size name one setting.
type settings map[string]interface{}

func foldKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("_", "", "-", "").Replace(key)
}

func newSettings(raw map[string]interface{}) settings {
	s := make(settings, len(raw))
	for k, v := range raw {
		s[foldKey(k)] = v
	}
	return s
}

func (s settings) set(key string, value interface{}) {
	s[foldKey(key)] = value
}

// lookup returns the first of names that is present, and the name it found.
func (s settings) lookup(names ...string) (interface{}, string, bool) {
	for _, name := range names {
		if v, ok := s[foldKey(name)]; ok {
			return v, name, true
		}
	}
	return nil, "", false
}

// text stores a trimmed string setting. With keepDefault an empty value
// leaves dst alone.
func (s settings) text(dst *string, keepDefault bool, names ...string) error {
	raw, _, ok := s.lookup(names...)
	if !ok {
		return nil
	}
	val := strings.TrimSpace(toString(raw))
	if val == "" && keepDefault {
		return nil
	}
	*dst = val
	return nil
}

func (s settings) integer(dst *int, names ...string) error {
	raw, name, ok := s.lookup(names...)
	if !ok {
		return nil
	}
	val, err := toInt(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = val
	return nil
}

func (s settings) float(dst *float64, names ...string) error {
	raw, name, ok := s.lookup(names...)
	if !ok {
		return nil
	}
	val, err := toFloat(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = val
	return nil
}

func (s settings) boolean(dst *bool, names ...string) error {
	raw, name, ok := s.lookup(names...)
	if !ok {
		return nil
	}
	val, err := toBool(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = val
	return nil
}

// seconds stores a duration. Bare numbers, in files or environment
// variables, are seconds; strings with a unit go through time.ParseDuration.
func (s settings) seconds(dst *time.Duration, names ...string) error {
	raw, name, ok := s.lookup(names...)
	if !ok {
		return nil
	}
	val, err := toDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = val
	return nil
}

// headers merges a header table into dst with canonical keys.
func (s settings) headers(dst map[string]string, names ...string) error {
	raw, name, ok := s.lookup(names...)
	if !ok {
		return nil
	}
	table, err := toTable(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	for k, v := range table {
		key := http.CanonicalHeaderKey(strings.TrimSpace(k))
		if key == "" {
			return fmt.Errorf("%s: header name cannot be empty", name)
		}
		dst[key] = toString(v)
	}
	return nil
}

// section returns a nested table such as tracing.
func (s settings) section(names ...string) (settings, error) {
	raw, name, ok := s.lookup(names...)
	if !ok {
		return nil, nil
	}
	table, err := toTable(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return newSettings(table), nil
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// toInt accepts the numeric kinds produced by the YAML, JSON and TOML
// decoders, and decimal strings from the environment.
func toInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return false, nil
		}
		return strconv.ParseBool(strings.TrimSpace(v))
	default:
		return false, fmt.Errorf("expected true or false, got %T", value)
	}
}

func toDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return secondsToDuration(secs), nil
		}
		return time.ParseDuration(v)
	default:
		secs, err := toFloat(value)
		if err != nil {
			return 0, fmt.Errorf("expected seconds or a duration, got %T", value)
		}
		return secondsToDuration(secs), nil
	}
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

func toTable(value interface{}) (map[string]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return v, nil
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = val
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[toString(k)] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a table, got %T", value)
	}
}
