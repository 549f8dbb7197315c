package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML settings file into the environment. Keys name the
// environment variables in any case, and nested maps join their keys with
// an underscore, so
//
//	source:
//	  url: https://example.org/api
//
// sets SOURCE_URL. Lists become comma separated values. Variables already
// present in the environment take precedence over the file.
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	values := make(map[string]string)
	if err := flatten("", raw, values); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, values[key]); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

func flatten(prefix string, raw map[string]any, out map[string]string) error {
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch val := v.(type) {
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		case []any:
			items := make([]string, 0, len(val))
			for _, item := range val {
				s, err := scalar(key, item)
				if err != nil {
					return err
				}
				items = append(items, s)
			}
			out[key] = strings.Join(items, ",")
		default:
			s, err := scalar(key, val)
			if err != nil {
				return err
			}
			out[key] = s
		}
	}
	return nil
}

func scalar(key string, v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case int, int64, uint64, float64, bool:
		return fmt.Sprint(val), nil
	default:
		return "", fmt.Errorf("unsupported value for %s: %T", key, v)
	}
}
