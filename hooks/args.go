package hooks

import (
	"fmt"
	"strconv"
)

func stringArg(with map[string]any, key string, required bool) (string, error) {
	v, ok := with[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("with.%s is required", key)
		}
		return "", nil
	}
	switch s := v.(type) {
	case string:
		if s == "" && required {
			return "", fmt.Errorf("with.%s is required", key)
		}
		return s, nil
	case int, int64, float64, bool:
		return fmt.Sprint(s), nil
	default:
		return "", fmt.Errorf("with.%s must be a string, got %T", key, v)
	}
}

func intArg(with map[string]any, key string, def int) (int, error) {
	v, ok := with[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("with.%s: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("with.%s must be an integer, got %T", key, v)
	}
}

func stringsArg(with map[string]any, key string) ([]string, error) {
	v, ok := with[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case string:
		return []string{list}, nil
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("with.%s[%d] must be a string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("with.%s must be a list of strings, got %T", key, v)
	}
}
