package tools

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// stringArg returns args[key] as a trimmed string. Numbers are
// formatted; anything else is "".
func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// intArg returns args[key] as an int. Models send integers as JSON
// numbers or, occasionally, as numeric strings.
func intArg(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case float64:
		return int(math.Round(v)), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number, got %q", key, v)
		}
		return int(math.Round(f)), nil
	case nil:
		return 0, fmt.Errorf("%s is required", key)
	}
	return 0, fmt.Errorf("%s must be a number", key)
}

func stringParam(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
