package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Bind matches invocation arguments against the tool's parameter list.
// Missing required parameters and undeclared keys are rejected; values
// are coerced to the parameter's semantic type and absent optional
// parameters receive their defaults. The returned map is a fresh copy.
func Bind(t *Tool, args map[string]any) (map[string]any, error) {
	var unknown []string
	for k := range args {
		if t.Param(k) == nil {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &BindError{Tool: t.Name, Unknown: unknown}
	}

	bound := make(map[string]any, len(t.Params))
	var missing []string
	for _, p := range t.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				missing = append(missing, p.Name)
			} else if p.Default != nil {
				bound[p.Name] = p.Default
			}
			continue
		}
		cv, problem := coerce(p, v)
		if problem != "" {
			return nil, &BindError{Tool: t.Name, Param: p.Name, Problem: problem}
		}
		bound[p.Name] = cv
	}
	if len(missing) > 0 {
		return nil, &BindError{Tool: t.Name, Missing: missing}
	}
	return bound, nil
}

func coerce(p Param, v any) (any, string) {
	switch p.Type {
	case TypeText, "":
		switch x := v.(type) {
		case string:
			return x, ""
		case json.Number:
			return x.String(), ""
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64), ""
		case int, int64, bool:
			return fmt.Sprint(x), ""
		}
		return nil, "must be text"

	case TypeInteger:
		switch x := v.(type) {
		case int:
			return x, ""
		case int64:
			return int(x), ""
		case json.Number:
			if n, err := x.Int64(); err == nil {
				return int(n), ""
			}
			if f, err := x.Float64(); err == nil && f == math.Trunc(f) {
				return int(f), ""
			}
		case float64:
			if x == math.Trunc(x) {
				return int(x), ""
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
				return n, ""
			}
		}
		return nil, "must be an integer"

	case TypeNumber:
		switch x := v.(type) {
		case float64:
			return x, ""
		case int:
			return float64(x), ""
		case int64:
			return float64(x), ""
		case json.Number:
			if f, err := x.Float64(); err == nil {
				return f, ""
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f, ""
			}
		}
		return nil, "must be a number"

	case TypeArray:
		if s, ok := v.(string); ok {
			var decoded []any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded, ""
			}
			return nil, "must be an array"
		}
		if _, ok := v.([]any); ok {
			return v, ""
		}
		return nil, "must be an array"

	case TypeObject:
		if s, ok := v.(string); ok {
			var decoded map[string]any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				return decoded, ""
			}
			return nil, "must be an object"
		}
		if _, ok := v.(map[string]any); ok {
			return v, ""
		}
		return nil, "must be an object"

	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, ""
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
				return b, ""
			}
		}
		return nil, "must be a boolean"

	case TypeEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Sprintf("must be one of %v", p.Enum)
		}
		for _, allowed := range p.Enum {
			if strings.EqualFold(s, allowed) {
				return allowed, ""
			}
		}
		return nil, fmt.Sprintf("must be one of %v", p.Enum)
	}
	return nil, fmt.Sprintf("has unsupported type %q", p.Type)
}

// String returns a bound text argument, or "".
func String(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// Int returns a bound integer argument, or def when absent.
func Int(args map[string]any, key string, def int) int {
	if n, ok := args[key].(int); ok {
		return n
	}
	return def
}

// Bool returns a bound boolean argument, or def when absent.
func Bool(args map[string]any, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}
