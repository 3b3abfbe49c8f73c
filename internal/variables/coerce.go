package variables

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ConvertType applies an explicit target-type conversion to a resolved
// value: "bool", "int", "float", "str", "list" (comma-split), "dict"
// (JSON object).
func ConvertType(value any, target string) (any, error) {
	switch target {
	case "str", "string":
		return fmt.Sprintf("%v", value), nil
	case "bool", "boolean":
		return convertBool(value)
	case "int":
		return convertInt(value)
	case "float":
		return convertFloat(value)
	case "list":
		return convertList(value)
	case "dict":
		return convertDict(value)
	default:
		return nil, &Error{Kind: ErrTypeConversion, Detail: fmt.Sprintf("unknown target type %q", target)}
	}
}

// weakDecode drives a WeaklyTypedInput mapstructure decode into a scalar
// result, the same decoder configuration the sources/converter package
// uses to move values between loosely related shapes.
func weakDecode(value, result any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           result,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(value)
}

func convertBool(value any) (bool, error) {
	// mapstructure's weak mode parses bool strings with strconv.ParseBool,
	// which has no yes/no/on/off aliases, so those are normalized up front.
	if s, ok := value.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "on":
			value = "1"
		case "no", "off", "":
			value = "0"
		}
	}
	var out bool
	if err := weakDecode(value, &out); err != nil {
		return false, &Error{Kind: ErrTypeConversion, Detail: fmt.Sprintf("cannot convert %v to bool: %v", value, err)}
	}
	return out, nil
}

func convertInt(value any) (int64, error) {
	var out int64
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	if err := weakDecode(value, &out); err != nil {
		return 0, &Error{Kind: ErrTypeConversion, Detail: fmt.Sprintf("cannot convert %v to int: %v", value, err)}
	}
	return out, nil
}

func convertFloat(value any) (float64, error) {
	var out float64
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	if err := weakDecode(value, &out); err != nil {
		return 0, &Error{Kind: ErrTypeConversion, Detail: fmt.Sprintf("cannot convert %v to float: %v", value, err)}
	}
	return out, nil
}

func convertList(value any) ([]any, error) {
	if v, ok := value.([]any); ok {
		return v, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, &Error{Kind: ErrTypeConversion, Detail: fmt.Sprintf("cannot convert %T to list", value)}
	}
	if strings.TrimSpace(s) == "" {
		return []any{}, nil
	}

	var out []any
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return nil, &Error{Kind: ErrTypeConversion, Detail: err.Error()}
	}
	if err := decoder.Decode(s); err != nil {
		return nil, &Error{Kind: ErrTypeConversion, Detail: fmt.Sprintf("cannot convert %q to list: %v", s, err)}
	}
	for i, elem := range out {
		if es, ok := elem.(string); ok {
			out[i] = strings.TrimSpace(es)
		}
	}
	return out, nil
}

func convertDict(value any) (map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, &Error{Kind: ErrTypeConversion, Detail: fmt.Sprintf("cannot convert string to dict: %v", err)}
		}
		return out, nil
	default:
		return nil, &Error{Kind: ErrTypeConversion, Detail: fmt.Sprintf("cannot convert %T to dict", value)}
	}
}

// autoConvert applies best-effort coercion to a raw-string resolved value,
// trying bool, then int, then float, then JSON, falling back to the
// original string. Used when no explicit convert_type is given.
func autoConvert(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	if trimmed == "true" || trimmed == "false" {
		if b, err := convertBool(trimmed); err == nil {
			return b
		}
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	var js any
	if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Unmarshal([]byte(trimmed), &js) == nil {
		return js
	}
	return s
}
