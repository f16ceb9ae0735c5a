package parley

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// ParamType is the declared type of a single tool parameter. The set is
// closed: registration rejects specs using anything else, so a bad type is
// caught at startup rather than on the first model call.
type ParamType string

const (
	TypeString      ParamType = "string"
	TypeInteger     ParamType = "integer"
	TypeNumber      ParamType = "number"
	TypeBoolean     ParamType = "boolean"
	TypeStringEnum  ParamType = "enum"         // string restricted to Enum values
	TypeStringArray ParamType = "string_array" // array of strings, optionally restricted to Enum values
	TypeObject      ParamType = "object"       // opaque JSON object, passed through as-is
)

// ParamSpec declares one parameter of a tool's input schema.
type ParamSpec struct {
	Type        ParamType
	Description string
	Required    bool
	Default     any      // applied when an optional parameter is absent
	Enum        []string // allowed values for TypeStringEnum, or allowed elements for TypeStringArray
}

// Schema is a declared tool input schema: parameter name → spec.
// Immutable once the tool is registered.
type Schema map[string]ParamSpec

// Check verifies the schema itself at registration time: every parameter uses
// a known type, enum types carry values, and defaults agree with the declared
// type.
func (s Schema) Check() error {
	for name, p := range s {
		switch p.Type {
		case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeStringEnum, TypeStringArray, TypeObject:
		default:
			return fmt.Errorf("parameter %q: %w: %q", name, ErrUnknownParamType, p.Type)
		}
		if p.Type == TypeStringEnum && len(p.Enum) == 0 {
			return fmt.Errorf("parameter %q: enum type requires at least one value", name)
		}
		if p.Default != nil {
			if err := checkValue(p, p.Default); err != nil {
				return fmt.Errorf("parameter %q: default value: %w", name, err)
			}
		}
	}
	return nil
}

// JSONSchema renders the declared schema as a JSON Schema map in the shape LLM
// providers expect ({"type":"object","properties":...,"required":[...]}).
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s))
	var required []string
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		p := s[name]
		prop := map[string]any{}
		switch p.Type {
		case TypeStringEnum:
			prop["type"] = "string"
			enum := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				enum[i] = v
			}
			prop["enum"] = enum
		case TypeStringArray:
			prop["type"] = "array"
			items := map[string]any{"type": "string"}
			if len(p.Enum) > 0 {
				enum := make([]any, len(p.Enum))
				for i, v := range p.Enum {
					enum[i] = v
				}
				items["enum"] = enum
			}
			prop["items"] = items
		default:
			prop["type"] = string(p.Type)
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, name := range required {
			req[i] = name
		}
		out["required"] = req
	}
	return out
}

// Validate parses argsJSON, checks it against the schema, and returns the
// argument map with defaults applied for absent optional parameters. All
// failures are ClientErrors so the model can retry with corrected arguments.
// Validate has no side effects; the input schema is never mutated.
func (s Schema) Validate(argsJSON []byte) (map[string]any, error) {
	var args map[string]any
	if len(argsJSON) == 0 {
		args = map[string]any{}
	} else if err := json.Unmarshal(argsJSON, &args); err != nil {
		return nil, wrapJSONParseError(err)
	}
	if args == nil {
		args = map[string]any{}
	}
	for name := range args {
		if _, ok := s[name]; !ok {
			return nil, &ClientError{
				Reason: fmt.Sprintf("unknown parameter %q", name),
				Err:    ErrValidation,
			}
		}
	}
	out := make(map[string]any, len(s))
	for name, p := range s {
		v, present := args[name]
		if !present {
			if p.Required {
				return nil, &ClientError{
					Reason: fmt.Sprintf("missing required parameter %q", name),
					Err:    ErrMissingParameter,
				}
			}
			if p.Default != nil {
				out[name] = p.Default
			}
			continue
		}
		if err := checkValue(p, v); err != nil {
			return nil, &ClientError{
				Reason: fmt.Sprintf("parameter %q: %v", name, err),
				Err:    err,
			}
		}
		out[name] = coerceValue(p, v)
	}
	return out, nil
}

// checkValue validates a decoded JSON value against one ParamSpec. The
// returned error is a sentinel suitable for wrapping in a ClientError.
func checkValue(p ParamSpec, v any) error {
	switch p.Type {
	case TypeString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%w: want string, got %s", ErrTypeMismatch, jsonTypeName(v))
		}
	case TypeInteger:
		f, ok := v.(float64)
		if !ok {
			if _, isInt := v.(int); isInt {
				return nil
			}
			return fmt.Errorf("%w: want integer, got %s", ErrTypeMismatch, jsonTypeName(v))
		}
		if math.Trunc(f) != f {
			return fmt.Errorf("%w: want integer, got fractional number", ErrTypeMismatch)
		}
	case TypeNumber:
		switch v.(type) {
		case float64, int:
		default:
			return fmt.Errorf("%w: want number, got %s", ErrTypeMismatch, jsonTypeName(v))
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%w: want boolean, got %s", ErrTypeMismatch, jsonTypeName(v))
		}
	case TypeStringEnum:
		str, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: want string, got %s", ErrTypeMismatch, jsonTypeName(v))
		}
		if !slices.Contains(p.Enum, str) {
			return fmt.Errorf("%w: %q not in %v", ErrInvalidEnumValue, str, p.Enum)
		}
	case TypeStringArray:
		items, err := stringSlice(v)
		if err != nil {
			return err
		}
		if len(p.Enum) > 0 {
			for _, item := range items {
				if !slices.Contains(p.Enum, item) {
					return fmt.Errorf("%w: %q not in %v", ErrInvalidEnumValue, item, p.Enum)
				}
			}
		}
	case TypeObject:
		if _, ok := v.(map[string]any); !ok {
			return fmt.Errorf("%w: want object, got %s", ErrTypeMismatch, jsonTypeName(v))
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownParamType, p.Type)
	}
	return nil
}

// coerceValue normalizes validated values: integers become int, string arrays
// become []string. Everything else passes through as decoded.
func coerceValue(p ParamSpec, v any) any {
	switch p.Type {
	case TypeInteger:
		if f, ok := v.(float64); ok {
			return int(f)
		}
	case TypeStringArray:
		items, err := stringSlice(v)
		if err == nil {
			return items
		}
	}
	return v
}

func stringSlice(v any) ([]string, error) {
	switch arr := v.(type) {
	case []string:
		return arr, nil
	case []any:
		out := make([]string, len(arr))
		for i, item := range arr {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: array element %d: want string, got %s", ErrTypeMismatch, i, jsonTypeName(item))
			}
			out[i] = str
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: want array of strings, got %s", ErrTypeMismatch, jsonTypeName(v))
	}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "boolean"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
