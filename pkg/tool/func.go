package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// FromFunc builds a Tool whose schema is reflected from In. Properties come
// from json tags; fields without omitempty are required.
func FromFunc[In any](name, description string, fn func(context.Context, In) (string, error), opts ...Option) (Tool, error) {
	schema, err := reflectSchema[In]()
	if err != nil {
		return Tool{}, fmt.Errorf("tool %s: %w", name, err)
	}
	t := New(name, description, schema, nil, opts...)
	// Errors refer to the final name, prefix included.
	toolName := t.Name
	t.Func = func(ctx context.Context, args map[string]any) (string, error) {
		var in In
		if err := decodeArgs(args, &in); err != nil {
			return "", Errorf("Invalid arguments for %s: %v", toolName, err)
		}
		return fn(ctx, in)
	}
	return t, nil
}

// MustFromFunc is FromFunc for static definitions. It panics on error.
func MustFromFunc[In any](name, description string, fn func(context.Context, In) (string, error), opts ...Option) Tool {
	t, err := FromFunc(name, description, fn, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func reflectSchema[In any]() (InputSchema, error) {
	t := reflect.TypeFor[In]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return InputSchema{}, fmt.Errorf("argument type must be a struct, got %s", t)
	}

	r := &jsonschema.Reflector{DoNotReference: true}
	s := r.ReflectFromType(t)

	out := InputSchema{
		Type:       "object",
		Properties: map[string]any{},
		Required:   append([]string(nil), s.Required...),
	}
	if s.Properties != nil {
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			prop, err := schemaToMap(pair.Value)
			if err != nil {
				return InputSchema{}, fmt.Errorf("property %s: %w", pair.Key, err)
			}
			out.Properties[pair.Key] = prop
		}
	}
	return out, nil
}

func schemaToMap(s *jsonschema.Schema) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeArgs(args map[string]any, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// ParseArguments decodes the JSON arguments of an LLM tool call. Malformed
// JSON is repaired before giving up.
func ParseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}

	args, err := decodeObject(raw)
	if err == nil {
		return args, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	args, err = decodeObject(repaired)
	if err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

func decodeObject(raw string) (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
