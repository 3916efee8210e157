//
// Tencent is pleased to support the open source community by making trpc-graph-go available.
//
// Copyright (C) 2025 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ValidateArguments checks JSON-encoded arguments against a tool's input
// schema before the tool runs. A nil schema accepts anything. Validation
// covers JSON well-formedness, required properties, primitive type
// compatibility and, when the schema closes the object with
// additionalProperties=false, undeclared properties.
func ValidateArguments(schema *Schema, jsonArgs []byte) error {
	if schema == nil {
		return nil
	}
	decoder := json.NewDecoder(bytes.NewReader(jsonArgs))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return validateValue(schema, value, "$")
}

func validateValue(schema *Schema, value any, path string) error {
	if schema == nil {
		return nil
	}
	// Pointer-derived schemas carry a ",null" suffix and accept null.
	types := strings.Split(schema.Type, ",")
	if value == nil {
		for _, t := range types {
			if t == "null" {
				return nil
			}
		}
		return fmt.Errorf("%s: expected %s, got null", path, schema.Type)
	}
	switch types[0] {
	case "object":
		return validateObject(schema, value, path)
	case "array":
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%s: expected array, got %T", path, value)
		}
		for i, item := range items {
			if err := validateValue(schema.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%s: expected string, got %T", path, value)
		}
	case "number":
		if _, ok := value.(json.Number); !ok {
			return fmt.Errorf("%s: expected number, got %T", path, value)
		}
	case "integer":
		n, ok := value.(json.Number)
		if !ok {
			return fmt.Errorf("%s: expected integer, got %T", path, value)
		}
		if _, err := n.Int64(); err != nil {
			return fmt.Errorf("%s: expected integer, got %s", path, n.String())
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected boolean, got %T", path, value)
		}
	}
	return nil
}

func validateObject(schema *Schema, value any, path string) error {
	obj, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%s: expected object, got %T", path, value)
	}
	for _, name := range schema.Required {
		if _, present := obj[name]; !present {
			return fmt.Errorf("%s: missing required property %q", path, name)
		}
	}
	for name, v := range obj {
		propSchema, declared := schema.Properties[name]
		if declared {
			if err := validateValue(propSchema, v, path+"."+name); err != nil {
				return err
			}
			continue
		}
		switch ap := schema.AdditionalProperties.(type) {
		case bool:
			if !ap {
				return fmt.Errorf("%s: unexpected property %q", path, name)
			}
		case *Schema:
			if err := validateValue(ap, v, path+"."+name); err != nil {
				return err
			}
		}
	}
	return nil
}
