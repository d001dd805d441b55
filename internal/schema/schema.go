// Package schema declares tool input shapes and validates raw parameter maps against them.
package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Field types understood by the validator.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// FormatDateTime marks a string field that must hold a calendar timestamp.
const FormatDateTime = "date-time"

var knownTypes = []string{TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject}

// Field declares one named input of a tool.
type Field struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Format      string
	Default     any
	Enum        []any
	Example     any
}

// Check is a semantic validation hook owned by a tool's shape. It runs after
// every field has been coerced and returns a *ValidationError or nil.
type Check func(p Params) error

// Shape is the declared input of a tool.
type Shape struct {
	Fields []Field
	Checks []Check
}

// Required lists the names of required fields in declaration order.
func (s Shape) Required() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// Examples collects the example value of every field that declares one.
func (s Shape) Examples() map[string]any {
	out := make(map[string]any)
	for _, f := range s.Fields {
		if f.Example != nil {
			out[f.Name] = f.Example
		}
	}
	return out
}

// Lint reports the first structural problem in the shape, if any.
func (s Shape) Lint() error {
	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("field %d: empty name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("field %q: declared twice", name)
		}
		seen[name] = struct{}{}
		if !slices.Contains(knownTypes, f.Type) {
			return fmt.Errorf("field %q: unsupported type %q", name, f.Type)
		}
		if f.Format != "" {
			if f.Format != FormatDateTime || f.Type != TypeString {
				return fmt.Errorf("field %q: unsupported format %q for type %s", name, f.Format, f.Type)
			}
		}
		if f.Default != nil {
			if _, err := coerce(f, f.Default); err != nil {
				return fmt.Errorf("field %q: default %v: %w", name, f.Default, err)
			}
		}
		for _, v := range f.Enum {
			if _, err := coerce(f, v); err != nil {
				return fmt.Errorf("field %q: enum value %v: %w", name, v, err)
			}
		}
	}
	return nil
}

// JSONSchema renders the shape as a JSON-Schema object for discovery.
func (s Shape) JSONSchema() (map[string]any, error) {
	if err := s.Lint(); err != nil {
		return nil, err
	}
	props := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		p := map[string]any{"type": f.Type}
		if f.Description != "" {
			p["description"] = f.Description
		}
		if f.Format != "" {
			p["format"] = f.Format
		}
		if f.Default != nil {
			p["default"] = f.Default
		}
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		if f.Example != nil {
			p["example"] = f.Example
		}
		props[f.Name] = p
	}
	return map[string]any{
		"type":       TypeObject,
		"properties": props,
		"required":   s.Required(),
	}, nil
}
