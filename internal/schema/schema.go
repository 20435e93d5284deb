package schema

import (
	"fmt"
	"strings"
)

// Base field types understood by the runner. A list variant of any type is
// expressed with the "list:" prefix, e.g. "list:basic:file:".
const (
	TypeString  = "basic:string:"
	TypeText    = "basic:text:"
	TypeBoolean = "basic:boolean:"
	TypeInteger = "basic:integer:"
	TypeDecimal = "basic:decimal:"
	TypeFile    = "basic:file:"
	TypeDir     = "basic:dir:"
	TypeJSON    = "basic:json:"
	TypeURLView = "basic:url:view:"

	// ListPrefix marks a field type as an ordered list of its base type.
	ListPrefix = "list:"
	// DataPrefix marks a field as a reference to another data record. The
	// remainder of the type constrains the referenced record's process type,
	// e.g. "data:seq:fastq:".
	DataPrefix = "data:"
)

// Choice restricts a field to a predefined value.
type Choice struct {
	Label string `yaml:"label" json:"label"`
	Value any    `yaml:"value" json:"value"`
}

// Field declares one named input or output of a process.
type Field struct {
	Name              string   `yaml:"name" json:"name"`
	Label             string   `yaml:"label,omitempty" json:"label,omitempty"`
	Type              string   `yaml:"type" json:"type"`
	Description       string   `yaml:"description,omitempty" json:"description,omitempty"`
	Required          *bool    `yaml:"required,omitempty" json:"required,omitempty"`
	Default           any      `yaml:"default,omitempty" json:"default,omitempty"`
	Choices           []Choice `yaml:"choices,omitempty" json:"choices,omitempty"`
	AllowCustomChoice bool     `yaml:"allow_custom_choice,omitempty" json:"allow_custom_choice,omitempty"`
	ValidateRegex     string   `yaml:"validate_regex,omitempty" json:"validate_regex,omitempty"`
}

// IsRequired reports whether a value must be supplied. Fields are required
// unless the descriptor says otherwise.
func (f Field) IsRequired() bool {
	if f.Required == nil {
		return true
	}
	return *f.Required
}

// IsList reports whether the field holds an ordered list of its base type.
func (f Field) IsList() bool {
	return strings.HasPrefix(f.Type, ListPrefix)
}

// BaseType strips the list prefix, if any.
func (f Field) BaseType() string {
	return strings.TrimPrefix(f.Type, ListPrefix)
}

// IsData reports whether the field references another data record.
func (f Field) IsData() bool {
	return strings.HasPrefix(f.BaseType(), DataPrefix)
}

// Validate ensures the field declaration is usable.
func (f Field) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("schema: field name is required")
	}
	if f.Type == "" {
		return fmt.Errorf("schema: field %s: type is required", f.Name)
	}
	if !strings.HasSuffix(f.Type, ":") {
		return fmt.Errorf("schema: field %s: type %q must end with a colon", f.Name, f.Type)
	}
	base := f.BaseType()
	if !strings.HasPrefix(base, "basic:") && !strings.HasPrefix(base, DataPrefix) {
		return fmt.Errorf("schema: field %s: unknown type %q", f.Name, f.Type)
	}
	return nil
}

// ValidateFields checks a whole schema for duplicate names and bad fields.
func ValidateFields(fields []Field) error {
	seen := map[string]struct{}{}
	for idx, field := range fields {
		if err := field.Validate(); err != nil {
			return fmt.Errorf("schema: field[%d]: %w", idx, err)
		}
		if _, exists := seen[field.Name]; exists {
			return fmt.Errorf("schema: duplicate field %s", field.Name)
		}
		seen[field.Name] = struct{}{}
	}
	return nil
}

// FieldByName finds a field declaration in a schema.
func FieldByName(fields []Field, name string) (Field, bool) {
	for _, field := range fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// IterateFields walks the instance values that have a schema entry, in schema
// declaration order. Instance keys without a schema entry are an error, the
// same way the runner refuses inputs it cannot type.
func IterateFields(instance map[string]any, fields []Field, fn func(Field, any) error) error {
	for _, field := range fields {
		value, ok := instance[field.Name]
		if !ok {
			continue
		}
		if err := fn(field, value); err != nil {
			return err
		}
	}
	for name := range instance {
		if _, ok := FieldByName(fields, name); !ok {
			return fmt.Errorf("schema: value %s has no schema entry", name)
		}
	}
	return nil
}

// ApplyDefaults fills missing instance values from field defaults. The
// instance map is modified in place; a nil map is tolerated when no defaults
// would apply.
func ApplyDefaults(instance map[string]any, fields []Field) {
	for _, field := range fields {
		if field.Default == nil {
			continue
		}
		if _, ok := instance[field.Name]; ok {
			continue
		}
		instance[field.Name] = field.Default
	}
}
