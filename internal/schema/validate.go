package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrRequiredMissing wraps validation failures caused solely by required
// fields that have not been supplied yet. Callers that validate records
// mid-run branch on it to tell "not finished" apart from "broken".
var ErrRequiredMissing = errors.New("schema: required fields missing")

// ValidateOptions tunes instance validation.
type ValidateOptions struct {
	// TestRequired controls whether missing required fields are reported.
	// Disable it while a record is still producing outputs.
	TestRequired bool
	// PathPrefix, when set, is prepended to file and dir values to check
	// that referenced paths actually exist.
	PathPrefix string
}

// Validate checks instance values against a field schema: required fields,
// value types, predefined choices, file-name regexes, and (when PathPrefix
// is set) existence of referenced files, dirs, and refs.
func Validate(instance map[string]any, fields []Field, opts ValidateOptions) error {
	var missing []string
	for _, field := range fields {
		value, ok := instance[field.Name]
		if !ok {
			if opts.TestRequired && field.IsRequired() && field.Default == nil {
				missing = append(missing, field.Name)
			}
			continue
		}
		// Optional fields may be explicitly null; treat them as absent.
		if value == nil && !field.IsRequired() {
			continue
		}
		if err := validateValue(field, value, opts); err != nil {
			return err
		}
	}
	for name := range instance {
		if _, ok := FieldByName(fields, name); !ok {
			return fmt.Errorf("schema: value %s has no schema entry", name)
		}
	}
	if len(missing) > 0 {
		quoted := make([]string, len(missing))
		for i, name := range missing {
			quoted[i] = fmt.Sprintf("%q", name)
		}
		return fmt.Errorf("%w: %s", ErrRequiredMissing, strings.Join(quoted, ", "))
	}
	return nil
}

func validateValue(field Field, value any, opts ValidateOptions) error {
	if field.IsList() {
		items, ok := value.([]any)
		if !ok {
			if typed := asAnySlice(value); typed != nil {
				items = typed
			} else {
				return fmt.Errorf("schema: field %s: expected a list for type %s", field.Name, field.Type)
			}
		}
		base := field
		base.Type = field.BaseType()
		for idx, item := range items {
			if err := validateScalar(base, item, opts); err != nil {
				return fmt.Errorf("schema: field %s[%d]: %w", field.Name, idx, err)
			}
			if err := validateChoice(base, item); err != nil {
				return fmt.Errorf("schema: field %s[%d]: %w", field.Name, idx, err)
			}
		}
		return nil
	}
	if err := validateScalar(field, value, opts); err != nil {
		return err
	}
	return validateChoice(field, value)
}

func validateScalar(field Field, value any, opts ValidateOptions) error {
	switch {
	case field.Type == TypeString || field.Type == TypeText || field.Type == TypeURLView:
		if _, ok := value.(string); !ok {
			return typeError(field, value)
		}
	case field.Type == TypeBoolean:
		if _, ok := value.(bool); !ok {
			return typeError(field, value)
		}
	case field.Type == TypeInteger:
		// JSON-decoded numbers arrive as float64; whole values count.
		switch v := value.(type) {
		case int, int64:
		case float64:
			if v != float64(int64(v)) {
				return typeError(field, value)
			}
		default:
			return typeError(field, value)
		}
	case field.Type == TypeDecimal:
		switch value.(type) {
		case int, int64, float64:
		default:
			return typeError(field, value)
		}
	case field.Type == TypeFile:
		desc, ok := FileValue(value)
		if !ok {
			return typeError(field, value)
		}
		return validateFile(field, desc, opts)
	case field.Type == TypeDir:
		return validateDir(field, value, opts)
	case field.Type == TypeJSON:
		// Any shape goes; the value is opaque JSON.
	case field.IsData():
		// Data references are either raw IDs or hydrated output maps.
		switch value.(type) {
		case string, map[string]any:
		default:
			return typeError(field, value)
		}
	default:
		return fmt.Errorf("schema: field %s: unknown type %q", field.Name, field.Type)
	}
	return nil
}

func typeError(field Field, value any) error {
	return fmt.Errorf("schema: field %s: value %v does not match type %s", field.Name, value, field.Type)
}

func validateChoice(field Field, value any) error {
	if len(field.Choices) == 0 || field.AllowCustomChoice {
		return nil
	}
	for _, choice := range field.Choices {
		if fmt.Sprint(choice.Value) == fmt.Sprint(value) {
			return nil
		}
	}
	return fmt.Errorf("schema: field %s: value %v must match one of the predefined choices", field.Name, value)
}

func validateFile(field Field, desc FileDescriptor, opts ValidateOptions) error {
	if !desc.Present() {
		return nil
	}
	if field.ValidateRegex != "" {
		re, err := regexp.Compile(field.ValidateRegex)
		if err != nil {
			return fmt.Errorf("schema: field %s: invalid validate_regex: %w", field.Name, err)
		}
		if !re.MatchString(desc.File) {
			return fmt.Errorf("schema: field %s: file name %s does not match regex %s", field.Name, desc.File, field.ValidateRegex)
		}
	}
	if opts.PathPrefix == "" {
		return nil
	}
	path := filepath.Join(opts.PathPrefix, desc.File)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("schema: field %s: referenced file %s does not exist", field.Name, path)
	}
	return validateRefs(field, desc.Refs, opts)
}

func validateDir(field Field, value any, opts ValidateOptions) error {
	values, ok := value.(map[string]any)
	if !ok {
		return typeError(field, value)
	}
	dir, ok := values["dir"].(string)
	if !ok || dir == "" {
		return typeError(field, value)
	}
	if opts.PathPrefix == "" {
		return nil
	}
	path := filepath.Join(opts.PathPrefix, dir)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("schema: field %s: referenced dir %s does not exist", field.Name, path)
	}
	desc, _ := FileValue(map[string]any{"file": dir, "refs": values["refs"]})
	return validateRefs(field, desc.Refs, opts)
}

func validateRefs(field Field, refs []string, opts ValidateOptions) error {
	for _, ref := range refs {
		path := filepath.Join(opts.PathPrefix, ref)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("schema: field %s: file referenced in refs (%s) does not exist", field.Name, path)
		}
	}
	return nil
}

func asAnySlice(value any) []any {
	switch v := value.(type) {
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	case []FileDescriptor:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = item
		}
		return out
	default:
		return nil
	}
}
