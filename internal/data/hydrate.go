package data

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/freshet-io/freshet/internal/schema"
)

// Resolver looks up finished records referenced from input values.
type Resolver func(id string) (Record, error)

// HydrateInputReferences replaces data-reference input values (record IDs)
// with a copy of the referenced record's output map, annotated with __id and
// __type. Nil references are left alone.
func HydrateInputReferences(input map[string]any, fields []schema.Field, resolve Resolver) error {
	return schema.IterateFields(input, fields, func(field schema.Field, value any) error {
		if !field.IsData() {
			return nil
		}
		if field.IsList() {
			items, ok := value.([]any)
			if !ok {
				return nil
			}
			hydrated := make([]any, 0, len(items))
			for _, item := range items {
				if item == nil {
					continue
				}
				out, err := hydrateReference(field, item, resolve)
				if err != nil {
					return err
				}
				hydrated = append(hydrated, out)
			}
			input[field.Name] = hydrated
			return nil
		}
		if value == nil {
			return nil
		}
		out, err := hydrateReference(field, value, resolve)
		if err != nil {
			return err
		}
		input[field.Name] = out
		return nil
	})
}

func hydrateReference(field schema.Field, value any, resolve Resolver) (map[string]any, error) {
	id, ok := value.(string)
	if !ok {
		// Already hydrated output maps pass through untouched.
		if hydrated, ok := value.(map[string]any); ok {
			return hydrated, nil
		}
		return nil, fmt.Errorf("data: field %s: reference must be a record id, got %T", field.Name, value)
	}
	record, err := resolve(id)
	if err != nil {
		return nil, fmt.Errorf("data: field %s: %w", field.Name, err)
	}
	output := cloneMap(record.Output)
	output["__id"] = record.ID
	output["__type"] = record.ProcessType
	return output, nil
}

// HydratePaths prefixes file and dir values in an output map with the
// record's directory so consumers see absolute paths.
func HydratePaths(output map[string]any, fields []schema.Field, dir string) error {
	return schema.IterateFields(output, fields, func(field schema.Field, value any) error {
		switch field.BaseType() {
		case schema.TypeFile, schema.TypeDir:
		default:
			return nil
		}
		key := "file"
		if field.BaseType() == schema.TypeDir {
			key = "dir"
		}
		if field.IsList() {
			items, ok := value.([]any)
			if !ok {
				return nil
			}
			for _, item := range items {
				prefixPath(item, key, dir)
			}
			return nil
		}
		prefixPath(value, key, dir)
		return nil
	})
}

func prefixPath(value any, key, dir string) {
	values, ok := value.(map[string]any)
	if !ok {
		return
	}
	if name, ok := values[key].(string); ok && name != "" && !filepath.IsAbs(name) {
		values[key] = filepath.Join(dir, name)
	}
}

// HydrateSizes stats produced files and directories under dir and records
// their sizes on the descriptors. Missing paths are an error: a finished
// record must not declare files it did not produce.
func HydrateSizes(output map[string]any, fields []schema.Field, dir string) error {
	return schema.IterateFields(output, fields, func(field schema.Field, value any) error {
		switch field.BaseType() {
		case schema.TypeFile:
			if field.IsList() {
				items, _ := value.([]any)
				for _, item := range items {
					if err := addFileSize(field, item, dir); err != nil {
						return err
					}
				}
				return nil
			}
			return addFileSize(field, value, dir)
		case schema.TypeDir:
			if field.IsList() {
				items, _ := value.([]any)
				for _, item := range items {
					if err := addDirSize(field, item, dir); err != nil {
						return err
					}
				}
				return nil
			}
			return addDirSize(field, value, dir)
		default:
			return nil
		}
	})
}

func addFileSize(field schema.Field, value any, dir string) error {
	values, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	name, ok := values["file"].(string)
	if !ok || name == "" {
		return nil
	}
	path := joinUnlessAbs(dir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("data: field %s: referenced file does not exist (%s)", field.Name, path)
	}
	values["size"] = info.Size()
	return nil
}

func addDirSize(field schema.Field, value any, dir string) error {
	values, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	name, ok := values["dir"].(string)
	if !ok || name == "" {
		return nil
	}
	path := joinUnlessAbs(dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("data: field %s: referenced dir does not exist (%s)", field.Name, path)
	}
	var total int64
	walkErr := filepath.Walk(path, func(_ string, entry os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			total += entry.Size()
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("data: field %s: size dir %s: %w", field.Name, path, walkErr)
	}
	values["size"] = total
	return nil
}

func joinUnlessAbs(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

func cloneMap(values map[string]any) map[string]any {
	out := make(map[string]any, len(values)+2)
	for key, value := range values {
		out[key] = value
	}
	return out
}
