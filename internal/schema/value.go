package schema

// FileDescriptor represents one produced file plus the reference files that
// travel with it (indexes, checksums, sidecar reports). A descriptor is
// present only when File is non-empty; absent descriptors are skipped by
// every consumer.
type FileDescriptor struct {
	File string   `yaml:"file" json:"file"`
	Refs []string `yaml:"refs,omitempty" json:"refs,omitempty"`
	Size int64    `yaml:"size,omitempty" json:"size,omitempty"`
}

// Present reports whether the descriptor carries a file.
func (d FileDescriptor) Present() bool {
	return d.File != ""
}

// FileValue decodes a single file descriptor from a dynamic value. The
// second return is false when the value does not have the descriptor shape.
func FileValue(value any) (FileDescriptor, bool) {
	switch v := value.(type) {
	case FileDescriptor:
		return v, true
	case *FileDescriptor:
		if v == nil {
			return FileDescriptor{}, false
		}
		return *v, true
	case map[string]any:
		return fileFromMap(v)
	default:
		return FileDescriptor{}, false
	}
}

// FileListValue decodes a field value that is either a single file
// descriptor or an ordered list of them. Values without the descriptor
// shape, and descriptors with an empty primary path, are dropped.
func FileListValue(value any) []FileDescriptor {
	switch v := value.(type) {
	case nil:
		return nil
	case []FileDescriptor:
		return presentOnly(v)
	case []any:
		out := make([]FileDescriptor, 0, len(v))
		for _, item := range v {
			if desc, ok := FileValue(item); ok && desc.Present() {
				out = append(out, desc)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		if desc, ok := FileValue(value); ok && desc.Present() {
			return []FileDescriptor{desc}
		}
		return nil
	}
}

func presentOnly(descs []FileDescriptor) []FileDescriptor {
	out := make([]FileDescriptor, 0, len(descs))
	for _, desc := range descs {
		if desc.Present() {
			out = append(out, desc)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func fileFromMap(values map[string]any) (FileDescriptor, bool) {
	raw, ok := values["file"]
	if !ok {
		return FileDescriptor{}, false
	}
	file, ok := raw.(string)
	if !ok {
		return FileDescriptor{}, false
	}
	desc := FileDescriptor{File: file}
	if refs, ok := values["refs"].([]any); ok {
		for _, ref := range refs {
			if s, ok := ref.(string); ok && s != "" {
				desc.Refs = append(desc.Refs, s)
			}
		}
	}
	if refs, ok := values["refs"].([]string); ok {
		desc.Refs = append(desc.Refs, refs...)
	}
	switch size := values["size"].(type) {
	case int:
		desc.Size = int64(size)
	case int64:
		desc.Size = size
	case float64:
		desc.Size = int64(size)
	}
	return desc, true
}

// ToMap renders the descriptor as the dynamic map shape used in record
// input/output values.
func (d FileDescriptor) ToMap() map[string]any {
	out := map[string]any{"file": d.File}
	if len(d.Refs) > 0 {
		refs := make([]any, len(d.Refs))
		for i, ref := range d.Refs {
			refs[i] = ref
		}
		out["refs"] = refs
	}
	if d.Size > 0 {
		out["size"] = d.Size
	}
	return out
}
