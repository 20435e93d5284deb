package expression

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/freshet-io/freshet/internal/schema"
)

// GoTemplateName identifies the builtin text/template engine.
const GoTemplateName = "gotpl"

// GoTemplateEngine renders programs with text/template. Missing context
// attributes resolve to their zero value (missingkey=zero), so templates
// guarded with {{if}} skip absent fields instead of failing.
type GoTemplateEngine struct {
	funcs template.FuncMap
}

// NewGoTemplateEngine builds the engine with the builtin function set.
func NewGoTemplateEngine() *GoTemplateEngine {
	return &GoTemplateEngine{funcs: builtinFuncs()}
}

// Name implements Engine.
func (e *GoTemplateEngine) Name() string { return GoTemplateName }

// Render implements Engine.
func (e *GoTemplateEngine) Render(program string, ctx Context) (string, error) {
	tmpl, err := template.New(GoTemplateName).
		Option("missingkey=zero").
		Funcs(e.funcs).
		Parse(program)
	if err != nil {
		return "", fmt.Errorf("expression: parse program: %w", err)
	}
	var out strings.Builder
	if ctx == nil {
		ctx = Context{}
	}
	if err := tmpl.Execute(&out, map[string]any(ctx)); err != nil {
		return "", fmt.Errorf("expression: render program: %w", err)
	}
	return out.String(), nil
}

func builtinFuncs() template.FuncMap {
	return template.FuncMap{
		// basename strips the directory part of a path.
		"basename": filepath.Base,
		// join concatenates list items with a separator.
		"join": func(sep string, items []any) string {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = fmt.Sprint(item)
			}
			return strings.Join(parts, sep)
		},
		// quote wraps a value in double quotes for the shell.
		"quote": func(value any) string {
			return fmt.Sprintf("%q", fmt.Sprint(value))
		},
		// default substitutes a fallback for nil or empty values.
		"default": func(fallback, value any) any {
			if value == nil {
				return fallback
			}
			if s, ok := value.(string); ok && s == "" {
				return fallback
			}
			return value
		},
		// file decodes a single file descriptor field value.
		"file": func(value any) schema.FileDescriptor {
			desc, _ := schema.FileValue(value)
			return desc
		},
		// files decodes a field value that is a descriptor or a list of
		// them, dropping descriptors without a primary path.
		"files": schema.FileListValue,
	}
}
