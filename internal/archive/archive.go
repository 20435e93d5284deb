// Package archive implements the builtin archiver process: collect the
// selected output files of a set of data records into a single
// store-only zip archive.
package archive

import (
	"strings"

	"github.com/freshet-io/freshet/internal/process"
	"github.com/freshet-io/freshet/internal/schema"
)

// OutputName is the fixed archive filename the command writes.
const OutputName = "archive.zip"

// Record exposes the named output fields of one data record.
type Record = map[string]any

// Input is the archiver's input record.
type Input struct {
	// Data is the ordered sequence of records whose outputs are archived.
	Data []Record
	// Fields names which output field of each record to extract. A field
	// value may be a single file descriptor or a list of them.
	Fields []string
	// JunkPaths stores only file basenames, discarding directory structure.
	JunkPaths bool
}

// Command renders the shell command that archives the selected files and
// registers the archive as the process output. File arguments appear in
// exact nested traversal order: data records, then fields, then list
// elements, with each file's refs immediately after it. Descriptors whose
// primary path is empty contribute nothing, refs included. No
// deduplication, no sorting, no side effects.
func Command(in Input) string {
	var b strings.Builder
	b.WriteString("zip -0 ")
	if in.JunkPaths {
		b.WriteString("-j ")
	}
	b.WriteString(OutputName)
	for _, rec := range in.Data {
		for _, field := range in.Fields {
			for _, desc := range schema.FileListValue(rec[field]) {
				b.WriteString(" ")
				b.WriteString(desc.File)
				for _, ref := range desc.Refs {
					b.WriteString(" ")
					b.WriteString(ref)
				}
			}
		}
	}
	b.WriteString(" && re-save-file archive ")
	b.WriteString(OutputName)
	return b.String()
}

// Program is the gotpl rendition of Command, shipped as the builtin
// archiver's run program. The two are pinned equal by tests.
const Program = `zip -0 {{if .j}}-j {{end}}archive.zip` +
	`{{range $d := .data}}{{range $f := $.fields}}{{range files (index $d $f)}}` +
	` {{.File}}{{range .Refs}} {{.}}{{end}}` +
	`{{end}}{{end}}{{end}}` +
	` && re-save-file archive archive.zip`

func boolPtr(v bool) *bool { return &v }

// Definition returns the builtin archiver process descriptor.
func Definition() process.Process {
	return process.Process{
		Slug:        "archiver",
		Name:        "Archiver",
		Version:     "1.0.0",
		Type:        "data:archive:",
		Category:    "other:",
		Persistence: process.PersistenceTemp,
		Description: "Store selected output files of data records in a single uncompressed archive.",
		Input: []schema.Field{
			{
				Name:  "data",
				Label: "Data list",
				Type:  schema.ListPrefix + schema.DataPrefix,
			},
			{
				Name:  "fields",
				Label: "Output fields",
				Type:  schema.ListPrefix + schema.TypeString,
			},
			{
				Name:        "j",
				Label:       "Junk paths",
				Type:        schema.TypeBoolean,
				Description: "Store just the name of a saved file (junk the path)",
				Required:    boolPtr(false),
				Default:     false,
			},
		},
		Output: []schema.Field{
			{Name: "archive", Label: "Archive", Type: schema.TypeFile},
		},
		Run: process.Run{Language: "bash", Program: Program},
		Requirements: map[string]string{
			"expression-engine": "gotpl",
		},
	}.Normalized()
}
