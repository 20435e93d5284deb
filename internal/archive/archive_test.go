package archive

import (
	"strings"
	"testing"

	"github.com/freshet-io/freshet/internal/expression"
)

func TestCommandNoDataHasNoFileArguments(t *testing.T) {
	got := Command(Input{Fields: []string{"out"}})
	want := "zip -0 archive.zip && re-save-file archive archive.zip"
	if got != want {
		t.Fatalf("command = %q, want %q", got, want)
	}
}

func TestCommandSingleFileNoJunkPaths(t *testing.T) {
	got := Command(Input{
		Data:   []Record{{"out": map[string]any{"file": "out.txt"}}},
		Fields: []string{"out"},
	})
	want := "zip -0 archive.zip out.txt && re-save-file archive archive.zip"
	if got != want {
		t.Fatalf("command = %q, want %q", got, want)
	}
	if strings.Count(got, "out.txt") != 1 {
		t.Fatalf("out.txt must appear exactly once: %q", got)
	}
	if strings.Contains(got, "-j") {
		t.Fatalf("junk-paths switch must be absent: %q", got)
	}
}

func TestCommandJunkPathsSwitchPrecedesOutputName(t *testing.T) {
	got := Command(Input{
		Data:      []Record{{"out": map[string]any{"file": "out.txt"}}},
		Fields:    []string{"out"},
		JunkPaths: true,
	})
	want := "zip -0 -j archive.zip out.txt && re-save-file archive archive.zip"
	if got != want {
		t.Fatalf("command = %q, want %q", got, want)
	}
}

func TestCommandListFieldKeepsTraversalOrder(t *testing.T) {
	got := Command(Input{
		Data: []Record{{
			"outputs": []any{
				map[string]any{"file": "first.bam", "refs": []any{"first.bam.bai"}},
				map[string]any{"file": "second.bam", "refs": []any{"second.bam.bai"}},
			},
		}},
		Fields: []string{"outputs"},
	})
	want := "zip -0 archive.zip first.bam first.bam.bai second.bam second.bam.bai && re-save-file archive archive.zip"
	if got != want {
		t.Fatalf("each file must be followed by its own refs: %q", got)
	}
}

func TestCommandEmptyPrimaryContributesNothing(t *testing.T) {
	got := Command(Input{
		Data: []Record{{
			"out": map[string]any{"file": "", "refs": []any{"orphan.idx"}},
		}},
		Fields: []string{"out"},
	})
	want := "zip -0 archive.zip && re-save-file archive archive.zip"
	if got != want {
		t.Fatalf("command = %q, want %q", got, want)
	}
}

func TestCommandNestedIterationOrderAcrossRecordsAndFields(t *testing.T) {
	got := Command(Input{
		Data: []Record{
			{
				"a": map[string]any{"file": "r1-a.txt"},
				"b": map[string]any{"file": "r1-b.txt"},
			},
			{
				"a": map[string]any{"file": "r2-a.txt"},
			},
		},
		Fields: []string{"a", "b"},
	})
	want := "zip -0 archive.zip r1-a.txt r1-b.txt r2-a.txt && re-save-file archive archive.zip"
	if got != want {
		t.Fatalf("outer loop records, inner loop fields: %q", got)
	}
}

func TestCommandDoesNotDeduplicate(t *testing.T) {
	got := Command(Input{
		Data: []Record{
			{"out": map[string]any{"file": "same.txt"}},
			{"out": map[string]any{"file": "same.txt"}},
		},
		Fields: []string{"out"},
	})
	if strings.Count(got, "same.txt") != 2 {
		t.Fatalf("duplicates must be preserved: %q", got)
	}
}

func TestCommandIsDeterministic(t *testing.T) {
	in := Input{
		Data: []Record{{
			"out": []any{
				map[string]any{"file": "a.txt", "refs": []any{"a.idx"}},
				map[string]any{"file": "b.txt"},
			},
		}},
		Fields:    []string{"out"},
		JunkPaths: true,
	}
	if Command(in) != Command(in) {
		t.Fatalf("rendering the same input twice must be byte-identical")
	}
}

func TestProgramMatchesCommand(t *testing.T) {
	engine := expression.NewGoTemplateEngine()
	cases := []struct {
		name string
		in   Input
	}{
		{"empty", Input{Fields: []string{"out"}}},
		{"single file", Input{
			Data:   []Record{{"out": map[string]any{"file": "out.txt"}}},
			Fields: []string{"out"},
		}},
		{"junk paths", Input{
			Data:      []Record{{"out": map[string]any{"file": "out.txt"}}},
			Fields:    []string{"out"},
			JunkPaths: true,
		}},
		{"list with refs", Input{
			Data: []Record{{
				"outputs": []any{
					map[string]any{"file": "a.bam", "refs": []any{"a.bam.bai"}},
					map[string]any{"file": "b.bam", "refs": []any{"b.bam.bai"}},
				},
			}},
			Fields: []string{"outputs"},
		}},
		{"skipped empty primary", Input{
			Data: []Record{{
				"out": map[string]any{"file": "", "refs": []any{"orphan.idx"}},
			}},
			Fields: []string{"out"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := make([]any, len(tc.in.Data))
			for i, rec := range tc.in.Data {
				data[i] = map[string]any(rec)
			}
			fields := make([]any, len(tc.in.Fields))
			for i, field := range tc.in.Fields {
				fields[i] = field
			}
			rendered, err := engine.Render(Program, expression.Context{
				"data":   data,
				"fields": fields,
				"j":      tc.in.JunkPaths,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rendered != Command(tc.in) {
				t.Fatalf("template and command disagree:\n template: %q\n command:  %q", rendered, Command(tc.in))
			}
		})
	}
}

func TestDefinitionIsValid(t *testing.T) {
	def := Definition()
	if err := def.Validate(); err != nil {
		t.Fatalf("builtin archiver must validate: %v", err)
	}
	if def.ExpressionEngine() != "gotpl" {
		t.Fatalf("archiver must render through gotpl, got %q", def.ExpressionEngine())
	}
	if def.Run.Program != Program {
		t.Fatalf("definition must ship the archiver program")
	}
}
