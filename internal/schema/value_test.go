package schema

import (
	"reflect"
	"testing"
)

func TestFileValueDecodesMapShape(t *testing.T) {
	desc, ok := FileValue(map[string]any{
		"file": "aligned.bam",
		"refs": []any{"aligned.bam.bai"},
		"size": 1024,
	})
	if !ok {
		t.Fatalf("expected descriptor shape to decode")
	}
	want := FileDescriptor{File: "aligned.bam", Refs: []string{"aligned.bam.bai"}, Size: 1024}
	if !reflect.DeepEqual(desc, want) {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
}

func TestFileValueRejectsNonDescriptorShapes(t *testing.T) {
	for _, value := range []any{nil, "plain.txt", 7, map[string]any{"refs": []any{"x"}}} {
		if _, ok := FileValue(value); ok {
			t.Fatalf("value %v should not decode as a file descriptor", value)
		}
	}
}

func TestFileListValueHandlesSingleAndList(t *testing.T) {
	single := map[string]any{"file": "one.txt"}
	got := FileListValue(single)
	if len(got) != 1 || got[0].File != "one.txt" {
		t.Fatalf("unexpected list from single descriptor: %+v", got)
	}

	list := []any{
		map[string]any{"file": "a.txt"},
		map[string]any{"file": "", "refs": []any{"ignored.idx"}},
		map[string]any{"file": "b.txt", "refs": []any{"b.txt.idx"}},
	}
	got = FileListValue(list)
	if len(got) != 2 {
		t.Fatalf("empty primaries must be skipped, got %+v", got)
	}
	if got[0].File != "a.txt" || got[1].File != "b.txt" || got[1].Refs[0] != "b.txt.idx" {
		t.Fatalf("unexpected descriptors: %+v", got)
	}
}

func TestFileListValueEmptyPrimaryDropsRefs(t *testing.T) {
	got := FileListValue(map[string]any{"file": "", "refs": []any{"orphan.idx"}})
	if got != nil {
		t.Fatalf("descriptor without a primary path must contribute nothing, got %+v", got)
	}
}

func TestToMapRoundTrip(t *testing.T) {
	desc := FileDescriptor{File: "out.zip", Refs: []string{"out.zip.md5"}, Size: 9}
	back, ok := FileValue(desc.ToMap())
	if !ok || !reflect.DeepEqual(desc, back) {
		t.Fatalf("round trip mismatch: %+v vs %+v", desc, back)
	}
}
