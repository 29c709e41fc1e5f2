package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd(&app{})
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd(&app{})
	for _, name := range []string{"import", "export", "dedupe", "fix-answers", "fix-images", "backfill",
		"normalize", "flatten", "chunk", "convert", "cache-clear", "migrate", "staff"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestFlattenAndChunk(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "nested.json")
	nested := `{
		"Epilepsy": [{"question": "Q1", "options": ["a", "b"], "correct_answer": "A"}],
		"Headache": [
			{"question": "Q2", "options": ["a", "b"], "correct_answer": "B"},
			{"question": "Q3", "options": ["a", "b"], "correct_answer": "A", "subspecialty": "Neuro-ophthalmology"}
		]
	}`
	if err := os.WriteFile(in, []byte(nested), 0o644); err != nil {
		t.Fatal(err)
	}

	flat := filepath.Join(dir, "flat.json")
	if err := run(t, "flatten", in, flat); err != nil {
		t.Fatalf("flatten: %v", err)
	}
	data, _ := os.ReadFile(flat)
	var items []map[string]interface{}
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("flattened output: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d", len(items))
	}
	subs := map[string]bool{}
	for _, it := range items {
		subs[it["subspecialty"].(string)] = true
	}
	for _, want := range []string{"Epilepsy", "Headache", "Neuro-ophthalmology"} {
		if !subs[want] {
			t.Errorf("missing subspecialty %s in %v", want, subs)
		}
	}

	out := filepath.Join(dir, "chunks")
	if err := run(t, "chunk", flat, out, "--max-items", "2"); err != nil {
		t.Fatalf("chunk: %v", err)
	}
	for _, name := range []string{"flat_part001.json", "flat_part002.json"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestArgumentErrors(t *testing.T) {
	tests := [][]string{
		{"flatten", "only-one"},
		{"convert", "abc"},
		{"export", "--format", "xml"},
	}
	for _, args := range tests {
		if err := run(t, args...); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}
