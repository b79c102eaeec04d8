package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/csvledger/internal/apperr"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"category=Food", "notes=", " memo =a=b"})
	if err != nil {
		t.Fatalf("parseAssignments: %v", err)
	}
	if got["category"] != "Food" || got["notes"] != "" || got["memo"] != "a=b" {
		t.Errorf("fields = %v", got)
	}
	if _, ok := got["notes"]; !ok {
		t.Error("empty assignment dropped")
	}
	for _, bad := range []string{"category", "=x"} {
		if _, err := parseAssignments([]string{bad}); err == nil {
			t.Errorf("parseAssignments(%q) succeeded", bad)
		}
	}
}

// run executes the CLI with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.Writer = &out
	err := root.Run(context.Background(), append([]string{"csvledger"}, args...))
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("csvledger %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(data)
}

func TestCommands_ApplyWorkflow(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "tx.csv")
	cfg := filepath.Join(dir, "csvledger.yaml")
	yml := fmt.Sprintf("store:\n  data_file: %q\njournal:\n  enabled: true\n  path: %q\n", data, filepath.Join(dir, "journal.db"))
	if err := os.WriteFile(cfg, []byte(yml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if out := mustRun(t, "-c", cfg, "init"); strings.TrimSpace(out) != data {
		t.Errorf("init printed %q", out)
	}
	out := mustRun(t, "-c", cfg, "append", "--date", "2025-01-05", "--desc", "Groceries", "--amount", "-100", "--account", "Checking")
	if strings.TrimSpace(out) != "1" {
		t.Errorf("append printed %q", out)
	}

	cs := filepath.Join(dir, "jan.csv")
	if err := os.WriteFile(cs, []byte("type,id,category\nupdate,1,Food\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	before := readFile(t, data)
	out = mustRun(t, "-c", cfg, "apply", "--dry-run", cs)
	if !strings.Contains(out, cs) || !strings.Contains(out, "dry run: nothing written") {
		t.Errorf("apply --dry-run printed:\n%s", out)
	}
	if got := readFile(t, data); got != before {
		t.Errorf("dry run changed the data file:\n%s", got)
	}

	mustRun(t, "-c", cfg, "apply", cs)
	out = mustRun(t, "-c", cfg, "list", "--filter", "category=food")
	if !strings.Contains(out, "Groceries") || !strings.Contains(out, "Food") {
		t.Errorf("list printed:\n%s", out)
	}
	if _, err := run(t, "-c", cfg, "apply", cs); !errors.Is(err, apperr.ErrAlreadyApplied) {
		t.Errorf("second apply: err = %v, want ErrAlreadyApplied", err)
	}
	if out := mustRun(t, "-c", cfg, "journal"); !strings.Contains(out, "jan.csv") {
		t.Errorf("journal printed:\n%s", out)
	}
}
