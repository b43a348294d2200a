package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommand_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)
	if code != 0 {
		t.Errorf("run(nil) exit code = %d, want 0", code)
	}
	if stdout.Len() == 0 {
		t.Error("expected help output on stdout")
	}
}

func TestRootCommand_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"nonexistent"}, &stdout, &stderr)
	if code != 1 {
		t.Errorf("run(nonexistent) exit code = %d, want 1", code)
	}
}

func TestSubcommandRegistration(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)

	for _, name := range []string{"train", "evaluate", "predict", "version"} {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not found on root command", name)
		}
	}
}

func TestPredictArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr)

	for _, c := range root.Commands() {
		if c.Name() != "predict" {
			continue
		}
		if err := c.Args(c, []string{"5.1", "3.5", "1.4", "0.2"}); err != nil {
			t.Errorf("predict should accept 4 arguments: %v", err)
		}
		if err := c.Args(c, []string{"5.1", "3.5", "1.4"}); err == nil {
			t.Error("predict should reject 3 arguments")
		}
	}
}

func TestPredictWithoutArtifact(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "database:\n  path: " + filepath.Join(dir, "iris.db") + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	code := run([]string{
		"predict",
		"--config", cfgPath,
		"--artifact", filepath.Join(dir, "model.json"),
		"--log-level", "error",
		"5.1", "3.5", "1.4", "0.2",
	}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("expected no stdout, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "iris train") {
		t.Errorf("expected train hint on stderr, got %q", stderr.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "iris.db")); !os.IsNotExist(err) {
		t.Errorf("history database created without a model: %v", err)
	}
}

func TestPredictMalformed(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"predict", "5.1", "abc", "1.4", "0.2"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "malformed input") {
		t.Errorf("expected malformed input error, got %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "Usage: iris predict") {
		t.Errorf("expected usage line, got %q", stderr.String())
	}
}

func TestVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"version"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.HasPrefix(stdout.String(), "iris dev") {
		t.Errorf("unexpected version output %q", stdout.String())
	}
}
