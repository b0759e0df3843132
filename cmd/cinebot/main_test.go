package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(t.Context(), strings.NewReader(""), &stdout, &stderr, args)
	return stdout.String(), err
}

func TestRun_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}, {"--help"}} {
		out, err := runCLI(t, args...)
		if err != nil {
			t.Fatalf("run(%v): %v", args, err)
		}
		if !strings.Contains(out, "Usage: cinebot") {
			t.Errorf("run(%v) output missing usage:\n%s", args, out)
		}
	}
}

func TestRun_VersionText(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "version:") || !strings.Contains(out, "go_version:") {
		t.Errorf("version output:\n%s", out)
	}
}

func TestRun_VersionJSON(t *testing.T) {
	for _, args := range [][]string{{"-o", "json", "version"}, {"--output=json", "version"}} {
		out, err := runCLI(t, args...)
		if err != nil {
			t.Fatal(err)
		}
		var info map[string]any
		if err := json.Unmarshal([]byte(out), &info); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out)
		}
		if v, _ := info["version"].(string); v == "" {
			t.Errorf("version missing from %v", info)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"frobnicate"}, "unknown command"},
		{[]string{"-o", "yaml", "version"}, "unknown output format"},
		{[]string{"-verbose", "serve"}, "unknown flag"},
		{[]string{"ask"}, "usage: cinebot ask"},
		{[]string{"-config", "/nonexistent/cinebot.yaml", "ask", "hi"}, "config file not found"},
	}
	for _, tt := range tests {
		_, err := runCLI(t, tt.args...)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("run(%v) err = %v, want %q", tt.args, err, tt.want)
		}
	}
}

func TestRun_FlagsAfterCommandBelongToCommand(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "init", dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("init did not use its directory argument: %v", err)
	}
}

// clearUmask makes file permission assertions deterministic.
func clearUmask(t *testing.T) {
	t.Helper()
	old := syscall.Umask(0)
	t.Cleanup(func() { syscall.Umask(old) })
}

func TestRunInit_WritesConfig(t *testing.T) {
	clearUmask(t)
	dir := filepath.Join(t.TempDir(), "cinebot")
	var buf bytes.Buffer

	if err := runInit(&buf, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config.yaml not created: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("config.yaml permissions = %o, want 0600", got)
	}
	if !strings.Contains(buf.String(), "Wrote") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRunInit_KeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := runInit(&buf, dir); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "log_level: debug\n" {
		t.Error("runInit overwrote an existing config")
	}
	if !strings.Contains(buf.String(), "left unchanged") {
		t.Errorf("output = %q", buf.String())
	}
}
