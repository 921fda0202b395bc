package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	stdout, _, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout, target) {
		t.Fatalf("output missing path:\n%s", stdout)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[backend]") {
		t.Fatalf("sample missing backend section:\n%s", data)
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(target, []byte("# existing"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	_, _, err := runCommand(t, "config", "init", "--path", target)
	if err == nil {
		t.Fatal("expected overwrite refusal")
	}

	_, _, err = runCommand(t, "config", "init", "--path", target, "--overwrite")
	if err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowMasksToken(t *testing.T) {
	stdout, _, err := runCommand(t, "--config", writeTestConfig(t), "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(stdout, "test-token") {
		t.Fatalf("token leaked:\n%s", stdout)
	}
	if !strings.Contains(stdout, "backend.base_url") {
		t.Fatalf("missing base_url row:\n%s", stdout)
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret(""); got != "" {
		t.Fatalf("empty secret = %q", got)
	}
	if got := maskSecret("abc"); got != "****" {
		t.Fatalf("short secret = %q", got)
	}
	got := maskSecret("supersecrettoken")
	if strings.Contains(got, "persecret") {
		t.Fatalf("secret visible: %q", got)
	}
	if !strings.HasPrefix(got, "su") || !strings.HasSuffix(got, "en") {
		t.Fatalf("mask shape wrong: %q", got)
	}
}
