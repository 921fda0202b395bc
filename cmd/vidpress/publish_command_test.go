package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParsePublishAtLayouts(t *testing.T) {
	cases := []struct {
		input string
		want  time.Time
	}{
		{"2026-09-01T10:00:00Z", time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)},
		{"2026-09-01 10:00", time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)},
		{"2026-09-01", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := parsePublishAt(tc.input)
		if err != nil {
			t.Fatalf("parsePublishAt(%q): %v", tc.input, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("parsePublishAt(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestParsePublishAtRejectsGarbage(t *testing.T) {
	if _, err := parsePublishAt("next tuesday"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestPublishReportsFieldErrorsBeforeEnqueue(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, stderr, err := runCommand(t, "--config", cfgPath, "publish", "--title", "")
	if err == nil {
		t.Fatal("expected validation failure")
	}
	for _, field := range []string{"title", "short_description", "created_at", "video_file", "thumbnail_file"} {
		if !strings.Contains(stderr, field) {
			t.Fatalf("stderr missing %q:\n%s", field, stderr)
		}
	}

	// Nothing should have been queued.
	stdout, _, err := runCommand(t, "--config", cfgPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if stdout != "Queue is empty\n" {
		t.Fatalf("queue not empty after rejected publish:\n%s", stdout)
	}
}

func TestPublishEnqueuesValidDraft(t *testing.T) {
	cfgPath := writeTestConfig(t)

	dir := t.TempDir()
	video := filepath.Join(dir, "episode.mp4")
	thumb := filepath.Join(dir, "thumb.jpg")
	for _, path := range []string{video, thumb} {
		if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	stdout, _, err := runCommand(t, "--config", cfgPath, "publish",
		"--title", "Sponsor Spotlight: ACME",
		"--short-description", "A word from our sponsor",
		"--publish-at", "2026-09-01",
		"--video", video,
		"--thumbnail", thumb,
	)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !strings.Contains(stdout, "Queued \"Sponsor Spotlight: ACME\" as job #1") {
		t.Fatalf("unexpected output:\n%s", stdout)
	}

	listOut, _, err := runCommand(t, "--config", cfgPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(listOut, "pending") {
		t.Fatalf("queued job not pending:\n%s", listOut)
	}
}

func TestPublishDerivesSlugFromTitle(t *testing.T) {
	cfgPath := writeTestConfig(t)

	dir := t.TempDir()
	video := filepath.Join(dir, "v.mp4")
	thumb := filepath.Join(dir, "t.jpg")
	for _, path := range []string{video, thumb} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	_, _, err := runCommand(t, "--config", cfgPath, "publish",
		"--title", "Caffè Società Launch!",
		"--short-description", "desc",
		"--publish-at", "2026-09-01",
		"--video", video,
		"--thumbnail", thumb,
	)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	showOut, _, err := runCommand(t, "--config", cfgPath, "queue", "show", "1")
	if err != nil {
		t.Fatalf("queue show: %v", err)
	}
	if !strings.Contains(showOut, "caffe-societa-launch") {
		t.Fatalf("slug not derived:\n%s", showOut)
	}
}
