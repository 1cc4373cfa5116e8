package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// executeCommand runs the root command with args and returns everything it
// printed. Flag variables are package globals, so they are reset first.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags() {
	cfgFile = ""
	verbose = false
	validateFlags.format = "text"
	adminFlags.server = "http://127.0.0.1:8080"
	adminFlags.prefix = "/admin/ratelimit"
	adminFlags.apiKey = ""
	adminFlags.timeout = 10 * time.Second
	adminFlags.path = ""
	adminFlags.tier = ""
	adminFlags.format = "text"
	benchFlags.requests = 100
	benchFlags.concurrency = 10
	benchFlags.apiKey = ""
	benchFlags.timeout = 10 * time.Second
	benchFlags.format = "text"
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// ============================================================================
// Version
// ============================================================================

func TestVersionCommand(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	Version, GitCommit = "0.1.0-test", "abc123"
	defer func() { Version, GitCommit = origVersion, origCommit }()

	out, err := executeCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}

	for _, want := range []string{"Sentinel 0.1.0-test", "Git Commit: abc123", runtime.Version()} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	expected := []string{"run", "validate", "status", "reset", "bench", "version"}

	for _, name := range expected {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("Expected %s command to be registered", name)
			continue
		}
		if cmd.Short == "" {
			t.Errorf("%s.Short should not be empty", name)
		}
	}
}

// ============================================================================
// Validate
// ============================================================================

func TestValidateCommand_Defaults(t *testing.T) {
	out, err := executeCommand(t, "validate")
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}

	for _, want := range []string{"✓ Configuration valid", "POLICY", "default", "requests_per_minute", "1m"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestValidateCommand_FileCSV(t *testing.T) {
	path := writeConfigFile(t, `
admission:
  default_policy:
    windows:
      - {name: requests_per_minute, duration_seconds: 60, max_requests: 5}
  path_policies:
    - prefix: "/api/chatbot/"
      windows:
        - {name: requests_per_hour, duration_seconds: 3600, max_requests: 7}
`)

	out, err := executeCommand(t, "validate", "--config", path, "--format", "csv")
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}

	if strings.Contains(out, "Configuration valid") {
		t.Error("Expected no banner in csv output")
	}
	if !strings.HasPrefix(out, "POLICY,WINDOW,DURATION,LIMIT\n") {
		t.Errorf("Expected csv header, got:\n%s", out)
	}
	if !strings.Contains(out, "default,requests_per_minute,1m,5") {
		t.Errorf("Expected default row, got:\n%s", out)
	}
	if !strings.Contains(out, "path:/api/chatbot/,requests_per_hour,1h,7") {
		t.Errorf("Expected path row, got:\n%s", out)
	}
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  backend: bogus
`)

	_, err := executeCommand(t, "validate", "--config", path)
	if err == nil {
		t.Fatal("Expected error for invalid backend")
	}
	if !strings.Contains(err.Error(), "storage.backend") {
		t.Errorf("Expected error to name storage.backend, got %v", err)
	}
}

func TestValidateCommand_BadFormat(t *testing.T) {
	if _, err := executeCommand(t, "validate", "--format", "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in       time.Duration
		expected string
	}{
		{time.Minute, "1m"},
		{90 * time.Minute, "90m"},
		{time.Hour, "1h"},
		{24 * time.Hour, "1d"},
		{7 * 24 * time.Hour, "7d"},
		{1500 * time.Millisecond, "1.5s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.expected {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.expected)
		}
	}
}

// ============================================================================
// Run
// ============================================================================

func TestRunCommand_WatchRequiresConfig(t *testing.T) {
	defer func() { runFlags.watch = false }()

	_, err := executeCommand(t, "run", "--watch")
	if err == nil || !strings.Contains(err.Error(), "--watch requires --config") {
		t.Errorf("Expected --watch error, got %v", err)
	}
}

func TestRunCommand_DryRun(t *testing.T) {
	defer func() { runFlags.dryRun = false }()

	out, err := executeCommand(t, "run", "--dry-run")
	if err != nil {
		t.Fatalf("dry run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "✓ Counter store opened (memory)") {
		t.Errorf("Expected store line, got:\n%s", out)
	}
	if !strings.Contains(out, "✓ Configuration valid") {
		t.Errorf("Expected validation line, got:\n%s", out)
	}
}
