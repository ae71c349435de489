package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ccollicutt/validata/pkg/config"
)

func executeArgs(t *testing.T, args ...string) (int, string) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	return execute(cmd, args), out.String()
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	want := []string{"check", "validate", "diagnose", "history", "serve", "version"}
	for _, name := range want {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Missing subcommand: %s", name)
		}
	}

	for _, flag := range []string{"log-level", "log-format"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("Missing persistent flag: %s", flag)
		}
	}
}

func TestExecute_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvHistory, filepath.Join(dir, "history.yaml"))
	t.Setenv(config.EnvConfigDir, filepath.Join(dir, "etc"))

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("all: '^[a-z]+$'\n"), 0644); err != nil {
		t.Fatal(err)
	}
	good := filepath.Join(dir, "good.txt")
	if err := os.WriteFile(good, []byte("abc\ndef\n"), 0644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte("abc\n123\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"all pass", []string{configPath, good}, 0},
		{"a file fails", []string{configPath, good, bad}, 1},
		{"missing config", []string{filepath.Join(dir, "nope.yaml"), good}, 2},
		{"too few args", []string{configPath}, 2},
		{"bad log level", []string{"--log-level", "loud", configPath, good}, 2},
		{"check subcommand", []string{"check", configPath, bad}, 1},
		{"validate subcommand", []string{"validate", configPath}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, out := executeArgs(t, tt.args...); got != tt.want {
				t.Errorf("exit code = %d, want %d\n%s", got, tt.want, out)
			}
		})
	}
}

func TestExecute_Version(t *testing.T) {
	code, out := executeArgs(t, "version")
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if !strings.HasPrefix(out, "validata ") {
		t.Errorf("Unexpected output: %q", out)
	}
}
