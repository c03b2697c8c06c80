package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wepp/internal/config"
	"wepp/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	dataDir    string
}

func setupCLITestEnv(t *testing.T, recordings, segments int, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("REDCAP_API_TOKEN", "")
	t.Setenv("REDCAP_API_URL", "")
	opts = append([]testsupport.ConfigOption{testsupport.WithDefaultWindows([]float64{130, 160}, []float64{220, 240})}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		dataDir:    testsupport.WriteDataset(t, recordings, segments),
	}
}

func runCLI(t *testing.T, args []string, configPath string, opts ...contextOption) (string, string, error) {
	t.Helper()
	cmd := newRootCommand(opts...)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func runJSON(t *testing.T, env *cliTestEnv, v any, args ...string) {
	t.Helper()
	out, _, err := runCLI(t, append([]string{"--json"}, args...), env.configPath)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode %s output: %v\n%s", args[0], err, out)
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
workspace_dir = %q
log_dir = %q

[redcap]
enabled = %t
url = %q
token = %q

[picking]
positive_window = %s
negative_window = %s
channels = %s

[logging]
level = "error"
retention_days = 0
`,
		cfg.Paths.WorkspaceDir,
		cfg.Paths.LogDir,
		cfg.REDCap.Enabled,
		cfg.REDCap.URL,
		cfg.REDCap.Token,
		tomlFloats(cfg.Picking.PositiveWindow),
		tomlFloats(cfg.Picking.NegativeWindow),
		tomlStrings(cfg.Picking.Channels),
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func tomlFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.1f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func tomlStrings(values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
