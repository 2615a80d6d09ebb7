// cmd/supportanon/main_test.go
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Generated tokens never contain '-', so these names cannot reappear by chance.
const testInventory = `
nodes: [build-agent-7]
users: [jdoe-42]
`

// run executes the CLI with args and returns stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// setup initializes a data root with a small inventory and returns the config path.
func setup(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "etc", "config.yaml")
	dataRoot := filepath.Join(dir, "data")

	if _, err := run(t, "", "init", "-c", configPath, "--data-root", dataRoot); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataRoot, "inventory.yaml"), []byte(testInventory), 0644); err != nil {
		t.Fatal(err)
	}
	return configPath, dataRoot
}

func TestInit(t *testing.T) {
	configPath, dataRoot := setup(t)

	for _, p := range []string{configPath, filepath.Join(dataRoot, "secrets")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}

	out, err := run(t, "", "init", "-c", configPath, "--data-root", dataRoot)
	if err != nil {
		t.Fatalf("second init failed: %v", err)
	}
	if !strings.Contains(out, "Keeping existing") {
		t.Errorf("second init should keep the config, got %q", out)
	}
}

func TestFilterStdin(t *testing.T) {
	configPath, _ := setup(t)

	out, err := run(t, "jdoe-42 on build-agent-7\npassword=hunter2\n", "filter", "-c", configPath)
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	for _, secret := range []string{"jdoe-42", "build-agent-7", "hunter2"} {
		if strings.Contains(out, secret) {
			t.Errorf("output %q still contains %q", out, secret)
		}
	}
	if !strings.HasSuffix(out, "password=REDACTED\n") {
		t.Errorf("output %q should end with the redacted line", out)
	}
}

func TestFilterFiles(t *testing.T) {
	configPath, dataRoot := setup(t)
	log := filepath.Join(dataRoot, "build.log")
	os.WriteFile(log, []byte("started by jdoe-42\n"), 0644)
	missing := filepath.Join(dataRoot, "missing.log")

	out, err := run(t, "", "filter", "-c", configPath, log, missing)
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	if strings.Contains(out, "jdoe-42") {
		t.Errorf("output %q still contains jdoe-42", out)
	}
	if !strings.Contains(out, "--- WARNING: Could not attach "+missing) {
		t.Errorf("output %q should warn about the missing file", out)
	}
}

func TestMappingsAndLookup(t *testing.T) {
	configPath, _ := setup(t)

	out, err := run(t, "", "mappings", "-c", configPath, "-o", "json", "--category", "user")
	if err != nil {
		t.Fatalf("mappings failed: %v", err)
	}
	var rows []mappingRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("invalid json %q: %v", out, err)
	}
	if len(rows) != 1 || rows[0].Original != "jdoe-42" || !strings.HasPrefix(rows[0].Replacement, "user_") {
		t.Fatalf("rows = %+v, want one user mapping for jdoe-42", rows)
	}

	out, err = run(t, "", "lookup", "-c", configPath, rows[0].Replacement)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !strings.Contains(out, "jdoe-42") {
		t.Errorf("lookup output %q should name jdoe-42", out)
	}

	if _, err := run(t, "", "lookup", "-c", configPath, "nobody"); err == nil {
		t.Error("lookup of an unknown name should fail")
	}
	if _, err := run(t, "", "mappings", "-c", configPath, "--category", "planet"); err == nil {
		t.Error("unknown category should fail")
	}
}

func TestMappingsPersistAcrossRuns(t *testing.T) {
	configPath, _ := setup(t)

	a, err := run(t, "jdoe-42\n", "filter", "-c", configPath)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := run(t, "jdoe-42\n", "filter", "-c", configPath)
	if a != b || a == "jdoe-42\n" {
		t.Errorf("replacement should be stable across runs: %q vs %q", a, b)
	}
}

func TestRefreshAndClear(t *testing.T) {
	configPath, dataRoot := setup(t)

	os.WriteFile(filepath.Join(dataRoot, "inventory.yaml"), []byte(testInventory+"views: [ops]\n"), 0644)
	out, err := run(t, "", "refresh", "-c", configPath)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if !strings.Contains(out, "Refreshed mappings:") {
		t.Errorf("refresh output = %q", out)
	}

	if _, err := run(t, "", "clear", "-c", configPath); err == nil {
		t.Error("clear without --yes should fail")
	}
	if _, err := run(t, "", "clear", "-c", configPath, "--yes"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "", "mappings", "-c", filepath.Join(t.TempDir(), "none.yaml"))
	if err == nil || !strings.Contains(err.Error(), "supportanon init") {
		t.Errorf("error = %v, want a hint to run init", err)
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, s := range []string{"", "table", "JSON", "yaml"} {
		if _, err := parseOutputFormat(s); err != nil {
			t.Errorf("parseOutputFormat(%q) error = %v", s, err)
		}
	}
	if _, err := parseOutputFormat("xml"); err == nil {
		t.Error("xml should be rejected")
	}
}
