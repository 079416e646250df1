package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

func runCheckCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCheckCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestCheckCommandMissingArgs(t *testing.T) {
	_, err := runCheckCmd(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestCheckCommandNonExistentDir(t *testing.T) {
	_, err := runCheckCmd(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestCheckCommandEmptyDir(t *testing.T) {
	out, err := runCheckCmd(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestCheckCommandHarnessScenarios(t *testing.T) {
	out, err := runCheckCmd(t, "json", harnessScenarios, "--golden-dir", "../harness/testdata/golden")
	require.NoError(t, err, out)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(0), data["failed"])
	assert.Equal(t, float64(7), data["total"])
}

func TestCheckCommandFilter(t *testing.T) {
	out, err := runCheckCmd(t, "text", harnessScenarios, "--filter", "delete_*", "--golden-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "✓ delete_keeps_remaining_weight")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestCheckCommandUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	src, err := os.ReadFile(filepath.Join(harnessScenarios, "idempotent_delete.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "idempotent_delete.yaml"), src, 0644))

	_, err = runCheckCmd(t, "text", dir, "--update")
	require.NoError(t, err)
	golden := filepath.Join(dir, "golden", "idempotent_delete.golden")
	require.FileExists(t, golden)

	_, err = runCheckCmd(t, "text", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"stale"}`), 0644))
	out, err := runCheckCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestCheckCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`name: wrong
catalog: |
  category: Gold: subcategories: ["Ring"]
flow:
  - op: insert
    ref: a
    category: Gold
    subcategory: Ring
    item: {name: A, quantity: 1, gross_weight: 1, net_weight: 1, fine_weight: 1, purity: 24K, charge_type: per_gram, entry_type: manual}
assertions:
  - type: totals
    category: Gold
    expect: {gross_weight: 2}
`), 0644))

	out, err := runCheckCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "0 passed, 1 failed, 1 total")
}
