package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activity-cli/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_EndToEnd(t *testing.T) {
	dir := chdirTemp(t)
	t.Setenv("ACTIVITY_ANTHROPIC_KEY", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
store:
  driver: sqlite
  sqlite_path: cli.db
log:
  level: error
`), 0o644))

	_, err := execute(t, "", "migrate")
	require.NoError(t, err)

	out, err := execute(t, "", "staff", "add", "Staff-01", "--name", "Jane Doe", "--alias", "Jane D")
	require.NoError(t, err)
	assert.Contains(t, out, "1 staff member(s) saved")

	block := "[09:34, 12/10/2025] Staff-01: 1) Follow up client A 2) attend meeting"
	out, err = execute(t, block, "parse", "-")
	require.NoError(t, err)
	var res model.ParseResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Len(t, res.ParsedItems, 2)

	blockPath := filepath.Join(dir, "block.txt")
	require.NoError(t, os.WriteFile(blockPath, []byte(block), 0o644))
	out, err = execute(t, "", "apply", blockPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 item(s) applied")

	csvPath := filepath.Join(dir, "out.csv")
	_, err = execute(t, "", "export", "--format", "csv", "--out", csvPath, "--staff", "Staff-01", "--from", "2025-10-01")
	require.NoError(t, err)
	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-10-12", rows[1][0])
	assert.Equal(t, "Jane Doe", rows[1][1])
	assert.Equal(t, "Follow up client A; attend meeting", rows[1][4])

	out, err = execute(t, "", "staff", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Staff-01")
	assert.Contains(t, out, "Jane D")
}

func TestCLI_ExportUnknownStaff(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store:\n  sqlite_path: cli.db\nlog:\n  level: error\n"), 0o644))

	_, err := execute(t, "", "export", "--format", "csv", "--out", "-", "--staff", "Nobody", "--from", "", "--to", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown staff code")
}

func TestCLI_InvalidConfig(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store:\n  driver: oracle\nlog:\n  level: error\n"), 0o644))

	_, err := execute(t, "", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store.driver")
}

func TestReadBlock(t *testing.T) {
	got, err := readBlock(strings.NewReader("from stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	_, err = readBlock(nil, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
