package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ciwatch.yaml")
	data := fmt.Sprintf(`
store:
  path: %s
state:
  path: %s
logging:
  output: %s
%s`, filepath.Join(dir, "ciwatch.db"), filepath.Join(dir, "state.json"), filepath.Join(dir, "ciwatch.log"), extra)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file="))
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	path := writeConfig(t, "")
	out, err := execute(t, "validate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration validation successful")

	bad := writeConfig(t, "alerting:\n  window_size: -1\n")
	_, err = execute(t, "validate", "-c", bad)
	assert.ErrorContains(t, err, "window_size")

	_, err = execute(t, "validate", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ciwatch")
	assert.Contains(t, out, "Commit:")
}

func TestSeedThenEvaluate(t *testing.T) {
	path := writeConfig(t, "")

	out, err := execute(t, "seed", "-c", path, "--runs", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded")

	out, err = execute(t, "evaluate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "unit-test (amd64)")

	// Notified runs are not alerted again.
	out, err = execute(t, "evaluate", "-c", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "unit-test (amd64)")
}

func TestSeedRejectsNonPositiveRuns(t *testing.T) {
	path := writeConfig(t, "")
	_, err := execute(t, "seed", "-c", path, "--runs", "0")
	assert.ErrorContains(t, err, "--runs must be positive")
}

func TestIngestWithoutRepository(t *testing.T) {
	path := writeConfig(t, "")
	_, err := execute(t, "ingest", "-c", path)
	assert.ErrorContains(t, err, "no repository configured")
}

func TestRunFailsOnUnwritableState(t *testing.T) {
	path := writeConfig(t, "")
	_, err := execute(t, "seed", "-c", path, "--runs", "10")
	require.NoError(t, err)

	// A directory in place of the state file cannot be read or written.
	t.Setenv("CIWATCH_STATE_PATH", t.TempDir())

	_, err = execute(t, "run", "-c", path)
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CIWATCH_TEST_ENV_FILE=loaded\n"), 0644))

	t.Setenv("CIWATCH_TEST_ENV_FILE", "")
	os.Unsetenv("CIWATCH_TEST_ENV_FILE")
	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "loaded", os.Getenv("CIWATCH_TEST_ENV_FILE"))

	assert.NoError(t, loadEnvFile(filepath.Join(dir, "missing.env")))
	assert.NoError(t, loadEnvFile(""))
}
