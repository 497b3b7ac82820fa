// ABOUTME: Tests for the cvetrack command line.
// ABOUTME: Tests flag and environment configuration, invocation errors, and exit status mapping.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jfeddern/CVETrack/internal/runner"
	"github.com/jfeddern/CVETrack/internal/types"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testReport = `{
	"version": "1",
	"package": [
		{
			"name": "libfoo",
			"layer": "core",
			"version": "1.0",
			"products": [{"product": "libfoo", "cvesInRecord": "Yes"}],
			"issue": [{"id": "CVE-1", "status": "Unpatched"}]
		}
	]
}`

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func execute(v *viper.Viper, args ...string) error {
	if args == nil {
		args = []string{}
	}

	cmd := newRootCmd(v, testLogger())
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "success", err: nil, expected: 0},
		{name: "not found", err: types.Errorf(types.CodeNotFound, "Failed to find report.json"), expected: 255},
		{name: "malformed", err: types.Errorf(types.CodeMalformed, "Failed to decode"), expected: 254},
		{name: "no data", err: types.Errorf(types.CodeNoData, "No current data"), expected: 253},
		{name: "unknown kind", err: types.Errorf(types.CodeUnknownKind, "Unknown read type"), expected: 252},
		{name: "wrapped classified", err: fmt.Errorf("run: %w", types.Errorf(types.CodeNoData, "No current data")), expected: 253},
		{name: "usage", err: &usageError{err: errors.New("accepts 1 arg(s), received 0")}, expected: exitUsage},
		{name: "other", err: errors.New("disk full"), expected: exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, exitStatus(tt.err))
		})
	}
}

func TestBuildConfigDefaults(t *testing.T) {
	v := viper.New()
	newRootCmd(v, testLogger())

	config := buildConfig(v, "cve-summary.json")

	assert.Equal(t, "cve-summary.json", config.ReportFile)
	assert.Equal(t, runner.DefaultPatchedFile, config.PatchedFile)
	assert.Equal(t, runner.DefaultUnpatchedFile, config.UnpatchedFile)
	assert.Equal(t, runner.DefaultChangedFile, config.ChangedFile)
	assert.Empty(t, config.VEXFile)
	assert.Empty(t, config.MetricsFile)
	assert.Equal(t, "cvetrack", config.VEXAuthor)
	assert.Equal(t, []string{"Patched", "Ignored"}, config.ResolvedStatuses)
}

func TestBuildConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("CVETRACK_PATCHED", "/state/patched.json")
	t.Setenv("CVETRACK_METRICS_FILE", "/var/lib/node_exporter/cvetrack.prom")
	t.Setenv("CVETRACK_VEX_AUTHOR", "release-team")

	v := viper.New()
	newRootCmd(v, testLogger())

	config := buildConfig(v, "cve-summary.json")

	assert.Equal(t, "/state/patched.json", config.PatchedFile)
	assert.Equal(t, "/var/lib/node_exporter/cvetrack.prom", config.MetricsFile)
	assert.Equal(t, "release-team", config.VEXAuthor)
	assert.Equal(t, runner.DefaultUnpatchedFile, config.UnpatchedFile)
}

func TestExecute(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "cve-summary.json")
	require.NoError(t, os.WriteFile(reportPath, []byte(testReport), 0o644))

	patched := filepath.Join(dir, "out", "patched.json")
	unpatched := filepath.Join(dir, "out", "unpatched.json")
	changed := filepath.Join(dir, "out", "changed.json")

	err := execute(viper.New(), reportPath,
		"--patched", patched,
		"--unpatched", unpatched,
		"--changed", changed,
		"--log-format", "text",
	)
	require.NoError(t, err)

	for _, path := range []string{patched, unpatched, changed} {
		assert.FileExists(t, path)
	}
}

func TestExecuteErrors(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "cve-summary.json")
	require.NoError(t, os.WriteFile(reportPath, []byte(testReport), 0o644))
	emptyPath := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(emptyPath, []byte(`{"package": []}`), 0o644))

	state := func(name string) []string {
		return []string{
			"--patched", filepath.Join(dir, name, "patched.json"),
			"--unpatched", filepath.Join(dir, name, "unpatched.json"),
			"--changed", filepath.Join(dir, name, "changed.json"),
		}
	}

	tests := []struct {
		name     string
		args     []string
		expected int
	}{
		{name: "missing positional argument", args: nil, expected: exitUsage},
		{name: "too many arguments", args: []string{reportPath, reportPath}, expected: exitUsage},
		{name: "unknown flag", args: []string{reportPath, "--nope"}, expected: exitUsage},
		{name: "invalid log format", args: append([]string{reportPath, "--log-format", "xml"}, state("a")...), expected: exitUsage},
		{name: "report not found", args: append([]string{filepath.Join(dir, "absent.json")}, state("b")...), expected: 255},
		{name: "report without packages", args: append([]string{emptyPath}, state("c")...), expected: 253},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(viper.New(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.expected, exitStatus(err))
		})
	}

	for _, name := range []string{"a", "b", "c"} {
		assert.NoDirExists(t, filepath.Join(dir, name), "failed runs must not create state files")
	}
}
