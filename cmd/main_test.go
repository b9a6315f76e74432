// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/openbraininstitute/obi-linkcheck/internal/observability"
)

// resetForTest isolates a test from config files, the environment and the
// global logger, and points every output at a temporary directory.
func resetForTest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfgFile = ""
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)

	t.Setenv("OBI_LINKCHECK_LOGGER_LEVEL", "fatal")
	t.Setenv("OBI_LINKCHECK_LOGGER_LOG_FILE", filepath.Join(dir, "report.log"))
	t.Setenv("OBI_LINKCHECK_REPORT_DIR", filepath.Join(dir, "reports"))
	t.Setenv("OBI_LINKCHECK_REPORT_LINK_LOG_DIR", dir)
	t.Setenv("OBI_LINKCHECK_DATABASE_URL", "")
	t.Setenv("LAB_ID_STAGING", "lab-1")
	t.Setenv("PROJECT_ID_STAGING", "project-1")
	return dir
}

// executeCommand runs the root command with args and returns its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// findCommand returns the subcommand named name.
func findCommand(t *testing.T, root *cobra.Command, name string) *cobra.Command {
	t.Helper()
	c, _, err := root.Find([]string{name})
	require.NoError(t, err)
	return c
}
