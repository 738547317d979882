package cmd

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonload/internal/target"
)

// execute runs the command tree with fresh flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	reset := func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	reset(rootCmd)
	for _, c := range rootCmd.Commands() {
		reset(c)
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDryRunPrintsPlan(t *testing.T) {
	out, err := execute(t, "--dry-run", "--stage", "10s:50", "--tick", "5s",
		"--threshold", "checks{check:game played} rate>0.9")
	require.NoError(t, err)

	assert.Contains(t, out, "Duration : 10s, max 50 VUs")
	assert.Regexp(t, `0s\s+0\n`, out)
	assert.Regexp(t, `5s\s+25\n`, out)
	assert.Regexp(t, `10s\s+50\n`, out)
	assert.Contains(t, out, "checks{check:game played} rate>0.9")
	assert.Contains(t, out, "http_req_duration p(95)<200")
}

func TestDryRunDefaultProfile(t *testing.T) {
	out, err := execute(t, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Duration : 4m50s, max 500 VUs")
}

func TestRunRejectsBadConfig(t *testing.T) {
	_, err := execute(t, "--dry-run", "--variant", "turbo")
	assert.ErrorContains(t, err, "unknown variant")

	_, err = execute(t, "--dry-run", "--stage", "fast:10")
	assert.Error(t, err)
}

func TestRunAgainstTargetRecordsHistory(t *testing.T) {
	srv := httptest.NewServer(target.New(target.ServerConfig{}).Handler())
	defer srv.Close()
	db := filepath.Join(t.TempDir(), "history.db")

	out, err := execute(t,
		"--base-url", srv.URL,
		"--vus", "2", "--duration", "1s",
		"--think-time-max", "0", "--start-delay", "0", "--end-pause", "0",
		"--tick", "100ms", "--graceful-stop", "5s",
		"--history-db", db,
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "STARTING DUNGEONLOAD")
	assert.Contains(t, out, "=> PASSED")
	assert.Contains(t, out, "saved to "+db)

	out, err = execute(t, "history", "list", "--history-db", db)
	require.NoError(t, err)
	assert.Contains(t, out, srv.URL)
	assert.Contains(t, out, "pass")

	_, err = execute(t, "history", "show", "nope", "--history-db", db)
	assert.Error(t, err)
}

func TestFailingThresholdsReturnSentinel(t *testing.T) {
	srv := httptest.NewServer(target.New(target.ServerConfig{ErrorRate: 1}).Handler())
	defer srv.Close()

	_, err := execute(t,
		"--base-url", srv.URL,
		"--vus", "1", "--duration", "500ms",
		"--think-time-max", "0", "--start-delay", "0", "--end-pause", "0",
		"--tick", "100ms",
		"--no-history",
		"--log-level", "error",
	)
	assert.ErrorIs(t, err, errThresholds)
}
