package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dungeonload/internal/schedule"
	"dungeonload/internal/threshold"
	"dungeonload/internal/workload"
)

func defaults(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestDefaultProfileMatchesBuiltInRamp(t *testing.T) {
	t.Parallel()

	f := DefaultProfile()
	want := []schedule.Stage{
		{Duration: 10 * time.Second, Target: 50},
		{Duration: 30 * time.Second, Target: 50},
		{Duration: 20 * time.Second, Target: 200},
		{Duration: time.Minute, Target: 200},
		{Duration: 20 * time.Second, Target: 500},
		{Duration: 2 * time.Minute, Target: 500},
		{Duration: 30 * time.Second, Target: 0},
	}
	assert.Equal(t, want, f.Stages)
	assert.Equal(t, map[string][]string{
		"http_req_failed":   {"rate<0.01"},
		"http_req_duration": {"p(95)<200"},
	}, f.Thresholds)
	assert.Equal(t, 4*time.Minute+50*time.Second, f.Profile().TotalDuration())
	assert.Equal(t, 500, f.Profile().MaxTarget())
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	c, err := Load(defaults(t))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.BaseURL)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, 10*time.Second, c.StartDelay)
	assert.Equal(t, time.Second, c.EndPause)
	assert.Equal(t, workload.DefaultBoardBounds, c.Board)
	assert.Equal(t, workload.DefaultNameTemplates, c.Names)
	assert.Equal(t, schedule.DefaultTick, c.Tick)
	assert.Equal(t, "console", c.Log.Format)

	p, set, err := c.LoadShape()
	require.NoError(t, err)
	assert.Len(t, p.Stages, 7)
	require.Len(t, set, 2)
	assert.Equal(t, threshold.MetricReqDuration, set[0].Metric)
	assert.Equal(t, threshold.MetricReqFailed, set[1].Metric)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DUNGEONLOAD_BASE_URL", "https://dungeon.example.com/")
	t.Setenv("DUNGEONLOAD_BOARD_MAX_SIZE", "8")
	t.Setenv("DUNGEONLOAD_STAGES", "10s:5,20s:0")
	t.Setenv("DUNGEONLOAD_SEED", "42")

	v, err := New(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "an explicit config file must exist")
	assert.Nil(t, v)

	v = viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 8, c.Board.MaxSize)
	assert.EqualValues(t, 42, c.Seed)

	opts, err := c.Workload()
	require.NoError(t, err)
	assert.Equal(t, "https://dungeon.example.com", opts.BaseURL)

	p, _, err := c.LoadShape()
	require.NoError(t, err)
	assert.Equal(t, []schedule.Stage{
		{Duration: 10 * time.Second, Target: 5},
		{Duration: 20 * time.Second, Target: 0},
	}, p.Stages)
}

func TestConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dungeonload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: http://10.0.0.7:9000
variant: basic
vus: 20
duration: 45s
thresholds:
  - "http_req_duration{endpoint:GET /api/games} p(99) < 400"
board:
  min_size: 2
  max_size: 3
`), 0o600))

	v, err := New(path)
	require.NoError(t, err)
	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "basic", c.Variant)
	assert.Equal(t, 3, c.Board.MaxSize)
	assert.Equal(t, -10, c.Board.MinVal, "unset nested keys keep their defaults")

	p, set, err := c.LoadShape()
	require.NoError(t, err)
	assert.Equal(t, schedule.Flat(20, 45*time.Second), p)
	require.Len(t, set, 3)
	assert.Equal(t, "endpoint:GET /api/games", set[1].Selector)
	assert.Equal(t, "http_req_duration{endpoint:GET /api/games} p(99) < 400", set[1].String())
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()

	v := defaults(t)
	v.Set("base_url", "localhost")
	v.Set("variant", "turbo")
	v.Set("board.min_size", 0)
	v.Set("vus", 10)
	v.Set("log.format", "xml")

	_, err := Load(v)
	require.Error(t, err)
	for _, want := range []string{"base_url", "unknown variant", "min_size", "vus and duration", "log.format"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestThresholdOverridesReplaceProfileMetric(t *testing.T) {
	t.Parallel()

	c, err := Load(defaults(t))
	require.NoError(t, err)
	c.Thresholds = []string{"http_req_duration p(90)<100", "http_req_duration max<1000"}

	_, set, err := c.LoadShape()
	require.NoError(t, err)
	require.Len(t, set, 3)
	assert.Equal(t, "p(90)", set[0].Aggregation)
	assert.Equal(t, "max", set[1].Aggregation)
	assert.Equal(t, threshold.MetricReqFailed, set[2].Metric)

	c.Thresholds = []string{"http_req_duration"}
	_, _, err = c.LoadShape()
	assert.ErrorIs(t, err, threshold.ErrSyntax)
}

func TestProfileFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	c, err := Load(defaults(t))
	require.NoError(t, err)

	c.Profile = write("smoke.yaml", "stages:\n  - {duration: 5s, target: 2}\nthresholds:\n  checks: [rate>0.9]\n")
	p, set, err := c.LoadShape()
	require.NoError(t, err)
	assert.Equal(t, []schedule.Stage{{Duration: 5 * time.Second, Target: 2}}, p.Stages)
	require.Len(t, set, 1)
	assert.Equal(t, threshold.MetricChecks, set[0].Metric)

	c.Stages = []string{"1s:1"}
	p, _, err = c.LoadShape()
	require.NoError(t, err)
	assert.Equal(t, []schedule.Stage{{Duration: time.Second, Target: 1}}, p.Stages, "stages win over the profile file")

	c.Stages = nil
	c.Profile = write("typo.yaml", "stagez: []\n")
	_, _, err = c.LoadShape()
	assert.Error(t, err)

	c.Profile = write("both.yaml", "vus: 3\nduration: 1s\nstages:\n  - {duration: 1s, target: 1}\n")
	_, _, err = c.LoadShape()
	assert.Error(t, err)

	c.Profile = filepath.Join(dir, "absent.yaml")
	_, _, err = c.LoadShape()
	assert.Error(t, err)
}

func TestSplitThreshold(t *testing.T) {
	t.Parallel()

	m, e, err := SplitThreshold("checks{check:game played} rate>=0.99")
	require.NoError(t, err)
	assert.Equal(t, "checks{check:game played}", m)
	assert.Equal(t, "rate>=0.99", e)

	m, e, err = SplitThreshold("  http_req_failed rate < 0.01 ")
	require.NoError(t, err)
	assert.Equal(t, "http_req_failed", m)
	assert.Equal(t, "rate < 0.01", e)

	_, _, err = SplitThreshold("checks{check:x}")
	assert.Error(t, err)
}
