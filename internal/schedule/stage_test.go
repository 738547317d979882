package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dungeonProfile() Profile {
	return Profile{Stages: []Stage{
		{Duration: 10 * time.Second, Target: 50},
		{Duration: 30 * time.Second, Target: 50},
		{Duration: 20 * time.Second, Target: 200},
		{Duration: time.Minute, Target: 200},
		{Duration: 20 * time.Second, Target: 500},
		{Duration: 2 * time.Minute, Target: 500},
		{Duration: 30 * time.Second, Target: 0},
	}}
}

func TestTargetAtLinearRamp(t *testing.T) {
	t.Parallel()

	p := Profile{Stages: []Stage{{Duration: 10 * time.Second, Target: 50}}}
	assert.Equal(t, 0, p.TargetAt(0))
	assert.Equal(t, 25, p.TargetAt(5*time.Second))
	assert.Equal(t, 50, p.TargetAt(10*time.Second))
	assert.Equal(t, 50, p.TargetAt(time.Hour))
}

func TestTargetAtLongStage(t *testing.T) {
	t.Parallel()

	day := 24 * time.Hour
	p := Profile{Stages: []Stage{
		{Duration: 200 * day, Target: 1000},
		{Duration: 200 * day, Target: 0},
	}}
	assert.Equal(t, 500, p.TargetAt(100*day))
	assert.Equal(t, 999, p.TargetAt(200*day-time.Second))
	assert.Equal(t, 500, p.TargetAt(300*day))
	assert.Equal(t, 1, p.TargetAt(400*day-time.Second))
}

func TestTargetAtFlat(t *testing.T) {
	t.Parallel()

	p := Flat(200, time.Minute)
	require.NoError(t, p.Validate())
	for off := time.Duration(0); off <= time.Minute; off += 7 * time.Second {
		assert.Equal(t, 200, p.TargetAt(off), "offset %s", off)
	}
	assert.Equal(t, time.Minute, p.TotalDuration())
	assert.Equal(t, 200, p.MaxTarget())
}

func TestTargetAtStaysBetweenBoundingStages(t *testing.T) {
	t.Parallel()

	p := dungeonProfile()
	from := 0
	var start time.Duration
	for i, s := range p.Stages {
		lo, hi := min(from, s.Target), max(from, s.Target)
		for off := start; off < start+s.Duration; off += 250 * time.Millisecond {
			got := p.TargetAt(off)
			assert.GreaterOrEqual(t, got, lo, "stage %d offset %s", i, off)
			assert.LessOrEqual(t, got, hi, "stage %d offset %s", i, off)
		}
		from = s.Target
		start += s.Duration
	}
}

func TestTargetAtPastEnd(t *testing.T) {
	t.Parallel()

	p := dungeonProfile()
	total := p.TotalDuration()
	assert.Equal(t, 4*time.Minute+50*time.Second, total)
	assert.Equal(t, 0, p.TargetAt(total))
	assert.Equal(t, 0, p.TargetAt(total+time.Hour))

	sustained := Profile{Stages: []Stage{{Duration: time.Second, Target: 3}, {Duration: time.Second, Target: 7}}}
	assert.Equal(t, 7, sustained.TargetAt(10*time.Second))
}

func TestTargetAtZeroDurationStage(t *testing.T) {
	t.Parallel()

	p := Profile{Stages: []Stage{
		{Duration: 2 * time.Second, Target: 10},
		{Duration: 0, Target: 4},
		{Duration: 2 * time.Second, Target: 4},
	}}
	assert.Equal(t, 5, p.TargetAt(time.Second))
	assert.Equal(t, 9, p.TargetAt(1999*time.Millisecond))
	assert.Equal(t, 4, p.TargetAt(2*time.Second))
	assert.Equal(t, 4, p.TargetAt(3*time.Second))
}

func TestStageAt(t *testing.T) {
	t.Parallel()

	p := dungeonProfile()
	assert.Equal(t, 0, p.StageAt(0))
	assert.Equal(t, 1, p.StageAt(10*time.Second))
	assert.Equal(t, 6, p.StageAt(4*time.Minute+30*time.Second))
	assert.Equal(t, 7, p.StageAt(4*time.Minute+50*time.Second))
	assert.Equal(t, 7, p.StageAt(time.Hour))
	assert.Equal(t, 0, Flat(3, time.Second).StageAt(time.Hour))
}

func TestProfileValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, dungeonProfile().Validate())
	})
	t.Run("negative values", func(t *testing.T) {
		t.Parallel()
		p := Profile{Stages: []Stage{{Duration: -time.Second, Target: 5}, {Duration: time.Second, Target: -1}}}
		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stage 1: duration can't be negative")
		assert.Contains(t, err.Error(), "stage 2: target can't be negative")
	})
	t.Run("all zero targets", func(t *testing.T) {
		t.Parallel()
		p := Profile{Stages: []Stage{{Duration: time.Second, Target: 0}}}
		assert.ErrorContains(t, p.Validate(), "greater than 0")
	})
	t.Run("empty flat", func(t *testing.T) {
		t.Parallel()
		assert.ErrorIs(t, Profile{VUs: 5}.Validate(), ErrNoStages)
	})
}

func TestParseStage(t *testing.T) {
	t.Parallel()

	s, err := ParseStage("1m30s:200")
	require.NoError(t, err)
	assert.Equal(t, Stage{Duration: 90 * time.Second, Target: 200}, s)
	assert.Equal(t, "1m30s:200", s.String())

	for _, bad := range []string{"", "10s", "ten:5", "10s:many"} {
		_, err := ParseStage(bad)
		assert.Error(t, err, bad)
	}
}
