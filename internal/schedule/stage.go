package schedule

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"time"
)

var ErrNoStages = errors.New("profile has no stages and no flat duration")

// Stage is one segment of the ramp profile: over Duration the number of
// virtual users moves linearly towards Target.
type Stage struct {
	Duration time.Duration `json:"duration" yaml:"duration" mapstructure:"duration"`
	Target   int           `json:"target" yaml:"target" mapstructure:"target"`
}

func (s Stage) String() string {
	return fmt.Sprintf("%s:%d", s.Duration, s.Target)
}

// ParseStage parses the "duration:target" shorthand, e.g. "30s:50".
func ParseStage(s string) (Stage, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return Stage{}, fmt.Errorf("invalid stage %q: expected duration:target", s)
	}
	d, err := time.ParseDuration(strings.TrimSpace(parts[0]))
	if err != nil {
		return Stage{}, fmt.Errorf("invalid stage %q: %w", s, err)
	}
	t, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Stage{}, fmt.Errorf("invalid stage %q: %w", s, err)
	}
	return Stage{Duration: d, Target: t}, nil
}

// Profile describes the load shape of a run. With Stages empty it is a flat
// run of VUs users for Duration.
type Profile struct {
	Stages []Stage

	VUs      int
	Duration time.Duration
}

// Flat returns a fixed-concurrency profile.
func Flat(vus int, d time.Duration) Profile {
	return Profile{VUs: vus, Duration: d}
}

// IsFlat reports whether the profile runs a constant number of users.
func (p Profile) IsFlat() bool {
	return len(p.Stages) == 0
}

func (p Profile) Validate() error {
	var errs []error
	if p.IsFlat() {
		if p.VUs <= 0 {
			errs = append(errs, fmt.Errorf("flat profile needs a positive number of VUs, got %d", p.VUs))
		}
		if p.Duration <= 0 {
			errs = append(errs, ErrNoStages)
		}
		return errors.Join(errs...)
	}
	for i, s := range p.Stages {
		if s.Duration < 0 {
			errs = append(errs, fmt.Errorf("stage %d: duration can't be negative", i+1))
		}
		if s.Target < 0 {
			errs = append(errs, fmt.Errorf("stage %d: target can't be negative", i+1))
		}
	}
	if p.TotalDuration() <= 0 {
		errs = append(errs, fmt.Errorf("stages must add up to a positive duration"))
	}
	if p.MaxTarget() <= 0 {
		errs = append(errs, fmt.Errorf("at least one stage needs a target greater than 0"))
	}
	return errors.Join(errs...)
}

// TotalDuration is the run deadline: the summed stage durations, or the flat
// duration.
func (p Profile) TotalDuration() time.Duration {
	if p.IsFlat() {
		return p.Duration
	}
	var total time.Duration
	for _, s := range p.Stages {
		total += s.Duration
	}
	return total
}

// MaxTarget is the concurrency ceiling of the profile.
func (p Profile) MaxTarget() int {
	if p.IsFlat() {
		return max(p.VUs, 0)
	}
	m := 0
	for _, s := range p.Stages {
		m = max(m, s.Target)
	}
	return m
}

// StageAt returns the index of the stage containing elapsed, or len(Stages)
// once the profile is over. Flat profiles always report 0.
func (p Profile) StageAt(elapsed time.Duration) int {
	if p.IsFlat() {
		return 0
	}
	var end time.Duration
	for i, s := range p.Stages {
		end += s.Duration
		if elapsed < end {
			return i
		}
	}
	return len(p.Stages)
}

// TargetAt returns the number of users the profile asks for at elapsed.
func (p Profile) TargetAt(elapsed time.Duration) int {
	if p.IsFlat() {
		return max(p.VUs, 0)
	}
	if elapsed < 0 {
		elapsed = 0
	}

	from := 0
	var start time.Duration
	for _, s := range p.Stages {
		end := start + s.Duration
		if elapsed < end {
			// s.Duration > 0 here, zero-length stages never contain elapsed
			return p.clamp(from + ramp(s.Target-from, elapsed-start, s.Duration))
		}
		from = s.Target
		start = end
	}
	return p.clamp(from)
}

// ramp returns delta*progress/span truncated toward zero, for
// 0 <= progress < span. The product is taken in 128 bits.
func ramp(delta int, progress, span time.Duration) int {
	neg := delta < 0
	d := uint64(delta)
	if neg {
		d = uint64(-delta)
	}
	hi, lo := bits.Mul64(d, uint64(progress))
	q, _ := bits.Div64(hi, lo, uint64(span))
	if neg {
		return -int(q)
	}
	return int(q)
}

func (p Profile) clamp(v int) int {
	return min(max(v, 0), p.MaxTarget())
}
