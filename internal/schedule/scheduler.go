package schedule

import (
	"time"
)

const DefaultTick = time.Second

// Scheduler turns a Profile into per-tick targets. The target only changes on
// tick boundaries and never moves by more than MaxStep users per tick; any
// remaining difference is carried over to later ticks.
type Scheduler struct {
	Profile Profile
	Tick    time.Duration
	MaxStep int // 0 means unlimited

	current  int
	lastTick int64
	started  bool
}

func NewScheduler(p Profile, tick time.Duration, maxStep int) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{Profile: p, Tick: tick, MaxStep: maxStep}
}

// Next returns the target for the tick that contains elapsed. Repeated calls
// within the same tick return the same value.
func (s *Scheduler) Next(elapsed time.Duration) int {
	tick := int64(elapsed / s.Tick)
	if s.started && tick == s.lastTick {
		return s.current
	}
	want := s.Profile.TargetAt(time.Duration(tick) * s.Tick)

	from := s.current
	if !s.started {
		from = 0
		s.started = true
	}
	s.lastTick = tick
	s.current = s.limit(from, want)
	return s.current
}

// Current is the last target handed out by Next.
func (s *Scheduler) Current() int {
	return s.current
}

func (s *Scheduler) limit(from, want int) int {
	if s.MaxStep <= 0 {
		return want
	}
	switch {
	case want > from+s.MaxStep:
		return from + s.MaxStep
	case want < from-s.MaxStep:
		return from - s.MaxStep
	}
	return want
}

// Step is one entry of a precomputed plan.
type Step struct {
	Offset time.Duration
	Target int
}

// Plan lists the target of every tick from 0 to the end of the profile,
// collapsing consecutive ticks with the same target.
func Plan(p Profile, tick time.Duration, maxStep int) []Step {
	s := NewScheduler(p, tick, maxStep)
	total := p.TotalDuration()

	var steps []Step
	for off := time.Duration(0); off <= total; off += s.Tick {
		t := s.Next(off)
		if len(steps) > 0 && steps[len(steps)-1].Target == t {
			continue
		}
		steps = append(steps, Step{Offset: off, Target: t})
	}
	return steps
}
