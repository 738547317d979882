package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrNoCapacity = errors.New("pool needs at least one virtual user slot")

// State is the lifecycle tag of a virtual user.
type State int

const (
	StateActive State = iota
	// StateRetiring users finish their current iteration and then leave.
	StateRetiring
	// StateExhausted users ran all their iterations. They keep their slot so
	// the pool does not spawn a replacement.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRetiring:
		return "retiring"
	case StateExhausted:
		return "exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Iterator runs one workflow iteration for a single virtual user. It is only
// ever called from that user's goroutine.
type Iterator interface {
	Iterate(ctx context.Context, iteration int64)
}

// IteratorFunc adapts a function to Iterator.
type IteratorFunc func(ctx context.Context, iteration int64)

func (f IteratorFunc) Iterate(ctx context.Context, iteration int64) { f(ctx, iteration) }

// UserFactory builds the per-user session state when a user is spawned.
type UserFactory interface {
	NewUser(id int64) Iterator
}

// FactoryFunc adapts a function to UserFactory.
type FactoryFunc func(id int64) Iterator

func (f FactoryFunc) NewUser(id int64) Iterator { return f(id) }

type VirtualUser struct {
	ID        int64
	StartedAt time.Time

	state State
}

type Options struct {
	// MaxVUs caps the number of tracked users, retiring ones included.
	MaxVUs int
	// IterationsPerVU > 0 stops each user after that many iterations.
	IterationsPerVU int64
	Logger          *zap.Logger
	// OnPanic is called after a panicking iteration has been recovered.
	OnPanic func(vu int64, recovered any)
}

// Pool owns the virtual users of a run. Scale is expected to be called from a
// single scheduling goroutine; the introspection methods are safe anywhere.
type Pool struct {
	factory UserFactory
	opts    Options
	log     *zap.Logger

	mu      sync.Mutex
	users   []*VirtualUser // ordered by start time
	nextID  int64
	stopped bool

	wg sync.WaitGroup
}

func New(factory UserFactory, opts Options) (*Pool, error) {
	if opts.MaxVUs <= 0 {
		return nil, ErrNoCapacity
	}
	if factory == nil {
		return nil, errors.New("pool needs a user factory")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{factory: factory, opts: opts, log: log}, nil
}

// Scale moves the number of active users towards target. Retiring users are
// revived before new ones are spawned; when MaxVUs is reached the shortfall
// waits for the next call. Excess users are retired newest first. It returns
// the number of users holding a slot towards the target.
func (p *Pool) Scale(ctx context.Context, target int) int {
	if target < 0 {
		target = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return 0
	}

	held := p.countLocked(StateActive) + p.countLocked(StateExhausted)
	revived, spawned, retired := 0, 0, 0

	for i := len(p.users) - 1; i >= 0 && held < target; i-- {
		if u := p.users[i]; u.state == StateRetiring {
			u.state = StateActive
			held++
			revived++
		}
	}
	for held < target && len(p.users) < p.opts.MaxVUs {
		p.spawnLocked(ctx)
		held++
		spawned++
	}
	for i := len(p.users) - 1; i >= 0 && held > target; i-- {
		if u := p.users[i]; u.state == StateActive {
			u.state = StateRetiring
			held--
			retired++
		}
	}

	if revived+spawned+retired > 0 {
		p.log.Debug("pool scaled",
			zap.Int("target", target),
			zap.Int("held", held),
			zap.Int("revived", revived),
			zap.Int("spawned", spawned),
			zap.Int("retired", retired),
			zap.Int("size", len(p.users)),
		)
	}
	return held
}

func (p *Pool) spawnLocked(ctx context.Context) {
	p.nextID++
	u := &VirtualUser{ID: p.nextID, StartedAt: time.Now()}
	p.users = append(p.users, u)
	it := p.factory.NewUser(u.ID)

	p.wg.Add(1)
	go p.loop(ctx, u, it)
}

func (p *Pool) loop(ctx context.Context, u *VirtualUser, it Iterator) {
	defer p.wg.Done()
	for i := int64(0); ; i++ {
		if !p.proceed(ctx, u, i) {
			return
		}
		p.iterate(ctx, u, it, i)
	}
}

// proceed decides under the lock whether u starts iteration i, so a revive in
// Scale can never race a user that is leaving.
func (p *Pool) proceed(ctx context.Context, u *VirtualUser, i int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case u.state == StateRetiring || ctx.Err() != nil:
		p.removeLocked(u)
		return false
	case p.opts.IterationsPerVU > 0 && i >= p.opts.IterationsPerVU:
		u.state = StateExhausted
		return false
	}
	return true
}

func (p *Pool) iterate(ctx context.Context, u *VirtualUser, it Iterator, i int64) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("iteration panicked",
				zap.Int64("vu", u.ID),
				zap.Int64("iteration", i),
				zap.Any("panic", r),
			)
			if p.opts.OnPanic != nil {
				p.opts.OnPanic(u.ID, r)
			}
		}
	}()
	it.Iterate(ctx, i)
}

func (p *Pool) removeLocked(u *VirtualUser) {
	for i, v := range p.users {
		if v == u {
			p.users = append(p.users[:i], p.users[i+1:]...)
			return
		}
	}
}

func (p *Pool) countLocked(s State) int {
	n := 0
	for _, u := range p.users {
		if u.state == s {
			n++
		}
	}
	return n
}

// Stop retires every user and refuses further scaling. Users finish the
// iteration they are in.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	for _, u := range p.users {
		if u.state == StateActive {
			u.state = StateRetiring
		}
	}
}

// Wait blocks until every user goroutine has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (p *Pool) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countLocked(StateActive)
}

func (p *Pool) Retiring() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countLocked(StateRetiring)
}

func (p *Pool) Exhausted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countLocked(StateExhausted)
}

// Size counts every tracked user, whatever its state.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.users)
}

func (p *Pool) MaxVUs() int {
	return p.opts.MaxVUs
}

// Users returns copies of the tracked users, oldest first.
func (p *Pool) Users() []VirtualUser {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]VirtualUser, len(p.users))
	for i, u := range p.users {
		out[i] = *u
	}
	return out
}

func (u VirtualUser) State() State {
	return u.state
}
