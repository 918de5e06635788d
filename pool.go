// Copyright 2024-2026 The ldaplb authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ldaplb

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/directorykit/ldaplb/conn"
	"github.com/directorykit/ldaplb/endpoint"
	"github.com/directorykit/ldaplb/health"
	"github.com/directorykit/ldaplb/internal"
	"github.com/directorykit/ldaplb/serverset"
)

// Pool owns a bounded collection of connections sourced from a server
// set and hands them out under check-out/check-in discipline. All
// methods are safe for concurrent use.
//
// A Pool borrows its ServerSet and Checker (they may be shared with
// other pools and must outlive it) and exclusively owns every connection
// that is not currently checked out.
type Pool struct {
	cfg     Config
	set     serverset.ServerSet
	checker health.Checker
	logger  *slog.Logger
	clock   internal.Clock

	//nolint:containedctx // root context for the maintainer, cancelled by Close
	ctx       context.Context
	cancel    context.CancelFunc
	maintDone chan struct{}

	// +checkatomic
	created atomic.Uint64
	// +checkatomic
	discarded atomic.Uint64

	mu sync.Mutex
	// +checklocks:mu
	idle []*PooledConn
	// +checklocks:mu
	numOut int
	// +checklocks:mu
	numDialing int
	// +checklocks:mu
	numMaint int
	// +checklocks:mu
	closed bool
	// +checklocks:mu
	waiters []chan *PooledConn
	// +checklocks:mu
	perEndpoint map[string]int
}

var _ serverset.LoadReporter = (*Pool)(nil)

// New constructs a pool and, unless MaintenanceInterval is negative,
// starts its background maintainer. The configuration is copied; later changes
// to cfg have no effect.
func New(cfg Config) (*Pool, error) {
	return newPool(cfg, internal.NewRealClock())
}

func newPool(cfg Config, clock internal.Clock) (*Pool, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:         cfg,
		set:         cfg.ServerSet,
		checker:     cfg.Checker,
		logger:      cfg.Logger,
		clock:       clock,
		ctx:         ctx,
		cancel:      cancel,
		maintDone:   make(chan struct{}),
		perEndpoint: map[string]int{},
	}
	if cfg.MaintenanceInterval > 0 {
		go p.maintain(ctx)
	} else {
		close(p.maintDone)
	}
	return p, nil
}

// Get checks out a validated connection. It pops an idle one when
// available; otherwise, below MaxSize and with CreateIfNeeded enabled,
// it dials a new one through the server set; otherwise it blocks until a
// check-in frees a connection, the context is done, or MaxWait elapses.
// A wait that times out returns an *ExhaustedError.
func (p *Pool) Get(ctx context.Context) (*PooledConn, error) {
	if _, ok := ctx.Deadline(); !ok && p.cfg.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.MaxWait)
		defer cancel()
	}
	start := p.clock.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		pc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.numOut++
		p.incEndpointLocked(pc.c.Endpoint())
		p.mu.Unlock()
		pc.released.Store(false)
		return p.afterCheckout(ctx, pc)
	}
	if p.cfg.createIfNeeded() && p.totalLocked() < p.cfg.MaxSize {
		p.numDialing++
		p.mu.Unlock()
		return p.dialCounted(ctx)
	}
	wait := make(chan *PooledConn, 1)
	p.waiters = append(p.waiters, wait)
	p.mu.Unlock()

	select {
	case pc := <-wait:
		if pc == nil {
			return nil, ErrClosed
		}
		return p.afterCheckout(ctx, pc)
	case <-ctx.Done():
		p.mu.Lock()
		removed := p.removeWaiterLocked(wait)
		p.mu.Unlock()
		if !removed {
			// a release won the race; re-offer its connection so the
			// wake-up is not lost to other waiters
			select {
			case pc := <-wait:
				if pc != nil {
					pc.Release()
				}
			default:
			}
		}
		return nil, &ExhaustedError{MaxSize: p.cfg.MaxSize, Wait: p.clock.Since(start), Err: ctx.Err()}
	}
}

// afterCheckout applies the optional aggressive checkout health check.
// An unusable connection is discarded and its capacity slot is spent on
// exactly one synchronous replacement dial before any error surfaces.
func (p *Pool) afterCheckout(ctx context.Context, pc *PooledConn) (*PooledConn, error) {
	if p.cfg.CheckOnCheckout {
		if state, err := p.checker.Check(ctx, pc.c); state == health.StateUnusable {
			p.logger.Debug("connection failed checkout health check, replacing",
				slog.String("conn", pc.c.ID()),
				slog.String("endpoint", pc.c.Endpoint().String()),
				slog.Any("error", err))
			pc.released.Store(true)
			return p.swapForFresh(ctx, pc)
		}
	}
	pc.use(p.clock.Now())
	return pc, nil
}

// ReplaceDefunct closes a checked-out connection that suffered a
// connection-level failure and obtains a fresh one in its place, so the
// caller can replay its original request once. The defunct connection is
// gone regardless of whether the replacement dial succeeds.
func (p *Pool) ReplaceDefunct(ctx context.Context, pc *PooledConn) (*PooledConn, error) {
	if !pc.released.CompareAndSwap(false, true) {
		return nil, errAlreadyReleased
	}
	p.logger.Debug("replacing defunct connection",
		slog.String("conn", pc.c.ID()),
		slog.String("endpoint", pc.c.Endpoint().String()))
	return p.swapForFresh(ctx, pc)
}

// swapForFresh transfers pc's capacity slot to a new dial, so that the
// pool never exceeds MaxSize even transiently during a replacement.
func (p *Pool) swapForFresh(ctx context.Context, pc *PooledConn) (*PooledConn, error) {
	p.mu.Lock()
	p.numOut--
	p.decEndpointLocked(pc.c.Endpoint())
	p.numDialing++
	p.mu.Unlock()
	_ = pc.c.Close()
	p.discarded.Add(1)
	return p.dialCounted(ctx)
}

// dialCounted produces a new checked-out connection. The caller must
// have already incremented numDialing; it is decremented here on every
// path.
func (p *Pool) dialCounted(ctx context.Context) (*PooledConn, error) {
	c, err := p.newValidatedConn(ctx)
	p.mu.Lock()
	p.numDialing--
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if p.closed {
		p.mu.Unlock()
		_ = c.Close()
		return nil, ErrClosed
	}
	pc := newPooledConn(p, c)
	pc.released.Store(false)
	pc.usageCount = 1
	p.numOut++
	p.incEndpointLocked(c.Endpoint())
	p.mu.Unlock()
	return pc, nil
}

// newValidatedConn obtains a connection from the server set and runs the
// pool's admission health check, retrying the dial once when a freshly
// produced connection fails validation.
func (p *Pool) newValidatedConn(ctx context.Context) (conn.Conn, error) {
	c, err := p.set.GetConnection(ctx)
	if err != nil {
		return nil, err
	}
	state, herr := p.checker.Check(ctx, c)
	if state != health.StateUnusable {
		p.created.Add(1)
		return c, nil
	}
	p.logger.Debug("new connection failed admission health check, retrying",
		slog.String("conn", c.ID()),
		slog.String("endpoint", c.Endpoint().String()),
		slog.Any("error", herr))
	_ = c.Close()
	c, err = p.set.GetConnection(ctx)
	if err != nil {
		return nil, err
	}
	state, herr = p.checker.Check(ctx, c)
	if state == health.StateUnusable {
		ep := c.Endpoint()
		_ = c.Close()
		return nil, &conn.HealthError{Endpoint: ep, Err: herr}
	}
	p.created.Add(1)
	return c, nil
}

// release is the single hand-back path for both Release and Discard.
func (p *Pool) release(pc *PooledConn, errFree bool) {
	if !pc.released.CompareAndSwap(false, true) {
		return
	}
	if errFree && p.cfg.CheckOnCheckin {
		if state, err := p.checker.Check(p.ctx, pc.c); state == health.StateUnusable {
			p.logger.Debug("connection failed checkin health check",
				slog.String("conn", pc.c.ID()),
				slog.Any("error", err))
			errFree = false
		}
	}
	if !errFree {
		p.mu.Lock()
		p.numOut--
		p.decEndpointLocked(pc.c.Endpoint())
		replace := !p.closed && len(p.idle) < p.cfg.MinSize && p.totalLocked() < p.cfg.MaxSize
		if replace {
			p.numDialing++
		}
		p.mu.Unlock()
		_ = pc.c.Close()
		p.discarded.Add(1)
		if replace {
			// replenish without blocking the releasing caller
			go p.backgroundReplace()
		}
		return
	}

	pc.lastUsed = p.clock.Now()
	var toClose conn.Conn
	p.mu.Lock()
	p.numOut--
	p.decEndpointLocked(pc.c.Endpoint())
	if p.closed {
		toClose = pc.c
	} else {
		p.admitLocked(pc)
	}
	p.mu.Unlock()
	if toClose != nil {
		_ = toClose.Close()
		p.discarded.Add(1)
	}
}

// admitLocked gives an owned, uncounted connection to the pool: straight
// to the oldest waiter when one is blocked, otherwise onto the idle set.
//
// +checklocks:p.mu
func (p *Pool) admitLocked(pc *PooledConn) {
	for len(p.waiters) > 0 {
		wait := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.numOut++
		p.incEndpointLocked(pc.c.Endpoint())
		pc.released.Store(false)
		wait <- pc
		return
	}
	p.idle = append(p.idle, pc)
}

// backgroundReplace dials one replacement connection. The caller must
// have incremented numDialing.
func (p *Pool) backgroundReplace() {
	// MaxWait <= 0 means unbounded waits; mirror Get and skip the
	// synthetic deadline rather than minting an already-expired one.
	ctx := p.ctx
	if p.cfg.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(p.ctx, p.cfg.MaxWait)
		defer cancel()
	}
	c, err := p.newValidatedConn(ctx)
	p.mu.Lock()
	p.numDialing--
	if err != nil {
		p.mu.Unlock()
		p.logger.Warn("background replacement failed", slog.Any("error", err))
		return
	}
	if p.closed {
		p.mu.Unlock()
		_ = c.Close()
		return
	}
	p.admitLocked(newPooledConn(p, c))
	p.mu.Unlock()
}

// Close transitions the pool to closed: the maintainer is stopped, idle
// connections are closed, blocked Get calls fail with ErrClosed, and
// checked-out connections are closed as they are released. Close does
// not return until the maintainer has exited; it is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	alreadyClosed := p.closed
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	p.cancel()
	for _, wait := range waiters {
		wait <- nil
	}
	if !alreadyClosed {
		grp, _ := errgroup.WithContext(context.Background())
		for _, pc := range idle {
			grp.Go(pc.c.Close)
		}
		_ = grp.Wait()
		p.discarded.Add(uint64(len(idle)))
	}
	<-p.maintDone
	return nil
}

// ActiveCount reports the number of connections to the given endpoint
// currently checked out. It implements [serverset.LoadReporter] so a
// FewestConnections set can consult its owning pool.
func (p *Pool) ActiveCount(ep endpoint.Endpoint) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.perEndpoint[ep.HostPort()]
}

// Stats is a point-in-time snapshot of pool state.
type Stats struct {
	// Idle is the number of parked connections.
	Idle int
	// CheckedOut is the number of connections held by callers.
	CheckedOut int
	// Dialing is the number of connection-establishment attempts in
	// flight, which count against MaxSize.
	Dialing int
	// Waiters is the number of Get calls blocked for a connection.
	Waiters int
	// Created and Discarded are lifetime connection counters.
	Created   uint64
	Discarded uint64
}

// Stats returns a snapshot of pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Idle:       len(p.idle),
		CheckedOut: p.numOut,
		Dialing:    p.numDialing,
		Waiters:    len(p.waiters),
	}
	p.mu.Unlock()
	s.Created = p.created.Load()
	s.Discarded = p.discarded.Load()
	return s
}

// +checklocks:p.mu
func (p *Pool) totalLocked() int {
	return len(p.idle) + p.numOut + p.numDialing + p.numMaint
}

// +checklocks:p.mu
func (p *Pool) incEndpointLocked(ep endpoint.Endpoint) {
	p.perEndpoint[ep.HostPort()]++
}

// +checklocks:p.mu
func (p *Pool) decEndpointLocked(ep endpoint.Endpoint) {
	key := ep.HostPort()
	if n := p.perEndpoint[key]; n <= 1 {
		delete(p.perEndpoint, key)
	} else {
		p.perEndpoint[key] = n - 1
	}
}

// +checklocks:p.mu
func (p *Pool) removeWaiterLocked(wait chan *PooledConn) bool {
	for i, w := range p.waiters {
		if w == wait {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}
