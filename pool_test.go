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

package ldaplb_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directorykit/ldaplb"
	"github.com/directorykit/ldaplb/conn"
	"github.com/directorykit/ldaplb/endpoint"
	"github.com/directorykit/ldaplb/health"
	"github.com/directorykit/ldaplb/serverset"
)

type fakeDialer struct {
	mu       sync.Mutex
	nextID   int
	opened   int
	closed   int
	peak     int
	dialErr  error
	exchange func(c *fakeConn, req conn.Request) (conn.Response, error)
}

func (d *fakeDialer) DialEndpoint(ctx context.Context, ep endpoint.Endpoint) (conn.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.opened++
	if cur := d.opened - d.closed; cur > d.peak {
		d.peak = cur
	}
	d.nextID++
	return &fakeConn{ep: ep, id: fmt.Sprintf("conn-%d", d.nextID), dialer: d}, nil
}

func (d *fakeDialer) peakOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peak
}

func (d *fakeDialer) setDialErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

func (d *fakeDialer) open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened - d.closed
}

type fakeConn struct {
	ep     endpoint.Endpoint
	id     string
	dialer *fakeDialer
	closed atomic.Bool
}

func (c *fakeConn) Endpoint() endpoint.Endpoint { return c.ep }
func (c *fakeConn) ID() string                  { return c.id }
func (c *fakeConn) IsConnected() bool           { return !c.closed.Load() }

func (c *fakeConn) Exchange(_ context.Context, req conn.Request) (conn.Response, error) {
	c.dialer.mu.Lock()
	exchange := c.dialer.exchange
	c.dialer.mu.Unlock()
	if exchange != nil {
		return exchange(c, req)
	}
	return req, nil
}

func (c *fakeConn) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.dialer.mu.Lock()
		c.dialer.closed++
		c.dialer.mu.Unlock()
	}
	return nil
}

// judgeByID lets a test condemn individual connections.
type judgeByID struct {
	mu       sync.Mutex
	unusable map[string]bool
	all      health.State
}

func (j *judgeByID) condemn(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.unusable == nil {
		j.unusable = map[string]bool{}
	}
	j.unusable[id] = true
}

func (j *judgeByID) condemnAll() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.all = health.StateUnusable
}

func (j *judgeByID) degradeAll() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.all = health.StateDegraded
}

func (j *judgeByID) Check(_ context.Context, c conn.Conn) (health.State, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.all == health.StateUnusable || j.unusable[c.ID()] {
		return health.StateUnusable, errors.New("condemned")
	}
	return j.all, nil
}

func singlePool(t *testing.T, dialer *fakeDialer, mutate func(*ldaplb.Config)) *ldaplb.Pool {
	t.Helper()
	cfg := ldaplb.Config{
		ServerSet:           serverset.NewSingle(dialer, nil, endpoint.New("ldap.example.com", 389)),
		MaintenanceInterval: -1, // disabled; maintainer behavior is tested separately
	}
	if mutate != nil {
		mutate(&cfg)
	}
	pool, err := ldaplb.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := ldaplb.New(ldaplb.Config{})
	require.Error(t, err, "ServerSet is required")

	dialer := &fakeDialer{}
	set := serverset.NewSingle(dialer, nil, endpoint.New("ldap.example.com", 389))
	_, err = ldaplb.New(ldaplb.Config{ServerSet: set, MinSize: 8, MaxSize: 4})
	require.Error(t, err, "MaxSize below MinSize")
}

func TestPoolReusesIdleConnection(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	pool := singlePool(t, dialer, nil)

	pc, err := pool.Get(context.Background())
	require.NoError(t, err)
	id := pc.ID()
	pc.Release()

	pc, err = pool.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, pc.ID(), "idle connection must be reused, not redialed")
	pc.Release()

	stats := pool.Stats()
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, uint64(1), stats.Created)
}

func TestPoolBlocksAtMaxSize(t *testing.T) {
	t.Parallel()
	defer leaktest.Check(t)()

	dialer := &fakeDialer{}
	pool := singlePool(t, dialer, func(cfg *ldaplb.Config) {
		cfg.MaxSize = 2
	})

	first, err := pool.Get(context.Background())
	require.NoError(t, err)
	second, err := pool.Get(context.Background())
	require.NoError(t, err)

	got := make(chan *ldaplb.PooledConn, 1)
	go func() {
		pc, err := pool.Get(context.Background())
		if err == nil {
			got <- pc
		}
	}()

	require.Eventually(t, func() bool {
		return pool.Stats().Waiters == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 2, dialer.open(), "no dial may start while at capacity")

	first.Release()
	select {
	case pc := <-got:
		assert.Equal(t, first.ID(), pc.ID(), "waiter receives the released connection")
		pc.Release()
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by the release")
	}
	second.Release()
}

func TestPoolMaxSizeNeverExceeded(t *testing.T) {
	t.Parallel()

	const maxSize = 5
	dialer := &fakeDialer{}
	pool := singlePool(t, dialer, func(cfg *ldaplb.Config) {
		cfg.MaxSize = maxSize
	})

	var holders, peak atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				pc, err := pool.Get(context.Background())
				if !assert.NoError(t, err) {
					return
				}
				cur := holders.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				holders.Add(-1)
				pc.Release()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(maxSize))
	assert.LessOrEqual(t, dialer.open(), maxSize)
	stats := pool.Stats()
	assert.Equal(t, 0, stats.CheckedOut)
	assert.Equal(t, 0, stats.Waiters)
}

func TestPoolWaitTimesOut(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	pool := singlePool(t, dialer, func(cfg *ldaplb.Config) {
		cfg.CreateIfNeeded = ldaplb.Bool(false)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pool.Get(ctx)
	var exhausted *ldaplb.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, pool.Stats().Waiters, "timed-out waiter must be unregistered")
}

func TestPoolMaxWaitAppliesWithoutDeadline(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	pool := singlePool(t, dialer, func(cfg *ldaplb.Config) {
		cfg.CreateIfNeeded = ldaplb.Bool(false)
		cfg.MaxWait = 20 * time.Millisecond
	})

	_, err := pool.Get(context.Background())
	var exhausted *ldaplb.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestPoolReplacesAfterDiscardWithUnboundedWait(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	pool := singlePool(t, dialer, func(cfg *ldaplb.Config) {
		cfg.MinSize = 1
		cfg.MaxSize = 4
		cfg.MaxWait = -1 // wait indefinitely; no synthetic deadline anywhere
	})

	pc, err := pool.Get(context.Background())
	require.NoError(t, err)
	pc.Discard()

	require.Eventually(t, func() bool {
		return pool.Stats().Idle == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint64(2), pool.Stats().Created)
}

func TestPoolCloseWakesWaiters(t *testing.T) {
	t.Parallel()
	defer leaktest.Check(t)()

	dialer := &fakeDialer{}
	pool := singlePool(t, dialer, func(cfg *ldaplb.Config) {
		cfg.CreateIfNeeded = ldaplb.Bool(false)
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := pool.Get(context.Background())
		errCh <- err
	}()
	require.Eventually(t, func() bool {
		return pool.Stats().Waiters == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, pool.Close())
	require.ErrorIs(t, <-errCh, ldaplb.ErrClosed)

	_, err := pool.Get(context.Background())
	require.ErrorIs(t, err, ldaplb.ErrClosed)
}

func TestPoolCloseClosesConnections(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	pool := singlePool(t, dialer, nil)

	idle, err := pool.Get(context.Background())
	require.NoError(t, err)
	held, err := pool.Get(context.Background())
	require.NoError(t, err)
	idle.Release()

	require.NoError(t, pool.Close())
	assert.Equal(t, 1, dialer.open(), "idle connections are closed by Close")

	// A connection still checked out is closed as it comes back.
	held.Release()
	assert.Equal(t, 0, dialer.open())
}

func TestPoolCheckoutCheckReplacesUnusable(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	judge := &judgeByID{}
	pool := singlePool(t, dialer, func(cfg *ldaplb.Config) {
		cfg.Checker = judge
		cfg.CheckOnCheckout = true
	})

	pc, err := pool.Get(context.Background())
	require.NoError(t, err)
	badID := pc.ID()
	pc.Release()

	judge.condemn(badID)
	pc, err = pool.Get(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, badID, pc.ID(), "condemned connection must be swapped out")
	pc.Release()

	stats := pool.Stats()
	assert.Equal(t, uint64(2), stats.Created)
	assert.Equal(t, uint64(1), stats.Discarded)
	assert.Equal(t, 1, dialer.open())
}

func TestPoolCheckinCheckDiscardsUnusable(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	judge := &judgeByID{}
	pool := singlePool(t, dialer, func(cfg *ldaplb.Config) {
		cfg.Checker = judge
		cfg.CheckOnCheckin = true
	})

	pc, err := pool.Get(context.Background())
	require.NoError(t, err)
	judge.condemn(pc.ID())
	pc.Release()

	stats := pool.Stats()
	assert.Equal(t, 0, stats.Idle, "unusable connection must not rejoin the idle set")
	assert.Equal(t, uint64(1), stats.Discarded)
	assert.Equal(t, 0, dialer.open())
}

func TestPoolAdmissionRetriesOnce(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	judge := &judgeByID{}
	judge.condemn("conn-1")
	pool := singlePool(t, dialer, func(cfg *ldaplb.Config) {
		cfg.Checker = judge
	})

	pc, err := pool.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "conn-2", pc.ID())
	pc.Release()
	assert.Equal(t, 1, dialer.open(), "rejected first attempt must be closed")
}

func TestPoolAdmissionFailsAfterSecondRejection(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	judge := &judgeByID{}
	judge.condemnAll()
	pool := singlePool(t, dialer, func(cfg *ldaplb.Config) {
		cfg.Checker = judge
	})

	_, err := pool.Get(context.Background())
	var healthErr *conn.HealthError
	require.ErrorAs(t, err, &healthErr)
	assert.Equal(t, 0, dialer.open())
	assert.Equal(t, 0, pool.Stats().CheckedOut)
}

func TestPoolReplaceDefunct(t *testing.T) {
	t.Parallel()

	dialer := &fakeDialer{}
	pool := singlePool(t, dialer, nil)

	pc, err := pool.Get(context.Background())
	require.NoError(t, err)
	oldID := pc.ID()

	fresh, err := pool.ReplaceDefunct(context.Background(), pc)
	require.NoError(t, err)
	assert.NotEqual(t, oldID, fresh.ID())
	assert.Equal(t, 1, dialer.open(), "defunct connection must be closed")

	// The old handle is dead; replacing it again must fail.
	_, err = pool.ReplaceDefunct(context.Background(), pc)
	require.Error(t, err)

	stats := pool.Stats()
	assert.Equal(t, 1, stats.CheckedOut)
	assert.Equal(t, uint64(2), stats.Created)
	assert.Equal(t, uint64(1), stats.Discarded)
	fresh.Release()
}

func TestPoolActiveCount(t *testing.T) {
	t.Parallel()

	epA := endpoint.New("a.example.com", 389)
	epB := endpoint.New("b.example.com", 389)
	dialer := &fakeDialer{}
	var pool *ldaplb.Pool
	cfg := ldaplb.Config{
		MaintenanceInterval: -1,
	}
	// The pool reports load to its own fewest-connections set.
	cfg.ServerSet = serverset.NewFewestConnections(dialer, nil, []endpoint.Endpoint{epA, epB},
		serverset.LoadReporterFunc(func(ep endpoint.Endpoint) int { return pool.ActiveCount(ep) }))
	var err error
	pool, err = ldaplb.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	first, err := pool.Get(context.Background())
	require.NoError(t, err)
	second, err := pool.Get(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Endpoint().HostPort(), second.Endpoint().HostPort(),
		"load-aware selection must spread connections")
	assert.Equal(t, 1, pool.ActiveCount(first.Endpoint()))
	assert.Equal(t, 1, pool.ActiveCount(second.Endpoint()))

	first.Release()
	assert.Equal(t, 0, pool.ActiveCount(first.Endpoint()))
	second.Release()
}
