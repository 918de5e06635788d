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
	"sync/atomic"
	"time"

	"github.com/directorykit/ldaplb/conn"
	"github.com/directorykit/ldaplb/endpoint"
)

// PooledConn is a connection checked out of a Pool. The caller owns it
// exclusively until it is handed back with Release (after error-free
// use), Discard (after a transport failure), or swapped via
// [Pool.ReplaceDefunct]. A PooledConn must not be used after hand-back.
type PooledConn struct {
	c    conn.Conn
	pool *Pool

	createdAt  time.Time
	lastUsed   time.Time
	usageCount int64

	// +checkatomic
	released atomic.Bool
}

func newPooledConn(p *Pool, c conn.Conn) *PooledConn {
	now := p.clock.Now()
	return &PooledConn{c: c, pool: p, createdAt: now, lastUsed: now}
}

func (pc *PooledConn) use(now time.Time) {
	pc.lastUsed = now
	pc.usageCount++
}

// Conn exposes the underlying transport connection, for callers that
// need to issue several operations over one borrow.
func (pc *PooledConn) Conn() conn.Conn {
	return pc.c
}

// Endpoint identifies the server this connection is established to.
func (pc *PooledConn) Endpoint() endpoint.Endpoint {
	return pc.c.Endpoint()
}

// ID is the underlying connection's log-correlation identifier.
func (pc *PooledConn) ID() string {
	return pc.c.ID()
}

// CreatedAt is when the underlying transport was established.
func (pc *PooledConn) CreatedAt() time.Time {
	return pc.createdAt
}

// LastUsedAt is when the connection last carried a request or was
// checked out.
func (pc *PooledConn) LastUsedAt() time.Time {
	return pc.lastUsed
}

// UsageCount is how many times the connection has been checked out.
func (pc *PooledConn) UsageCount() int64 {
	return pc.usageCount
}

// Exchange sends one request over the borrowed connection. It performs
// no retries; use [Pool.Do] for the pool's retry discipline.
func (pc *PooledConn) Exchange(ctx context.Context, req conn.Request) (conn.Response, error) {
	pc.lastUsed = pc.pool.clock.Now()
	return pc.c.Exchange(ctx, req)
}

// Release hands the connection back after error-free use. It is
// re-admitted to the idle set, subject to the check-in health check when
// configured, and a blocked Get is woken if one is waiting. Releasing
// twice is a no-op.
func (pc *PooledConn) Release() {
	pc.pool.release(pc, true)
}

// Discard hands the connection back after a failure attributable to the
// connection. The connection is closed, never re-admitted, and if the
// pool falls below its minimum size a background replacement is started
// without blocking the caller.
func (pc *PooledConn) Discard() {
	pc.pool.release(pc, false)
}
