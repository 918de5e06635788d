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

package serverset

import (
	"context"
	"errors"
	"time"

	"github.com/directorykit/ldaplb/conn"
	"github.com/directorykit/ldaplb/endpoint"
	"github.com/directorykit/ldaplb/health"
)

// NewFastestConnect returns a server set that dials every endpoint
// concurrently under a shared deadline and keeps the first connection to
// finish dialing, authenticating, and (if configured) passing the health
// check. The winner is returned the moment it is ready; the remaining
// in-flight dials are cancelled as a group and any connections they
// produce are closed in the background, so a slow or blackholed endpoint
// never delays a call that another endpoint has already won.
//
// The shared deadline is the largest connect timeout among the endpoints
// unless the caller's context imposes a shorter one. When the shared
// deadline expires with no winner and the caller's own context is still
// live, the call fails with an *AggregateError carrying the
// per-endpoint causes (typically their timeouts) rather than a bare
// deadline error; only the caller's own deadline surfaces as
// context.DeadlineExceeded.
func NewFastestConnect(dialer conn.Dialer, auth conn.AuthFunc, eps []endpoint.Endpoint, opts ...Option) ServerSet {
	o := buildOptions(opts)
	return &fastestConnect{
		dialer:  dialer,
		auth:    auth,
		checker: o.checker,
		eps:     append([]endpoint.Endpoint(nil), eps...),
	}
}

type fastestConnect struct {
	dialer  conn.Dialer
	auth    conn.AuthFunc
	checker health.Checker
	eps     []endpoint.Endpoint
}

func (f *fastestConnect) deadline() time.Duration {
	var d time.Duration
	for _, ep := range f.eps {
		if t := ep.Timeout(); t > d {
			d = t
		}
	}
	return d
}

func (f *fastestConnect) GetConnection(ctx context.Context) (conn.Conn, error) {
	n := len(f.eps)
	if n == 0 {
		return nil, aggregate(nil)
	}

	raceCtx, cancel := context.WithTimeout(ctx, f.deadline())
	defer cancel()

	type result struct {
		idx int
		c   conn.Conn
		err error
	}
	// buffered so losers that finish after the winner never block
	results := make(chan result, n)
	for i, ep := range f.eps {
		i, ep := i, ep
		go func() {
			c, err := establish(raceCtx, f.dialer, f.auth, f.checker, ep)
			results <- result{idx: i, c: c, err: err}
		}()
	}

	attempts := make([]error, n)
	for received := 1; received <= n; received++ {
		res := <-results
		if res.err == nil {
			// Winner. Cancelling the shared context aborts the other
			// dials; reaping them happens off the caller's path so the
			// slowest loser never delays the call, and any connection a
			// straggler still produces is closed rather than abandoned.
			cancel()
			if stragglers := n - received; stragglers > 0 {
				go func() {
					for i := 0; i < stragglers; i++ {
						if late := <-results; late.c != nil {
							_ = late.c.Close()
						}
					}
				}()
			}
			return res.c, nil
		}
		attempts[res.idx] = res.err
	}
	if err := ctx.Err(); err != nil && errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	ordered := make([]error, 0, n)
	for _, err := range attempts {
		if err != nil {
			ordered = append(ordered, err)
		}
	}
	return nil, aggregate(ordered)
}
