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
	"sync/atomic"

	"github.com/directorykit/ldaplb/conn"
	"github.com/directorykit/ldaplb/endpoint"
	"github.com/directorykit/ldaplb/health"
	"github.com/directorykit/ldaplb/internal"
)

// NewRoundRobin returns a server set that rotates through the given
// endpoints in cyclic order, starting at a random offset so that many
// processes sharing one server list do not all hammer the first entry.
// The cursor is advanced atomically before each dial, so two serialized
// calls never start at the same endpoint (unless there is only one), and
// a failed endpoint is not retried within the call that chose it. When
// the chosen endpoint fails, the remaining endpoints are tried in cursor
// order before the call fails with an *AggregateError.
func NewRoundRobin(dialer conn.Dialer, auth conn.AuthFunc, eps []endpoint.Endpoint, opts ...Option) ServerSet {
	o := buildOptions(opts)
	set := &roundRobin{
		dialer:  dialer,
		auth:    auth,
		checker: o.checker,
		eps:     append([]endpoint.Endpoint(nil), eps...),
	}
	if n := len(set.eps); n > 0 {
		set.counter.Store(uint64(internal.NewRand().Intn(n)))
	}
	return set
}

type roundRobin struct {
	dialer  conn.Dialer
	auth    conn.AuthFunc
	checker health.Checker
	eps     []endpoint.Endpoint

	// +checkatomic
	counter atomic.Uint64
}

func (r *roundRobin) GetConnection(ctx context.Context) (conn.Conn, error) {
	n := len(r.eps)
	if n == 0 {
		return nil, aggregate(nil)
	}
	// fetch-and-increment modulo N, decoupled from any pool locking
	start := int((r.counter.Add(1) - 1) % uint64(n))
	attempts := make([]error, 0, n)
	for i := 0; i < n; i++ {
		ep := r.eps[(start+i)%n]
		c, err := establish(ctx, r.dialer, r.auth, r.checker, ep)
		if err == nil {
			return c, nil
		}
		attempts = append(attempts, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, aggregate(attempts)
}
