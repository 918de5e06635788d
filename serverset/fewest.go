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
	"sort"
	"sync/atomic"

	"github.com/directorykit/ldaplb/conn"
	"github.com/directorykit/ldaplb/endpoint"
	"github.com/directorykit/ldaplb/health"
)

// LoadReporter supplies a live count of checked-out connections per
// endpoint. A pool built over a FewestConnections set registers itself as
// the reporter so that selection tracks actual load.
type LoadReporter interface {
	ActiveCount(ep endpoint.Endpoint) int
}

// LoadReporterFunc adapts a function to the LoadReporter interface. It
// is useful when the reporter (typically a pool) is constructed after
// the server set it feeds.
type LoadReporterFunc func(ep endpoint.Endpoint) int

// ActiveCount implements LoadReporter.
func (f LoadReporterFunc) ActiveCount(ep endpoint.Endpoint) int {
	return f(ep)
}

// NewFewestConnections returns a server set that attempts the endpoint
// with the lowest live connection count first, consulting the given
// reporter on every call. Ties are broken in round-robin order so that
// equally loaded endpoints share new connections evenly. A nil reporter
// reduces the set to plain round-robin.
func NewFewestConnections(dialer conn.Dialer, auth conn.AuthFunc, eps []endpoint.Endpoint, reporter LoadReporter, opts ...Option) ServerSet {
	o := buildOptions(opts)
	return &fewestConnections{
		dialer:   dialer,
		auth:     auth,
		checker:  o.checker,
		eps:      append([]endpoint.Endpoint(nil), eps...),
		reporter: reporter,
	}
}

type fewestConnections struct {
	dialer   conn.Dialer
	auth     conn.AuthFunc
	checker  health.Checker
	eps      []endpoint.Endpoint
	reporter LoadReporter

	// +checkatomic
	rotation atomic.Uint64
}

func (f *fewestConnections) GetConnection(ctx context.Context) (conn.Conn, error) {
	n := len(f.eps)
	if n == 0 {
		return nil, aggregate(nil)
	}
	counts := make([]int, n)
	if f.reporter != nil {
		for i, ep := range f.eps {
			counts[i] = f.reporter.ActiveCount(ep)
		}
	}
	// Rotate the candidate order before the stable sort so that ties
	// break round-robin rather than always favoring the first endpoint.
	rot := int((f.rotation.Add(1) - 1) % uint64(n))
	order := make([]int, n)
	for i := range order {
		order[i] = (rot + i) % n
	}
	sort.SliceStable(order, func(a, b int) bool {
		return counts[order[a]] < counts[order[b]]
	})

	attempts := make([]error, 0, n)
	for _, idx := range order {
		c, err := establish(ctx, f.dialer, f.auth, f.checker, f.eps[idx])
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
