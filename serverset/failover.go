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

	"github.com/directorykit/ldaplb/conn"
	"github.com/directorykit/ldaplb/endpoint"
)

// NewFailover returns a server set that always attempts the given sets
// strictly in the order provided, moving to the next only when the
// current one fails. Past failures never reorder the list: every call
// tries the first set first. Nesting is how tiers are expressed, for
// example a round-robin set over local replicas followed by a round-robin
// set over a remote data center.
func NewFailover(sets ...ServerSet) ServerSet {
	return &failover{sets: append([]ServerSet(nil), sets...)}
}

// NewFailoverEndpoints is shorthand for a failover set over individual
// endpoints: each endpoint is wrapped in a Single set and attempted in
// the order given.
func NewFailoverEndpoints(dialer conn.Dialer, auth conn.AuthFunc, eps []endpoint.Endpoint, opts ...Option) ServerSet {
	sets := make([]ServerSet, len(eps))
	for i, ep := range eps {
		sets[i] = NewSingle(dialer, auth, ep, opts...)
	}
	return NewFailover(sets...)
}

type failover struct {
	sets []ServerSet
}

func (f *failover) GetConnection(ctx context.Context) (conn.Conn, error) {
	attempts := make([]error, 0, len(f.sets))
	for _, set := range f.sets {
		c, err := set.GetConnection(ctx)
		if err == nil {
			return c, nil
		}
		// flatten nested aggregates so the caller sees one ordered list
		var aggErr *AggregateError
		if errors.As(err, &aggErr) {
			attempts = append(attempts, aggErr.Attempts...)
		} else {
			attempts = append(attempts, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, aggregate(attempts)
}
