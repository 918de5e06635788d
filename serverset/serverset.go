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

// Package serverset implements server-selection strategies over a
// configured topology of directory servers. A ServerSet produces a new
// authenticated connection to some server, honoring its
// ordering/selection policy and reporting every endpoint it tried when
// none succeeds.
//
// The variant set is closed: Single, RoundRobin, Failover,
// FastestConnect, and FewestConnections, each in its own file. Any
// server set may be nested inside a Failover set to express tiers, for
// example round-robin within a local replica group failing over to a
// remote group.
//
// Server sets are immutable after construction apart from their internal
// selection cursors, which are updated atomically; a single server set
// may be shared by any number of pools and goroutines.
package serverset

import (
	"context"

	"github.com/directorykit/ldaplb/conn"
	"github.com/directorykit/ldaplb/endpoint"
	"github.com/directorykit/ldaplb/health"
)

// ServerSet produces a new authenticated connection to one server out of
// a configured topology. Implementations are safe for concurrent use.
type ServerSet interface {
	// GetConnection dials, authenticates, and (when a checker is
	// configured) validates a connection to some server. When every
	// candidate fails, it returns an *AggregateError listing the
	// per-endpoint causes in the order they were attempted.
	GetConnection(ctx context.Context) (conn.Conn, error)
}

// Option customizes a server set at construction time.
type Option func(*options)

type options struct {
	checker health.Checker
}

// WithChecker installs a health check that every new connection must pass
// before the server set returns it. A connection that fails the check is
// closed and counts as a failed attempt against its endpoint, exactly as
// a failed dial would.
func WithChecker(checker health.Checker) Option {
	return func(o *options) {
		o.checker = checker
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// establish dials one endpoint and runs it through authentication and the
// optional health check. On any failure the partially constructed
// connection is closed and a typed error (*conn.DialError,
// *conn.AuthError, or *conn.HealthError) is returned.
func establish(
	ctx context.Context,
	dialer conn.Dialer,
	auth conn.AuthFunc,
	checker health.Checker,
	ep endpoint.Endpoint,
) (conn.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ep.Timeout())
	defer cancel()
	c, err := dialer.DialEndpoint(dialCtx, ep)
	if err != nil {
		return nil, asDialError(ep, err)
	}
	if auth != nil {
		if err := auth(ctx, c); err != nil {
			_ = c.Close()
			return nil, &conn.AuthError{Endpoint: ep, Err: err}
		}
	}
	if checker != nil {
		if state, err := checker.Check(ctx, c); state == health.StateUnusable {
			_ = c.Close()
			return nil, &conn.HealthError{Endpoint: ep, Err: err}
		}
	}
	return c, nil
}

func asDialError(ep endpoint.Endpoint, err error) error {
	if _, ok := err.(*conn.DialError); ok { //nolint:errorlint // dialers return the typed error directly
		return err
	}
	return &conn.DialError{Endpoint: ep, Err: err}
}
