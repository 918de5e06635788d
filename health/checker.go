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

// Package health provides pluggable connection validation for server sets
// and pools.
//
// A [Checker] judges whether a single connection may be trusted. The pool
// consults it at three points: when a server set produces a new connection
// (before admitting it), periodically against idle connections during
// background maintenance, and, if configured aggressively, around each
// borrowed use. A connection judged [StateUnusable] at any of these
// checkpoints is closed and never returned to a caller.
package health

import (
	"context"
	"errors"

	"github.com/directorykit/ldaplb/conn"
)

//nolint:gochecknoglobals
var (
	// NopChecker judges every connection healthy. It is the default for
	// pools constructed without an explicit checker.
	NopChecker Checker = nopChecker{}
)

// Checker judges whether a connection is usable. The returned error is
// non-nil exactly when the state is StateUnusable, and explains why.
//
// Implementations must be safe for concurrent use; a single checker may
// be shared by several server sets and pools.
type Checker interface {
	Check(ctx context.Context, c conn.Conn) (State, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, c conn.Conn) (State, error)

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context, c conn.Conn) (State, error) {
	return f(ctx, c)
}

type nopChecker struct{}

func (nopChecker) Check(_ context.Context, _ conn.Conn) (State, error) {
	return StateHealthy, nil
}

// NewProbeChecker returns a Checker that first consults the connection's
// cheap local liveness judgment and then, when the transport supports it,
// performs an active probe (for LDAP transports, a base-scope root DSE
// search). A failed probe renders the connection unusable; a transport
// without probe support is judged on liveness alone.
func NewProbeChecker() Checker {
	return probeChecker{}
}

type probeChecker struct{}

func (probeChecker) Check(ctx context.Context, c conn.Conn) (State, error) {
	if !c.IsConnected() {
		return StateUnusable, errors.New("transport is not established")
	}
	pinger, ok := c.(conn.Pinger)
	if !ok {
		return StateHealthy, nil
	}
	if err := pinger.Ping(ctx); err != nil {
		return StateUnusable, err
	}
	return StateHealthy, nil
}
