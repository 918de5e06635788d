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

// Package conn defines the transport capability consumed by the rest of
// the library: a single authenticated connection to one directory server,
// plus the dialing and authentication callbacks used to produce one. The
// wire protocol itself lives behind these interfaces; server sets and
// pools never see protocol elements, only opaque request and response
// values that they forward, retry, or reject.
package conn

import (
	"context"

	"github.com/directorykit/ldaplb/endpoint"
)

// Request is an opaque protocol request. Concrete transports define which
// dynamic types they accept; the pooling layers never inspect one.
type Request any

// Response is an opaque protocol response, produced by a transport in
// exchange for a Request.
type Response any

// Conn is a single transport to one directory server. A Conn is owned by
// exactly one party at a time: the server set that dialed it, the pool's
// idle set while parked, or the caller holding it between check-out and
// check-in. Implementations need not be safe for concurrent use; the
// ownership discipline guarantees a single user.
type Conn interface {
	// Endpoint identifies the server this connection is established to.
	Endpoint() endpoint.Endpoint
	// ID is an opaque identifier for log correlation. It is stable for
	// the life of the connection and unique within the process.
	ID() string
	// IsConnected reports whether the underlying transport still appears
	// established. A false result is definitive; a true result is only a
	// cheap local judgment and does not imply the server will answer.
	IsConnected() bool
	// Exchange sends a request and waits for its response. Errors are
	// classified by the transport as connection-level or protocol-level;
	// see IsConnectionLevel.
	Exchange(ctx context.Context, req Request) (Response, error)
	// Close tears down the transport. Close is idempotent.
	Close() error
}

// Pinger is an optional interface a Conn may implement to support active
// liveness probing beyond IsConnected, for example a root DSE search. The
// stock health checker uses it when available.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dialer establishes new transports. Implementations must be safe for
// concurrent use; server sets dial from multiple goroutines.
type Dialer interface {
	// DialEndpoint establishes an unauthenticated transport to the given
	// endpoint, honoring the endpoint's connect timeout and the context.
	// Failures are reported as *DialError.
	DialEndpoint(ctx context.Context, ep endpoint.Endpoint) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, ep endpoint.Endpoint) (Conn, error)

// DialEndpoint implements Dialer.
func (f DialerFunc) DialEndpoint(ctx context.Context, ep endpoint.Endpoint) (Conn, error) {
	return f(ctx, ep)
}

// AuthFunc authenticates a freshly dialed connection. It is supplied once
// at server-set or pool construction and invoked exactly once per new
// transport before the connection is considered usable. A nil AuthFunc
// means connections are used unauthenticated.
type AuthFunc func(ctx context.Context, c Conn) error
