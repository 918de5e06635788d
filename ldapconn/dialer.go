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

// Package ldapconn binds the library's transport capabilities to
// directory servers speaking LDAP, using github.com/go-ldap/ldap/v3.
// It supplies a [Dialer] for server sets, bind-based [conn.AuthFunc]
// implementations, and a connection type whose Exchange dispatches
// go-ldap request values (search, add, modify, delete, modify-DN,
// password-modify, compare, who-am-I) and classifies failures as
// connection-level or protocol-level for the pool's retry machinery.
package ldapconn

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"

	"github.com/directorykit/ldaplb/conn"
	"github.com/directorykit/ldaplb/endpoint"
)

// DefaultRequestTimeout bounds each request/response exchange on a
// connection unless overridden with WithRequestTimeout.
const DefaultRequestTimeout = 30 * time.Second

// DialerOption customizes a Dialer.
type DialerOption func(*Dialer)

// WithRequestTimeout sets the per-request timeout applied to every
// connection the dialer produces.
func WithRequestTimeout(d time.Duration) DialerOption {
	return func(dl *Dialer) {
		dl.requestTimeout = d
	}
}

// Dialer establishes LDAP transports. Endpoints with a TLS configuration
// are dialed as LDAPS, or as plaintext upgraded via StartTLS when the
// endpoint requests it. Dialer is safe for concurrent use.
type Dialer struct {
	requestTimeout time.Duration
}

var _ conn.Dialer = (*Dialer)(nil)

// NewDialer returns a Dialer with default settings, adjusted by opts.
func NewDialer(opts ...DialerOption) *Dialer {
	d := &Dialer{requestTimeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DialEndpoint implements conn.Dialer. The socket is established with
// DialContext so that cancelling ctx aborts the dial immediately, which
// the fastest-connect server set relies on to cut losers loose.
func (d *Dialer) DialEndpoint(ctx context.Context, ep endpoint.Endpoint) (conn.Conn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.Timeout())
		defer cancel()
	}
	netDialer := &net.Dialer{Timeout: ep.Timeout()}

	var nc net.Conn
	var err error
	useLDAPS := ep.TLS != nil && !ep.StartTLS
	if useLDAPS {
		tlsDialer := &tls.Dialer{NetDialer: netDialer, Config: tlsConfigFor(ep)}
		nc, err = tlsDialer.DialContext(ctx, "tcp", ep.HostPort())
	} else {
		nc, err = netDialer.DialContext(ctx, "tcp", ep.HostPort())
	}
	if err != nil {
		return nil, &conn.DialError{Endpoint: ep, Err: err}
	}

	lc := ldap.NewConn(nc, useLDAPS)
	lc.Start()
	if ep.TLS != nil && ep.StartTLS {
		if err := lc.StartTLS(tlsConfigFor(ep)); err != nil {
			_ = lc.Close()
			return nil, &conn.DialError{Endpoint: ep, Err: err}
		}
	}
	lc.SetTimeout(d.requestTimeout)

	return &ldapConn{ep: ep, id: uuid.NewString(), lc: lc}, nil
}

// tlsConfigFor fills in the server name go-ldap's URL dialer would have
// derived from the address.
func tlsConfigFor(ep endpoint.Endpoint) *tls.Config {
	if ep.TLS.ServerName != "" {
		return ep.TLS
	}
	cfg := ep.TLS.Clone()
	cfg.ServerName = ep.Host
	return cfg
}
