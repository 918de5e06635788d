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

package ldapconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/go-ldap/ldap/v3"

	"github.com/directorykit/ldaplb/conn"
	"github.com/directorykit/ldaplb/endpoint"
)

// CompareRequest asks whether an entry holds the given attribute value.
// Exchange answers it with a bool Response.
type CompareRequest struct {
	DN        string
	Attribute string
	Value     string
}

// WhoAmIRequest performs the RFC 4532 "Who Am I?" extended operation.
// Exchange answers it with an *ldap.WhoAmIResult.
type WhoAmIRequest struct {
	Controls []ldap.Control
}

type ldapConn struct {
	ep endpoint.Endpoint
	id string
	lc *ldap.Conn
}

var (
	_ conn.Conn   = (*ldapConn)(nil)
	_ conn.Pinger = (*ldapConn)(nil)
)

func (c *ldapConn) Endpoint() endpoint.Endpoint {
	return c.ep
}

func (c *ldapConn) ID() string {
	return c.id
}

func (c *ldapConn) IsConnected() bool {
	return !c.lc.IsClosing()
}

func (c *ldapConn) Close() error {
	return c.lc.Close()
}

// Exchange dispatches the go-ldap request types. go-ldap manages its own
// deadlines via the connection's request timeout, so ctx is consulted
// only for early cancellation.
func (c *ldapConn) Exchange(ctx context.Context, req conn.Request) (conn.Response, error) {
	// Bailing out before any I/O leaves the connection untouched, so
	// this failure must not condemn it.
	if err := ctx.Err(); err != nil {
		return nil, &conn.OpError{Endpoint: c.ep, Err: err}
	}
	switch r := req.(type) {
	case *ldap.SearchRequest:
		res, err := c.lc.Search(r)
		return res, c.classify(err)
	case *ldap.AddRequest:
		return nil, c.classify(c.lc.Add(r))
	case *ldap.ModifyRequest:
		return nil, c.classify(c.lc.Modify(r))
	case *ldap.DelRequest:
		return nil, c.classify(c.lc.Del(r))
	case *ldap.ModifyDNRequest:
		return nil, c.classify(c.lc.ModifyDN(r))
	case *ldap.PasswordModifyRequest:
		res, err := c.lc.PasswordModify(r)
		return res, c.classify(err)
	case *CompareRequest:
		ok, err := c.lc.Compare(r.DN, r.Attribute, r.Value)
		return ok, c.classify(err)
	case *WhoAmIRequest:
		res, err := c.lc.WhoAmI(r.Controls)
		return res, c.classify(err)
	default:
		return nil, &conn.OpError{
			Endpoint: c.ep,
			Err:      fmt.Errorf("unsupported request type %T", req),
		}
	}
}

// Ping issues a minimal base-scope root DSE search, which any directory
// server must answer, to verify the connection end to end.
func (c *ldapConn) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := ldap.NewSearchRequest(
		"", // root DSE
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1, 0, false,
		"(objectClass=*)",
		[]string{"supportedLDAPVersion"},
		nil,
	)
	_, err := c.lc.Search(req)
	return err
}

// classify wraps an operation error, deciding whether the transport or
// the request is at fault. Network-level go-ldap errors, server-down
// results, and raw socket errors condemn the connection; everything else
// is a protocol-level rejection that leaves it usable.
func (c *ldapConn) classify(err error) error {
	if err == nil {
		return nil
	}
	return &conn.OpError{
		Endpoint:        c.ep,
		ConnectionLevel: isTransportError(err),
		Err:             err,
	}
}

func isTransportError(err error) bool {
	if ldap.IsErrorAnyOf(err, ldap.ErrorNetwork, ldap.LDAPResultServerDown, ldap.LDAPResultConnectError) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Unwrap exposes the raw *ldap.Conn behind a connection produced by this
// package, for callers and AuthFuncs that need go-ldap APIs directly. It
// fails on connections from other transports.
func Unwrap(c conn.Conn) (*ldap.Conn, error) {
	lcc, ok := c.(*ldapConn)
	if !ok {
		return nil, fmt.Errorf("ldapconn: connection is %T, not produced by this package", c)
	}
	return lcc.lc, nil
}
