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
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/directorykit/ldaplb/conn"
	"github.com/directorykit/ldaplb/endpoint"
)

func TestIsTransportError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		err       error
		transport bool
	}{
		{
			name:      "network error",
			err:       ldap.NewError(ldap.ErrorNetwork, errors.New("write: broken pipe")),
			transport: true,
		},
		{
			name:      "server down",
			err:       ldap.NewError(ldap.LDAPResultServerDown, errors.New("server down")),
			transport: true,
		},
		{
			name:      "connect error",
			err:       ldap.NewError(ldap.LDAPResultConnectError, errors.New("connect error")),
			transport: true,
		},
		{
			name:      "eof",
			err:       io.EOF,
			transport: true,
		},
		{
			name:      "wrapped unexpected eof",
			err:       fmt.Errorf("reading response: %w", io.ErrUnexpectedEOF),
			transport: true,
		},
		{
			name:      "net op error",
			err:       &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset by peer")},
			transport: true,
		},
		{
			name:      "no such object",
			err:       ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object")),
			transport: false,
		},
		{
			name:      "invalid credentials",
			err:       ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials")),
			transport: false,
		},
		{
			name:      "application error",
			err:       errors.New("attribute parse failed"),
			transport: false,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, testCase.transport, isTransportError(testCase.err))
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	c := &ldapConn{ep: endpoint.New("ldap.example.com", 389), id: "test-conn"}

	require.NoError(t, c.classify(nil))

	err := c.classify(ldap.NewError(ldap.ErrorNetwork, errors.New("broken pipe")))
	assert.True(t, conn.IsConnectionLevel(err))
	var opErr *conn.OpError
	require.ErrorAs(t, err, &opErr)
	assert.True(t, c.ep.Equal(opErr.Endpoint))

	err = c.classify(ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied")))
	assert.True(t, conn.IsProtocolLevel(err))
	assert.False(t, conn.IsConnectionLevel(err))
}

func TestExchangeUnsupportedRequest(t *testing.T) {
	t.Parallel()

	c := &ldapConn{ep: endpoint.New("ldap.example.com", 389), id: "test-conn"}
	_, err := c.Exchange(context.Background(), struct{ notARequest bool }{})
	require.Error(t, err)
	assert.True(t, conn.IsProtocolLevel(err), "an unsupported request must not condemn the connection")
	assert.Contains(t, err.Error(), "unsupported request type")
}

func TestExchangeCanceledContext(t *testing.T) {
	t.Parallel()

	c := &ldapConn{ep: endpoint.New("ldap.example.com", 389), id: "test-conn"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Exchange(ctx, &ldap.SearchRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, conn.IsConnectionLevel(err), "no I/O happened; the connection is still good")
}

type foreignConn struct{}

func (foreignConn) Endpoint() endpoint.Endpoint { return endpoint.Endpoint{} }
func (foreignConn) ID() string                  { return "foreign" }
func (foreignConn) IsConnected() bool           { return true }
func (foreignConn) Close() error                { return nil }

func (foreignConn) Exchange(_ context.Context, _ conn.Request) (conn.Response, error) {
	return nil, nil
}

func TestUnwrapRejectsForeignConn(t *testing.T) {
	t.Parallel()

	_, err := Unwrap(foreignConn{})
	require.Error(t, err)
}

func TestAuthFuncsRejectForeignConn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	require.Error(t, SimpleBind("cn=admin", "secret")(ctx, foreignConn{}))
	require.Error(t, UnauthenticatedBind("cn=probe")(ctx, foreignConn{}))
	require.Error(t, ExternalBind()(ctx, foreignConn{}))
}
