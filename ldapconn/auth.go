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

	"github.com/directorykit/ldaplb/conn"
)

// SimpleBind returns an AuthFunc that performs a simple bind with the
// given DN and password on each new connection.
func SimpleBind(bindDN, password string) conn.AuthFunc {
	return func(_ context.Context, c conn.Conn) error {
		lc, err := Unwrap(c)
		if err != nil {
			return err
		}
		return lc.Bind(bindDN, password)
	}
}

// UnauthenticatedBind returns an AuthFunc that performs an
// unauthenticated bind, asserting an identity without proof. Most
// servers must be explicitly configured to allow it.
func UnauthenticatedBind(bindDN string) conn.AuthFunc {
	return func(_ context.Context, c conn.Conn) error {
		lc, err := Unwrap(c)
		if err != nil {
			return err
		}
		return lc.UnauthenticatedBind(bindDN)
	}
}

// ExternalBind returns an AuthFunc that performs a SASL EXTERNAL bind,
// deferring to credentials already established at the transport layer
// (typically a TLS client certificate).
func ExternalBind() conn.AuthFunc {
	return func(_ context.Context, c conn.Conn) error {
		lc, err := Unwrap(c)
		if err != nil {
			return err
		}
		return lc.ExternalBind()
	}
}
