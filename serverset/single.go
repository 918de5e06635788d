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
	"github.com/directorykit/ldaplb/health"
)

var errNoEndpoints = errors.New("server set has no endpoints")

// NewSingle returns a server set that always connects to the one given
// endpoint. It fails only if connecting to that endpoint fails.
func NewSingle(dialer conn.Dialer, auth conn.AuthFunc, ep endpoint.Endpoint, opts ...Option) ServerSet {
	o := buildOptions(opts)
	return &single{dialer: dialer, auth: auth, checker: o.checker, ep: ep}
}

type single struct {
	dialer  conn.Dialer
	auth    conn.AuthFunc
	checker health.Checker
	ep      endpoint.Endpoint
}

func (s *single) GetConnection(ctx context.Context) (conn.Conn, error) {
	c, err := establish(ctx, s.dialer, s.auth, s.checker, s.ep)
	if err != nil {
		return nil, aggregate([]error{err})
	}
	return c, nil
}
