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

// Package ldaplb supplies pooled, load-balanced, health-checked
// connections to a fleet of directory servers.
//
// The package is organized around three pluggable pieces. A
// [serverset.ServerSet] decides which server a new connection goes to:
// a single server, round-robin over replicas, strict ordered failover,
// fastest-connect racing, fewest-active-connections, or any nesting of
// those inside a failover tier. A [health.Checker] decides whether a
// connection may be trusted. A [Pool] owns a bounded collection of
// connections sourced from its server set, hands them out under a
// check-out/check-in discipline, replaces unhealthy ones, and retries
// operations that fail due to a stale connection on a freshly obtained
// one.
//
// The wire protocol stays behind the [conn] package's capability
// interfaces; the ldapconn package binds them to go-ldap for real
// directory servers, and tests substitute in-memory fakes.
//
// A typical setup:
//
//	dialer := ldapconn.NewDialer()
//	auth := ldapconn.SimpleBind("cn=app,dc=example,dc=com", password)
//	set := serverset.NewRoundRobin(dialer, auth, []endpoint.Endpoint{
//		endpoint.New("ds1.example.com", 389),
//		endpoint.New("ds2.example.com", 389),
//	})
//	pool, err := ldaplb.New(ldaplb.Config{
//		ServerSet: set,
//		MinSize:   5,
//		MaxSize:   20,
//		Checker:   health.NewProbeChecker(),
//	})
//
// Callers either borrow a connection for several operations with
// [Pool.Get] and release it with [PooledConn.Release] (or
// [PooledConn.Discard] after a transport failure), or run a single
// operation through [Pool.Do], which applies the pool's retry policy
// automatically.
package ldaplb
