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

package conn

import (
	"errors"
	"fmt"

	"github.com/directorykit/ldaplb/endpoint"
)

// DialError reports a failure to establish a transport to one endpoint.
type DialError struct {
	Endpoint endpoint.Endpoint
	Err      error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s: %v", e.Endpoint, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// AuthError reports that a transport was established but the
// authentication callback failed on it. The connection is closed by
// whichever server set produced it; an AuthError never accompanies a live
// connection.
type AuthError struct {
	Endpoint endpoint.Endpoint
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authenticate to %s: %v", e.Endpoint, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// HealthError reports that a connection was dialed and authenticated but
// failed validation by a health check.
type HealthError struct {
	Endpoint endpoint.Endpoint
	Err      error
}

func (e *HealthError) Error() string {
	return fmt.Sprintf("health check for %s: %v", e.Endpoint, e.Err)
}

func (e *HealthError) Unwrap() error {
	return e.Err
}

// OpError reports a failure of an operation performed over an established
// connection. ConnectionLevel distinguishes failures attributable to the
// transport (reset, timeout, closed socket) from failures the server
// itself returned; only the former justify discarding the connection and
// retrying the operation elsewhere.
type OpError struct {
	Endpoint endpoint.Endpoint
	// ConnectionLevel is true when the transport, not the request, is
	// at fault.
	ConnectionLevel bool
	Err             error
}

func (e *OpError) Error() string {
	if e.ConnectionLevel {
		return fmt.Sprintf("connection to %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("operation on %s rejected: %v", e.Endpoint, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsConnectionLevel reports whether err represents a transport-level
// failure of an established connection. Such failures make the connection
// unusable for any future request and are the trigger for the pool's
// discard-and-retry-once behavior.
func IsConnectionLevel(err error) bool {
	var opErr *OpError
	return errors.As(err, &opErr) && opErr.ConnectionLevel
}

// IsProtocolLevel reports whether err represents a server rejection of the
// request itself. The connection that carried it remains usable, and the
// pool never retries such a failure.
func IsProtocolLevel(err error) bool {
	var opErr *OpError
	return errors.As(err, &opErr) && !opErr.ConnectionLevel
}
