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

// Package endpoint defines the identity of a single dialable directory
// server. An Endpoint is an immutable value; server sets and pools share
// Endpoint values freely across goroutines.
package endpoint

import (
	"crypto/tls"
	"net"
	"strconv"
	"time"
)

// DefaultConnectTimeout is used when an Endpoint does not specify its own
// connect timeout.
const DefaultConnectTimeout = 10 * time.Second

// Endpoint identifies one dialable directory server. The zero value is not
// usable; construct endpoints with New or NewTLS.
type Endpoint struct {
	// Host is the server's hostname or IP address.
	Host string
	// Port is the server's TCP port.
	Port int
	// ConnectTimeout bounds the time spent establishing a transport to
	// this endpoint. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// TLS, if non-nil, requests a TLS-protected transport using this
	// configuration. How the configuration is applied (LDAPS versus
	// StartTLS) is up to the dialer.
	TLS *tls.Config
	// StartTLS requests a plaintext connection upgraded via StartTLS
	// rather than TLS from the first byte. Only meaningful when TLS is
	// non-nil.
	StartTLS bool
}

// New returns an Endpoint for the given host and port.
func New(host string, port int) Endpoint {
	return Endpoint{Host: host, Port: port}
}

// NewTLS returns an Endpoint that will use a TLS-protected transport.
// A nil config requests the dialer's default TLS configuration.
func NewTLS(host string, port int, config *tls.Config) Endpoint {
	if config == nil {
		config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return Endpoint{Host: host, Port: port, TLS: config}
}

// HostPort renders the endpoint as "host:port", suitable for net.Dial.
func (e Endpoint) HostPort() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String implements fmt.Stringer. It is the same as HostPort.
func (e Endpoint) String() string {
	return e.HostPort()
}

// Timeout returns the endpoint's connect timeout, substituting
// DefaultConnectTimeout when unset.
func (e Endpoint) Timeout() time.Duration {
	if e.ConnectTimeout > 0 {
		return e.ConnectTimeout
	}
	return DefaultConnectTimeout
}

// Equal reports whether two endpoints identify the same server. TLS
// configuration does not participate: two endpoints for the same host and
// port are the same server regardless of how connections to it are
// protected.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Host == other.Host && e.Port == other.Port
}
