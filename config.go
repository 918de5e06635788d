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

package ldaplb

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/creasty/defaults"

	"github.com/directorykit/ldaplb/health"
	"github.com/directorykit/ldaplb/serverset"
)

// Config carries every knob a Pool reads. It is consumed once by New and
// never read again from the caller's copy; a running pool cannot be
// reconfigured.
type Config struct {
	// ServerSet produces new connections. Required.
	ServerSet serverset.ServerSet

	// Checker validates connections on admission, during maintenance,
	// and (see CheckOnCheckout/CheckOnCheckin) around borrows. Defaults
	// to health.NopChecker.
	Checker health.Checker

	// MinSize is the number of idle connections the background
	// maintainer keeps warm. Connections checked out by callers do not
	// count toward it, though topping up never pushes the pool past
	// MaxSize. Zero disables pre-warming.
	MinSize int

	// MaxSize bounds connections in existence at once, counting dials
	// in flight. Must be at least MinSize and at least 1.
	MaxSize int `default:"10"`

	// CreateIfNeeded controls whether Get may dial a new connection
	// when none is idle and the pool is below MaxSize. When false, Get
	// only ever waits for a check-in. Defaults to true.
	CreateIfNeeded *bool `default:"true"`

	// MaxWait bounds how long Get blocks for a connection when the
	// caller's context carries no deadline of its own. Zero means the
	// default of 30s; a negative value waits indefinitely.
	MaxWait time.Duration `default:"30s"`

	// Retry governs which operation kinds Do replays on a fresh
	// connection after a connection-level failure.
	Retry RetryPolicy

	// MaintenanceInterval is how often the background maintainer
	// health-checks idle connections and tops the pool up to MinSize.
	// Zero means the default of 30s; a negative value disables the
	// maintainer entirely.
	MaintenanceInterval time.Duration `default:"30s"`

	// MaxIdleTime discards idle connections unused for this long during
	// maintenance. Zero means the default of 5m; a negative value
	// disables idle expiry.
	MaxIdleTime time.Duration `default:"5m"`

	// MaxConnAge discards connections older than this during
	// maintenance regardless of health. Zero means no age limit.
	MaxConnAge time.Duration

	// CheckOnCheckout additionally runs the health check on every
	// connection as it is handed out ("aggressive" mode).
	CheckOnCheckout bool

	// CheckOnCheckin additionally runs the health check on every
	// error-free check-in before re-admitting the connection.
	CheckOnCheckin bool

	// Logger receives discard/replacement events at Debug and
	// maintenance failures at Warn. Nil discards everything.
	Logger *slog.Logger
}

// RetryPolicy enumerates which operation categories are eligible for
// automatic replay on a fresh connection after a connection-level
// failure, and how many replays are allowed per original request.
type RetryPolicy struct {
	// RetryReads allows idempotent read operations to be replayed.
	// Defaults to true.
	RetryReads *bool `default:"true"`

	// RetryWrites allows mutating operations to be replayed. Off by
	// default: a write whose connection died may or may not have been
	// applied.
	RetryWrites bool

	// MaxRetries caps replays per original request. Defaults to 1.
	MaxRetries int `default:"1"`
}

func (p RetryPolicy) allows(kind OpKind) bool {
	switch kind {
	case OpRead:
		return p.RetryReads == nil || *p.RetryReads
	case OpWrite:
		return p.RetryWrites
	default:
		return false
	}
}

// OpKind classifies an operation for retry purposes.
type OpKind int

const (
	// OpRead marks an idempotent read (search, compare).
	OpRead OpKind = iota
	// OpWrite marks a mutating operation (add, modify, delete).
	OpWrite
)

func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

func (c *Config) applyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return err
	}
	if c.Checker == nil {
		c.Checker = health.NopChecker
	}
	if c.Logger == nil {
		c.Logger = slog.New(discardHandler{})
	}
	return nil
}

func (c *Config) validate() error {
	if c.ServerSet == nil {
		return errors.New("ldaplb: Config.ServerSet is required")
	}
	if c.MinSize < 0 {
		return fmt.Errorf("ldaplb: MinSize must be >= 0, got %d", c.MinSize)
	}
	if c.MaxSize < 1 {
		return fmt.Errorf("ldaplb: MaxSize must be >= 1, got %d", c.MaxSize)
	}
	if c.MaxSize < c.MinSize {
		return fmt.Errorf("ldaplb: MaxSize (%d) must be >= MinSize (%d)", c.MaxSize, c.MinSize)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("ldaplb: Retry.MaxRetries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	return nil
}

func (c *Config) createIfNeeded() bool {
	return c.CreateIfNeeded == nil || *c.CreateIfNeeded
}

// Bool is a convenience for the pointer-typed boolean config fields.
func Bool(v bool) *bool {
	return &v
}
