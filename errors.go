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
	"time"
)

// ErrClosed is returned by every public pool operation once Close has
// been called.
var ErrClosed = errors.New("ldaplb: pool is closed")

// errAlreadyReleased guards against a connection being handed back twice.
var errAlreadyReleased = errors.New("ldaplb: connection already handed back to the pool")

// ExhaustedError reports that no idle connection became available before
// the caller's wait expired, with the pool at capacity or forbidden from
// creating new connections.
type ExhaustedError struct {
	// MaxSize is the pool's configured ceiling at the time of failure.
	MaxSize int
	// Wait is roughly how long the caller waited.
	Wait time.Duration
	// Err is the cause that ended the wait, typically
	// context.DeadlineExceeded.
	Err error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("ldaplb: pool exhausted: no connection available within %v (max size %d)", e.Wait, e.MaxSize)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
