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

package health

import "fmt"

// State is a health checker's verdict on a connection. The natural
// ordering is for "better" states to be before "worse" states, so
// StateHealthy is the lowest value and StateUnusable the highest.
type State int

const (
	// StateHealthy means the connection may be used freely.
	StateHealthy = State(0)
	// StateDegraded means the connection is usable but suspect; the pool
	// prefers to replace degraded connections during maintenance when
	// capacity allows.
	StateDegraded = State(1)
	// StateUnusable means the connection must be closed and never handed
	// to a caller.
	StateUnusable = State(2)
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnusable:
		return "unusable"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
