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

import "github.com/directorykit/ldaplb/internal"

// NewWithClock constructs a pool whose timers and timestamps come from
// the given clock, so tests can drive maintenance cycles manually.
func NewWithClock(cfg Config, clock internal.Clock) (*Pool, error) {
	return newPool(cfg, clock)
}
