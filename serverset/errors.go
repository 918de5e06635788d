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

import "strings"

// AggregateError reports that a server set exhausted every candidate
// without producing a usable connection. Attempts holds the per-candidate
// causes in exactly the order the candidates were tried, so a caller can
// distinguish a total outage from a single bad endpoint.
type AggregateError struct {
	Attempts []error
}

func (e *AggregateError) Error() string {
	if len(e.Attempts) == 1 {
		return "server set exhausted: " + e.Attempts[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("server set exhausted; all attempts failed:")
	for _, err := range e.Attempts {
		sb.WriteString("\n\t")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes the per-candidate causes to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Attempts
}

// aggregate wraps the attempt errors unless there were none.
func aggregate(attempts []error) error {
	if len(attempts) == 0 {
		return &AggregateError{Attempts: []error{errNoEndpoints}}
	}
	return &AggregateError{Attempts: attempts}
}
