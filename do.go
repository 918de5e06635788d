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
	"context"
	"errors"

	"github.com/directorykit/ldaplb/conn"
)

// Do checks out a connection, performs one operation, and hands the
// connection back, applying the pool's retry policy: an operation that
// fails with a connection-level error on a kind the policy covers is
// replayed against a freshly obtained connection, at most
// Retry.MaxRetries times (once by default). The failed connection is
// discarded regardless of the replay's outcome. Protocol-level failures
// never trigger a discard or a replay; they surface unchanged.
func (p *Pool) Do(ctx context.Context, kind OpKind, req conn.Request) (conn.Response, error) {
	pc, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := pc.Exchange(ctx, req)
	if err == nil {
		pc.Release()
		return resp, nil
	}
	if !conn.IsConnectionLevel(err) {
		// the server rejected the request; the connection is fine
		pc.Release()
		return nil, err
	}
	if !p.cfg.Retry.allows(kind) || p.cfg.Retry.MaxRetries < 1 {
		pc.Discard()
		return nil, err
	}
	for attempt := 0; attempt < p.cfg.Retry.MaxRetries; attempt++ {
		fresh, replaceErr := p.ReplaceDefunct(ctx, pc)
		if replaceErr != nil {
			return nil, errors.Join(err, replaceErr)
		}
		pc = fresh
		resp, err = pc.Exchange(ctx, req)
		if err == nil {
			pc.Release()
			return resp, nil
		}
		if !conn.IsConnectionLevel(err) {
			pc.Release()
			return nil, err
		}
	}
	pc.Discard()
	return nil, err
}
