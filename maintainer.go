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
	"log/slog"
	"time"

	"github.com/directorykit/ldaplb/health"
)

// maintain is the pool's single background task. Each cycle it
// health-checks every idle connection, replaces unusable and expired
// ones, and tops the pool up to MinSize. It runs one cycle immediately
// so a freshly constructed pool converges without waiting a full
// interval.
func (p *Pool) maintain(ctx context.Context) {
	defer close(p.maintDone)
	ticker := p.clock.NewTicker(p.cfg.MaintenanceInterval)
	defer ticker.Stop()
	for {
		p.runMaintenance(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
	}
}

func (p *Pool) runMaintenance(ctx context.Context) {
	p.checkIdle(ctx)
	p.topUp(ctx)
}

// checkIdle takes ownership of the whole idle set, validates each
// connection without holding the pool lock, and re-admits the survivors.
// Taken connections are counted (numMaint) so concurrent Get calls still
// observe the correct total against MaxSize.
func (p *Pool) checkIdle(ctx context.Context) {
	p.mu.Lock()
	if p.closed || len(p.idle) == 0 {
		p.mu.Unlock()
		return
	}
	taken := p.idle
	p.idle = nil
	p.numMaint += len(taken)
	p.mu.Unlock()

	now := p.clock.Now()
	for _, pc := range taken {
		state, err := p.checker.Check(ctx, pc.c)
		switch {
		case p.expired(pc, now):
			p.logger.Debug("discarding expired idle connection",
				slog.String("conn", pc.c.ID()),
				slog.String("endpoint", pc.c.Endpoint().String()))
			p.retire(pc)
		case state == health.StateUnusable:
			p.logger.Debug("discarding unusable idle connection",
				slog.String("conn", pc.c.ID()),
				slog.String("endpoint", pc.c.Endpoint().String()),
				slog.Any("error", err))
			p.retire(pc)
		case state == health.StateDegraded:
			p.replaceDegraded(ctx, pc)
		default:
			p.readmit(pc, true)
		}
	}
}

// replaceDegraded swaps a degraded idle connection for a fresh one, but
// only when a capacity slot is free and a better connection can actually
// be produced; the degraded one is kept otherwise. The slot is reserved
// (numDialing) before the old connection is retired, so the pool never
// exceeds MaxSize even while both exist.
func (p *Pool) replaceDegraded(ctx context.Context, pc *PooledConn) {
	p.mu.Lock()
	canDial := !p.closed && p.totalLocked() < p.cfg.MaxSize
	if canDial {
		p.numDialing++
	}
	p.mu.Unlock()
	if !canDial {
		p.readmit(pc, true)
		return
	}
	fresh, err := p.newValidatedConn(ctx)
	if err != nil {
		p.mu.Lock()
		p.numDialing--
		p.mu.Unlock()
		p.readmit(pc, true)
		return
	}
	p.logger.Debug("replaced degraded idle connection",
		slog.String("conn", pc.c.ID()),
		slog.String("endpoint", pc.c.Endpoint().String()))
	// Convert the reserved slot and the old connection's slot in one lock
	// hold so concurrent Gets never see spare capacity that isn't there.
	var closeFresh bool
	p.mu.Lock()
	p.numDialing--
	p.numMaint--
	if p.closed {
		closeFresh = true
	} else {
		p.admitLocked(newPooledConn(p, fresh))
	}
	p.mu.Unlock()
	_ = pc.c.Close()
	p.discarded.Add(1)
	if closeFresh {
		_ = fresh.Close()
		p.discarded.Add(1)
	}
}

func (p *Pool) expired(pc *PooledConn, now time.Time) bool {
	if p.cfg.MaxIdleTime > 0 && now.Sub(pc.lastUsed) > p.cfg.MaxIdleTime {
		return true
	}
	if p.cfg.MaxConnAge > 0 && now.Sub(pc.createdAt) > p.cfg.MaxConnAge {
		return true
	}
	return false
}

// retire closes a connection the maintainer owns.
func (p *Pool) retire(pc *PooledConn) {
	_ = pc.c.Close()
	p.discarded.Add(1)
	p.mu.Lock()
	p.numMaint--
	p.mu.Unlock()
}

// readmit returns a maintainer-owned connection to the pool. counted
// says whether it is part of numMaint (taken from the idle set) as
// opposed to freshly dialed.
func (p *Pool) readmit(pc *PooledConn, counted bool) {
	var toClose bool
	p.mu.Lock()
	if counted {
		p.numMaint--
	}
	if p.closed {
		toClose = true
	} else {
		p.admitLocked(pc)
	}
	p.mu.Unlock()
	if toClose {
		_ = pc.c.Close()
		p.discarded.Add(1)
	}
}

// topUp dials connections until at least MinSize are idle, stopping
// early when the pool as a whole reaches MaxSize, and tolerating partial
// failure: a failed dial is logged and retried on the next cycle rather
// than failing the pool. Checked-out connections do not count toward the
// minimum; a busy pool keeps warm spares ready.
func (p *Pool) topUp(ctx context.Context) {
	for {
		p.mu.Lock()
		if p.closed || len(p.idle) >= p.cfg.MinSize || p.totalLocked() >= p.cfg.MaxSize {
			p.mu.Unlock()
			return
		}
		p.numDialing++
		p.mu.Unlock()

		c, err := p.newValidatedConn(ctx)
		p.mu.Lock()
		p.numDialing--
		p.mu.Unlock()
		if err != nil {
			p.logger.Warn("maintenance dial failed, will retry next cycle",
				slog.Any("error", err))
			return
		}
		p.readmit(newPooledConn(p, c), false)
	}
}
