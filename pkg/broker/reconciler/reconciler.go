// Copyright The Vibe Broker Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package reconciler runs the broker's three background sub-loops: a
// session drift sweep, an auth-session purge, and a polling-transport
// reaper. Each runs on its own ticker and swallows its own failures, so
// one misbehaving sweep never stops the others.
package reconciler

import (
	"context"
	"time"

	"vibe-broker/pkg/broker/monitor"
	"vibe-broker/pkg/common/logutil"
)

var logger = logutil.GetLogger("reconciler")

const (
	driftSweepInterval  = 300 * time.Second
	authPurgeInterval   = 3600 * time.Second
	pollingReapInterval = 60 * time.Second
)

// SessionReconciler is the subset of *session.Manager this package needs.
type SessionReconciler interface {
	DriftSweep(ctx context.Context)
}

// AuthPurger is the subset of auth.Authenticator this package needs. nil
// is accepted and treated as a no-op, matching an anonymous deployment.
type AuthPurger interface {
	PurgeExpired() int
}

// PollingReaper is the subset of *polling.Table this package needs.
type PollingReaper interface {
	Sids() []string
	ReapIfStale(sid string) bool
}

// Reconciler owns the three sub-loops and their goroutines.
type Reconciler struct {
	sessions SessionReconciler
	auth     AuthPurger
	polling  PollingReaper

	stop chan struct{}
	done chan struct{}
}

// New builds a Reconciler. auth may be nil when authentication is
// disabled.
func New(sessions SessionReconciler, auth AuthPurger, polling PollingReaper) *Reconciler {
	return &Reconciler{
		sessions: sessions,
		auth:     auth,
		polling:  polling,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the three sub-loops as goroutines. It returns
// immediately; call Stop to shut them down.
func (r *Reconciler) Start(ctx context.Context) {
	go r.runLoop(ctx, "drift", driftSweepInterval, r.driftSweepOnce)
	go r.runLoop(ctx, "auth-purge", authPurgeInterval, r.authPurgeOnce)
	go r.runLoop(ctx, "polling-reap", pollingReapInterval, r.pollingReapOnce)
}

// Stop signals every sub-loop to exit and returns at once; it does not
// wait for an iteration that is already running to finish.
func (r *Reconciler) Stop() {
	close(r.stop)
}

func (r *Reconciler) runLoop(ctx context.Context, name string, interval time.Duration, once func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.runOnceSafely(ctx, name, once)
		}
	}
}

// runOnceSafely isolates one sub-loop's failures: a panic in a single
// sweep is logged and does not propagate to the other sub-loops.
func (r *Reconciler) runOnceSafely(ctx context.Context, name string, once func(context.Context)) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("reconciler sub-loop %q panicked: %v", name, rec)
			monitor.MetricsReconcilerRuns.WithLabelValues(name, "panic").Inc()
		}
	}()

	once(ctx)
	monitor.MetricsReconcilerRuns.WithLabelValues(name, "ok").Inc()
}

func (r *Reconciler) driftSweepOnce(ctx context.Context) {
	r.sessions.DriftSweep(ctx)
}

func (r *Reconciler) authPurgeOnce(_ context.Context) {
	if r.auth == nil {
		return
	}

	if n := r.auth.PurgeExpired(); n > 0 {
		logger.Infof("auth purge removed %d expired session(s)", n)
	}
}

func (r *Reconciler) pollingReapOnce(_ context.Context) {
	sids := r.polling.Sids()

	for _, sid := range sids {
		if r.polling.ReapIfStale(sid) {
			logger.Infof("reaped stale polling transport for session %s", sid)
		}
	}

	monitor.MetricsPollingTransports.Set(float64(len(r.polling.Sids())))
}
