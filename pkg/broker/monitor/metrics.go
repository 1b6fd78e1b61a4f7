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

package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	MetricsHTTPRequestRt = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_rt_us",
		Help:    "The time of each http request",
		Buckets: []float64{1000, 2000, 3000, 5000, 8000, 20000, 50000},
	}, []string{"path", "method"})

	MetricsHTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "The count of http requests by path, method, and status code",
	}, []string{"path", "method", "code"})

	MetricsHTTPCurrentRequests = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_current_requests_total",
		Help: "The count of in-flight http requests",
	}, []string{"path", "method"})

	MetricsSessionsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_created_total",
		Help: "The count of sessions created",
	}, []string{"result"})

	MetricsSessionsDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_deleted_total",
		Help: "The count of sessions deleted",
	}, []string{"forced"})

	MetricsSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "The count of sessions currently in the session table",
	})

	MetricsRecoveredOnStartup = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_recovered_on_startup",
		Help: "The count of sessions recovered from pre-existing containers on the last startup",
	})

	MetricsPollingTransports = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "polling_transports_active",
		Help: "The count of currently attached long-polling transports",
	})

	MetricsReconcilerRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_runs_total",
		Help: "The count of reconciler sub-loop iterations, by loop and outcome",
	}, []string{"loop", "outcome"})

	MetricsLoginFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_failures_total",
		Help: "The count of failed login attempts",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		MetricsHTTPRequestRt,
		MetricsHTTPRequests,
		MetricsHTTPCurrentRequests,
		MetricsSessionsCreated,
		MetricsSessionsDeleted,
		MetricsSessionsActive,
		MetricsRecoveredOnStartup,
		MetricsPollingTransports,
		MetricsReconcilerRuns,
		MetricsLoginFailures,
	)
}
