// Copyright The TrustTunnel Authors.
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

// Package monitor exposes Prometheus metrics for the agent's websocket
// connections, container lifecycle, and uploads.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	MetricsHTTPRequestRt = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_rt_us",
		Help:    "The time of each http request",
		Buckets: []float64{1000, 2000, 3000, 5000, 8000},
	}, []string{"path", "method"})

	MetricsHTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "The count of http requests by path, method and status code",
	}, []string{"path", "method", "code"})

	MetricsHTTPCurrentRequests = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http_current_requests_total",
		Help: "The count of in-flight http requests by path and method",
	}, []string{"path", "method"})

	MetricsActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "The count of currently open websocket connections",
	})

	MetricsActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_container_sessions",
		Help: "The count of currently registered container sessions",
	})

	MetricsContainerCreateErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "container_create_error",
		Help: "The count of container creation failures",
	}, []string{})

	MetricsProcessStartErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "process_start_error",
		Help: "The count of process start failures, covering both container start and exec",
	}, []string{})

	MetricsExecsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "execs_total",
		Help: "The count of execs run, labeled by terminal exit status",
	}, []string{"outcome"})

	MetricsUploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uploads_total",
		Help: "The count of completed uploads, labeled by outcome",
	}, []string{"outcome"})

	MetricsUploadBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_bytes_total",
		Help: "Total bytes received across all binary upload frames",
	}, []string{})
)

func init() {
	prometheus.MustRegister(
		MetricsHTTPRequestRt,
		MetricsHTTPRequests,
		MetricsHTTPCurrentRequests,
		MetricsActiveConnections,
		MetricsActiveSessions,
		MetricsContainerCreateErrors,
		MetricsProcessStartErrors,
		MetricsExecsTotal,
		MetricsUploadsTotal,
		MetricsUploadBytes,
	)
}
