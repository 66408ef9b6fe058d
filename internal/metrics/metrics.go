/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package metrics provides Prometheus-compatible metrics for kafkad.

METRIC CATEGORIES:
==================
- Connections: active, total
- Requests: per api key, latency
- Faults: per error code
- Traffic: bytes read and written
- Shutdown: drains that finished clean, sessions abandoned

PROMETHEUS ENDPOINT:
====================
Metrics are exposed at /metrics in Prometheus text format.

EXAMPLE METRICS:
================

	kafkad_connections_active 3
	kafkad_requests_total{api="Metadata"} 120
	kafkad_faults_total{code="42",error="INVALID_REQUEST"} 2
	kafkad_request_latency_avg_microseconds 85.20
*/
package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"kafkad/internal/config"
	"kafkad/internal/logging"
	"kafkad/internal/protocol"
)

// Metrics holds all kafkad metrics.
type Metrics struct {
	// Connection metrics
	ActiveConnections atomic.Int64
	TotalConnections  atomic.Uint64

	// Request metrics
	RequestsTotal       atomic.Uint64
	RequestLatencySum   atomic.Uint64 // microseconds
	RequestLatencyCount atomic.Uint64

	// Traffic metrics
	BytesIn  atomic.Uint64
	BytesOut atomic.Uint64

	// Shutdown metrics
	DrainsClean       atomic.Uint64
	SessionsAbandoned atomic.Uint64

	requestsByAPI sync.Map // int16 -> *atomic.Uint64
	faultsByCode  sync.Map // int16 -> *atomic.Uint64
}

// Global metrics instance
var globalMetrics = &Metrics{}

// Get returns the global metrics instance.
func Get() *Metrics {
	return globalMetrics
}

// New returns an empty, unshared Metrics.
func New() *Metrics {
	return &Metrics{}
}

func counter(m *sync.Map, key int16) *atomic.Uint64 {
	if c, ok := m.Load(key); ok {
		return c.(*atomic.Uint64)
	}
	actual, _ := m.LoadOrStore(key, new(atomic.Uint64))
	return actual.(*atomic.Uint64)
}

// ConnectionOpened records a new connection.
func (m *Metrics) ConnectionOpened() {
	m.ActiveConnections.Add(1)
	m.TotalConnections.Add(1)
}

// ConnectionClosed records a closed connection.
func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Add(-1)
}

// RecordRequest records a completed request/response cycle.
func (m *Metrics) RecordRequest(apiKey int16, bytesIn, bytesOut int, latency time.Duration) {
	m.RequestsTotal.Add(1)
	m.RequestLatencySum.Add(uint64(latency.Microseconds()))
	m.RequestLatencyCount.Add(1)
	m.BytesIn.Add(uint64(bytesIn))
	m.BytesOut.Add(uint64(bytesOut))
	counter(&m.requestsByAPI, apiKey).Add(1)
}

// RecordFault records a request that failed with the given wire code.
func (m *Metrics) RecordFault(code int16) {
	counter(&m.faultsByCode, code).Add(1)
}

// RecordDrain records the outcome of a shutdown drain.
func (m *Metrics) RecordDrain(abandoned int) {
	if abandoned == 0 {
		m.DrainsClean.Add(1)
		return
	}
	m.SessionsAbandoned.Add(uint64(abandoned))
}

// Requests returns the number of requests seen for an api key.
func (m *Metrics) Requests(apiKey int16) uint64 {
	if c, ok := m.requestsByAPI.Load(apiKey); ok {
		return c.(*atomic.Uint64).Load()
	}
	return 0
}

// Faults returns the number of faults recorded for a code.
func (m *Metrics) Faults(code int16) uint64 {
	if c, ok := m.faultsByCode.Load(code); ok {
		return c.(*atomic.Uint64).Load()
	}
	return 0
}

// AverageRequestLatency returns the average request latency in microseconds.
func (m *Metrics) AverageRequestLatency() float64 {
	count := m.RequestLatencyCount.Load()
	if count == 0 {
		return 0
	}
	return float64(m.RequestLatencySum.Load()) / float64(count)
}

func sortedKeys(m *sync.Map) []int16 {
	var keys []int16
	m.Range(func(key, _ interface{}) bool {
		keys = append(keys, key.(int16))
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// WritePrometheus writes all metrics in Prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	fmt.Fprintf(w, "# HELP kafkad_connections_active Current active connections\n")
	fmt.Fprintf(w, "# TYPE kafkad_connections_active gauge\n")
	fmt.Fprintf(w, "kafkad_connections_active %d\n", m.ActiveConnections.Load())

	fmt.Fprintf(w, "# HELP kafkad_connections_total Total connections\n")
	fmt.Fprintf(w, "# TYPE kafkad_connections_total counter\n")
	fmt.Fprintf(w, "kafkad_connections_total %d\n", m.TotalConnections.Load())

	fmt.Fprintf(w, "# HELP kafkad_requests_total Requests answered per api\n")
	fmt.Fprintf(w, "# TYPE kafkad_requests_total counter\n")
	for _, key := range sortedKeys(&m.requestsByAPI) {
		fmt.Fprintf(w, "kafkad_requests_total{api=%q} %d\n", logging.APIName(key), m.Requests(key))
	}

	fmt.Fprintf(w, "# HELP kafkad_faults_total Failed requests per error code\n")
	fmt.Fprintf(w, "# TYPE kafkad_faults_total counter\n")
	for _, code := range sortedKeys(&m.faultsByCode) {
		fmt.Fprintf(w, "kafkad_faults_total{code=%q,error=%q} %d\n",
			strconv.Itoa(int(code)), protocol.CodeName(code), m.Faults(code))
	}

	fmt.Fprintf(w, "# HELP kafkad_request_latency_avg_microseconds Average request latency\n")
	fmt.Fprintf(w, "# TYPE kafkad_request_latency_avg_microseconds gauge\n")
	fmt.Fprintf(w, "kafkad_request_latency_avg_microseconds %.2f\n", m.AverageRequestLatency())

	fmt.Fprintf(w, "# HELP kafkad_bytes_in_total Request bytes read\n")
	fmt.Fprintf(w, "# TYPE kafkad_bytes_in_total counter\n")
	fmt.Fprintf(w, "kafkad_bytes_in_total %d\n", m.BytesIn.Load())

	fmt.Fprintf(w, "# HELP kafkad_bytes_out_total Response bytes written\n")
	fmt.Fprintf(w, "# TYPE kafkad_bytes_out_total counter\n")
	fmt.Fprintf(w, "kafkad_bytes_out_total %d\n", m.BytesOut.Load())

	fmt.Fprintf(w, "# HELP kafkad_drains_clean_total Shutdowns where every session finished in time\n")
	fmt.Fprintf(w, "# TYPE kafkad_drains_clean_total counter\n")
	fmt.Fprintf(w, "kafkad_drains_clean_total %d\n", m.DrainsClean.Load())

	fmt.Fprintf(w, "# HELP kafkad_sessions_abandoned_total Sessions still running when a drain timed out\n")
	fmt.Fprintf(w, "# TYPE kafkad_sessions_abandoned_total counter\n")
	fmt.Fprintf(w, "kafkad_sessions_abandoned_total %d\n", m.SessionsAbandoned.Load())
}

// Server provides an HTTP server for Prometheus metrics.
type Server struct {
	config  config.MetricsConfig
	metrics *Metrics
	server  *http.Server
	logger  *logging.Logger
}

// NewServer creates a new metrics server.
func NewServer(cfg config.MetricsConfig, m *Metrics) *Server {
	return &Server{
		config:  cfg,
		metrics: m,
		logger:  logging.NewLogger("metrics"),
	}
}

// Handler returns the HTTP handler serving /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

// Run serves metrics until ctx is done. It returns nil when metrics are
// disabled or the server was shut down.
func (s *Server) Run(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.config.Addr, err)
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if err := s.Stop(); err != nil {
			s.logger.Warn("Metrics server shutdown error", "error", err)
		}
	}()

	s.logger.Info("Starting metrics server", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the metrics HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("Stopping metrics server")
	return s.server.Shutdown(ctx)
}

// handleMetrics handles the /metrics endpoint in Prometheus format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.metrics.WritePrometheus(w)
}
