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
Package server implements the kafkad TCP server that handles client connections.

ARCHITECTURE OVERVIEW:
======================
The server package is the network-facing component of kafkad. It:

1. Binds the listening socket (bind failure is fatal at startup)
2. Accepts client connections, one Session goroutine per connection
3. Decodes framed requests and hands them to a Handler together with the
   shared broker state
4. Drains in-flight sessions on shutdown, up to a bounded timeout

CONNECTION FLOW:
================
1. Client connects; the accept loop spawns a session goroutine
2. The session reads one frame, decodes the header and calls the Handler
3. The response is framed behind the request's correlation ID and written
   in full before the next frame is read
4. A fault is answered with its error code when the correlation ID is known,
   then the session closes; other sessions are unaffected
5. The loop continues until the client disconnects

SHUTDOWN:
=========
Shutdown closes the listener so no new session starts, then waits for the
running sessions. Sessions are not interrupted: a request being handled
finishes and its response is written. Sessions still running when the drain
timeout expires are abandoned and counted in the DrainResult.

THREAD SAFETY:
==============
- Lifecycle state is guarded by a mutex
- Each connection is handled independently in its own goroutine
- The Handler and broker.State are called concurrently from sessions
*/
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"kafkad/internal/broker"
	"kafkad/internal/config"
	"kafkad/internal/logging"
	"kafkad/internal/metrics"
)

var (
	// ErrServerStarted is returned by Start on a server that already ran.
	ErrServerStarted = errors.New("server already started")
)

const (
	keepAlivePeriod = 30 * time.Second

	// Accept error backoff, doubled per consecutive failure.
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// DrainResult reports the outcome of a shutdown drain.
type DrainResult struct {
	Clean     bool     // every session finished before the timeout
	Abandoned int      // sessions still running at the timeout
	Sessions  []string // IDs of the abandoned sessions
}

// Server is the kafkad TCP server.
type Server struct {
	config  *config.Config
	state   *broker.State
	handler Handler
	metrics *metrics.Metrics

	ln         net.Listener
	baseCtx    context.Context
	stopCh     chan struct{}
	acceptDone chan struct{}
	wg         sync.WaitGroup

	mu       sync.Mutex
	started  bool
	stopped  bool
	drain    DrainResult
	sessions map[string]net.Conn

	logger     *logging.Logger
	connLogger *logging.ConnectionLogger
}

// NewServer creates a server. A nil m records into the global metrics.
func NewServer(cfg *config.Config, state *broker.State, handler Handler, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.Get()
	}
	logger := logging.NewLogger("server")
	return &Server{
		config:     cfg,
		state:      state,
		handler:    handler,
		metrics:    m,
		baseCtx:    context.Background(),
		stopCh:     make(chan struct{}),
		acceptDone: make(chan struct{}),
		sessions:   make(map[string]net.Conn),
		logger:     logger,
		connLogger: logging.NewConnectionLogger(logger),
	}
}

// Start binds the listening socket and begins accepting connections in the
// background. A bind failure is returned to the caller.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrServerStarted
	}

	addr := s.config.BindAddr()
	ln, err := listen(context.Background(), addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	s.ln = ln
	s.started = true

	s.logger.Info("Server started", "addr", ln.Addr().String(),
		"max_request_bytes", s.config.MaxRequestBytes,
		"drain_timeout", s.config.DrainTimeout())

	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ActiveSessions returns the number of sessions currently running.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)

	var backoff time.Duration
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			s.logger.Error("Accept error", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		s.startSession(conn)
	}
}

// startSession registers conn and runs it in its own goroutine. The session
// is tracked and counted before the goroutine starts.
func (s *Server) startSession(conn net.Conn) {
	start := time.Now()
	sessionID := s.connLogger.LogNewConnection(conn)
	s.track(sessionID, conn)
	s.wg.Add(1)
	go s.handleConn(sessionID, conn, start)
}

func (s *Server) handleConn(sessionID string, conn net.Conn, start time.Time) {
	defer s.wg.Done()
	defer s.untrack(sessionID)
	defer conn.Close()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(keepAlivePeriod)
	}

	s.metrics.ConnectionOpened()
	defer s.metrics.ConnectionClosed()

	sess := NewSession(sessionID, conn, s.state, s.handler, SessionConfig{
		MaxRequestBytes: s.config.MaxRequestBytes,
		IdleTimeout:     s.config.IdleTimeout(),
	}, s.metrics)

	reason := "client disconnected"
	if err := sess.Serve(s.baseCtx); err != nil {
		reason = err.Error()
	}
	s.connLogger.LogConnectionClosed(sessionID, conn, reason, sess.Requests(), time.Since(start))
}

func (s *Server) track(id string, conn net.Conn) {
	s.mu.Lock()
	s.sessions[id] = conn
	s.mu.Unlock()
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *Server) activeIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown stops accepting connections and waits up to timeout for the
// running sessions to finish. Sessions still running afterwards are
// abandoned, not interrupted. Calling Shutdown again returns the first
// result; calling it before Start returns a clean result.
func (s *Server) Shutdown(timeout time.Duration) DrainResult {
	s.mu.Lock()
	if s.stopped || !s.started {
		res := s.drain
		if !s.started {
			res = DrainResult{Clean: true}
		}
		s.mu.Unlock()
		return res
	}
	s.stopped = true
	close(s.stopCh)
	if err := s.ln.Close(); err != nil {
		s.logger.Warn("Listener close error", "error", err)
	}
	s.mu.Unlock()

	// Once the accept loop has exited no further wg.Add can happen.
	<-s.acceptDone

	pending := s.ActiveSessions()
	s.logger.Info("Draining sessions", "active", pending, "timeout", timeout)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res DrainResult
	select {
	case <-done:
		res = DrainResult{Clean: true}
		s.logger.Info("Server stopped", "drained", pending)
	case <-timer.C:
		ids := s.activeIDs()
		if len(ids) == 0 {
			res = DrainResult{Clean: true}
			s.logger.Info("Server stopped", "drained", pending)
			break
		}
		res = DrainResult{Abandoned: len(ids), Sessions: ids}
		s.logger.Warn("Drain timed out, abandoning sessions", "abandoned", len(ids), "sessions", ids)
	}
	s.metrics.RecordDrain(res.Abandoned)

	s.mu.Lock()
	s.drain = res
	s.mu.Unlock()
	return res
}

// Stop shuts the server down with the configured drain timeout.
func (s *Server) Stop() error {
	res := s.Shutdown(s.config.DrainTimeout())
	if !res.Clean {
		return fmt.Errorf("%d sessions abandoned after %s", res.Abandoned, s.config.DrainTimeout())
	}
	return nil
}

// Run starts the server, serves until ctx is done and then drains. Only a
// bind failure is returned; an unclean drain is logged.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.logger.Info("Shutdown requested", "cause", context.Cause(ctx))
	s.Shutdown(s.config.DrainTimeout())
	return nil
}
