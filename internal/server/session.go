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

package server

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"time"

	"kafkad/internal/broker"
	"kafkad/internal/logging"
	"kafkad/internal/metrics"
	"kafkad/internal/protocol"
)

// Handler produces the response body for one decoded request. The returned
// body is framed and written by the session; a returned error fails the
// request and ends the session.
type Handler interface {
	Handle(ctx context.Context, req *protocol.Request, state *broker.State) ([]byte, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *protocol.Request, state *broker.State) ([]byte, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req *protocol.Request, state *broker.State) ([]byte, error) {
	return f(ctx, req, state)
}

type sessionPhase int

const (
	phaseAwaiting sessionPhase = iota
	phaseDecoding
	phaseDispatching
	phaseResponding
	phaseClosed
)

func (p sessionPhase) String() string {
	switch p {
	case phaseAwaiting:
		return "awaiting_request"
	case phaseDecoding:
		return "decoding"
	case phaseDispatching:
		return "dispatching"
	case phaseResponding:
		return "responding"
	case phaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionConfig tunes a session.
type SessionConfig struct {
	MaxRequestBytes int32         // <= 0 selects protocol.DefaultMaxRequestBytes
	IdleTimeout     time.Duration // read deadline while awaiting a request, 0 disables
}

// Session runs the request/response loop of one client connection. Exactly
// one request is in flight at a time: the next frame is not read before the
// previous response has been written in full.
type Session struct {
	id      string
	conn    net.Conn
	state   *broker.State
	handler Handler
	cfg     SessionConfig
	metrics *metrics.Metrics

	logger      *logging.Logger
	reqLogger   *logging.RequestLogger
	errorLogger *logging.ErrorLogger

	phase    sessionPhase
	requests uint64
}

// NewSession creates a session over conn. A nil m records into the
// global metrics.
func NewSession(id string, conn net.Conn, state *broker.State, handler Handler, cfg SessionConfig, m *metrics.Metrics) *Session {
	if m == nil {
		m = metrics.Get()
	}
	logger := logging.NewLogger("session")
	return &Session{
		id:          id,
		conn:        conn,
		state:       state,
		handler:     handler,
		cfg:         cfg,
		metrics:     m,
		logger:      logger,
		reqLogger:   logging.NewRequestLogger(logger),
		errorLogger: logging.NewErrorLogger(logger),
	}
}

// Requests returns how many responses the session has written.
func (s *Session) Requests() uint64 {
	return s.requests
}

// Serve runs the session until the peer closes the connection, which
// returns nil, or a fault ends it, which returns that fault. A request that
// fails after its common header fields were readable is answered with a
// fault response before Serve returns. Serve does not close the connection.
func (s *Session) Serve(ctx context.Context) error {
	frames := protocol.NewFrameReader(s.conn, s.cfg.MaxRequestBytes)

	for {
		s.phase = phaseAwaiting
		if s.cfg.IdleTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
				return s.close(protocol.IOFault(err))
			}
		}
		raw, err := frames.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return s.close(nil)
			}
			// The body was never read, so there is no correlation ID to answer.
			s.recordFault(err)
			return s.close(err)
		}
		start := time.Now()

		s.phase = phaseDecoding
		req, err := protocol.ParseRequest(raw)
		if err != nil {
			s.reportFault(raw, err)
			return s.close(err)
		}
		common := req.Header.Common()
		s.reqLogger.LogRequest(s.id, common.APIKey, common.APIVersion, common.CorrelationID,
			protocol.ClientID(req.Header), len(req.Payload))

		s.phase = phaseDispatching
		body, err := s.dispatch(ctx, req)
		if err != nil {
			s.reportFault(raw, err)
			return s.close(err)
		}

		s.phase = phaseResponding
		out := protocol.EncodeResponse(common.CorrelationID, body)
		if _, err := protocol.WriteFull(s.conn, out); err != nil {
			return s.close(err)
		}

		s.requests++
		latency := time.Since(start)
		s.metrics.RecordRequest(common.APIKey, len(raw), len(out), latency)
		s.reqLogger.LogResponse(s.id, common.APIKey, common.CorrelationID, len(out), latency)
	}
}

// dispatch calls the handler, turning a panic into an internal fault so it
// stays inside this session.
func (s *Session) dispatch(ctx context.Context, req *protocol.Request) (body []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.errorLogger.LogRecovery(r, string(debug.Stack()), logging.APIName(req.APIKey()))
			body, err = nil, protocol.Internal("handler panic: %v", r)
		}
	}()
	return s.handler.Handle(ctx, req, s.state)
}

// reportFault answers a failed request with its error code when the common
// header fields can be read. Write failures are ignored; the session is
// closing anyway.
func (s *Session) reportFault(raw []byte, err error) {
	f := s.recordFault(err)

	common, perr := protocol.PeekCommon(raw[protocol.SizePrefixLen:])
	if perr != nil {
		return
	}
	if _, werr := protocol.WriteFull(s.conn, protocol.EncodeFault(common.CorrelationID, f)); werr != nil {
		s.logger.Debug("Fault response not delivered", "session_id", s.id, "error", werr)
	}
}

// recordFault counts and logs the fault that is ending the session.
func (s *Session) recordFault(err error) *protocol.Fault {
	f := protocol.Classify(err)
	code := protocol.CodeOf(f)
	s.metrics.RecordFault(code)
	s.reqLogger.LogFault(s.id, f.Kind.String(), code, protocol.CodeName(code), f.Retriable(), f)
	return f
}

func (s *Session) close(err error) error {
	s.phase = phaseClosed
	if err == nil {
		return nil
	}
	return protocol.Classify(err)
}
