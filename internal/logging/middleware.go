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
Logging helpers for connections and requests.

OVERVIEW:
=========
Structured logging for the life of a client session. Every session gets a
unique ID when it is opened and every entry logged for that session carries
it, so a single connection can be followed through the log.

CONNECTION LOGGING:
===================
- Session opened: session ID, remote and local address
- Session closed: reason, duration, request count

REQUEST LOGGING:
================
- Request decoded: api key and name, version, correlation ID, client ID
- Response written: latency, size
- Request failed: fault kind, error code and catalogue name

Payloads are never logged, only their sizes.
*/
package logging

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// ConnectionLogger logs session open and close events.
type ConnectionLogger struct {
	logger *Logger
}

// NewConnectionLogger creates a new connection logger
func NewConnectionLogger(logger *Logger) *ConnectionLogger {
	return &ConnectionLogger{logger: logger}
}

// LogNewConnection logs a new client connection and returns the session ID
// assigned to it.
func (cl *ConnectionLogger) LogNewConnection(conn net.Conn) string {
	sessionID := GenerateSessionID()
	cl.logger.Info("Client session opened",
		"session_id", sessionID,
		"remote_addr", addrString(conn.RemoteAddr()),
		"local_addr", addrString(conn.LocalAddr()),
	)
	return sessionID
}

// LogConnectionClosed logs when a session ends.
func (cl *ConnectionLogger) LogConnectionClosed(sessionID string, conn net.Conn, reason string, requests uint64, duration time.Duration) {
	cl.logger.Info("Client session closed",
		"session_id", sessionID,
		"remote_addr", addrString(conn.RemoteAddr()),
		"reason", reason,
		"requests", requests,
		"duration_seconds", duration.Seconds(),
	)
}

// RequestLogger logs the request/response cycle of a session.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// LogRequest logs a decoded request header.
func (rl *RequestLogger) LogRequest(sessionID string, apiKey, apiVersion int16, correlationID int32, clientID *string, payloadLen int) {
	client := "<absent>"
	if clientID != nil {
		client = *clientID
	}
	rl.logger.Debug("Request decoded",
		"session_id", sessionID,
		"api_key", apiKey,
		"api_name", APIName(apiKey),
		"api_version", apiVersion,
		"correlation_id", correlationID,
		"client_id", client,
		"payload", SanitizePayload(payloadLen),
	)
}

// LogResponse logs a completed response.
func (rl *RequestLogger) LogResponse(sessionID string, apiKey int16, correlationID int32, size int, latency time.Duration) {
	rl.logger.Debug("Response written",
		"session_id", sessionID,
		"api_name", APIName(apiKey),
		"correlation_id", correlationID,
		"size_bytes", size,
		"latency_ms", float64(latency.Microseconds())/1000,
	)
}

// LogFault logs a request that ended the session.
func (rl *RequestLogger) LogFault(sessionID string, kind string, code int16, codeName string, retriable bool, err error) {
	rl.logger.Warn("Request failed",
		"session_id", sessionID,
		"fault", kind,
		"error_code", code,
		"error_name", codeName,
		"retriable", retriable,
		"error", err,
	)
}

// ErrorLogger provides detailed error logging
type ErrorLogger struct {
	logger *Logger
}

// NewErrorLogger creates a new error logger
func NewErrorLogger(logger *Logger) *ErrorLogger {
	return &ErrorLogger{logger: logger}
}

// LogRecovery logs panic recovery
func (el *ErrorLogger) LogRecovery(panicValue interface{}, stack string, operation string) {
	el.logger.Error("Panic recovered",
		"operation", operation,
		"panic_value", fmt.Sprintf("%v", panicValue),
		"stack_trace", stack,
	)
}

// GenerateSessionID generates a unique ID for a client session.
func GenerateSessionID() string {
	return uuid.NewString()
}

// APIName returns the protocol name of an api key, or "Unknown(<key>)".
func APIName(key int16) string {
	if name := kmsg.NameForKey(key); name != "" && name != "Unknown" {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", key)
}

// SanitizePayload describes a payload by size only.
func SanitizePayload(n int) string {
	if n == 0 {
		return "[empty]"
	}
	return fmt.Sprintf("[%d bytes]", n)
}

func addrString(a net.Addr) string {
	if a == nil {
		return "unknown"
	}
	return a.String()
}
