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

package logging

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	SetGlobalLevel(DEBUG)
	SetJSONMode(true)
	t.Cleanup(func() {
		SetJSONMode(false)
		SetGlobalLevel(INFO)
	})
	return &buf
}

func TestConnectionLogger(t *testing.T) {
	buf := captureJSON(t)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cl := NewConnectionLogger(NewLogger("server"))
	id := cl.LogNewConnection(server)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("Expected a UUID session ID, got %q", id)
	}
	cl.LogConnectionClosed(id, server, "client disconnected", 3, 2*time.Second)

	output := buf.String()
	for _, want := range []string{
		`"message":"Client session opened"`,
		`"message":"Client session closed"`,
		`"session_id":"` + id + `"`,
		`"remote_addr":"pipe"`,
		`"requests":3`,
		`"reason":"client disconnected"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %s, got: %s", want, output)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	buf := captureJSON(t)
	rl := NewRequestLogger(NewLogger("session"))

	client := "reporter"
	rl.LogRequest("s1", 3, 1, 42, &client, 0)
	rl.LogRequest("s1", 18, 0, 43, nil, 12)
	rl.LogResponse("s1", 3, 42, 64, time.Millisecond)
	rl.LogFault("s1", "malformed request", 42, "INVALID_REQUEST", false, errors.New("bad header"))

	output := buf.String()
	for _, want := range []string{
		`"api_name":"Metadata"`,
		`"client_id":"reporter"`,
		`"client_id":"<absent>"`,
		`"payload":"[empty]"`,
		`"payload":"[12 bytes]"`,
		`"size_bytes":64`,
		`"error_name":"INVALID_REQUEST"`,
		`"error":"bad header"`,
		`"retriable":false`,
		`"level":"warn"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %s, got: %s", want, output)
		}
	}
}

func TestErrorLoggerRecovery(t *testing.T) {
	buf := captureJSON(t)
	NewErrorLogger(NewLogger("session")).LogRecovery("boom", "goroutine 1", "Metadata")

	output := buf.String()
	if !strings.Contains(output, `"panic_value":"boom"`) || !strings.Contains(output, `"operation":"Metadata"`) {
		t.Errorf("Unexpected recovery log: %s", output)
	}
}

func TestAPIName(t *testing.T) {
	tests := []struct {
		key  int16
		want string
	}{
		{0, "Produce"},
		{3, "Metadata"},
		{18, "ApiVersions"},
		{19, "CreateTopics"},
		{-1, "Unknown(-1)"},
		{9999, "Unknown(9999)"},
	}
	for _, tt := range tests {
		if got := APIName(tt.key); got != tt.want {
			t.Errorf("APIName(%d) = %s, want %s", tt.key, got, tt.want)
		}
	}
}

func TestSanitizePayload(t *testing.T) {
	if got := SanitizePayload(0); got != "[empty]" {
		t.Errorf("SanitizePayload(0) = %s", got)
	}
	if got := SanitizePayload(5); got != "[5 bytes]" {
		t.Errorf("SanitizePayload(5) = %s", got)
	}
}

func TestAddrStringNil(t *testing.T) {
	if got := addrString(nil); got != "unknown" {
		t.Errorf("addrString(nil) = %s, want unknown", got)
	}
}
