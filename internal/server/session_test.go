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
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kbin"

	"kafkad/internal/broker"
	"kafkad/internal/metrics"
	"kafkad/internal/protocol"
)

func strPtr(s string) *string { return &s }

// request encodes a framed request. Versions >= 1 carry a client_id and
// versions >= 2 an empty tagged-fields section.
func request(apiKey, apiVersion int16, correlationID int32, clientID *string, payload []byte) []byte {
	var body []byte
	body = kbin.AppendInt16(body, apiKey)
	body = kbin.AppendInt16(body, apiVersion)
	body = kbin.AppendInt32(body, correlationID)
	if apiVersion >= 1 {
		body = kbin.AppendNullableString(body, clientID)
	}
	if apiVersion >= 2 {
		body = kbin.AppendInt16(body, 0)
	}
	body = append(body, payload...)
	return protocol.AppendFrame(nil, body)
}

type response struct {
	correlationID int32
	body          []byte
}

// splitResponses parses the size-prefixed responses written by a session.
func splitResponses(t *testing.T, out []byte) []response {
	t.Helper()
	var resps []response
	for len(out) > 0 {
		require.GreaterOrEqual(t, len(out), 8, "truncated response")
		size := int(binary.BigEndian.Uint32(out))
		require.GreaterOrEqual(t, size, 4)
		require.GreaterOrEqual(t, len(out), 4+size, "truncated response body")
		resps = append(resps, response{
			correlationID: int32(binary.BigEndian.Uint32(out[4:])),
			body:          out[8 : 4+size],
		})
		out = out[4+size:]
	}
	return resps
}

// stubConn serves input to the session and collects what it writes.
type stubConn struct {
	mu     sync.Mutex
	out    bytes.Buffer
	events []string
	in     io.Reader
}

func newStubConn(input ...[]byte) (*stubConn, *netstub.FuncConn) {
	sc := &stubConn{in: bytes.NewReader(bytes.Join(input, nil))}
	conn := &netstub.FuncConn{
		ReadFunc: func(b []byte) (int, error) { return sc.in.Read(b) },
		WriteFunc: func(b []byte) (int, error) {
			sc.mu.Lock()
			defer sc.mu.Unlock()
			if len(b) >= 8 {
				sc.events = append(sc.events, fmt.Sprintf("write %d", int32(binary.BigEndian.Uint32(b[4:]))))
			}
			return sc.out.Write(b)
		},
	}
	return sc, conn
}

func (sc *stubConn) record(event string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.events = append(sc.events, event)
}

func echoHandler(sc *stubConn) Handler {
	return HandlerFunc(func(ctx context.Context, req *protocol.Request, state *broker.State) ([]byte, error) {
		if sc != nil {
			sc.record(fmt.Sprintf("handle %d", req.CorrelationID()))
		}
		return append([]byte(nil), req.Payload...), nil
	})
}

func serve(t *testing.T, conn *netstub.FuncConn, h Handler, cfg SessionConfig) (*metrics.Metrics, error) {
	t.Helper()
	m := metrics.New()
	sess := NewSession("test-session", conn, broker.NewState(), h, cfg, m)
	return m, sess.Serve(context.Background())
}

func requireFault(t *testing.T, err error, kind protocol.Kind, code int16) {
	t.Helper()
	var f *protocol.Fault
	require.True(t, errors.As(err, &f), "error %v is not a *protocol.Fault", err)
	assert.Equal(t, kind, f.Kind)
	assert.Equal(t, code, protocol.CodeOf(err))
}

func TestSessionPipelinedRequestsAnsweredInOrder(t *testing.T) {
	const n = 5
	var input [][]byte
	for i := 1; i <= n; i++ {
		input = append(input, request(18, int16(i%3), int32(i), strPtr("client"), []byte{byte(i)}))
	}
	sc, conn := newStubConn(input...)

	m, err := serve(t, conn, echoHandler(sc), SessionConfig{})
	require.NoError(t, err)

	resps := splitResponses(t, sc.out.Bytes())
	require.Len(t, resps, n)
	for i, r := range resps {
		assert.Equal(t, int32(i+1), r.correlationID)
		assert.Equal(t, []byte{byte(i + 1)}, r.body)
	}

	// Request k+1 is not handled before response k is written.
	var want []string
	for i := 1; i <= n; i++ {
		want = append(want, fmt.Sprintf("handle %d", i), fmt.Sprintf("write %d", i))
	}
	assert.Equal(t, want, sc.events)
	assert.Equal(t, uint64(n), m.RequestsTotal.Load())
}

func TestSessionRetriesShortWrites(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewReader(request(3, 0, 7, nil, []byte("payload")))
	conn := &netstub.FuncConn{
		ReadFunc: in.Read,
		WriteFunc: func(b []byte) (int, error) {
			if len(b) > 3 {
				b = b[:3]
			}
			return out.Write(b)
		},
	}

	_, err := serve(t, conn, echoHandler(nil), SessionConfig{})
	require.NoError(t, err)

	resps := splitResponses(t, out.Bytes())
	require.Len(t, resps, 1)
	assert.Equal(t, int32(7), resps[0].correlationID)
	assert.Equal(t, []byte("payload"), resps[0].body)
}

func TestSessionCleanCloseWithoutRequests(t *testing.T) {
	sc, conn := newStubConn()
	_, err := serve(t, conn, echoHandler(sc), SessionConfig{})
	assert.NoError(t, err)
	assert.Zero(t, sc.out.Len())
}

func TestSessionMalformedHeaderGetsFaultResponse(t *testing.T) {
	// client_id claims 10 bytes but only 2 follow.
	body := []byte{0, 18, 0, 1, 0, 0, 0, 9, 0, 10, 'a', 'b'}
	bad := protocol.AppendFrame(nil, body)
	next := request(18, 0, 10, nil, nil)
	sc, conn := newStubConn(bad, next)

	m, err := serve(t, conn, echoHandler(sc), SessionConfig{})
	requireFault(t, err, protocol.KindMalformedRequest, protocol.CodeInvalidRequest)

	resps := splitResponses(t, sc.out.Bytes())
	require.Len(t, resps, 1, "the session must close after the fault")
	assert.Equal(t, int32(9), resps[0].correlationID)
	assert.Equal(t, kbin.AppendInt16(nil, protocol.CodeInvalidRequest), resps[0].body)
	assert.NotContains(t, sc.events, "handle 10")
	assert.Equal(t, uint64(1), m.Faults(protocol.CodeInvalidRequest))
}

func TestSessionUnsupportedVersion(t *testing.T) {
	sc, conn := newStubConn(request(18, -1, 77, nil, nil))

	m, err := serve(t, conn, echoHandler(sc), SessionConfig{})
	requireFault(t, err, protocol.KindUnsupportedVersion, protocol.CodeUnsupportedVersion)

	resps := splitResponses(t, sc.out.Bytes())
	require.Len(t, resps, 1)
	assert.Equal(t, int32(77), resps[0].correlationID)
	assert.Equal(t, kbin.AppendInt16(nil, protocol.CodeUnsupportedVersion), resps[0].body)
	assert.Equal(t, uint64(1), m.Faults(protocol.CodeUnsupportedVersion))
}

func TestSessionHandlerFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler HandlerFunc
		kind    protocol.Kind
		code    int16
	}{
		{
			name: "plain error",
			handler: func(context.Context, *protocol.Request, *broker.State) ([]byte, error) {
				return nil, errors.New("boom")
			},
			kind: protocol.KindInternal,
			code: protocol.CodeUnknownServerError,
		},
		{
			name: "fault with its own code",
			handler: func(context.Context, *protocol.Request, *broker.State) ([]byte, error) {
				return nil, protocol.Malformed(87, "bad records")
			},
			kind: protocol.KindMalformedRequest,
			code: 87,
		},
		{
			name: "panic",
			handler: func(context.Context, *protocol.Request, *broker.State) ([]byte, error) {
				panic("handler exploded")
			},
			kind: protocol.KindInternal,
			code: protocol.CodeUnknownServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, conn := newStubConn(request(3, 1, 5, strPtr("c"), nil), request(3, 1, 6, strPtr("c"), nil))

			_, err := serve(t, conn, tt.handler, SessionConfig{})
			requireFault(t, err, tt.kind, tt.code)

			resps := splitResponses(t, sc.out.Bytes())
			require.Len(t, resps, 1)
			assert.Equal(t, int32(5), resps[0].correlationID)
			assert.Equal(t, kbin.AppendInt16(nil, tt.code), resps[0].body)
		})
	}
}

func TestSessionOversizedFrameClosesWithoutResponse(t *testing.T) {
	sc, conn := newStubConn([]byte{0, 0, 1, 0}, make([]byte, 256))

	m, err := serve(t, conn, echoHandler(sc), SessionConfig{MaxRequestBytes: 64})
	requireFault(t, err, protocol.KindMalformedRequest, protocol.CodeInvalidRequest)
	assert.Zero(t, sc.out.Len())
	assert.Empty(t, sc.events)
	assert.Equal(t, uint64(1), m.Faults(protocol.CodeInvalidRequest))
}

func TestSessionNegativeFrameSizeIsCounted(t *testing.T) {
	sc, conn := newStubConn([]byte{0xff, 0xff, 0xff, 0xfe})

	m, err := serve(t, conn, echoHandler(sc), SessionConfig{})
	requireFault(t, err, protocol.KindMalformedRequest, protocol.CodeInvalidRequest)
	assert.Zero(t, sc.out.Len())
	assert.Equal(t, uint64(1), m.Faults(protocol.CodeInvalidRequest))
}

func TestSessionTruncatedFrameIsIOFault(t *testing.T) {
	full := request(18, 0, 1, nil, []byte("abcdef"))
	sc, conn := newStubConn(full[:len(full)-2])

	m, err := serve(t, conn, echoHandler(sc), SessionConfig{})
	requireFault(t, err, protocol.KindIO, protocol.CodeUnknownServerError)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Zero(t, sc.out.Len())
	assert.Equal(t, uint64(1), m.Faults(protocol.CodeUnknownServerError))
}

func TestSessionReadError(t *testing.T) {
	conn := &netstub.FuncConn{
		ReadFunc: func([]byte) (int, error) { return 0, syscall.ECONNRESET },
	}
	m, err := serve(t, conn, echoHandler(nil), SessionConfig{})
	requireFault(t, err, protocol.KindIO, protocol.CodeUnknownServerError)
	assert.True(t, errors.Is(err, syscall.ECONNRESET))
	assert.Equal(t, uint64(1), m.Faults(protocol.CodeUnknownServerError))
}

func TestSessionWriteError(t *testing.T) {
	in := bytes.NewReader(request(18, 0, 1, nil, nil))
	conn := &netstub.FuncConn{
		ReadFunc:  in.Read,
		WriteFunc: func([]byte) (int, error) { return 0, syscall.EPIPE },
	}
	m, err := serve(t, conn, echoHandler(nil), SessionConfig{})
	requireFault(t, err, protocol.KindIO, protocol.CodeUnknownServerError)
	assert.True(t, errors.Is(err, syscall.EPIPE))
	assert.Zero(t, m.RequestsTotal.Load())
}

func TestSessionIdleTimeoutSetsReadDeadline(t *testing.T) {
	in := bytes.NewReader(request(18, 0, 1, nil, nil))
	var deadlines int
	conn := &netstub.FuncConn{
		ReadFunc:  in.Read,
		WriteFunc: func(b []byte) (int, error) { return len(b), nil },
		SetReadDeadFunc: func(time.Time) error {
			deadlines++
			return nil
		},
	}
	_, err := serve(t, conn, echoHandler(nil), SessionConfig{IdleTimeout: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 2, deadlines, "one deadline per awaited request")
}

func TestSessionPhaseString(t *testing.T) {
	assert.Equal(t, "awaiting_request", phaseAwaiting.String())
	assert.Equal(t, "closed", phaseClosed.String())
	assert.Equal(t, "unknown", sessionPhase(99).String())
}
