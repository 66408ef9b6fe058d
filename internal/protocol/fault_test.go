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

package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int16
	}{
		{"nil", nil, 0},
		{"malformed keeps its code", Malformed(87, "bad record"), 87},
		{"malformed default", MalformedRequest("short"), 42},
		{"unsupported version", Unsupported(-1), 35},
		{"internal", Internal("handler exploded"), -1},
		{"io", IOFault(io.ErrClosedPipe), -1},
		{"plain error", errors.New("whatever"), -1},
		{"wrapped fault", fmt.Errorf("dispatch: %w", Unsupported(-4)), 35},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	f := MalformedRequest("x")
	assert.Same(t, f, Classify(f))

	plain := errors.New("disk full")
	got := Classify(plain)
	require.NotNil(t, got)
	assert.Equal(t, KindInternal, got.Kind)
	assert.ErrorIs(t, got, plain)
}

func TestFaultError(t *testing.T) {
	assert.Equal(t, "malformed request: short header", MalformedRequest("short header").Error())
	assert.Equal(t, "unsupported version: unsupported api_version -1", Unsupported(-1).Error())
	assert.Equal(t, "io: io: read/write on closed pipe", IOFault(io.ErrClosedPipe).Error())
	assert.Equal(t, "internal server error: no handler for api_key 99", Internal("no handler for api_key %d", 99).Error())
}

func TestFaultRetriable(t *testing.T) {
	assert.False(t, MalformedRequest("bad").Retriable())
	assert.False(t, Unsupported(-1).Retriable())
	assert.False(t, IOFault(io.ErrUnexpectedEOF).Retriable())
	assert.True(t, Malformed(7, "request timed out").Retriable())
}

func TestLookup(t *testing.T) {
	tests := []struct {
		code      int16
		name      string
		retriable bool
	}{
		{0, "NONE", false},
		{-1, "UNKNOWN_SERVER_ERROR", false},
		{3, "UNKNOWN_TOPIC_OR_PARTITION", true},
		{35, "UNSUPPORTED_VERSION", false},
		{42, "INVALID_REQUEST", false},
	}
	for _, tt := range tests {
		rec, ok := Lookup(tt.code)
		require.True(t, ok, "code %d", tt.code)
		assert.Equal(t, tt.name, rec.Name)
		assert.Equal(t, tt.code, rec.Code)
		assert.Equal(t, tt.retriable, rec.Retriable)
		assert.NotEmpty(t, rec.Description)
	}

	_, ok := Lookup(30000)
	assert.False(t, ok)
	assert.Equal(t, "UNKNOWN_CODE(30000)", CodeName(30000))
	assert.Equal(t, "INVALID_REQUEST", CodeName(CodeInvalidRequest))
}

func TestEncodeResponse(t *testing.T) {
	got := EncodeResponse(42, []byte{0xCA, 0xFE})
	assert.Equal(t, []byte{0, 0, 0, 6, 0, 0, 0, 42, 0xCA, 0xFE}, got)

	body, err := Frame(got)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 42, 0xCA, 0xFE}, body)
}

func TestEncodeFault(t *testing.T) {
	got := EncodeFault(7, Unsupported(-1))
	assert.Equal(t, []byte{0, 0, 0, 6, 0, 0, 0, 7, 0x00, 0x23}, got)

	got = EncodeFault(8, errors.New("boom"))
	assert.Equal(t, []byte{0, 0, 0, 6, 0, 0, 0, 8, 0xFF, 0xFF}, got)
}

func TestWriteFullRetriesShortWrites(t *testing.T) {
	var sent []byte
	conn := &netstub.FuncConn{
		WriteFunc: func(b []byte) (int, error) {
			n := min(len(b), 3)
			sent = append(sent, b[:n]...)
			return n, nil
		},
	}
	data := []byte("a response longer than three bytes")
	n, err := WriteFull(conn, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, sent)
}

func TestWriteFullFailures(t *testing.T) {
	reset := &net.OpError{Op: "write", Err: errors.New("connection reset by peer")}
	conn := &netstub.FuncConn{
		WriteFunc: func(b []byte) (int, error) { return 2, reset },
	}
	n, err := WriteFull(conn, []byte("abcdef"))
	assert.Equal(t, 2, n)
	requireFault(t, err, KindIO, CodeUnknownServerError)
	assert.ErrorIs(t, err, reset)

	stalled := &netstub.FuncConn{
		WriteFunc: func(b []byte) (int, error) { return 0, nil },
	}
	_, err = WriteFull(stalled, []byte("x"))
	assert.ErrorIs(t, err, io.ErrShortWrite)
}
