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
	"io"

	"github.com/twmb/franz-go/pkg/kbin"
)

// Frame validates a complete frame and returns the bytes after the size
// prefix. The buffer length must be exactly message_size + 4.
func Frame(raw []byte) ([]byte, error) {
	if len(raw) < SizePrefixLen {
		return nil, MalformedRequest("frame requires at least %d bytes; found %d", SizePrefixLen, len(raw))
	}
	r := kbin.Reader{Src: raw[:SizePrefixLen]}
	size := r.Int32()
	want := int64(size) + SizePrefixLen
	if int64(len(raw)) != want {
		return nil, MalformedRequest("data length (%d) does not match the indicated message_size (%d); expected %d bytes total",
			len(raw), size, want)
	}
	return raw[SizePrefixLen:], nil
}

// AppendFrame appends body to dst behind its size prefix.
func AppendFrame(dst, body []byte) []byte {
	dst = kbin.AppendInt32(dst, int32(len(body)))
	return append(dst, body...)
}

type frameState int

const (
	needLength frameState = iota
	needBody
	frameReady
)

// FrameReader reads whole frames from a stream. It reads exactly the four
// size bytes, then exactly message_size more, however the bytes are split
// across underlying reads. Nothing past the current frame is consumed.
type FrameReader struct {
	r        io.Reader
	maxBytes int32

	state  frameState
	prefix [SizePrefixLen]byte
	frame  []byte
	filled int
}

// NewFrameReader returns a FrameReader over r. Frames declaring more than
// maxBytes are rejected; maxBytes <= 0 selects DefaultMaxRequestBytes.
func NewFrameReader(r io.Reader, maxBytes int32) *FrameReader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestBytes
	}
	return &FrameReader{r: r, maxBytes: maxBytes}
}

// Next returns the next frame, size prefix included. It returns io.EOF when
// the peer closed the stream on a frame boundary. A stream that ends inside
// a frame yields an IO fault wrapping io.ErrUnexpectedEOF.
func (fr *FrameReader) Next() ([]byte, error) {
	fr.state = needLength
	fr.frame = nil
	fr.filled = 0

	for {
		var dst []byte
		switch fr.state {
		case needLength:
			dst = fr.prefix[fr.filled:]
		case needBody:
			dst = fr.frame[fr.filled:]
		case frameReady:
			return fr.frame, nil
		}

		n, err := fr.r.Read(dst)
		fr.filled += n
		if ferr := fr.advance(); ferr != nil {
			return nil, ferr
		}
		if fr.state == frameReady {
			return fr.frame, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if fr.state == needLength && fr.filled == 0 {
					return nil, io.EOF
				}
				return nil, IOFault(io.ErrUnexpectedEOF)
			}
			return nil, IOFault(err)
		}
	}
}

// advance moves the state machine forward once the current stage is full.
func (fr *FrameReader) advance() error {
	switch fr.state {
	case needLength:
		if fr.filled < SizePrefixLen {
			return nil
		}
		r := kbin.Reader{Src: fr.prefix[:]}
		size := r.Int32()
		if size < 0 {
			return MalformedRequest("negative message_size (%d)", size)
		}
		if size > fr.maxBytes {
			return MalformedRequest("message_size (%d) exceeds the maximum request size (%d)", size, fr.maxBytes)
		}
		fr.frame = make([]byte, SizePrefixLen+int(size))
		copy(fr.frame, fr.prefix[:])
		fr.state = needBody
		if size == 0 {
			fr.state = frameReady
		}
	case needBody:
		if fr.filled == len(fr.frame) {
			fr.state = frameReady
		}
	}
	return nil
}
