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
	"io"

	"github.com/twmb/franz-go/pkg/kbin"
)

// EncodeResponse frames a response body behind its size and correlation ID.
func EncodeResponse(correlationID int32, body []byte) []byte {
	out := make([]byte, 0, SizePrefixLen+4+len(body))
	out = kbin.AppendInt32(out, int32(4+len(body)))
	out = kbin.AppendInt32(out, correlationID)
	return append(out, body...)
}

// EncodeFault builds the response reporting err: a body holding only the
// error code.
func EncodeFault(correlationID int32, err error) []byte {
	return EncodeResponse(correlationID, kbin.AppendInt16(nil, CodeOf(err)))
}

// WriteFull writes all of b, retrying short writes. Any failure is
// returned as an IO fault.
func WriteFull(w io.Writer, b []byte) (int, error) {
	written := 0
	for written < len(b) {
		n, err := w.Write(b[written:])
		written += n
		if err != nil {
			return written, IOFault(err)
		}
		if n == 0 {
			return written, IOFault(io.ErrShortWrite)
		}
	}
	return written, nil
}
