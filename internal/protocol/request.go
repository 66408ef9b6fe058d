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

// Request is one decoded request envelope. Payload aliases the frame
// buffer it was parsed from.
type Request struct {
	MessageSize int32
	Header      RequestHeader
	Payload     []byte
}

// ParseRequest validates a whole frame and decodes its header.
func ParseRequest(raw []byte) (*Request, error) {
	body, err := Frame(raw)
	if err != nil {
		return nil, err
	}
	h, n, err := DecodeHeader(body)
	if err != nil {
		return nil, err
	}
	return &Request{
		MessageSize: int32(len(body)),
		Header:      h,
		Payload:     body[n:],
	}, nil
}

// APIKey returns the request's api_key.
func (r *Request) APIKey() int16 { return r.Header.Common().APIKey }

// APIVersion returns the request's api_version.
func (r *Request) APIVersion() int16 { return r.Header.Common().APIVersion }

// CorrelationID returns the request's correlation_id.
func (r *Request) CorrelationID() int32 { return r.Header.Common().CorrelationID }
