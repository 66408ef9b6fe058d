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
	"encoding/binary"
	"unicode/utf8"

	"github.com/twmb/franz-go/pkg/kbin"
)

// HeaderVersion identifies a request header layout.
type HeaderVersion int8

const (
	HeaderVersion0 HeaderVersion = 0
	HeaderVersion1 HeaderVersion = 1
	HeaderVersion2 HeaderVersion = 2
)

// CommonFields are present in every header version at fixed offsets.
type CommonFields struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
}

// Common returns the shared prefix.
func (c CommonFields) Common() CommonFields { return c }

// RequestHeader is one of HeaderV0, HeaderV1 or HeaderV2.
type RequestHeader interface {
	Common() CommonFields
	Version() HeaderVersion
	isRequestHeader()
}

// HeaderV0 carries only the common fields.
type HeaderV0 struct {
	CommonFields
}

// HeaderV1 adds the optional client identifier.
type HeaderV1 struct {
	CommonFields
	ClientID *string
}

// HeaderV2 adds the opaque tagged-field buffer, kept verbatim.
type HeaderV2 struct {
	CommonFields
	ClientID     *string
	TaggedFields []byte
}

func (HeaderV0) Version() HeaderVersion { return HeaderVersion0 }
func (HeaderV1) Version() HeaderVersion { return HeaderVersion1 }
func (HeaderV2) Version() HeaderVersion { return HeaderVersion2 }

func (HeaderV0) isRequestHeader() {}
func (HeaderV1) isRequestHeader() {}
func (HeaderV2) isRequestHeader() {}

// ClientID returns the client identifier of h, or nil when the version has
// none or the client sent none.
func ClientID(h RequestHeader) *string {
	switch v := h.(type) {
	case HeaderV1:
		return v.ClientID
	case HeaderV2:
		return v.ClientID
	default:
		return nil
	}
}

// PeekCommon decodes the fixed prefix without looking at the version.
func PeekCommon(b []byte) (CommonFields, error) {
	if len(b) < CommonHeaderLen {
		return CommonFields{}, MalformedRequest("header requires at least %d bytes; found %d", CommonHeaderLen, len(b))
	}
	r := kbin.Reader{Src: b[:CommonHeaderLen]}
	return CommonFields{
		APIKey:        r.Int16(),
		APIVersion:    r.Int16(),
		CorrelationID: r.Int32(),
	}, nil
}

// DecodeHeader decodes a request header from the start of b and reports how
// many bytes it consumed. The layout is selected by api_version alone.
func DecodeHeader(b []byte) (RequestHeader, int, error) {
	common, err := PeekCommon(b)
	if err != nil {
		return nil, 0, err
	}
	off := CommonHeaderLen

	switch v := common.APIVersion; {
	case v < 0:
		return nil, 0, Unsupported(v)
	case v == 0:
		return HeaderV0{CommonFields: common}, off, nil
	}

	clientID, n, err := decodeClientID(b[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	if common.APIVersion == 1 {
		return HeaderV1{CommonFields: common, ClientID: clientID}, off, nil
	}

	tags, n, err := decodeTaggedFields(b[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n
	return HeaderV2{CommonFields: common, ClientID: clientID, TaggedFields: tags}, off, nil
}

// decodeClientID reads an int16 length and that many bytes of UTF-8.
// A negative length means no identifier and consumes only the length.
func decodeClientID(b []byte) (*string, int, error) {
	if len(b) < 2 {
		return nil, 0, MalformedRequest("client_id length requires 2 bytes, but only %d bytes remain", len(b))
	}
	n := int16(binary.BigEndian.Uint16(b))
	if n < 0 {
		return nil, 2, nil
	}
	rest := b[2:]
	if int(n) > len(rest) {
		return nil, 0, MalformedRequest("client_id says length=%d, but only %d bytes remain", n, len(rest))
	}
	raw := rest[:n]
	if !utf8.Valid(raw) {
		return nil, 0, MalformedRequest("client_id is not valid UTF-8")
	}
	s := string(raw)
	return &s, 2 + int(n), nil
}

// decodeTaggedFields reads a uint16 length and that many raw bytes.
func decodeTaggedFields(b []byte) ([]byte, int, error) {
	if len(b) < 2 {
		return nil, 0, MalformedRequest("tagged_fields length requires 2 bytes, but only %d bytes remain", len(b))
	}
	n := int(binary.BigEndian.Uint16(b))
	rest := b[2:]
	if n > len(rest) {
		return nil, 0, MalformedRequest("tagged_fields says length=%d, but only %d bytes remain", n, len(rest))
	}
	tags := make([]byte, n)
	copy(tags, rest[:n])
	return tags, 2 + n, nil
}
