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
Package protocol implements the request envelope of the Kafka wire protocol.

PROTOCOL OVERVIEW:
==================
Clients talk to kafkad over persistent TCP connections. Every request is a
length-delimited frame carrying a versioned header and an opaque payload.
This package owns the framing, the header decoding and the fault taxonomy.
Payload schemas belong to request handlers.

All integers are big-endian.

REQUEST FORMAT:
===============

	+---------------------------+
	| message_size (int32)      |  bytes that follow, excluding itself
	+---------------------------+
	| api_key (int16)           |
	| api_version (int16)       |  common fields, always at these offsets
	| correlation_id (int32)    |
	+---------------------------+
	| client_id                 |  v1 and later: int16 length + UTF-8,
	|                           |  a negative length means absent
	+---------------------------+
	| tagged_fields             |  v2 and later: uint16 length + raw bytes
	+---------------------------+
	| payload                   |  handed to the request handler as is
	+---------------------------+

The header variant depends only on api_version:

  api_version < 0   UnsupportedVersion fault
  api_version = 0   HeaderV0
  api_version = 1   HeaderV1
  api_version >= 2  HeaderV2

RESPONSE FORMAT:
================

	+---------------------------+
	| size (int32)              |  4 + len(body)
	| correlation_id (int32)    |  echoed from the request
	| body                      |  produced by the handler
	+---------------------------+

When a request fails after its common fields were readable, the body is the
int16 error code of the fault (see fault.go).

EXAMPLE:
========
A v0 request for api_key 1 with correlation_id 42 and no payload:

	00 00 00 08   message_size = 8
	00 01         api_key = 1
	00 00         api_version = 0
	00 00 00 2A   correlation_id = 42
*/
package protocol

const (
	// SizePrefixLen is the length of the message_size field.
	SizePrefixLen = 4

	// CommonHeaderLen is the length of api_key, api_version and
	// correlation_id together.
	CommonHeaderLen = 8

	// DefaultMaxRequestBytes caps message_size for stream reads.
	// Matches the broker's socket.request.max.bytes default of 100MiB.
	DefaultMaxRequestBytes int32 = 100 * 1024 * 1024
)
