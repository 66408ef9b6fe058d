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

	"github.com/twmb/franz-go/pkg/kerr"
)

// Wire error codes used by the protocol layer.
var (
	CodeNone               int16 = 0
	CodeUnknownServerError       = kerr.UnknownServerError.Code
	CodeUnsupportedVersion       = kerr.UnsupportedVersion.Code
	CodeInvalidRequest           = kerr.InvalidRequest.Code
)

// Kind classifies a Fault.
type Kind int

const (
	// KindMalformedRequest covers bad frame lengths, truncated headers,
	// invalid text and truncated length-prefixed fields.
	KindMalformedRequest Kind = iota
	// KindUnsupportedVersion is a header version the decoder rejects.
	KindUnsupportedVersion
	// KindInternal is anything originating below the protocol layer.
	KindInternal
	// KindIO is a socket read or write failure.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindMalformedRequest:
		return "malformed request"
	case KindUnsupportedVersion:
		return "unsupported version"
	case KindInternal:
		return "internal server error"
	case KindIO:
		return "io"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Fault is the single error type surfaced by the protocol layer and the
// session loop. Every failure is classified into exactly one Fault.
type Fault struct {
	Kind   Kind
	Code   int16
	Reason string
	Err    error
}

func (f *Fault) Error() string {
	switch {
	case f.Reason != "" && f.Err != nil:
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Reason, f.Err)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	default:
		return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
	}
}

func (f *Fault) Unwrap() error { return f.Err }

// Retriable reports whether the catalogue marks the fault's code retriable.
func (f *Fault) Retriable() bool {
	rec, ok := Lookup(f.Code)
	return ok && rec.Retriable
}

// Malformed returns a MalformedRequest fault carrying code.
func Malformed(code int16, format string, args ...interface{}) *Fault {
	return &Fault{Kind: KindMalformedRequest, Code: code, Reason: fmt.Sprintf(format, args...)}
}

// MalformedRequest returns a MalformedRequest fault with INVALID_REQUEST.
func MalformedRequest(format string, args ...interface{}) *Fault {
	return Malformed(CodeInvalidRequest, format, args...)
}

// Unsupported returns an UnsupportedVersion fault for a header version.
func Unsupported(version int16) *Fault {
	return &Fault{
		Kind:   KindUnsupportedVersion,
		Code:   CodeUnsupportedVersion,
		Reason: fmt.Sprintf("unsupported api_version %d", version),
	}
}

// Internal returns an InternalServerError fault.
func Internal(format string, args ...interface{}) *Fault {
	return &Fault{Kind: KindInternal, Code: CodeUnknownServerError, Reason: fmt.Sprintf(format, args...)}
}

// IOFault wraps a socket error.
func IOFault(err error) *Fault {
	return &Fault{Kind: KindIO, Code: CodeUnknownServerError, Err: err}
}

// Classify returns err as a Fault. Errors that are not faults become
// internal faults wrapping the original error. Classify(nil) is nil.
func Classify(err error) *Fault {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{Kind: KindInternal, Code: CodeUnknownServerError, Err: err}
}

// CodeOf maps an error to the wire code reported for it.
func CodeOf(err error) int16 {
	f := Classify(err)
	if f == nil {
		return CodeNone
	}
	switch f.Kind {
	case KindMalformedRequest:
		return f.Code
	case KindUnsupportedVersion:
		return CodeUnsupportedVersion
	default:
		return CodeUnknownServerError
	}
}

// Record describes one entry of the broker error catalogue.
type Record struct {
	Name        string
	Code        int16
	Retriable   bool
	Description string
}

// Lookup returns the catalogue entry for a wire code.
func Lookup(code int16) (Record, bool) {
	if code == CodeNone {
		return Record{Name: "NONE", Code: CodeNone, Description: "No error."}, true
	}
	var ke *kerr.Error
	if !errors.As(kerr.ErrorForCode(code), &ke) || ke.Code != code {
		return Record{}, false
	}
	return Record{
		Name:        ke.Message,
		Code:        ke.Code,
		Retriable:   ke.Retriable,
		Description: ke.Description,
	}, true
}

// CodeName returns the catalogue name of a code.
func CodeName(code int16) string {
	if rec, ok := Lookup(code); ok {
		return rec.Name
	}
	return fmt.Sprintf("UNKNOWN_CODE(%d)", code)
}
