// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vexfserrors defines the typed error taxonomy shared by every layer
// of the core: the block device, allocator, journal, CoW/snapshot manager,
// vector store, HNSW index, userspace journal and IPC manager all report
// failures through this package instead of ad-hoc error strings.
package vexfserrors

import (
	"errors"
	"fmt"
	"syscall"
)

// Code identifies the kind of failure. Codes are stable and are mapped to a
// POSIX errno at the FUSE boundary by Errno().
type Code int

const (
	// CodeUnknown is never returned by this package; it exists so the zero
	// value of Code is distinguishable from a real failure.
	CodeUnknown Code = iota
	CodeIO
	CodeNoSpace
	CodeNotFound
	CodeAlreadyExists
	CodePermissionDenied
	CodeInvalidArgument
	CodeCorruption
	CodeBusy
	CodeTimeout
	CodeResourceExhausted
	CodeFeatureUnsupported
	CodeCancelled
)

func (c Code) String() string {
	switch c {
	case CodeIO:
		return "IO"
	case CodeNoSpace:
		return "NoSpace"
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodePermissionDenied:
		return "PermissionDenied"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeCorruption:
		return "Corruption"
	case CodeBusy:
		return "Busy"
	case CodeTimeout:
		return "Timeout"
	case CodeResourceExhausted:
		return "ResourceExhausted"
	case CodeFeatureUnsupported:
		return "FeatureUnsupported"
	case CodeCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Errno maps a Code to the closest POSIX errno, for the FUSE boundary.
func (c Code) Errno() syscall.Errno {
	switch c {
	case CodeIO:
		return syscall.EIO
	case CodeNoSpace:
		return syscall.ENOSPC
	case CodeNotFound:
		return syscall.ENOENT
	case CodeAlreadyExists:
		return syscall.EEXIST
	case CodePermissionDenied:
		return syscall.EACCES
	case CodeInvalidArgument:
		return syscall.EINVAL
	case CodeCorruption:
		return syscall.EIO
	case CodeBusy:
		return syscall.EBUSY
	case CodeTimeout:
		return syscall.ETIMEDOUT
	case CodeResourceExhausted:
		return syscall.ENOMEM
	case CodeFeatureUnsupported:
		return syscall.ENOTSUP
	case CodeCancelled:
		return syscall.ECANCELED
	default:
		return syscall.EIO
	}
}

// Retriable reports whether the IPC layer and journal retry logic should
// attempt this failure again, per spec.md §7's propagation policy.
func (c Code) Retriable() bool {
	switch c {
	case CodeBusy, CodeTimeout, CodeIO:
		return true
	default:
		return false
	}
}

// Error is the typed error returned by every fallible core operation. It
// carries a correlation id (propagated from the caller's request context
// where one exists) and a short, human-readable context string describing
// what was being attempted.
type Error struct {
	Code          Code
	CorrelationID string
	Context       string
	Cause         error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		if e.CorrelationID != "" {
			return fmt.Sprintf("%s: %s [%s] (corr=%s): %v", e.Code, e.Context, e.Code, e.CorrelationID, e.Cause)
		}
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Context, e.Cause)
	}
	if e.CorrelationID != "" {
		return fmt.Sprintf("%s: %s (corr=%s)", e.Code, e.Context, e.CorrelationID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Context)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Code, so callers can
// write errors.Is(err, vexfserrors.New(vexfserrors.CodeNotFound, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New constructs an Error of the given kind.
func New(code Code, context string) *Error {
	return &Error{Code: code, Context: context}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(code Code, context string, cause error) *Error {
	return &Error{Code: code, Context: context, Cause: cause}
}

// WithCorrelationID returns a copy of e carrying the given correlation id.
func (e *Error) WithCorrelationID(id string) *Error {
	clone := *e
	clone.CorrelationID = id
	return &clone
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error, otherwise
// returns CodeIO as the conservative default for an unrecognized failure.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeIO
}

// Is* helpers mirror the common errors.Is(err, ...) pattern for callers that
// only care about the kind.
func IsNotFound(err error) bool        { return CodeOf(err) == CodeNotFound }
func IsAlreadyExists(err error) bool   { return CodeOf(err) == CodeAlreadyExists }
func IsNoSpace(err error) bool         { return CodeOf(err) == CodeNoSpace }
func IsCorruption(err error) bool      { return CodeOf(err) == CodeCorruption }
func IsInvalidArgument(err error) bool { return CodeOf(err) == CodeInvalidArgument }
func IsTimeout(err error) bool         { return CodeOf(err) == CodeTimeout }
func IsBusy(err error) bool            { return CodeOf(err) == CodeBusy }
func IsCancelled(err error) bool       { return CodeOf(err) == CodeCancelled }
