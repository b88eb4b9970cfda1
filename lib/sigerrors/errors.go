/*
 * Copyright (c) SAS Institute Inc.
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

// Package sigerrors defines the error kinds reported by the re-signing
// pipeline. Each kind wraps its cause so callers can match with errors.As and
// still reach the underlying error.
package sigerrors

import (
	"errors"
	"fmt"
)

// ToolError is returned when the external signing utility exits unsuccessfully
// at any stage.
type ToolError struct {
	// Op is the utility subcommand that failed, e.g. "extract-signature"
	Op string
	// Output holds whatever the utility wrote to stdout and stderr
	Output string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("signing tool failed running %s: %s", e.Op, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// MalformedSignature is returned when an extracted signature blob cannot be
// decoded, or decodes to something other than a single-signer Authenticode
// SignedData.
type MalformedSignature struct {
	Reason string
	Err    error
}

func (e *MalformedSignature) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed signature: %s: %s", e.Reason, e.Err)
	}
	return "malformed signature: " + e.Reason
}

func (e *MalformedSignature) Unwrap() error { return e.Err }

// SigningFailed is returned when the signing capability errors or produces an
// empty result.
type SigningFailed struct {
	Err error
}

func (e *SigningFailed) Error() string {
	return "signing failed: " + e.Err.Error()
}

func (e *SigningFailed) Unwrap() error { return e.Err }

// AttachError is returned when the final packaging or attach stage fails.
type AttachError struct {
	Err error
}

func (e *AttachError) Error() string {
	return "attaching signature failed: " + e.Err.Error()
}

func (e *AttachError) Unwrap() error { return e.Err }

// ErrEmptySignature is the cause attached to SigningFailed when a signer
// returns no error but also no signature bytes.
var ErrEmptySignature = errors.New("signer returned an empty signature")

type PinIncorrectError struct{}

func (PinIncorrectError) Error() string {
	return "PIN is incorrect"
}

type KeyNotFoundError struct{}

func (KeyNotFoundError) Error() string {
	return "key not found"
}

// Kind returns a short machine-friendly name for the error kind, suitable for
// use as a metric label. Unclassified errors are reported as "other".
func Kind(err error) string {
	var (
		toolErr      *ToolError
		malformedErr *MalformedSignature
		signErr      *SigningFailed
		attachErr    *AttachError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &attachErr):
		return "attach"
	case errors.As(err, &toolErr):
		return "tool"
	case errors.As(err, &malformedErr):
		return "malformed"
	case errors.As(err, &signErr):
		return "signing"
	default:
		return "other"
	}
}
