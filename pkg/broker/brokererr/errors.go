// Copyright The Vibe Broker Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package brokererr is the broker's error taxonomy: every error a handler
// can return maps to exactly one HTTP status, and the one programmer-error
// class (FatalInvariantViolation) carries a stack trace so an operator can
// actually find the bug instead of staring at a one-line log.
package brokererr

import (
	"net/http"

	goerrors "github.com/go-errors/errors"
)

// Kind classifies an Error for status mapping and logging severity.
type Kind int

const (
	KindValidation Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindQuotaExceeded
	KindTransientRuntimeFailure
	KindTransportGone
	KindFatalInvariantViolation
)

// Error is the broker's wrapped error type. Callers compare Kind, not the
// message, to decide how to respond.
type Error struct {
	Kind    Kind
	Message string
	cause   error
	stack   *goerrors.Error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Stack returns the captured stack trace, only non-empty for
// FatalInvariantViolation errors.
func (e *Error) Stack() string {
	if e.stack == nil {
		return ""
	}

	return string(e.stack.Stack())
}

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func Validation(message string) *Error {
	return newErr(KindValidation, message, nil)
}

func Unauthenticated(message string) *Error {
	return newErr(KindUnauthenticated, message, nil)
}

func Forbidden(message string) *Error {
	return newErr(KindForbidden, message, nil)
}

func NotFound(message string) *Error {
	return newErr(KindNotFound, message, nil)
}

func QuotaExceeded(message string) *Error {
	return newErr(KindQuotaExceeded, message, nil)
}

func TransientRuntimeFailure(message string, cause error) *Error {
	return newErr(KindTransientRuntimeFailure, message, cause)
}

func TransportGone(message string) *Error {
	return newErr(KindTransportGone, message, nil)
}

// FatalInvariantViolation records a programmer error -- double release of
// a port, a ref count gone negative, a detected lock-order inversion. It is
// logged at error severity with a full stack trace and surfaced to the
// client as a 500, but it never crashes the process: the design is explicit
// that these stay assertions, not panics.
func FatalInvariantViolation(message string) *Error {
	e := newErr(KindFatalInvariantViolation, message, nil)
	e.stack = goerrors.Wrap(message, 1)

	return e
}

// HTTPStatus maps a Kind to the status code the design assigns it.
func HTTPStatus(err error) int {
	be, ok := err.(*Error)
	if !ok {
		return http.StatusInternalServerError
	}

	switch be.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindTransientRuntimeFailure:
		return http.StatusInternalServerError
	case KindTransportGone:
		return http.StatusGone
	case KindFatalInvariantViolation:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
