// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package registry

import (
	"errors"
	"fmt"
)

// EnvelopeError is a counterparty application error: the HTTP exchange
// succeeded but the response envelope carried a non-200 code or a failure
// status. For retry purposes callers treat it like a transient error, but it
// is logged distinctly from transport failures.
type EnvelopeError struct {
	Code    int
	Status  string
	Message string
}

func (e *EnvelopeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("source system error (code %d, status %q): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("source system error (code %d, status %q)", e.Code, e.Status)
}

// IsEnvelopeError reports whether err is an application-level Source System
// error rather than a transport failure.
func IsEnvelopeError(err error) bool {
	var envErr *EnvelopeError
	return errors.As(err, &envErr)
}
