// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package ssbd

import (
	"errors"
	"fmt"
)

// ErrShuttingDown is returned by operations that are started after Close()
var ErrShuttingDown = fmt.Errorf("ssbd: shutting down now") // this is fine

// ErrNoSuchFile is returned by storage adapters for files that were never written.
var ErrNoSuchFile = errors.New("ssbd: no such file")

// structural
var (
	ErrInvalidSequence  = errors.New("invalid sequence")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidAuthor    = errors.New("invalid author")
	ErrInvalidContent   = errors.New("invalid content")
)

// chain
var (
	ErrSequenceMismatch       = errors.New("sequence does not follow previous state")
	ErrPreviousMismatch       = errors.New("previous pointer mismatch")
	ErrTimestampNotIncreasing = errors.New("timestamp must increase")
)

var (
	ErrUnsupportedHash        = errors.New("unsupported hash type")
	ErrInvalidSignatureFormat = errors.New("invalid signature format")
	ErrSignatureMismatch      = errors.New("invalid signature")
	ErrAuthorKeyMismatch      = errors.New("author must match signing keys")
)

// ValidationKind names the check a message failed.
type ValidationKind string

const (
	KindStructure ValidationKind = "structure"
	KindChain     ValidationKind = "chain"
	KindHash      ValidationKind = "hash"
	KindSignature ValidationKind = "signature"
)

// ValidationError is returned when a message is rejected.
type ValidationError struct {
	Kind     ValidationKind
	Author   string
	Sequence int64

	Err error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("ssbd/validate(%s:%d): %s check failed: %s", e.Author, e.Sequence, e.Kind, e.Err)
}

func (e ValidationError) Unwrap() error { return e.Err }

// IsValidationError returns the kind of the validation error wrapped in err, if any.
func IsValidationError(err error) (ValidationKind, bool) {
	var verr ValidationError
	if errors.As(err, &verr) {
		return verr.Kind, true
	}
	return "", false
}
