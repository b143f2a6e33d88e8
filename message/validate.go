// SPDX-FileCopyrightText: 2021 The Go-SSB Authors
//
// SPDX-License-Identifier: MIT

package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	refs "github.com/ssbc/go-ssb-refs"

	"github.com/ssbc/go-ssbd"
	"github.com/ssbc/go-ssbd/message/legacy"
)

// Validate checks v and returns its key. With enforceSequence the message needs to
// directly follow prior, a nil prior stands for an empty feed.
// Errors are of type ssbd.ValidationError.
func Validate(v ssbd.Value, prior *ssbd.FeedState, enforceSequence bool, opts ...Option) (refs.MessageRef, error) {
	fail := func(kind ssbd.ValidationKind, err error) (refs.MessageRef, error) {
		return refs.MessageRef{}, ssbd.ValidationError{
			Kind:     kind,
			Author:   v.Author,
			Sequence: v.Sequence,
			Err:      err,
		}
	}

	// structure
	if v.Sequence < 1 {
		return fail(ssbd.KindStructure, fmt.Errorf("%w: %d", ssbd.ErrInvalidSequence, v.Sequence))
	}
	if math.IsNaN(v.Timestamp) || math.IsInf(v.Timestamp, 0) {
		return fail(ssbd.KindStructure, ssbd.ErrInvalidTimestamp)
	}
	author, err := refs.ParseFeedRef(v.Author)
	if err != nil {
		return fail(ssbd.KindStructure, fmt.Errorf("%w: %s", ssbd.ErrInvalidAuthor, err))
	}
	if author.Algo() != refs.RefAlgoFeedSSB1 {
		return fail(ssbd.KindStructure, fmt.Errorf("%w: unsupported feed format %s", ssbd.ErrInvalidAuthor, author.Algo()))
	}
	if err := checkContent(v.Content); err != nil {
		return fail(ssbd.KindStructure, err)
	}

	// chain
	if enforceSequence {
		var state ssbd.FeedState
		if prior != nil {
			state = *prior
		}

		if v.Sequence != state.Sequence+1 {
			return fail(ssbd.KindChain, fmt.Errorf("%w: expected %d", ssbd.ErrSequenceMismatch, state.Sequence+1))
		}
		if got, want := v.PreviousString(), state.IDString(); got != want {
			return fail(ssbd.KindChain, fmt.Errorf("%w: expected %q got %q", ssbd.ErrPreviousMismatch, want, got))
		}
		if prior != nil && v.Timestamp <= state.Timestamp {
			return fail(ssbd.KindChain, fmt.Errorf("%w: %v is not after %v", ssbd.ErrTimestampNotIncreasing, v.Timestamp, state.Timestamp))
		}
	}

	// hash
	key, canonical, err := Hash(v)
	if err != nil {
		return fail(ssbd.KindHash, err)
	}

	// signature
	sig, err := legacy.NewSignatureFromBase64(v.Signature)
	if err != nil {
		return fail(ssbd.KindSignature, fmt.Errorf("%w: %s", ssbd.ErrInvalidSignatureFormat, err))
	}
	o := makeOptions(opts)
	if err := sig.Verify(canonical, author, o.hmacKey); err != nil {
		return fail(ssbd.KindSignature, fmt.Errorf("%w: %s", ssbd.ErrSignatureMismatch, err))
	}

	return key, nil
}

// content needs to be an object, an array or a non-empty (encrypted) string
func checkContent(content json.RawMessage) error {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: missing", ssbd.ErrInvalidContent)
	}
	if !json.Valid(trimmed) {
		return fmt.Errorf("%w: not valid JSON", ssbd.ErrInvalidContent)
	}

	switch trimmed[0] {
	case '{', '[':
		return nil
	case '"':
		if bytes.Equal(trimmed, []byte(`""`)) {
			return fmt.Errorf("%w: empty string", ssbd.ErrInvalidContent)
		}
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %q", ssbd.ErrInvalidContent, trimmed[0])
	}
}
