// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package arrayerr defines the error kinds reported by distarray.
// Errors carry a Kind that describes which invariant was violated;
// the underlying error is a github.com/grailbio/base/errors error so
// that callers that already dispatch on those kinds (Invalid,
// Integrity) keep working.
package arrayerr

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Kind is the kind of a distarray error.
type Kind int

const (
	// Other is an unclassified error.
	Other Kind = iota
	// InvalidShape indicates a negative or otherwise invalid extent.
	InvalidShape
	// InvalidGridCoordinate indicates a grid coordinate outside of
	// the grid, or a grid whose dimensionality does not match the
	// number of distributed dimensions.
	InvalidGridCoordinate
	// InvalidRank indicates a process rank outside of the grid. It
	// is a refinement of InvalidGridCoordinate.
	InvalidRank
	// BufferSizeMismatch indicates that a supplied buffer does not
	// match the derived local shape.
	BufferSizeMismatch
	// UnknownDistributionType indicates an unrecognized
	// distribution tag.
	UnknownDistributionType
	// ProtocolError indicates a malformed protocol descriptor.
	ProtocolError
	// IncompatibleShards indicates an operation between local
	// arrays with different shapes, distributions, or grids.
	IncompatibleShards
	// OutOfRange indicates a local index outside of a shard.
	OutOfRange
)

var kinds = map[Kind]string{
	Other:                   "other",
	InvalidShape:            "invalid shape",
	InvalidGridCoordinate:   "invalid grid coordinate",
	InvalidRank:             "invalid rank",
	BufferSizeMismatch:      "buffer size mismatch",
	UnknownDistributionType: "unknown distribution type",
	ProtocolError:           "protocol error",
	IncompatibleShards:      "incompatible shards",
	OutOfRange:              "index out of range",
}

// String returns a human-readable description of the kind.
func (k Kind) String() string {
	if s, ok := kinds[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a distarray error. It wraps an underlying error with
// the kind of invariant that was violated.
type Error struct {
	Kind Kind
	Err  error
}

// E constructs a new error of the given kind. The remaining
// arguments are interpreted as by github.com/grailbio/base/errors.E:
// strings are messages, errors are causes, and errors.Kind values
// override the default base kind (errors.Invalid).
func E(kind Kind, args ...interface{}) error {
	var hasKind bool
	for _, arg := range args {
		if _, ok := arg.(errors.Kind); ok {
			hasKind = true
			break
		}
	}
	if !hasKind {
		args = append([]interface{}{errors.Invalid}, args...)
	}
	return &Error{Kind: kind, Err: errors.E(args...)}
}

// Errorf constructs a new error of the given kind with a formatted
// message.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return E(kind, fmt.Sprintf(format, args...))
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Is tells whether err is a distarray error of the provided kind.
// Errors of kind InvalidRank also match InvalidGridCoordinate.
func Is(kind Kind, err error) bool {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Kind == kind || (kind == InvalidGridCoordinate && e.Kind == InvalidRank) {
				return true
			}
			err = e.Err
		case *errors.Error:
			err = e.Err
		default:
			return false
		}
	}
	return false
}

// KindOf returns the kind of err, or Other if err is not a
// distarray error.
func KindOf(err error) Kind {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			return e.Kind
		case *errors.Error:
			err = e.Err
		default:
			return Other
		}
	}
	return Other
}
