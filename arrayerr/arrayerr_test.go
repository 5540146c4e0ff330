// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package arrayerr

import (
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
)

func TestKinds(t *testing.T) {
	err := Errorf(BufferSizeMismatch, "buffer has %d elements, want %d", 3, 4)
	if !Is(BufferSizeMismatch, err) {
		t.Errorf("expected %v to be BufferSizeMismatch", err)
	}
	if Is(InvalidShape, err) {
		t.Errorf("did not expect %v to be InvalidShape", err)
	}
	if got, want := KindOf(err), BufferSizeMismatch; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !errors.Is(errors.Invalid, err.(*Error).Err) {
		t.Errorf("expected base kind Invalid, got %v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "buffer size mismatch") || !strings.Contains(msg, "3") {
		t.Errorf("bad message %q", msg)
	}
}

func TestRankRefinesGridCoordinate(t *testing.T) {
	err := E(InvalidRank, "rank 7 outside grid of size 4")
	if !Is(InvalidRank, err) {
		t.Error("expected InvalidRank")
	}
	if !Is(InvalidGridCoordinate, err) {
		t.Error("expected InvalidRank to match InvalidGridCoordinate")
	}
	if Is(InvalidRank, E(InvalidGridCoordinate, "x")) {
		t.Error("InvalidGridCoordinate must not match InvalidRank")
	}
}

func TestWrapped(t *testing.T) {
	inner := E(UnknownDistributionType, `unknown tag "z"`)
	outer := errors.E("dim 2", inner)
	if !Is(UnknownDistributionType, outer) {
		t.Errorf("expected wrapped kind to be found in %v", outer)
	}
	if got, want := KindOf(outer), UnknownDistributionType; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if Is(ProtocolError, errors.New("plain")) {
		t.Error("plain errors have no kind")
	}
	if got, want := KindOf(nil), Other; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBaseKindOverride(t *testing.T) {
	err := E(ProtocolError, errors.Integrity, "checksum mismatch")
	if !errors.Is(errors.Integrity, err.(*Error).Err) {
		t.Errorf("expected Integrity, got %v", err)
	}
	if got, want := Kind(99).String(), "Kind(99)"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
