// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package buffer

import (
	"reflect"
	"testing"
)

var (
	typeOfFloat64 = reflect.TypeOf(0.0)
	typeOfUint8   = reflect.TypeOf(uint8(0))
)

func TestMake(t *testing.T) {
	b := Make(typeOfFloat64, 12)
	if got, want := b.Len(), 12; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := b.ElemType(), typeOfFloat64; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	for i, x := range b.Interface().([]float64) {
		if x != 0 {
			t.Errorf("element %d: got %v, want 0", i, x)
		}
	}
	if got, want := b.String(), "buffer[12]float64"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestZero(t *testing.T) {
	var b Buffer
	if !b.IsZero() {
		t.Error("expected zero buffer")
	}
	if got, want := b.Len(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if b.ElemType() != nil || b.Interface() != nil {
		t.Error("zero buffer has no element type")
	}
	if Make(typeOfFloat64, 0).IsZero() {
		t.Error("empty buffer is not the zero buffer")
	}
	if !Equal(Buffer{}, Buffer{}) {
		t.Error("zero buffers should be equal")
	}
	if Equal(Buffer{}, Make(typeOfFloat64, 0)) {
		t.Error("zero and empty buffers should differ")
	}
	if got, want := b.Clone(), b; !got.IsZero() {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestOfShares(t *testing.T) {
	s := []int{1, 2, 3, 4}
	b := Of(s)
	b.Set(2, 30)
	if got, want := s[2], 30; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := b.Index(3).Int(), int64(4); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if !b.Shares(Of(s)) {
		t.Error("expected shared storage")
	}
	c := b.Clone()
	if b.Shares(c) {
		t.Error("clone shares storage")
	}
	if !Equal(b, c) {
		t.Errorf("got %v, want %v", c.Interface(), b.Interface())
	}
	c.Set(0, 100)
	if got, want := s[0], 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if Equal(b, c) {
		t.Error("buffers should differ")
	}
}

func TestOfPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Of(123)
}

func TestCopySlice(t *testing.T) {
	src := Of([]uint8{1, 2, 3, 4, 5})
	dst := Make(typeOfUint8, 3)
	if got, want := Copy(dst, src.Slice(2, 5)), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := dst.Interface().([]uint8), []uint8{3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	dst.Clear()
	if got, want := dst.Interface().([]uint8), []uint8{0, 0, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEqualTypes(t *testing.T) {
	if Equal(Of([]int32{1, 2}), Of([]int64{1, 2})) {
		t.Error("buffers of different types should differ")
	}
	if Equal(Of([]int{1, 2}), Of([]int{1, 2, 3})) {
		t.Error("buffers of different lengths should differ")
	}
	if !Equal(Of([]complex128{1 + 2i}), Of([]complex128{1 + 2i})) {
		t.Error("expected equal buffers")
	}
}
