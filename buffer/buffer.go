// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package buffer implements the element storage of local arrays.
// A Buffer is a contiguous vector of elements of a single type.
// Buffers are always Go slices, but are represented as a
// reflect.Value so that local arrays may hold any element type.
package buffer

import (
	"fmt"
	"reflect"

	"github.com/grailbio/base/must"
)

// A Buffer is a contiguous vector of elements. The zero Buffer
// holds no storage at all and is distinct from an empty buffer of
// some element type.
type Buffer struct {
	v reflect.Value
}

// Make returns a zero-initialized buffer of n elements of type typ.
func Make(typ reflect.Type, n int) Buffer {
	return Buffer{reflect.MakeSlice(reflect.SliceOf(typ), n, n)}
}

// Of returns a buffer backed by the provided slice. The buffer
// shares storage with the slice. Of panics if the argument is not a
// slice.
func Of(slice interface{}) Buffer {
	v := reflect.ValueOf(slice)
	must.Truef(v.Kind() == reflect.Slice, "buffer.Of: expected slice, got %T", slice)
	return Buffer{v}
}

// IsZero tells whether b is the zero Buffer.
func (b Buffer) IsZero() bool { return !b.v.IsValid() }

// Len returns the number of elements in the buffer.
func (b Buffer) Len() int {
	if b.IsZero() {
		return 0
	}
	return b.v.Len()
}

// ElemType returns the buffer's element type.
func (b Buffer) ElemType() reflect.Type {
	if b.IsZero() {
		return nil
	}
	return b.v.Type().Elem()
}

// Value returns the reflect.Value of the underlying slice.
func (b Buffer) Value() reflect.Value { return b.v }

// Interface returns the underlying slice, for example a []float64.
// The returned slice shares storage with the buffer.
func (b Buffer) Interface() interface{} {
	if b.IsZero() {
		return nil
	}
	return b.v.Interface()
}

// Index returns the element at offset i.
func (b Buffer) Index(i int) reflect.Value { return b.v.Index(i) }

// Set sets the element at offset i to x, which must be assignable
// to the buffer's element type.
func (b Buffer) Set(i int, x interface{}) {
	b.v.Index(i).Set(reflect.ValueOf(x))
}

// Slice returns elements i to j of the buffer, sharing storage.
func (b Buffer) Slice(i, j int) Buffer { return Buffer{b.v.Slice(i, j)} }

// Clone returns a copy of the buffer that does not share storage
// with b.
func (b Buffer) Clone() Buffer {
	if b.IsZero() {
		return b
	}
	c := Make(b.ElemType(), b.Len())
	reflect.Copy(c.v, b.v)
	return c
}

// Clear zeros out the buffer.
func (b Buffer) Clear() {
	if b.IsZero() {
		return
	}
	zero := reflect.Zero(b.ElemType())
	for i := 0; i < b.Len(); i++ {
		b.v.Index(i).Set(zero)
	}
}

// Shares tells whether buffers b and c are backed by the same
// storage.
func (b Buffer) Shares(c Buffer) bool {
	if b.IsZero() || c.IsZero() || b.Len() == 0 || c.Len() == 0 {
		return false
	}
	return b.v.Pointer() == c.v.Pointer()
}

// Copy copies elements from src to dst, returning the number of
// elements copied. Copy panics if src is not assignable to dst.
func Copy(dst, src Buffer) int {
	return reflect.Copy(dst.v, src.v)
}

// Equal tells whether buffers b and c have the same element type
// and (deeply) equal contents.
func Equal(b, c Buffer) bool {
	if b.IsZero() || c.IsZero() {
		return b.IsZero() && c.IsZero()
	}
	if b.ElemType() != c.ElemType() || b.Len() != c.Len() {
		return false
	}
	return reflect.DeepEqual(b.v.Interface(), c.v.Interface())
}

// String returns a descriptive string of the buffer.
func (b Buffer) String() string {
	if b.IsZero() {
		return "buffer[nil]"
	}
	return fmt.Sprintf("buffer[%d]%s", b.Len(), b.ElemType())
}
