// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package distarray

import (
	"fmt"
	"reflect"

	"github.com/grailbio/distarray/arrayerr"
	"github.com/grailbio/distarray/buffer"
	"github.com/grailbio/distarray/disttype"
	"github.com/grailbio/distarray/procgrid"
)

var typeOfFloat64 = reflect.TypeOf(float64(0))

// A LocalArray is the shard of a distributed array owned by a single
// process. Its shape, distribution, and grid placement are fixed at
// construction; only the contents of its buffer may change.
//
// Elements are stored in row-major order of the local shape.
type LocalArray struct {
	shape      []int
	localShape []int
	strides    []int
	dims       []disttype.Dim
	maps       []disttype.Map
	grid       *procgrid.Grid
	buf        buffer.Buffer
}

// New returns the local array owned by the process with the provided
// rank for a global array of the given shape, distributed according
// to dims over a process grid of the provided shape. There must be
// one dim per dimension, and one grid extent per distributed dim.
//
// If buf is the zero Buffer, New allocates a zeroed buffer of
// float64s. Otherwise buf is adopted (not copied) and must hold
// exactly as many elements as the local shape.
func New(shape []int, dims []disttype.Dim, gridShape []int, rank int, buf buffer.Buffer) (*LocalArray, error) {
	if len(dims) != len(shape) {
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "%d dims for %d dimensions", len(dims), len(shape))
	}
	var ndist int
	for i, d := range dims {
		if d == nil {
			return nil, arrayerr.Errorf(arrayerr.UnknownDistributionType, "dimension %d: missing distribution", i)
		}
		if shape[i] < 0 {
			return nil, arrayerr.Errorf(arrayerr.InvalidShape, "dimension %d: negative size %d", i, shape[i])
		}
		if d.GlobalSize() != shape[i] {
			return nil, arrayerr.Errorf(arrayerr.InvalidShape, "dimension %d: %v does not match size %d", i, d, shape[i])
		}
		if disttype.IsDistributed(d) {
			ndist++
		}
	}
	if ndist != len(gridShape) {
		return nil, arrayerr.Errorf(arrayerr.InvalidGridCoordinate,
			"%d distributed dimensions for grid %s", ndist, procgrid.FormatShape(gridShape))
	}
	grid, err := procgrid.New(gridShape, rank)
	if err != nil {
		return nil, err
	}
	a := &LocalArray{
		shape:      append([]int(nil), shape...),
		localShape: make([]int, len(shape)),
		dims:       make([]disttype.Dim, len(shape)),
		maps:       make([]disttype.Map, len(shape)),
		grid:       grid,
	}
	var axis int
	for i, d := range dims {
		if disttype.IsDistributed(d) {
			if d, err = disttype.Place(d, grid.Shape()[axis], grid.Coord(axis)); err != nil {
				return nil, err
			}
			axis++
		}
		m, err := disttype.NewMap(d)
		if err != nil {
			return nil, err
		}
		a.maps[i] = m
		a.dims[i] = m.Dim()
		a.localShape[i] = m.Len()
	}
	a.strides = rowMajorStrides(a.localShape)
	n := product(a.localShape)
	switch {
	case buf.IsZero():
		a.buf = buffer.Make(typeOfFloat64, n)
	case buf.Len() != n:
		return nil, arrayerr.Errorf(arrayerr.BufferSizeMismatch,
			"buffer of %d elements for local shape %v (%d elements)", buf.Len(), a.localShape, n)
	default:
		a.buf = buf
	}
	return a, nil
}

// NewOf is like New, but allocates a zeroed buffer with elements of
// the provided type.
func NewOf(elemType reflect.Type, shape []int, dims []disttype.Dim, gridShape []int, rank int) (*LocalArray, error) {
	a, err := New(shape, dims, gridShape, rank, buffer.Buffer{})
	if err != nil {
		return nil, err
	}
	if elemType != typeOfFloat64 {
		a.buf = buffer.Make(elemType, a.buf.Len())
	}
	return a, nil
}

// GlobalShape returns the shape of the global array.
func (a *LocalArray) GlobalShape() []int { return append([]int(nil), a.shape...) }

// LocalShape returns the shape of the local shard.
func (a *LocalArray) LocalShape() []int { return append([]int(nil), a.localShape...) }

// NumDims returns the number of dimensions of the array.
func (a *LocalArray) NumDims() int { return len(a.shape) }

// Len returns the number of elements in the local shard.
func (a *LocalArray) Len() int { return a.buf.Len() }

// Dims returns the resolved distribution of each dimension, as
// placed at this process's grid coordinates.
func (a *LocalArray) Dims() []disttype.Dim {
	dims := make([]disttype.Dim, len(a.maps))
	for i, m := range a.maps {
		dims[i] = m.Dim()
	}
	return dims
}

// Maps returns the index map of each dimension.
func (a *LocalArray) Maps() []disttype.Map { return append([]disttype.Map(nil), a.maps...) }

// Map returns the index map of dimension i.
func (a *LocalArray) Map(i int) disttype.Map { return a.maps[i] }

// Grid returns the process grid of the array.
func (a *LocalArray) Grid() *procgrid.Grid { return a.grid }

// Rank returns the rank of the process owning the shard.
func (a *LocalArray) Rank() int { return a.grid.Rank() }

// Buffer returns the shard's buffer. The buffer is shared with the
// array.
func (a *LocalArray) Buffer() buffer.Buffer { return a.buf }

// ElemType returns the element type of the array.
func (a *LocalArray) ElemType() reflect.Type { return a.buf.ElemType() }

// ToGlobal translates a local index into the corresponding global
// index. ToGlobal returns an OutOfRange error if the index lies
// outside of the local shape.
func (a *LocalArray) ToGlobal(local []int) ([]int, error) {
	if len(local) != len(a.maps) {
		return nil, arrayerr.Errorf(arrayerr.OutOfRange, "index %v has %d dimensions, want %d", local, len(local), len(a.maps))
	}
	global := make([]int, len(local))
	for i, m := range a.maps {
		g, ok := m.Global(local[i])
		if !ok {
			return nil, arrayerr.Errorf(arrayerr.OutOfRange, "index %v: %d outside of local extent %d in dimension %d", local, local[i], m.Len(), i)
		}
		global[i] = g
	}
	return global, nil
}

// FromGlobal translates a global index into the corresponding local
// index. It returns false if the element is not owned by this
// process.
func (a *LocalArray) FromGlobal(global []int) ([]int, bool) {
	if len(global) != len(a.maps) {
		return nil, false
	}
	local := make([]int, len(global))
	for i, m := range a.maps {
		l, ok := m.Local(global[i])
		if !ok {
			return nil, false
		}
		local[i] = l
	}
	return local, true
}

// Owns tells whether the element at the provided global index is
// held by this shard.
func (a *LocalArray) Owns(global []int) bool {
	_, ok := a.FromGlobal(global)
	return ok
}

// Offset returns the buffer offset of a local index.
func (a *LocalArray) Offset(local []int) (int, error) {
	if len(local) != len(a.localShape) {
		return 0, arrayerr.Errorf(arrayerr.OutOfRange, "index %v has %d dimensions, want %d", local, len(local), len(a.localShape))
	}
	var off int
	for i, l := range local {
		if l < 0 || l >= a.localShape[i] {
			return 0, arrayerr.Errorf(arrayerr.OutOfRange, "index %v outside of local shape %v", local, a.localShape)
		}
		off += l * a.strides[i]
	}
	return off, nil
}

// At returns the element at the provided local index. At panics if
// the index is out of range.
func (a *LocalArray) At(local ...int) interface{} {
	off, err := a.Offset(local)
	if err != nil {
		panic(err)
	}
	return a.buf.Index(off).Interface()
}

// Set sets the element at the provided local index to x. Set panics
// if the index is out of range or if x is not assignable to the
// array's element type.
func (a *LocalArray) Set(x interface{}, local ...int) {
	off, err := a.Offset(local)
	if err != nil {
		panic(err)
	}
	a.buf.Set(off, x)
}

// ForEach calls fn for each local element, in buffer order, with the
// element's buffer offset and its global index. The global index
// slice is reused across calls. ForEach stops at the first error
// returned by fn.
func (a *LocalArray) ForEach(fn func(offset int, global []int) error) error {
	n := a.buf.Len()
	if n == 0 {
		return nil
	}
	var (
		local  = make([]int, len(a.localShape))
		global = make([]int, len(a.localShape))
	)
	for i, m := range a.maps {
		global[i], _ = m.Global(0)
	}
	for off := 0; off < n; off++ {
		if err := fn(off, global); err != nil {
			return err
		}
		// Advance the local index, last dimension fastest.
		for i := len(local) - 1; i >= 0; i-- {
			local[i]++
			if local[i] < a.localShape[i] {
				global[i], _ = a.maps[i].Global(local[i])
				break
			}
			local[i] = 0
			global[i], _ = a.maps[i].Global(0)
		}
	}
	return nil
}

// CompatibleWith tells whether a and b are shards of arrays with the
// same global shape, distribution, and process grid shape.
func (a *LocalArray) CompatibleWith(b *LocalArray) bool {
	return a.CheckCompatible(b) == nil
}

// CheckCompatible returns an IncompatibleShards error describing why
// a and b are not compatible, or nil if they are. Shards placed at
// the same grid coordinates must additionally own the same global
// indices, so that their buffers may be combined elementwise.
func (a *LocalArray) CheckCompatible(b *LocalArray) error {
	if !procgrid.SameShape(a.shape, b.shape) {
		return arrayerr.Errorf(arrayerr.IncompatibleShards, "global shapes %v and %v differ", a.shape, b.shape)
	}
	if !procgrid.SameShape(a.grid.Shape(), b.grid.Shape()) {
		return arrayerr.Errorf(arrayerr.IncompatibleShards, "grids %s and %s differ",
			procgrid.FormatShape(a.grid.Shape()), procgrid.FormatShape(b.grid.Shape()))
	}
	for i := range a.dims {
		if !disttype.Compatible(a.dims[i], b.dims[i]) {
			return arrayerr.Errorf(arrayerr.IncompatibleShards, "dimension %d: distributions %v and %v differ", i, a.dims[i], b.dims[i])
		}
	}
	// Shards at the same grid coordinates must own the same indices;
	// explicit bounds and unstructured index lists are not implied by
	// the global distribution.
	if a.grid.Rank() != b.grid.Rank() {
		return nil
	}
	if !procgrid.SameShape(a.localShape, b.localShape) {
		return arrayerr.Errorf(arrayerr.IncompatibleShards, "local shapes %v and %v differ", a.localShape, b.localShape)
	}
	for i := range a.dims {
		if !disttype.Equal(a.dims[i], b.dims[i]) {
			return arrayerr.Errorf(arrayerr.IncompatibleShards, "dimension %d: %v and %v own different indices", i, a.dims[i], b.dims[i])
		}
	}
	return nil
}

// Equal tells whether a and b are the same shard: they are
// compatible, are placed at the same grid coordinates, and have
// equal contents.
func (a *LocalArray) Equal(b *LocalArray) bool {
	return a.CompatibleWith(b) &&
		a.grid.Rank() == b.grid.Rank() &&
		disttype.EqualAll(a.Dims(), b.Dims()) &&
		buffer.Equal(a.buf, b.buf)
}

// String returns a short description of the shard.
func (a *LocalArray) String() string {
	return fmt.Sprintf("localarray(%s of %s; %s; %s)",
		procgrid.FormatShape(a.localShape), procgrid.FormatShape(a.shape),
		disttype.Codes(a.dims), a.grid)
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func product(shape []int) int {
	n := 1
	for _, x := range shape {
		n *= x
	}
	return n
}
