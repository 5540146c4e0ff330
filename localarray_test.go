// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package distarray_test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/grailbio/distarray"
	"github.com/grailbio/distarray/arrayerr"
	"github.com/grailbio/distarray/buffer"
	"github.com/grailbio/distarray/disttype"
	"github.com/grailbio/distarray/procgrid"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

type layout struct {
	shape     []int
	codes     []string
	gridShape []int
}

func (c layout) String() string {
	return fmt.Sprintf("%v/%v/%s", c.shape, c.codes, procgrid.FormatShape(c.gridShape))
}

var layouts = []layout{
	{[]int{16, 16}, []string{"b", "n"}, []int{4}},
	{[]int{30, 60}, []string{"n", "b"}, []int{4}},
	{[]int{53, 77}, []string{"b", "b"}, []int{2, 2}},
	{[]int{53, 77, 99}, []string{"b", "b", "b"}, []int{2, 2, 3}},
	{[]int{53, 77}, []string{"c", "n"}, []int{4}},
	{[]int{53, 77}, []string{"c", "b"}, []int{2, 2}},
	{[]int{53, 77, 99}, []string{"b", "n", "c"}, []int{2, 2}},
	{[]int{10, 7}, []string{"bc", "c"}, []int{3, 2}},
	{[]int{5}, []string{"b"}, []int{4}},
	{[]int{0, 3}, []string{"b", "n"}, []int{2}},
}

func shards(t *testing.T, c layout) []*distarray.LocalArray {
	t.Helper()
	grid, err := procgrid.New(c.gridShape, 0)
	assert.NoError(t, err)
	shards := make([]*distarray.LocalArray, grid.Size())
	for rank := range shards {
		dims, err := disttype.FromCodes(c.shape, c.codes...)
		assert.NoError(t, err)
		shards[rank], err = distarray.New(c.shape, dims, c.gridShape, rank, buffer.Buffer{})
		if err != nil {
			t.Fatalf("%v: rank %d: %v", c, rank, err)
		}
	}
	return shards
}

func TestScenarioBlockRows(t *testing.T) {
	dims, err := disttype.FromCodes([]int{16, 16}, "b", "n")
	assert.NoError(t, err)
	a, err := distarray.New([]int{16, 16}, dims, []int{4}, 2, buffer.Buffer{})
	assert.NoError(t, err)
	expect.EQ(t, a.LocalShape(), []int{4, 16})
	expect.EQ(t, a.Len(), 64)
	expect.EQ(t, a.ElemType(), reflect.TypeOf(float64(0)))
	global, err := a.ToGlobal([]int{0, 0})
	assert.NoError(t, err)
	expect.EQ(t, global, []int{8, 0})
	global, err = a.ToGlobal([]int{3, 15})
	assert.NoError(t, err)
	expect.EQ(t, global, []int{11, 15})
	local, ok := a.FromGlobal([]int{11, 15})
	assert.True(t, ok)
	expect.EQ(t, local, []int{3, 15})
	if _, ok := a.FromGlobal([]int{12, 0}); ok {
		t.Error("row 12 is owned by rank 3")
	}
	if _, ok := a.FromGlobal([]int{7, 0}); ok {
		t.Error("row 7 is owned by rank 1")
	}
	if a.Owns([]int{16, 0}) {
		t.Error("row 16 is outside of the array")
	}
}

func TestScenarioBlockGrid(t *testing.T) {
	dims, err := disttype.FromCodes([]int{53, 77}, "b", "b")
	assert.NoError(t, err)
	a, err := distarray.New([]int{53, 77}, dims, []int{2, 2}, 3, buffer.Buffer{})
	assert.NoError(t, err)
	expect.EQ(t, a.Grid().Coords(), []int{1, 1})
	expect.EQ(t, a.LocalShape(), []int{26, 38})
	global, err := a.ToGlobal([]int{0, 0})
	assert.NoError(t, err)
	expect.EQ(t, global, []int{27, 39})
	global, err = a.ToGlobal([]int{25, 37})
	assert.NoError(t, err)
	expect.EQ(t, global, []int{52, 76})
	b := a.Dims()[0].(disttype.Block)
	expect.EQ(t, b.BlockSize, 27)
	expect.EQ(t, b.Padding(), 1)
}

func TestLocalShapeMatchesMaps(t *testing.T) {
	for _, c := range layouts {
		for _, a := range shards(t, c) {
			shape := a.LocalShape()
			n := 1
			for i, m := range a.Maps() {
				if got, want := m.Len(), shape[i]; got != want {
					t.Errorf("%v: rank %d dim %d: got %v, want %v", c, a.Rank(), i, got, want)
				}
				n *= shape[i]
			}
			if got, want := a.Len(), n; got != want {
				t.Errorf("%v: rank %d: got %v, want %v", c, a.Rank(), got, want)
			}
		}
	}
}

func TestPartitionCompleteness(t *testing.T) {
	for _, c := range layouts {
		owners := make(map[string]int)
		for _, a := range shards(t, c) {
			err := a.ForEach(func(offset int, global []int) error {
				key := fmt.Sprint(global)
				if r, ok := owners[key]; ok {
					return fmt.Errorf("%v owned by ranks %d and %d", global, r, a.Rank())
				}
				owners[key] = a.Rank()
				local, ok := a.FromGlobal(global)
				if !ok {
					return fmt.Errorf("rank %d: global %v not owned", a.Rank(), global)
				}
				off, err := a.Offset(local)
				if err != nil {
					return err
				}
				if off != offset {
					return fmt.Errorf("rank %d: global %v at offset %d, want %d", a.Rank(), global, off, offset)
				}
				return nil
			})
			if err != nil {
				t.Errorf("%v: %v", c, err)
			}
		}
		n := 1
		for _, size := range c.shape {
			n *= size
		}
		if got, want := len(owners), n; got != want {
			t.Errorf("%v: got %v owned elements, want %v", c, got, want)
		}
	}
}

func TestRoundTripIndices(t *testing.T) {
	for _, c := range layouts {
		for _, a := range shards(t, c) {
			shape := a.LocalShape()
			local := make([]int, len(shape))
			for i := range local {
				local[i] = shape[i] - 1
			}
			if a.Len() == 0 {
				continue
			}
			global, err := a.ToGlobal(local)
			assert.NoError(t, err)
			back, ok := a.FromGlobal(global)
			if !ok || !reflect.DeepEqual(back, local) {
				t.Errorf("%v: rank %d: got %v, want %v", c, a.Rank(), back, local)
			}
		}
	}
}

func TestAtSet(t *testing.T) {
	dims, err := disttype.FromCodes([]int{4, 3}, "c")
	assert.NoError(t, err)
	a, err := distarray.NewOf(reflect.TypeOf(uint8(0)), []int{4, 3}, dims, []int{2}, 1)
	assert.NoError(t, err)
	expect.EQ(t, a.LocalShape(), []int{2, 3})
	a.Set(uint8(7), 1, 2)
	expect.EQ(t, a.At(1, 2), uint8(7))
	off, err := a.Offset([]int{1, 2})
	assert.NoError(t, err)
	expect.EQ(t, off, 5)
	expect.EQ(t, a.Buffer().Interface(), []uint8{0, 0, 0, 0, 0, 7})

	_, err = a.Offset([]int{2, 0})
	expect.True(t, arrayerr.Is(arrayerr.OutOfRange, err))
	_, err = a.ToGlobal([]int{0, 3})
	expect.True(t, arrayerr.Is(arrayerr.OutOfRange, err))
	_, err = a.ToGlobal([]int{0})
	expect.True(t, arrayerr.Is(arrayerr.OutOfRange, err))

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	a.At(0, 3)
}

func TestElementTypes(t *testing.T) {
	for _, buf := range []buffer.Buffer{
		buffer.Of(make([]uint8, 4*16)),
		buffer.Of(make([]complex128, 4*16)),
		buffer.Of(make([]int32, 4*16)),
	} {
		dims, err := disttype.FromCodes([]int{16, 16}, "b", "n")
		assert.NoError(t, err)
		a, err := distarray.New([]int{16, 16}, dims, []int{4}, 0, buf)
		assert.NoError(t, err)
		expect.EQ(t, a.ElemType(), buf.ElemType())
		if !a.Buffer().Shares(buf) {
			t.Errorf("%v: buffer not adopted", buf)
		}
	}
}

func TestInvalid(t *testing.T) {
	block := func(size int) disttype.Dim { return disttype.Block{Size: size} }
	none := func(size int) disttype.Dim { return disttype.None{Size: size} }
	for _, c := range []struct {
		shape     []int
		dims      []disttype.Dim
		gridShape []int
		rank      int
		buf       buffer.Buffer
		kind      arrayerr.Kind
	}{
		{[]int{16, 16}, []disttype.Dim{block(16), none(16)}, []int{4}, 0, buffer.Of(make([]float64, 63)), arrayerr.BufferSizeMismatch},
		{[]int{16, 16}, []disttype.Dim{block(16), block(16)}, []int{4}, 0, buffer.Buffer{}, arrayerr.InvalidGridCoordinate},
		{[]int{16, 16}, []disttype.Dim{block(16), none(16)}, []int{2, 2}, 0, buffer.Buffer{}, arrayerr.InvalidGridCoordinate},
		{[]int{16}, []disttype.Dim{block(16)}, []int{4}, 4, buffer.Buffer{}, arrayerr.InvalidRank},
		{[]int{16}, []disttype.Dim{block(16)}, []int{4}, -1, buffer.Buffer{}, arrayerr.InvalidRank},
		{[]int{16}, []disttype.Dim{block(15)}, []int{4}, 0, buffer.Buffer{}, arrayerr.InvalidShape},
		{[]int{16, 16}, []disttype.Dim{block(16)}, []int{4}, 0, buffer.Buffer{}, arrayerr.InvalidShape},
		{[]int{-1}, []disttype.Dim{none(-1)}, nil, 0, buffer.Buffer{}, arrayerr.InvalidShape},
		{[]int{16}, []disttype.Dim{nil}, nil, 0, buffer.Buffer{}, arrayerr.UnknownDistributionType},
		{[]int{16}, []disttype.Dim{disttype.Block{Size: 16, GridSize: 2}}, []int{4}, 0, buffer.Buffer{}, arrayerr.InvalidGridCoordinate},
		{[]int{16}, []disttype.Dim{disttype.Block{Size: 16, GridRank: 3}}, []int{4}, 1, buffer.Buffer{}, arrayerr.InvalidGridCoordinate},
		{[]int{16}, []disttype.Dim{disttype.Block{Size: 16, BlockSize: 2}}, []int{4}, 0, buffer.Buffer{}, arrayerr.InvalidShape},
		{[]int{16}, []disttype.Dim{block(16)}, []int{0}, 0, buffer.Buffer{}, arrayerr.InvalidShape},
	} {
		_, err := distarray.New(c.shape, c.dims, c.gridShape, c.rank, c.buf)
		if err == nil {
			t.Errorf("%v %v %v %d: expected error", c.shape, c.dims, c.gridShape, c.rank)
			continue
		}
		if !arrayerr.Is(c.kind, err) {
			t.Errorf("%v %v %v %d: got %v, want kind %v", c.shape, c.dims, c.gridShape, c.rank, err, c.kind)
		}
	}
}

func TestRankIsGridCoordinateError(t *testing.T) {
	dims, err := disttype.FromCodes([]int{16}, "b")
	assert.NoError(t, err)
	_, err = distarray.New([]int{16}, dims, []int{4}, 7, buffer.Buffer{})
	expect.True(t, arrayerr.Is(arrayerr.InvalidRank, err))
	expect.True(t, arrayerr.Is(arrayerr.InvalidGridCoordinate, err))
}

func TestCompatible(t *testing.T) {
	c := layout{[]int{53, 77}, []string{"b", "b"}, []int{2, 2}}
	s := shards(t, c)
	for _, a := range s {
		for _, b := range s {
			if err := a.CheckCompatible(b); err != nil {
				t.Errorf("rank %d, %d: %v", a.Rank(), b.Rank(), err)
			}
		}
	}
	if !s[0].Equal(s[0]) {
		t.Error("shard not equal to itself")
	}
	if s[0].Equal(s[1]) {
		t.Error("shards at different ranks are equal")
	}
	for _, other := range []layout{
		{[]int{53, 78}, []string{"b", "b"}, []int{2, 2}},
		{[]int{53, 77}, []string{"b", "c"}, []int{2, 2}},
		{[]int{53, 77}, []string{"b", "b"}, []int{4, 1}},
		{[]int{53, 77}, []string{"b", "n"}, []int{4}},
	} {
		b := shards(t, other)[0]
		if s[0].CompatibleWith(b) {
			t.Errorf("%v and %v: expected incompatible", c, other)
		}
		err := s[0].CheckCompatible(b)
		expect.True(t, arrayerr.Is(arrayerr.IncompatibleShards, err))
	}
	a := shards(t, c)[1]
	a.Set(1.0, 0, 0)
	if a.Equal(s[1]) {
		t.Error("shards with different contents are equal")
	}
}

func TestCompatibleSameRank(t *testing.T) {
	lopsided := func(start, stop int) *distarray.LocalArray {
		t.Helper()
		d := disttype.Block{Size: 50, GridSize: 2, Explicit: true, Start: start, Stop: stop}
		a, err := distarray.New([]int{50}, []disttype.Dim{d}, []int{2}, 0, buffer.Buffer{})
		assert.NoError(t, err)
		return a
	}
	// 20/30 and 30/20 splits of the same array.
	a, b := lopsided(0, 20), lopsided(0, 30)
	if a.CompatibleWith(b) {
		t.Errorf("%v and %v: expected incompatible", a, b)
	}
	expect.True(t, arrayerr.Is(arrayerr.IncompatibleShards, a.CheckCompatible(b)))
	assert.NoError(t, a.CheckCompatible(lopsided(0, 20)))

	hashed := func(seed uint32) *distarray.LocalArray {
		t.Helper()
		parts, err := disttype.HashPartition(64, 2, seed)
		assert.NoError(t, err)
		a, err := distarray.New([]int{64}, []disttype.Dim{parts[0]}, []int{2}, 0, buffer.Buffer{})
		assert.NoError(t, err)
		return a
	}
	c, d := hashed(1), hashed(2)
	if disttype.Equal(c.Dims()[0], d.Dims()[0]) {
		t.Fatal("seeds produced the same partition")
	}
	if c.CompatibleWith(d) {
		t.Errorf("%v and %v: expected incompatible", c, d)
	}
	assert.NoError(t, c.CheckCompatible(hashed(1)))

	// Shards at different ranks of the same lopsided array remain
	// compatible.
	other, err := distarray.New([]int{50},
		[]disttype.Dim{disttype.Block{Size: 50, GridSize: 2, GridRank: 1, Explicit: true, Start: 20, Stop: 50}},
		[]int{2}, 1, buffer.Buffer{})
	assert.NoError(t, err)
	assert.NoError(t, a.CheckCompatible(other))
}

func TestString(t *testing.T) {
	s := shards(t, layouts[0])
	expect.EQ(t, s[2].String(), "localarray([4x16] of [16x16]; b,n; grid[4]@2(2))")
}
