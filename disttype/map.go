// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package disttype

import (
	"fmt"

	"github.com/grailbio/distarray/arrayerr"
)

// A Map translates between the global indices of a dimension and
// the indices local to one process. Maps are immutable.
type Map interface {
	// Kind returns the distribution kind of the map.
	Kind() Kind
	// Dim returns the fully resolved descriptor of the map: block
	// sizes and grid placement are filled in.
	Dim() Dim
	// Size returns the global extent of the dimension.
	Size() int
	// Len returns the local extent of the dimension.
	Len() int
	// Global returns the global index of local index i. It returns
	// false if i is outside of [0, Len()).
	Global(i int) (int, bool)
	// Local returns the local index of global index g. It returns
	// false if g is not owned by this process.
	Local(g int) (int, bool)
}

// NewMap validates the provided dimension and returns its index
// map. Distributed dimensions must be placed (see Place) before a
// map can be built.
func NewMap(d Dim) (Map, error) {
	if d == nil {
		return nil, arrayerr.E(arrayerr.UnknownDistributionType, "nil dimension")
	}
	if d.GlobalSize() < 0 {
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "%v: negative size %d", d, d.GlobalSize())
	}
	if IsDistributed(d) {
		size, rank := Grid(d)
		if size < 1 {
			return nil, arrayerr.Errorf(arrayerr.InvalidGridCoordinate, "%v: grid extent %d must be positive", d, size)
		}
		if rank < 0 || rank >= size {
			return nil, arrayerr.Errorf(arrayerr.InvalidGridCoordinate, "%v: grid coordinate %d outside of grid extent %d", d, rank, size)
		}
	}
	switch d := d.(type) {
	case None:
		return noneMap{d}, nil
	case Block:
		return newBlockMap(d)
	case Cyclic:
		return cyclicMap{d}, nil
	case BlockCyclic:
		return newBlockCyclicMap(d)
	case Unstructured:
		return newUnstructuredMap(d)
	}
	return nil, arrayerr.Errorf(arrayerr.UnknownDistributionType, "unknown dimension type %T", d)
}

// GlobalIndices returns the global indices owned by m, in local
// order.
func GlobalIndices(m Map) []int {
	n := m.Len()
	g := make([]int, n)
	for i := range g {
		var ok bool
		if g[i], ok = m.Global(i); !ok {
			panic(fmt.Sprintf("disttype: %v: local index %d not mapped", m.Dim(), i))
		}
	}
	return g
}

// LocalExtent computes the local extent of a distribution kind from
// the global extent, the grid coordinate, the grid extent, and the
// block size (ignored for kinds without blocks). Extents are
// clamped at 0. Unstructured extents are not computable from these
// parameters and are reported as an error.
func LocalExtent(kind Kind, size, rank, gridSize, blockSize int) (int, error) {
	var d Dim
	switch kind {
	case KindNone:
		d = None{Size: size}
	case KindBlock:
		d = Block{Size: size, GridSize: gridSize, GridRank: rank, BlockSize: blockSize}
	case KindCyclic:
		d = Cyclic{Size: size, GridSize: gridSize, GridRank: rank}
	case KindBlockCyclic:
		d = BlockCyclic{Size: size, GridSize: gridSize, GridRank: rank, BlockSize: blockSize}
	default:
		return 0, arrayerr.Errorf(arrayerr.UnknownDistributionType, "no local extent formula for %v distributions", kind)
	}
	m, err := NewMap(d)
	if err != nil {
		return 0, err
	}
	return m.Len(), nil
}

func defaultBlockSize(size, gridSize int) int {
	bs := ceilDiv(size, gridSize)
	if bs < 1 {
		bs = 1
	}
	return bs
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// wrap implements periodic addressing.
func wrap(g, size int) int {
	if size == 0 {
		return g
	}
	g %= size
	if g < 0 {
		g += size
	}
	return g
}

type noneMap struct{ d None }

func (m noneMap) Kind() Kind { return KindNone }
func (m noneMap) Dim() Dim   { return m.d }
func (m noneMap) Size() int  { return m.d.Size }
func (m noneMap) Len() int   { return m.d.Size }

func (m noneMap) Global(i int) (int, bool) {
	if i < 0 || i >= m.d.Size {
		return 0, false
	}
	return i, true
}

func (m noneMap) Local(g int) (int, bool) { return m.Global(g) }

type blockMap struct {
	d           Block
	start, stop int
}

func newBlockMap(d Block) (Map, error) {
	if d.Explicit {
		if d.Start < 0 || d.Stop < d.Start || d.Stop > d.Size {
			return nil, arrayerr.Errorf(arrayerr.InvalidShape, "%v: bounds outside of [0, %d)", d, d.Size)
		}
		d.BlockSize = 0
		return blockMap{d, d.Start, d.Stop}, nil
	}
	switch {
	case d.BlockSize < 0:
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "%v: negative block size", d)
	case d.BlockSize == 0:
		d.BlockSize = defaultBlockSize(d.Size, d.GridSize)
	case d.BlockSize*d.GridSize < d.Size:
		return nil, arrayerr.Errorf(arrayerr.InvalidShape,
			"%v: %d blocks of %d elements cannot cover %d elements", d, d.GridSize, d.BlockSize, d.Size)
	}
	start := min(d.Size, d.GridRank*d.BlockSize)
	stop := min(d.Size, (d.GridRank+1)*d.BlockSize)
	d.Start, d.Stop = start, stop
	return blockMap{d, start, stop}, nil
}

func (m blockMap) Kind() Kind { return KindBlock }
func (m blockMap) Dim() Dim   { return m.d }
func (m blockMap) Size() int  { return m.d.Size }
func (m blockMap) Len() int   { return m.stop - m.start }

func (m blockMap) Global(i int) (int, bool) {
	if i < 0 || i >= m.Len() {
		return 0, false
	}
	return m.start + i, true
}

func (m blockMap) Local(g int) (int, bool) {
	if g < m.start || g >= m.stop {
		return 0, false
	}
	return g - m.start, true
}

type cyclicMap struct{ d Cyclic }

func (m cyclicMap) Kind() Kind { return KindCyclic }
func (m cyclicMap) Dim() Dim   { return m.d }
func (m cyclicMap) Size() int  { return m.d.Size }

func (m cyclicMap) Len() int {
	return ceilDiv(m.d.Size-m.d.GridRank, m.d.GridSize)
}

func (m cyclicMap) Global(i int) (int, bool) {
	if i < 0 || i >= m.Len() {
		return 0, false
	}
	return m.d.GridRank + i*m.d.GridSize, true
}

func (m cyclicMap) Local(g int) (int, bool) {
	if m.d.Periodic {
		g = wrap(g, m.d.Size)
	}
	if g < 0 || g >= m.d.Size || g%m.d.GridSize != m.d.GridRank {
		return 0, false
	}
	return g / m.d.GridSize, true
}

type blockCyclicMap struct {
	d BlockCyclic
	n int
}

func newBlockCyclicMap(d BlockCyclic) (Map, error) {
	switch {
	case d.BlockSize < 0:
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "%v: negative block size", d)
	case d.BlockSize == 0:
		d.BlockSize = 1
	}
	var (
		bs      = d.BlockSize
		nblocks = ceilDiv(d.Size, bs)
		owned   = ceilDiv(nblocks-d.GridRank, d.GridSize)
		n       = owned * bs
	)
	// Only the last global block may be short.
	if nblocks > 0 && (nblocks-1)%d.GridSize == d.GridRank {
		n -= nblocks*bs - d.Size
	}
	return blockCyclicMap{d, n}, nil
}

func (m blockCyclicMap) Kind() Kind { return KindBlockCyclic }
func (m blockCyclicMap) Dim() Dim   { return m.d }
func (m blockCyclicMap) Size() int  { return m.d.Size }
func (m blockCyclicMap) Len() int   { return m.n }

func (m blockCyclicMap) Global(i int) (int, bool) {
	if i < 0 || i >= m.n {
		return 0, false
	}
	bs := m.d.BlockSize
	block := m.d.GridRank + (i/bs)*m.d.GridSize
	return block*bs + i%bs, true
}

func (m blockCyclicMap) Local(g int) (int, bool) {
	if m.d.Periodic {
		g = wrap(g, m.d.Size)
	}
	if g < 0 || g >= m.d.Size {
		return 0, false
	}
	bs := m.d.BlockSize
	block := g / bs
	if block%m.d.GridSize != m.d.GridRank {
		return 0, false
	}
	return (block/m.d.GridSize)*bs + g%bs, true
}

type unstructuredMap struct {
	d     Unstructured
	local map[int]int
}

func newUnstructuredMap(d Unstructured) (Map, error) {
	indices := make([]int, len(d.Indices))
	local := make(map[int]int, len(d.Indices))
	for i, g := range d.Indices {
		if g < 0 || g >= d.Size {
			return nil, arrayerr.Errorf(arrayerr.InvalidShape, "%v: index %d outside of [0, %d)", d, g, d.Size)
		}
		if j, ok := local[g]; ok {
			return nil, arrayerr.Errorf(arrayerr.InvalidShape, "%v: index %d listed at positions %d and %d", d, g, j, i)
		}
		local[g] = i
		indices[i] = g
	}
	d.Indices = indices
	return unstructuredMap{d, local}, nil
}

func (m unstructuredMap) Kind() Kind { return KindUnstructured }
func (m unstructuredMap) Size() int  { return m.d.Size }
func (m unstructuredMap) Len() int   { return len(m.d.Indices) }

func (m unstructuredMap) Dim() Dim {
	d := m.d
	d.Indices = append([]int(nil), m.d.Indices...)
	return d
}

func (m unstructuredMap) Global(i int) (int, bool) {
	if i < 0 || i >= len(m.d.Indices) {
		return 0, false
	}
	return m.d.Indices[i], true
}

func (m unstructuredMap) Local(g int) (int, bool) {
	i, ok := m.local[g]
	return i, ok
}
