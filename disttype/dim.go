// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package disttype implements the per-dimension distribution
// descriptors of distributed arrays and the index maps derived from
// them. A Dim describes how one dimension of a global array is split
// across one axis of a process grid; a Map translates between the
// dimension's global indices and the indices local to one process.
package disttype

import (
	"fmt"
	"strings"

	"github.com/grailbio/distarray/arrayerr"
)

// Kind is the kind of distribution of a single dimension.
type Kind int

const (
	// KindNone is an undistributed dimension: every process holds
	// the whole extent.
	KindNone Kind = iota
	// KindBlock splits the dimension into contiguous chunks.
	KindBlock
	// KindCyclic deals single elements round-robin.
	KindCyclic
	// KindBlockCyclic deals fixed-size chunks round-robin.
	KindBlockCyclic
	// KindUnstructured assigns an explicit list of indices to each
	// process.
	KindUnstructured
)

var tags = [...]string{
	KindNone:         "n",
	KindBlock:        "b",
	KindCyclic:       "c",
	KindBlockCyclic:  "bc",
	KindUnstructured: "u",
}

// Tag returns the protocol tag for the kind.
func (k Kind) Tag() string {
	if k < 0 || int(k) >= len(tags) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return tags[k]
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBlock:
		return "block"
	case KindCyclic:
		return "cyclic"
	case KindBlockCyclic:
		return "blockcyclic"
	case KindUnstructured:
		return "unstructured"
	}
	return k.Tag()
}

// KindOf returns the kind for a protocol tag.
func KindOf(tag string) (Kind, error) {
	for k, t := range tags {
		if t == tag {
			return Kind(k), nil
		}
	}
	return 0, arrayerr.Errorf(arrayerr.UnknownDistributionType, "unknown distribution type %q", tag)
}

// A Dim is the distribution descriptor of one array dimension. Dim
// is a closed set: its implementations are None, Block, Cyclic,
// BlockCyclic, and Unstructured.
//
// Zero-valued grid fields (GridSize, GridRank) and block sizes mean
// "derive": they are filled in by Place from the process grid, or
// defaulted by NewMap.
type Dim interface {
	// Kind returns the distribution kind of the dimension.
	Kind() Kind
	// GlobalSize returns the global extent of the dimension.
	GlobalSize() int

	isDim()
}

// None is an undistributed dimension.
type None struct {
	Size int
}

// Block is a dimension split into contiguous chunks of BlockSize
// elements; the process at grid coordinate r owns
// [r*BlockSize, min(Size, (r+1)*BlockSize)).
//
// If Explicit is set, the process instead owns [Start, Stop). This
// represents lopsided distributions, whose local extents are given
// by the data rather than derived from the grid.
type Block struct {
	Size      int
	GridSize  int
	GridRank  int
	BlockSize int

	Explicit    bool
	Start, Stop int
}

// Cyclic is a dimension whose elements are dealt round-robin: the
// process at grid coordinate r owns r, r+GridSize, r+2*GridSize, ...
type Cyclic struct {
	Size     int
	GridSize int
	GridRank int
	// Periodic permits wraparound addressing: global indices
	// outside of [0, Size) are taken modulo Size.
	Periodic bool
}

// BlockCyclic is a dimension whose blocks of BlockSize elements are
// dealt round-robin: the process at grid coordinate r owns blocks r,
// r+GridSize, r+2*GridSize, ...
type BlockCyclic struct {
	Size      int
	GridSize  int
	GridRank  int
	BlockSize int
	Periodic  bool
}

// Unstructured is a dimension where each process owns an explicit,
// ordered list of global indices.
type Unstructured struct {
	Size     int
	GridSize int
	GridRank int
	Indices  []int
}

func (None) Kind() Kind         { return KindNone }
func (Block) Kind() Kind        { return KindBlock }
func (Cyclic) Kind() Kind       { return KindCyclic }
func (BlockCyclic) Kind() Kind  { return KindBlockCyclic }
func (Unstructured) Kind() Kind { return KindUnstructured }

func (d None) GlobalSize() int         { return d.Size }
func (d Block) GlobalSize() int        { return d.Size }
func (d Cyclic) GlobalSize() int       { return d.Size }
func (d BlockCyclic) GlobalSize() int  { return d.Size }
func (d Unstructured) GlobalSize() int { return d.Size }

func (None) isDim()         {}
func (Block) isDim()        {}
func (Cyclic) isDim()       {}
func (BlockCyclic) isDim()  {}
func (Unstructured) isDim() {}

func (d None) String() string { return fmt.Sprintf("n(%d)", d.Size) }

func (d Block) String() string {
	if d.Explicit {
		return fmt.Sprintf("b(%d; %d/%d; [%d,%d))", d.Size, d.GridRank, d.GridSize, d.Start, d.Stop)
	}
	return fmt.Sprintf("b(%d; %d/%d; bs=%d)", d.Size, d.GridRank, d.GridSize, d.BlockSize)
}

func (d Cyclic) String() string {
	return fmt.Sprintf("c(%d; %d/%d)", d.Size, d.GridRank, d.GridSize)
}

func (d BlockCyclic) String() string {
	return fmt.Sprintf("bc(%d; %d/%d; bs=%d)", d.Size, d.GridRank, d.GridSize, d.BlockSize)
}

func (d Unstructured) String() string {
	return fmt.Sprintf("u(%d; %d/%d; %d indices)", d.Size, d.GridRank, d.GridSize, len(d.Indices))
}

// Padding returns the number of conceptual filler elements on the
// last block of a block distribution: GridSize*BlockSize - Size when
// positive, otherwise 0. Padding is always 0 for explicit blocks.
func (d Block) Padding() int {
	if d.Explicit || d.GridSize == 0 {
		return 0
	}
	bs := d.BlockSize
	if bs == 0 {
		bs = defaultBlockSize(d.Size, d.GridSize)
	}
	if p := d.GridSize*bs - d.Size; p > 0 {
		return p
	}
	return 0
}

// Padding returns the number of conceptual filler elements on the
// last (short) block of a block-cyclic distribution: the amount by
// which Size falls short of a whole number of blocks.
func (d BlockCyclic) Padding() int {
	bs := d.BlockSize
	if bs < 1 {
		bs = 1
	}
	if r := d.Size % bs; r > 0 {
		return bs - r
	}
	return 0
}

// IsDistributed tells whether the dimension participates in the
// process grid.
func IsDistributed(d Dim) bool {
	return d.Kind() != KindNone
}

// Grid returns the grid extent and coordinate recorded in d. Both
// are zero for undistributed dimensions.
func Grid(d Dim) (size, rank int) {
	switch d := d.(type) {
	case Block:
		return d.GridSize, d.GridRank
	case Cyclic:
		return d.GridSize, d.GridRank
	case BlockCyclic:
		return d.GridSize, d.GridRank
	case Unstructured:
		return d.GridSize, d.GridRank
	}
	return 0, 0
}

// Place returns a copy of d placed at coordinate rank of a grid
// axis of the provided size. Grid fields already present in d must
// agree with the placement; zero-valued fields are filled in.
// Undistributed dimensions are returned unchanged.
func Place(d Dim, size, rank int) (Dim, error) {
	if !IsDistributed(d) {
		return d, nil
	}
	if size < 1 {
		return nil, arrayerr.Errorf(arrayerr.InvalidGridCoordinate, "%v: grid extent %d must be positive", d, size)
	}
	if rank < 0 || rank >= size {
		return nil, arrayerr.Errorf(arrayerr.InvalidGridCoordinate, "%v: grid coordinate %d outside of grid extent %d", d, rank, size)
	}
	dsize, drank := Grid(d)
	if dsize != 0 && dsize != size {
		return nil, arrayerr.Errorf(arrayerr.InvalidGridCoordinate, "%v: proc_grid_size %d does not match grid extent %d", d, dsize, size)
	}
	if drank != 0 && drank != rank {
		return nil, arrayerr.Errorf(arrayerr.InvalidGridCoordinate, "%v: proc_grid_rank %d does not match grid coordinate %d", d, drank, rank)
	}
	switch d := d.(type) {
	case Block:
		d.GridSize, d.GridRank = size, rank
		return d, nil
	case Cyclic:
		d.GridSize, d.GridRank = size, rank
		return d, nil
	case BlockCyclic:
		d.GridSize, d.GridRank = size, rank
		return d, nil
	case Unstructured:
		d.GridSize, d.GridRank = size, rank
		return d, nil
	}
	panic(fmt.Sprintf("disttype.Place: unhandled dim %T", d))
}

// Parse returns a dimension of the given size with the distribution
// named by the protocol tag. Unstructured dimensions cannot be
// parsed from a tag alone, since they require explicit indices.
func Parse(tag string, size int) (Dim, error) {
	kind, err := KindOf(tag)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindNone:
		return None{Size: size}, nil
	case KindBlock:
		return Block{Size: size}, nil
	case KindCyclic:
		return Cyclic{Size: size}, nil
	case KindBlockCyclic:
		return BlockCyclic{Size: size}, nil
	default:
		return nil, arrayerr.Errorf(arrayerr.ProtocolError, "distribution type %q requires explicit indices", tag)
	}
}

// FromCodes returns one dimension per entry of shape, distributed
// according to the corresponding tag in codes. Missing trailing
// codes denote undistributed dimensions; for example
//
//	FromCodes([]int{10, 100, 100}, "n", "b", "c")
//
// describes a 3-dimensional array whose second dimension is block
// distributed and whose third is cyclically distributed.
func FromCodes(shape []int, codes ...string) ([]Dim, error) {
	if len(codes) > len(shape) {
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "%d distribution codes for %d dimensions", len(codes), len(shape))
	}
	dims := make([]Dim, len(shape))
	for i, size := range shape {
		code := "n"
		if i < len(codes) {
			code = codes[i]
		}
		d, err := Parse(code, size)
		if err != nil {
			return nil, err
		}
		dims[i] = d
	}
	return dims, nil
}

// Equal tells whether dims a and b describe the same distribution.
func Equal(a, b Dim) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	if ua, ok := a.(Unstructured); ok {
		ub := b.(Unstructured)
		if ua.Size != ub.Size || ua.GridSize != ub.GridSize || ua.GridRank != ub.GridRank || len(ua.Indices) != len(ub.Indices) {
			return false
		}
		for i := range ua.Indices {
			if ua.Indices[i] != ub.Indices[i] {
				return false
			}
		}
		return true
	}
	return a == b
}

// EqualAll tells whether two lists of dims are pairwise equal.
func EqualAll(a, b []Dim) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Codes returns the protocol tags of the provided dims, joined by
// commas. It is used for diagnostics.
func Codes(dims []Dim) string {
	codes := make([]string, len(dims))
	for i, d := range dims {
		codes[i] = d.Kind().Tag()
	}
	return strings.Join(codes, ",")
}

// Compatible tells whether a and b may describe the same dimension
// of one distributed array, as seen from two (possibly different)
// grid coordinates: they must agree on everything except the
// coordinate and its owned indices.
func Compatible(a, b Dim) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() || a.GlobalSize() != b.GlobalSize() {
		return false
	}
	asize, _ := Grid(a)
	bsize, _ := Grid(b)
	if asize != bsize {
		return false
	}
	switch a := a.(type) {
	case Block:
		b := b.(Block)
		if a.Explicit || b.Explicit {
			return a.Explicit == b.Explicit
		}
		return a.BlockSize == b.BlockSize
	case Cyclic:
		return a.Periodic == b.(Cyclic).Periodic
	case BlockCyclic:
		b := b.(BlockCyclic)
		return a.BlockSize == b.BlockSize && a.Periodic == b.Periodic
	}
	return true
}
