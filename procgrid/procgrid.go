// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package procgrid implements Cartesian process grids. A grid
// arranges a fixed number of processes along the distributed
// dimensions of an array; a process's linear rank is unraveled into
// a grid coordinate in row-major order.
package procgrid

import (
	"fmt"

	"github.com/grailbio/distarray/arrayerr"
)

// A Grid is a Cartesian arrangement of processes together with the
// coordinate of one process, the grid's owner.
type Grid struct {
	shape   []int
	strides []int
	rank    int
	coords  []int
}

// New returns the grid of the provided shape owned by the process
// with the provided rank. An empty shape is the trivial grid of a
// single process. New fails with arrayerr.InvalidShape if any extent
// is not positive, and with arrayerr.InvalidRank if rank is outside
// of [0, product(shape)).
func New(shape []int, rank int) (*Grid, error) {
	g := &Grid{
		shape:   append([]int{}, shape...),
		strides: make([]int, len(shape)),
		rank:    rank,
	}
	size := 1
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] < 1 {
			return nil, arrayerr.Errorf(arrayerr.InvalidShape, "grid shape %v: extent %d must be positive", shape, shape[i])
		}
		g.strides[i] = size
		size *= shape[i]
	}
	var err error
	if g.coords, err = g.CoordsOf(rank); err != nil {
		return nil, err
	}
	return g, nil
}

// Shape returns the grid's shape.
func (g *Grid) Shape() []int { return append([]int{}, g.shape...) }

// Strides returns the row-major strides of the grid's shape.
func (g *Grid) Strides() []int { return append([]int{}, g.strides...) }

// NumDims returns the number of grid dimensions.
func (g *Grid) NumDims() int { return len(g.shape) }

// Rank returns the rank of the grid's owner.
func (g *Grid) Rank() int { return g.rank }

// Coords returns the coordinate of the grid's owner.
func (g *Grid) Coords() []int { return append([]int{}, g.coords...) }

// Coord returns the owner's coordinate along grid dimension i.
func (g *Grid) Coord(i int) int { return g.coords[i] }

// Size returns the number of processes in the grid.
func (g *Grid) Size() int {
	size := 1
	for _, n := range g.shape {
		size *= n
	}
	return size
}

// CoordsOf returns the grid coordinate of the provided rank:
// coords[i] = (rank / stride[i]) % shape[i].
func (g *Grid) CoordsOf(rank int) ([]int, error) {
	if rank < 0 || rank >= g.Size() {
		return nil, arrayerr.Errorf(arrayerr.InvalidRank, "rank %d outside of grid %v of size %d", rank, g.shape, g.Size())
	}
	coords := make([]int, len(g.shape))
	for i := range coords {
		coords[i] = (rank / g.strides[i]) % g.shape[i]
	}
	return coords, nil
}

// RankOf returns the rank of the process at the provided grid
// coordinate.
func (g *Grid) RankOf(coords []int) (int, error) {
	if len(coords) != len(g.shape) {
		return 0, arrayerr.Errorf(arrayerr.InvalidGridCoordinate, "coordinate %v has %d dimensions, grid %v has %d", coords, len(coords), g.shape, len(g.shape))
	}
	var rank int
	for i, c := range coords {
		if c < 0 || c >= g.shape[i] {
			return 0, arrayerr.Errorf(arrayerr.InvalidGridCoordinate, "coordinate %v outside of grid %v", coords, g.shape)
		}
		rank += c * g.strides[i]
	}
	return rank, nil
}

// Equal tells whether grids g and h have the same shape and owner.
func (g *Grid) Equal(h *Grid) bool {
	return g.rank == h.rank && SameShape(g.shape, h.shape)
}

// String returns a description of the grid, for example
// "grid[2x2]@3(1,1)".
func (g *Grid) String() string {
	return fmt.Sprintf("grid%s@%d%s", FormatShape(g.shape), g.rank, formatCoords(g.coords))
}

// SameShape tells whether two shapes are identical.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FormatShape formats a shape as "[2x3x4]".
func FormatShape(shape []int) string {
	s := "["
	for i, n := range shape {
		if i > 0 {
			s += "x"
		}
		s += fmt.Sprint(n)
	}
	return s + "]"
}

func formatCoords(coords []int) string {
	s := "("
	for i, c := range coords {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprint(c)
	}
	return s + ")"
}
