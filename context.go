// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package distarray

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/distarray/arrayerr"
	"github.com/grailbio/distarray/buffer"
	"github.com/grailbio/distarray/disttype"
	"github.com/grailbio/distarray/procgrid"
)

// Comm is the communicator of a group of cooperating processes.
// Distarray does not implement transport; callers supply a Comm
// backed by whatever mechanism connects their processes.
type Comm interface {
	// Rank returns the rank of the calling process, in [0, Size()).
	Rank() int
	// Size returns the number of processes in the group.
	Size() int
	// AllgatherInt contributes v on behalf of the calling process
	// and returns the values contributed by every process, indexed
	// by rank. AllgatherInt blocks until every process has
	// contributed.
	AllgatherInt(ctx context.Context, v int) ([]int, error)
}

// Single returns a communicator for a group consisting of only the
// calling process.
func Single() Comm { return staticComm{rank: 0, size: 1} }

// staticComm is a communicator that knows its place in the group but
// cannot communicate with its peers.
type staticComm struct{ rank, size int }

func (c staticComm) Rank() int { return c.rank }
func (c staticComm) Size() int { return c.size }

func (c staticComm) AllgatherInt(ctx context.Context, v int) ([]int, error) {
	if c.size != 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("rank %d of %d: communicator has no transport", c.rank, c.size))
	}
	return []int{v}, nil
}

// A Context holds the per-process state needed to construct local
// arrays: the communicator and, optionally, a fixed process grid
// shape. A Context is created once per process and is safe to share.
type Context struct {
	comm      Comm
	gridShape []int
}

// NewContext returns a new context over the provided communicator.
// If gridShape is nil, arrays are distributed over a grid chosen by
// procgrid.Default for their number of distributed dimensions.
// Otherwise the grid must hold exactly comm.Size() processes.
func NewContext(comm Comm, gridShape []int) (*Context, error) {
	if comm == nil {
		comm = Single()
	}
	if comm.Size() < 1 {
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "communicator of size %d", comm.Size())
	}
	if comm.Rank() < 0 || comm.Rank() >= comm.Size() {
		return nil, arrayerr.Errorf(arrayerr.InvalidRank, "rank %d outside of communicator of size %d", comm.Rank(), comm.Size())
	}
	if gridShape != nil {
		// The grid is checked against the communicator before the
		// rank is placed, so that every rank reports the same error.
		grid, err := procgrid.New(gridShape, 0)
		if err != nil {
			return nil, err
		}
		if grid.Size() != comm.Size() {
			return nil, arrayerr.Errorf(arrayerr.InvalidShape,
				"grid %s holds %d processes, communicator has %d", procgrid.FormatShape(gridShape), grid.Size(), comm.Size())
		}
		if grid, err = procgrid.New(gridShape, comm.Rank()); err != nil {
			return nil, err
		}
		gridShape = grid.Shape()
	}
	log.Debug.Printf("distarray: context for rank %d of %d, grid %s", comm.Rank(), comm.Size(), procgrid.FormatShape(gridShape))
	return &Context{comm: comm, gridShape: gridShape}, nil
}

// Comm returns the context's communicator.
func (c *Context) Comm() Comm { return c.comm }

// Rank returns the rank of the calling process.
func (c *Context) Rank() int { return c.comm.Rank() }

// GridShape returns the shape of the process grid used for arrays
// with ndist distributed dimensions.
func (c *Context) GridShape(ndist int) ([]int, error) {
	if c.gridShape == nil {
		return procgrid.Default(c.comm.Size(), ndist)
	}
	if len(c.gridShape) != ndist {
		return nil, arrayerr.Errorf(arrayerr.InvalidGridCoordinate,
			"%d distributed dimensions for grid %s", ndist, procgrid.FormatShape(c.gridShape))
	}
	return append([]int(nil), c.gridShape...), nil
}

// New returns the calling process's shard of an array with the
// provided shape and distribution. See the package-level New for
// details.
func (c *Context) New(shape []int, dims []disttype.Dim, buf buffer.Buffer) (*LocalArray, error) {
	gridShape, err := c.GridShape(numDistributed(dims))
	if err != nil {
		return nil, err
	}
	return New(shape, dims, gridShape, c.comm.Rank(), buf)
}

// NewLopsided returns the calling process's shard of an array whose
// single distributed dimension is block distributed with extents
// given by the data: each process supplies a buffer of its own
// choosing, and the extent of the distributed dimension is derived
// from the buffer's length. The extents of all processes are
// gathered, and must sum to the size of the dimension; each process
// then owns the contiguous range after those of lower rank.
//
// NewLopsided must be called by every process in the group.
func (c *Context) NewLopsided(ctx context.Context, shape []int, dims []disttype.Dim, buf buffer.Buffer) (*LocalArray, error) {
	if len(dims) != len(shape) {
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "%d dims for %d dimensions", len(dims), len(shape))
	}
	axis := -1
	rest := 1
	for i, d := range dims {
		if d == nil {
			return nil, arrayerr.Errorf(arrayerr.UnknownDistributionType, "dimension %d: missing distribution", i)
		}
		if !disttype.IsDistributed(d) {
			rest *= shape[i]
			continue
		}
		b, ok := d.(disttype.Block)
		if !ok || axis >= 0 || b.Explicit {
			return nil, arrayerr.Errorf(arrayerr.InvalidShape,
				"lopsided arrays must have exactly one block distributed dimension, got %s", disttype.Codes(dims))
		}
		axis = i
	}
	switch {
	case axis < 0:
		return nil, arrayerr.E(arrayerr.InvalidShape, "lopsided array has no distributed dimension")
	case buf.IsZero():
		return nil, arrayerr.E(arrayerr.BufferSizeMismatch, "lopsided arrays require a buffer")
	case rest == 0:
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "cannot derive the extent of dimension %d from an empty buffer", axis)
	case buf.Len()%rest != 0:
		return nil, arrayerr.Errorf(arrayerr.BufferSizeMismatch, "buffer of %d elements is not a multiple of %d", buf.Len(), rest)
	}
	gridShape, err := c.GridShape(1)
	if err != nil {
		return nil, err
	}
	extents, err := c.comm.AllgatherInt(ctx, buf.Len()/rest)
	if err != nil {
		return nil, err
	}
	if len(extents) != c.comm.Size() {
		return nil, arrayerr.Errorf(arrayerr.IncompatibleShards, "gathered %d extents from %d processes", len(extents), c.comm.Size())
	}
	bounds, err := disttype.Bounds(extents)
	if err != nil {
		return nil, err
	}
	if total := bounds[len(bounds)-1][1]; total != shape[axis] {
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "local extents %v sum to %d, want %d", extents, total, shape[axis])
	}
	rank := c.comm.Rank()
	dims = append([]disttype.Dim(nil), dims...)
	dims[axis] = disttype.Block{
		Size:     shape[axis],
		GridSize: gridShape[0],
		GridRank: rank,
		Explicit: true,
		Start:    bounds[rank][0],
		Stop:     bounds[rank][1],
	}
	log.Debug.Printf("distarray: rank %d: lopsided dimension %d owns [%d, %d)", rank, axis, bounds[rank][0], bounds[rank][1])
	return New(shape, dims, gridShape, rank, buf)
}

func numDistributed(dims []disttype.Dim) int {
	var n int
	for _, d := range dims {
		if d != nil && disttype.IsDistributed(d) {
			n++
		}
	}
	return n
}
