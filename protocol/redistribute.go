// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package protocol

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/distarray"
	"github.com/grailbio/distarray/arrayerr"
	"github.com/grailbio/distarray/disttype"
	"github.com/grailbio/distarray/procgrid"
)

// Redistribute constructs the shard owned by the provided rank of a
// new array with distribution target over a grid of the provided
// shape, from descriptors of every shard of a source array. Each
// element owned by the new shard is copied from the source shard
// that owns it.
//
// The sources must describe the same global shape and element type,
// and must together cover the global index space exactly once.
// Source descriptors may come from any distribution, including a
// different process grid.
func Redistribute(sources []*Descriptor, target []disttype.Dim, gridShape []int, rank int) (*distarray.LocalArray, error) {
	if len(sources) == 0 {
		return nil, arrayerr.E(arrayerr.IncompatibleShards, "no source shards")
	}
	shards := make([]*distarray.LocalArray, len(sources))
	for i, desc := range sources {
		grid, err := Grid(desc)
		if err != nil {
			return nil, err
		}
		if shards[i], err = Import(desc, grid.Rank()); err != nil {
			return nil, err
		}
	}
	var (
		shape    = shards[0].GlobalShape()
		elemType = shards[0].ElemType()
		total    int
	)
	for i, s := range shards {
		if !procgrid.SameShape(s.GlobalShape(), shape) {
			return nil, arrayerr.Errorf(arrayerr.IncompatibleShards, "source %d: global shape %v, want %v", i, s.GlobalShape(), shape)
		}
		if s.ElemType() != elemType {
			return nil, arrayerr.Errorf(arrayerr.IncompatibleShards, "source %d: element type %v, want %v", i, s.ElemType(), elemType)
		}
		total += s.Len()
	}
	size := 1
	for _, n := range shape {
		size *= n
	}
	if total != size {
		return nil, arrayerr.Errorf(arrayerr.IncompatibleShards, "sources hold %d elements, global array has %d", total, size)
	}
	if err := checkCover(shards); err != nil {
		return nil, err
	}
	dst, err := distarray.NewOf(elemType, shape, target, gridShape, rank)
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("protocol: redistributing %d shards of %s into %v", len(shards), procgrid.FormatShape(shape), dst)
	var (
		dstBuf = dst.Buffer()
		last   = 0
	)
	err = dst.ForEach(func(offset int, global []int) error {
		// Consecutive elements tend to be owned by the same source.
		for i := range shards {
			s := shards[(last+i)%len(shards)]
			local, ok := s.FromGlobal(global)
			if !ok {
				continue
			}
			off, err := s.Offset(local)
			if err != nil {
				return err
			}
			dstBuf.Index(offset).Set(s.Buffer().Index(off))
			last = (last + i) % len(shards)
			return nil
		}
		return arrayerr.Errorf(arrayerr.IncompatibleShards, "global index %v not owned by any source", global)
	})
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// checkCover checks that shards are the complete set of shards of a
// single array: they are mutually compatible, there is exactly one
// per grid rank, and along each grid axis the shards' maps of the
// corresponding dimension partition it.
func checkCover(shards []*distarray.LocalArray) error {
	grid := shards[0].Grid()
	if len(shards) != grid.Size() {
		return arrayerr.Errorf(arrayerr.IncompatibleShards, "%d sources for a grid of %d processes", len(shards), grid.Size())
	}
	seen := make([]bool, grid.Size())
	for i, s := range shards {
		if err := shards[0].CheckCompatible(s); err != nil {
			return arrayerr.E(arrayerr.IncompatibleShards, fmt.Sprintf("source %d", i), err)
		}
		if seen[s.Rank()] {
			return arrayerr.Errorf(arrayerr.IncompatibleShards, "source %d: rank %d appears more than once", i, s.Rank())
		}
		seen[s.Rank()] = true
	}
	gridShape := grid.Shape()
	var axis int
	for i, d := range shards[0].Dims() {
		if !disttype.IsDistributed(d) {
			continue
		}
		maps := make([]disttype.Map, gridShape[axis])
		for _, s := range shards {
			c, m := s.Grid().Coord(axis), s.Map(i)
			switch {
			case maps[c] == nil:
				maps[c] = m
			case !disttype.Equal(maps[c].Dim(), m.Dim()):
				return arrayerr.Errorf(arrayerr.IncompatibleShards,
					"dimension %d: sources at grid coordinate %d own different indices", i, c)
			}
		}
		if err := disttype.CheckPartition(maps); err != nil {
			return arrayerr.E(arrayerr.IncompatibleShards, fmt.Sprintf("dimension %d", i), err)
		}
		axis++
	}
	return nil
}
