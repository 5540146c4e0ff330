// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package disttype

import (
	"encoding/binary"

	"github.com/grailbio/distarray/arrayerr"
	"github.com/spaolacci/murmur3"
)

// HashPartition returns an unstructured distribution of a dimension
// of the given size over gridSize processes. Each global index is
// assigned to the process selected by its murmur3 hash under the
// provided seed; the returned slice holds the descriptor for each
// grid coordinate, with indices in ascending order.
func HashPartition(size, gridSize int, seed uint32) ([]Unstructured, error) {
	if size < 0 {
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "negative size %d", size)
	}
	if gridSize < 1 {
		return nil, arrayerr.Errorf(arrayerr.InvalidGridCoordinate, "grid extent %d must be positive", gridSize)
	}
	parts := make([]Unstructured, gridSize)
	for r := range parts {
		parts[r] = Unstructured{Size: size, GridSize: gridSize, GridRank: r, Indices: []int{}}
	}
	var b [8]byte
	for g := 0; g < size; g++ {
		binary.LittleEndian.PutUint64(b[:], uint64(g))
		r := int(murmur3.Sum32WithSeed(b[:], seed) % uint32(gridSize))
		parts[r].Indices = append(parts[r].Indices, g)
	}
	return parts, nil
}

// Bounds returns explicit block bounds for a lopsided block
// distribution whose processes hold the provided local extents, in
// grid order. The bounds are the prefix sums of the extents.
func Bounds(extents []int) ([][2]int, error) {
	bounds := make([][2]int, len(extents))
	var start int
	for r, n := range extents {
		if n < 0 {
			return nil, arrayerr.Errorf(arrayerr.InvalidShape, "negative extent %d at grid coordinate %d", n, r)
		}
		bounds[r] = [2]int{start, start + n}
		start += n
	}
	return bounds, nil
}

// CheckPartition checks that the provided maps, one per grid
// coordinate of a single dimension, together own every global index
// in [0, Size) exactly once. Undistributed maps trivially cover
// their dimension and may not be combined with other maps.
func CheckPartition(maps []Map) error {
	if len(maps) == 0 {
		return arrayerr.E(arrayerr.IncompatibleShards, "no maps to check")
	}
	size := maps[0].Size()
	if maps[0].Kind() == KindNone {
		if len(maps) != 1 {
			return arrayerr.Errorf(arrayerr.IncompatibleShards, "%d maps for an undistributed dimension", len(maps))
		}
		return nil
	}
	owner := make([]int, size)
	for i := range owner {
		owner[i] = -1
	}
	for r, m := range maps {
		if m.Size() != size {
			return arrayerr.Errorf(arrayerr.IncompatibleShards, "map %d has size %d, want %d", r, m.Size(), size)
		}
		for i := 0; i < m.Len(); i++ {
			g, _ := m.Global(i)
			if owner[g] >= 0 {
				return arrayerr.Errorf(arrayerr.IncompatibleShards, "index %d owned by both %d and %d", g, owner[g], r)
			}
			owner[g] = r
		}
	}
	for g, r := range owner {
		if r < 0 {
			return arrayerr.Errorf(arrayerr.IncompatibleShards, "index %d is not owned", g)
		}
	}
	return nil
}

// MapsOf returns the maps of every grid coordinate along one axis
// of extent gridSize for the provided (unplaced) dimension.
func MapsOf(d Dim, gridSize int) ([]Map, error) {
	if !IsDistributed(d) {
		m, err := NewMap(d)
		if err != nil {
			return nil, err
		}
		return []Map{m}, nil
	}
	maps := make([]Map, gridSize)
	for r := range maps {
		placed, err := Place(d, gridSize, r)
		if err != nil {
			return nil, err
		}
		if maps[r], err = NewMap(placed); err != nil {
			return nil, err
		}
	}
	return maps, nil
}
