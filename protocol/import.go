// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package protocol

import (
	"fmt"
	"reflect"

	"github.com/grailbio/base/log"
	"github.com/grailbio/distarray"
	"github.com/grailbio/distarray/arrayerr"
	"github.com/grailbio/distarray/disttype"
	"github.com/grailbio/distarray/procgrid"
)

// Keys recognized for each distribution kind, beyond dist_type and
// size.
var kindKeys = map[disttype.Kind][]string{
	disttype.KindNone:         nil,
	disttype.KindBlock:        {KeyProcGridRank, KeyProcGridSize, KeyBlockSize, KeyPadding, KeyStart, KeyStop},
	disttype.KindCyclic:       {KeyProcGridRank, KeyProcGridSize, KeyBlockSize, KeyPadding, KeyPeriodic},
	disttype.KindBlockCyclic:  {KeyProcGridRank, KeyProcGridSize, KeyBlockSize, KeyPadding, KeyPeriodic},
	disttype.KindUnstructured: {KeyProcGridRank, KeyProcGridSize, KeyIndices},
}

// Import reconstructs the local array described by desc, as owned by
// the process with the provided rank. The rank must correspond to
// the grid coordinates recorded in the descriptor. The returned
// array owns a copy of the descriptor's buffer.
func Import(desc *Descriptor, rank int) (*distarray.LocalArray, error) {
	if err := CheckVersion(desc.Version); err != nil {
		return nil, err
	}
	if desc.Buffer.IsZero() {
		return nil, arrayerr.E(arrayerr.ProtocolError, "missing buffer")
	}
	dims, err := parseDims(desc.DimData)
	if err != nil {
		return nil, err
	}
	grid, err := gridOf(dims)
	if err != nil {
		return nil, err
	}
	if grid.Rank() != rank {
		return nil, arrayerr.Errorf(arrayerr.InvalidGridCoordinate,
			"rank %d does not match grid coordinates %v of %s (rank %d)", rank, grid.Coords(), procgrid.FormatShape(grid.Shape()), grid.Rank())
	}
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = d.GlobalSize()
	}
	return distarray.New(shape, dims, grid.Shape(), rank, desc.Buffer.Clone())
}

// Grid returns the process grid, including the exporting process's
// rank, recorded in a descriptor. The grid shape is the sequence of
// proc_grid_size values of the distributed dimensions; the rank is
// determined by their proc_grid_rank values.
func Grid(desc *Descriptor) (*procgrid.Grid, error) {
	dims, err := parseDims(desc.DimData)
	if err != nil {
		return nil, err
	}
	return gridOf(dims)
}

// Dims returns the fully resolved dimensions described by a
// descriptor's dimension data.
func Dims(desc *Descriptor) ([]disttype.Dim, error) {
	return parseDims(desc.DimData)
}

func gridOf(dims []disttype.Dim) (*procgrid.Grid, error) {
	var shape, coords []int
	for _, d := range dims {
		if !disttype.IsDistributed(d) {
			continue
		}
		size, rank := disttype.Grid(d)
		shape = append(shape, size)
		coords = append(coords, rank)
	}
	grid, err := procgrid.New(shape, 0)
	if err != nil {
		return nil, err
	}
	rank, err := grid.RankOf(coords)
	if err != nil {
		return nil, err
	}
	return procgrid.New(shape, rank)
}

// localShape checks that the dims describe a local shape of n
// elements and returns it.
func localShape(dims []disttype.Dim, n int) ([]int, error) {
	shape := make([]int, len(dims))
	size := 1
	for i, d := range dims {
		m, err := disttype.NewMap(d)
		if err != nil {
			return nil, err
		}
		shape[i] = m.Len()
		size *= shape[i]
	}
	if size != n {
		return nil, arrayerr.Errorf(arrayerr.BufferSizeMismatch, "buffer of %d elements for local shape %v", n, shape)
	}
	return shape, nil
}

func parseDims(dimData []map[string]interface{}) ([]disttype.Dim, error) {
	dims := make([]disttype.Dim, len(dimData))
	for i, m := range dimData {
		d, err := parseDim(m)
		if err != nil {
			return nil, arrayerr.E(arrayerr.KindOf(err), fmt.Sprintf("%s[%d]", KeyDimData, i), err)
		}
		dims[i] = d
	}
	return dims, nil
}

// parseDim parses a single dimension dictionary.
func parseDim(m map[string]interface{}) (disttype.Dim, error) {
	if m == nil {
		return nil, arrayerr.E(arrayerr.ProtocolError, "missing dimension dictionary")
	}
	raw, ok := m[KeyDistType]
	if !ok {
		return nil, arrayerr.Errorf(arrayerr.ProtocolError, "missing key %q", KeyDistType)
	}
	tag, ok := raw.(string)
	if !ok {
		return nil, arrayerr.Errorf(arrayerr.ProtocolError, "%s: expected string, got %T", KeyDistType, raw)
	}
	kind, err := disttype.KindOf(tag)
	if err != nil {
		return nil, err
	}
	p := parser{m: m}
	size := p.int(KeySize, true, 0)
	if p.err == nil && size < 0 {
		return nil, arrayerr.E(arrayerr.ProtocolError, KeySize+" must be a non-negative integer",
			arrayerr.Errorf(arrayerr.InvalidShape, "negative size %d", size))
	}
	var gridSize, gridRank int
	if kind != disttype.KindNone {
		gridSize = p.int(KeyProcGridSize, true, 0)
		gridRank = p.int(KeyProcGridRank, true, 0)
	}
	var d disttype.Dim
	switch kind {
	case disttype.KindNone:
		d = disttype.None{Size: size}
	case disttype.KindBlock:
		d, err = p.block(size, gridSize, gridRank)
		if err != nil {
			return nil, err
		}
	case disttype.KindCyclic, disttype.KindBlockCyclic:
		var (
			blockSize = p.int(KeyBlockSize, false, 1)
			periodic  = p.bool(KeyPeriodic, false)
		)
		if kind == disttype.KindCyclic && blockSize == 1 {
			d = disttype.Cyclic{Size: size, GridSize: gridSize, GridRank: gridRank, Periodic: periodic}
			break
		}
		bc := disttype.BlockCyclic{Size: size, GridSize: gridSize, GridRank: gridRank, BlockSize: blockSize, Periodic: periodic}
		if p.has(KeyPadding) {
			if got := p.int(KeyPadding, true, 0); p.err == nil && blockSize > 0 && got != bc.Padding() {
				return nil, arrayerr.Errorf(arrayerr.ProtocolError, "%v: %s is %d, want %d", bc, KeyPadding, got, bc.Padding())
			}
		}
		d = bc
	case disttype.KindUnstructured:
		indices := p.ints(KeyIndices, true)
		d = disttype.Unstructured{Size: size, GridSize: gridSize, GridRank: gridRank, Indices: indices}
	}
	if p.err != nil {
		return nil, p.err
	}
	for _, key := range sortedKeys(m) {
		if key == KeyDistType || key == KeySize || contains(kindKeys[kind], key) {
			continue
		}
		log.Debug.Printf("protocol: ignoring unknown key %q in %s dimension", key, kind)
	}
	// Validate eagerly, so that malformed descriptors are rejected
	// before any array is constructed.
	dm, err := disttype.NewMap(d)
	if err != nil {
		return nil, err
	}
	return dm.Dim(), nil
}

// A parser extracts typed values from a dimension dictionary. It
// records the first error it encounters.
type parser struct {
	m   map[string]interface{}
	err error
}

func (p *parser) int(key string, required bool, def int) int {
	v, ok := p.m[key]
	if !ok || v == nil {
		if required && p.err == nil {
			p.err = arrayerr.Errorf(arrayerr.ProtocolError, "missing key %q", key)
		}
		return def
	}
	n, ok := toInt(v)
	if !ok && p.err == nil {
		p.err = arrayerr.Errorf(arrayerr.ProtocolError, "%s: expected integer, got %T (%v)", key, v, v)
	}
	return n
}

func (p *parser) has(key string) bool {
	v, ok := p.m[key]
	return ok && v != nil
}

func (p *parser) bool(key string, def bool) bool {
	v, ok := p.m[key]
	if !ok || v == nil {
		return def
	}
	b, ok := v.(bool)
	if !ok && p.err == nil {
		p.err = arrayerr.Errorf(arrayerr.ProtocolError, "%s: expected bool, got %T", key, v)
	}
	return b
}

func (p *parser) ints(key string, required bool) []int {
	v, ok := p.m[key]
	if !ok || v == nil {
		if required && p.err == nil {
			p.err = arrayerr.Errorf(arrayerr.ProtocolError, "missing key %q", key)
		}
		return nil
	}
	ints, ok := toInts(v)
	if !ok && p.err == nil {
		p.err = arrayerr.Errorf(arrayerr.ProtocolError, "%s: expected list of integers, got %T", key, v)
	}
	return ints
}

// block parses a block dimension. Block dimensions with a block_size
// are regular; any start, stop, or padding given must agree with
// the derived values. Block dimensions with start and stop but no
// block_size are lopsided.
func (p *parser) block(size, gridSize, gridRank int) (disttype.Dim, error) {
	if !p.has(KeyBlockSize) && (p.has(KeyStart) || p.has(KeyStop)) {
		start := p.int(KeyStart, true, 0)
		stop := p.int(KeyStop, true, 0)
		if p.err != nil {
			return nil, p.err
		}
		return disttype.Block{Size: size, GridSize: gridSize, GridRank: gridRank, Explicit: true, Start: start, Stop: stop}, nil
	}
	d := disttype.Block{Size: size, GridSize: gridSize, GridRank: gridRank, BlockSize: p.int(KeyBlockSize, false, 0)}
	if p.err != nil {
		return nil, p.err
	}
	m, err := disttype.NewMap(d)
	if err != nil {
		return nil, err
	}
	resolved := m.Dim().(disttype.Block)
	for _, check := range []struct {
		key  string
		want int
	}{
		{KeyStart, resolved.Start},
		{KeyStop, resolved.Stop},
		{KeyPadding, resolved.Padding()},
	} {
		if !p.has(check.key) {
			continue
		}
		if got := p.int(check.key, true, 0); p.err == nil && got != check.want {
			return nil, arrayerr.Errorf(arrayerr.ProtocolError, "%v: %s is %d, want %d", resolved, check.key, got, check.want)
		}
	}
	return d, p.err
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func isSlice(v interface{}) bool {
	return reflect.ValueOf(v).Kind() == reflect.Slice
}
