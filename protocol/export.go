// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package protocol

import (
	"fmt"

	"github.com/grailbio/distarray"
	"github.com/grailbio/distarray/disttype"
)

// Export returns the descriptor of the provided local array. The
// descriptor's buffer is shared with the array: it must not be
// modified while the descriptor is in use.
func Export(a *distarray.LocalArray) *Descriptor {
	dims := a.Dims()
	desc := &Descriptor{
		Version: Version,
		Buffer:  a.Buffer(),
		DimData: make([]map[string]interface{}, len(dims)),
	}
	for i, d := range dims {
		desc.DimData[i] = DimData(d)
	}
	return desc
}

// DimData returns the dimension dictionary of a resolved dimension.
func DimData(d disttype.Dim) map[string]interface{} {
	m := map[string]interface{}{
		KeyDistType: d.Kind().Tag(),
		KeySize:     d.GlobalSize(),
	}
	if disttype.IsDistributed(d) {
		m[KeyProcGridSize], m[KeyProcGridRank] = disttype.Grid(d)
	}
	switch d := d.(type) {
	case disttype.None:
	case disttype.Block:
		if !d.Explicit {
			m[KeyBlockSize] = d.BlockSize
			m[KeyPadding] = d.Padding()
		}
		m[KeyStart] = d.Start
		m[KeyStop] = d.Stop
	case disttype.Cyclic:
		m[KeyPeriodic] = d.Periodic
	case disttype.BlockCyclic:
		m[KeyBlockSize] = d.BlockSize
		m[KeyPadding] = d.Padding()
		m[KeyPeriodic] = d.Periodic
	case disttype.Unstructured:
		m[KeyIndices] = append([]int(nil), d.Indices...)
	default:
		panic(fmt.Sprintf("protocol.DimData: unhandled dimension %T", d))
	}
	return m
}
