// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package distarray implements local shards of distributed
	N-dimensional arrays. A logical (global) array is partitioned
	across a fixed set of cooperating processes; each process holds
	one LocalArray, which stores only the elements the process owns
	but reasons in terms of global indices, shapes, and
	distributions.

	Each dimension of an array is described by a disttype.Dim: it is
	either undistributed, or split across one axis of a Cartesian
	process grid (package procgrid) in blocks, cyclically, in
	block-cyclic fashion, or by an explicit list of indices. The
	distributed dimensions, in order, correspond to the axes of the
	process grid; a process's rank determines its grid coordinates
	and thus the portion of each dimension it owns.

	Local arrays are exchanged between processes, or between
	libraries, through the distributed array protocol implemented by
	package protocol: any shard can be exported into a
	distribution-agnostic descriptor and reconstructed exactly
	elsewhere. Package distio encodes descriptors onto byte streams.

	Collective operations are supplied by the caller through a Comm,
	held by a Context that is created once per process and passed to
	the constructors that need it:

		ctx, err := distarray.NewContext(comm, nil)
		dims, err := disttype.FromCodes([]int{16, 16}, "b")
		a, err := ctx.New([]int{16, 16}, dims, buffer.Buffer{})

	Distarray does not implement arithmetic over arrays, nor does it
	manage the processes themselves.
*/
package distarray
