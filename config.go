// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package distarray

import (
	"github.com/grailbio/base/config"
	"github.com/grailbio/base/log"
	"github.com/grailbio/distarray/procgrid"
)

func init() {
	config.Register("distarray", func(inst *config.Constructor) {
		var (
			rank, nprocs int
			grid         string
			comm         Comm
		)
		inst.IntVar(&rank, "rank", 0, "rank of this process")
		inst.IntVar(&nprocs, "nprocs", 1, "number of cooperating processes")
		inst.StringVar(&grid, "grid", "", "process grid shape, e.g., 2x2; chosen automatically if empty")
		inst.InstanceVar(&comm, "comm", "", "the communicator connecting the processes; overrides rank and nprocs")
		inst.Doc = "distarray configures the per-process distarray context"
		inst.New = func() (interface{}, error) {
			if comm == nil {
				comm = staticComm{rank: rank, size: nprocs}
				if nprocs > 1 {
					log.Printf("distarray: rank %d of %d configured without a communicator; lopsided arrays are unavailable", rank, nprocs)
				}
			}
			var gridShape []int
			if grid != "" {
				var err error
				if gridShape, err = procgrid.ParseShape(grid); err != nil {
					return nil, err
				}
			}
			return NewContext(comm, gridShape)
		}
	})
}
