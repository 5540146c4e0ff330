// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package arraytest provides utilities for testing code that
// operates on distributed arrays. It runs SPMD programs in a single
// process, with one goroutine per rank, connected by an in-memory
// communicator. The utilities here are strictly intended for unit
// testing.
package arraytest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/distarray"
	"golang.org/x/sync/errgroup"
)

// Run runs fn once for each of nprocs ranks, each in its own
// goroutine, and waits for all of them to complete. The
// communicators passed to fn are connected to each other. If any
// invocation fails, the context passed through the communicators is
// canceled and Run returns the first error.
func Run(ctx context.Context, nprocs int, fn func(comm distarray.Comm) error) error {
	if nprocs < 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("arraytest.Run: %d processes", nprocs))
	}
	g, ctx := errgroup.WithContext(ctx)
	grp := &group{n: nprocs}
	for rank := 0; rank < nprocs; rank++ {
		comm := &Comm{group: grp, ctx: ctx, rank: rank}
		g.Go(func() error {
			if err := fn(comm); err != nil {
				log.Error.Printf("arraytest: rank %d of %d: %v", comm.rank, nprocs, err)
				return errors.E(fmt.Sprintf("rank %d", comm.rank), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Gather runs fn for each of nprocs ranks, as in Run, and returns the
// local arrays they produce, indexed by rank. Errors are reported
// as fatal to the provided t instance.
func Gather(t *testing.T, nprocs int, fn func(comm distarray.Comm) (*distarray.LocalArray, error)) []*distarray.LocalArray {
	t.Helper()
	shards := make([]*distarray.LocalArray, nprocs)
	err := Run(context.Background(), nprocs, func(comm distarray.Comm) error {
		a, err := fn(comm)
		if err != nil {
			return err
		}
		shards[comm.Rank()] = a
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return shards
}

// Comm is an in-memory communicator for one rank of a group run by
// Run.
type Comm struct {
	*group
	ctx  context.Context
	rank int
}

// Rank implements distarray.Comm.
func (c *Comm) Rank() int { return c.rank }

// Size implements distarray.Comm.
func (c *Comm) Size() int { return c.n }

// AllgatherInt implements distarray.Comm. The call is abandoned if
// either the provided context or the group's context is done. An
// abandoned collective breaks the group: the peers waiting on the
// same round, and every later collective, fail.
func (c *Comm) AllgatherInt(ctx context.Context, v int) ([]int, error) {
	r, err := c.contribute(c.rank, v)
	if err != nil {
		return nil, err
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		c.abandon(r, ctx.Err())
	case <-c.ctx.Done():
		c.abandon(r, c.ctx.Err())
	}
	if r.err != nil {
		return nil, r.err
	}
	return append([]int(nil), r.vals...), nil
}

// A group holds the shared state of the communicators of a run.
// Collectives proceed in rounds: a round completes once every rank
// has contributed to it, or fails once any rank abandons it.
type group struct {
	n     int
	mu    sync.Mutex
	round *round
	err   error
}

type round struct {
	vals  []int
	count int
	err   error
	done  chan struct{}
}

func (g *group) contribute(rank, v int) (*round, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	r := g.round
	if r == nil {
		r = &round{vals: make([]int, g.n), done: make(chan struct{})}
		g.round = r
	}
	r.vals[rank] = v
	r.count++
	if r.count == g.n {
		g.round = nil
		close(r.done)
	}
	return r, nil
}

// abandon fails round r, unless it has already completed, and
// breaks the group.
func (g *group) abandon(r *round, cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r.count == g.n {
		return
	}
	if g.err == nil {
		g.err = errors.E("arraytest: collective abandoned", cause)
	}
	if r.err == nil {
		r.err = g.err
		g.round = nil
		close(r.done)
	}
}
