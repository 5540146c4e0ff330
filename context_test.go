// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package distarray_test

import (
	"context"
	"testing"

	"github.com/grailbio/base/config"
	"github.com/grailbio/distarray"
	"github.com/grailbio/distarray/arrayerr"
	"github.com/grailbio/distarray/arraytest"
	"github.com/grailbio/distarray/buffer"
	"github.com/grailbio/distarray/disttype"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestSingle(t *testing.T) {
	comm := distarray.Single()
	expect.EQ(t, comm.Rank(), 0)
	expect.EQ(t, comm.Size(), 1)
	vals, err := comm.AllgatherInt(context.Background(), 5)
	assert.NoError(t, err)
	expect.EQ(t, vals, []int{5})

	ctx, err := distarray.NewContext(nil, nil)
	assert.NoError(t, err)
	dims, err := disttype.FromCodes([]int{3, 4}, "b", "c")
	assert.NoError(t, err)
	a, err := ctx.New([]int{3, 4}, dims, buffer.Buffer{})
	assert.NoError(t, err)
	expect.EQ(t, a.LocalShape(), []int{3, 4})
	expect.EQ(t, a.Grid().Shape(), []int{1, 1})
}

func TestContextDefaultGrid(t *testing.T) {
	shards := arraytest.Gather(t, 6, func(comm distarray.Comm) (*distarray.LocalArray, error) {
		ctx, err := distarray.NewContext(comm, nil)
		if err != nil {
			return nil, err
		}
		dims, err := disttype.FromCodes([]int{12, 12}, "b", "b")
		if err != nil {
			return nil, err
		}
		return ctx.New([]int{12, 12}, dims, buffer.Buffer{})
	})
	for _, a := range shards {
		expect.EQ(t, a.Grid().Shape(), []int{3, 2})
		expect.EQ(t, a.LocalShape(), []int{4, 6})
	}
}

func TestContextInvalid(t *testing.T) {
	err := arraytest.Run(context.Background(), 4, func(comm distarray.Comm) error {
		// Every rank reports a mismatched grid the same way,
		// including ranks that fall outside of a small grid.
		for _, shape := range [][]int{{3}, {5}, {1, 2}, {2, 0}} {
			if _, err := distarray.NewContext(comm, shape); !arrayerr.Is(arrayerr.InvalidShape, err) || arrayerr.Is(arrayerr.InvalidRank, err) {
				t.Errorf("rank %d: grid %v: got %v, want InvalidShape", comm.Rank(), shape, err)
			}
		}
		ctx, err := distarray.NewContext(comm, []int{2, 2})
		if err != nil {
			return err
		}
		dims, err := disttype.FromCodes([]int{8}, "b")
		if err != nil {
			return err
		}
		if _, err := ctx.New([]int{8}, dims, buffer.Buffer{}); !arrayerr.Is(arrayerr.InvalidGridCoordinate, err) {
			t.Errorf("got %v, want InvalidGridCoordinate", err)
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestLopsided(t *testing.T) {
	extents := []int{20, 30}
	shards := arraytest.Gather(t, 2, func(comm distarray.Comm) (*distarray.LocalArray, error) {
		ctx, err := distarray.NewContext(comm, nil)
		if err != nil {
			return nil, err
		}
		dims, err := disttype.FromCodes([]int{50}, "b")
		if err != nil {
			return nil, err
		}
		buf := buffer.Of(make([]float64, extents[comm.Rank()]))
		return ctx.NewLopsided(context.Background(), []int{50}, dims, buf)
	})
	expect.EQ(t, shards[0].LocalShape(), []int{20})
	expect.EQ(t, shards[1].LocalShape(), []int{30})
	global, err := shards[1].ToGlobal([]int{0})
	assert.NoError(t, err)
	expect.EQ(t, global, []int{20})
	b := shards[1].Dims()[0].(disttype.Block)
	assert.True(t, b.Explicit)
	expect.EQ(t, b.Start, 20)
	expect.EQ(t, b.Stop, 50)
	expect.EQ(t, b.Padding(), 0)
	assert.NoError(t, shards[0].CheckCompatible(shards[1]))
}

func TestLopsidedMultiDim(t *testing.T) {
	shards := arraytest.Gather(t, 3, func(comm distarray.Comm) (*distarray.LocalArray, error) {
		ctx, err := distarray.NewContext(comm, nil)
		if err != nil {
			return nil, err
		}
		dims, err := disttype.FromCodes([]int{4, 9}, "n", "b")
		if err != nil {
			return nil, err
		}
		// Ranks hold 1, 3, and 5 columns.
		buf := buffer.Of(make([]int, 4*(2*comm.Rank()+1)))
		return ctx.NewLopsided(context.Background(), []int{4, 9}, dims, buf)
	})
	for rank, want := range [][2]int{{0, 1}, {1, 4}, {4, 9}} {
		b := shards[rank].Dims()[1].(disttype.Block)
		expect.EQ(t, [2]int{b.Start, b.Stop}, want)
	}
}

func TestLopsidedInvalid(t *testing.T) {
	ctx, err := distarray.NewContext(distarray.Single(), nil)
	assert.NoError(t, err)
	for _, c := range []struct {
		shape []int
		codes []string
		buf   buffer.Buffer
		kind  arrayerr.Kind
	}{
		{[]int{50}, []string{"b"}, buffer.Of(make([]float64, 40)), arrayerr.InvalidShape},
		{[]int{50}, []string{"c"}, buffer.Of(make([]float64, 50)), arrayerr.InvalidShape},
		{[]int{50, 2}, []string{"b", "b"}, buffer.Of(make([]float64, 100)), arrayerr.InvalidShape},
		{[]int{50}, []string{"n"}, buffer.Of(make([]float64, 50)), arrayerr.InvalidShape},
		{[]int{50}, []string{"b"}, buffer.Buffer{}, arrayerr.BufferSizeMismatch},
		{[]int{3, 50}, []string{"n", "b"}, buffer.Of(make([]float64, 151)), arrayerr.BufferSizeMismatch},
	} {
		dims, err := disttype.FromCodes(c.shape, c.codes...)
		assert.NoError(t, err)
		_, err = ctx.NewLopsided(context.Background(), c.shape, dims, c.buf)
		if !arrayerr.Is(c.kind, err) {
			t.Errorf("%v %v: got %v, want kind %v", c.shape, c.codes, err, c.kind)
		}
	}
}

func TestConfig(t *testing.T) {
	profile := config.New()
	assert.NoError(t, profile.Set("distarray.rank", "3"))
	assert.NoError(t, profile.Set("distarray.nprocs", "4"))
	assert.NoError(t, profile.Set("distarray.grid", "2x2"))
	var ctx *distarray.Context
	assert.NoError(t, profile.Instance("distarray", &ctx))
	expect.EQ(t, ctx.Rank(), 3)
	expect.EQ(t, ctx.Comm().Size(), 4)
	shape, err := ctx.GridShape(2)
	assert.NoError(t, err)
	expect.EQ(t, shape, []int{2, 2})

	dims, err := disttype.FromCodes([]int{53, 77}, "b", "b")
	assert.NoError(t, err)
	a, err := ctx.New([]int{53, 77}, dims, buffer.Buffer{})
	assert.NoError(t, err)
	expect.EQ(t, a.LocalShape(), []int{26, 38})

	// A static communicator cannot gather from its peers.
	_, err = ctx.Comm().AllgatherInt(context.Background(), 1)
	if err == nil {
		t.Error("expected error")
	}
}

func TestConfigDefault(t *testing.T) {
	profile := config.New()
	var ctx *distarray.Context
	assert.NoError(t, profile.Instance("distarray", &ctx))
	expect.EQ(t, ctx.Rank(), 0)
	expect.EQ(t, ctx.Comm().Size(), 1)
	shape, err := ctx.GridShape(3)
	assert.NoError(t, err)
	expect.EQ(t, shape, []int{1, 1, 1})
}

func TestConfigInvalidGrid(t *testing.T) {
	profile := config.New()
	assert.NoError(t, profile.Set("distarray.grid", "2xfoo"))
	var ctx *distarray.Context
	if err := profile.Instance("distarray", &ctx); err == nil {
		t.Error("expected error")
	}
}
