// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package procgrid

import (
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/distarray/arrayerr"
)

// Default returns a grid shape of ndims dimensions holding nprocs
// processes, with extents as close to each other as possible. The
// extents are in non-increasing order. This is the layout used when
// no grid shape is supplied.
func Default(nprocs, ndims int) ([]int, error) {
	if nprocs < 1 {
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "%d processes", nprocs)
	}
	if ndims < 0 {
		return nil, arrayerr.Errorf(arrayerr.InvalidShape, "%d grid dimensions", ndims)
	}
	if ndims == 0 {
		if nprocs != 1 {
			return nil, arrayerr.Errorf(arrayerr.InvalidGridCoordinate, "%d processes cannot be arranged on an empty grid", nprocs)
		}
		return []int{}, nil
	}
	shape := make([]int, ndims)
	for i := range shape {
		shape[i] = 1
	}
	// Hand out prime factors, largest first, to the smallest extent.
	factors := primeFactors(nprocs)
	for i := len(factors) - 1; i >= 0; i-- {
		min := 0
		for j := range shape {
			if shape[j] < shape[min] {
				min = j
			}
		}
		shape[min] *= factors[i]
	}
	sort.Sort(sort.Reverse(sort.IntSlice(shape)))
	return shape, nil
}

func primeFactors(n int) []int {
	var factors []int
	for p := 2; p*p <= n; p++ {
		for n%p == 0 {
			factors = append(factors, p)
			n /= p
		}
	}
	if n > 1 {
		factors = append(factors, n)
	}
	return factors
}

// ParseShape parses a grid shape of the form "2x3x4". The empty
// string is the empty shape.
func ParseShape(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, "x")
	shape := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, arrayerr.E(arrayerr.InvalidShape, "parse grid shape "+strconv.Quote(s), err)
		}
		if n < 1 {
			return nil, arrayerr.Errorf(arrayerr.InvalidShape, "grid shape %q: extent %d must be positive", s, n)
		}
		shape[i] = n
	}
	return shape, nil
}
