// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package protocol implements the distributed array protocol: a
// distribution-agnostic description of a local array shard that can
// be exported by one library or process and imported, exactly, by
// another.
//
// A descriptor has three parts: a version string, the shard's
// element buffer, and one dimension dictionary per array dimension.
// Dimension dictionaries have mandatory keys "dist_type" and "size",
// and kind-specific keys describing the shard's place in the
// process grid:
//
//	n   (none)
//	b   (block)        proc_grid_rank, proc_grid_size, block_size, padding, start, stop
//	c   (cyclic)       proc_grid_rank, proc_grid_size, periodic
//	bc  (block-cyclic) proc_grid_rank, proc_grid_size, block_size, padding, periodic
//	u   (unstructured) proc_grid_rank, proc_grid_size, indices
//
// Lopsided block dimensions omit block_size and padding; their
// extent is given by start and stop alone.
package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/grailbio/distarray/arrayerr"
	"github.com/grailbio/distarray/buffer"
	"golang.org/x/mod/semver"
)

// Version is the protocol version of exported descriptors.
const Version = "0.10.0"

// Descriptors with versions in [MinVersion, MaxVersion) are accepted
// by Import.
const (
	MinVersion = "0.9.0"
	MaxVersion = "1.0.0"
)

// Top-level descriptor keys.
const (
	KeyVersion = "__version__"
	KeyBuffer  = "buffer"
	KeyDimData = "dim_data"
)

// Dimension dictionary keys.
const (
	KeyDistType     = "dist_type"
	KeySize         = "size"
	KeyProcGridRank = "proc_grid_rank"
	KeyProcGridSize = "proc_grid_size"
	KeyBlockSize    = "block_size"
	KeyPadding      = "padding"
	KeyStart        = "start"
	KeyStop         = "stop"
	KeyPeriodic     = "periodic"
	KeyIndices      = "indices"
)

// A Descriptor is the exported form of a local array shard.
type Descriptor struct {
	// Version is the protocol version of the descriptor.
	Version string
	// Buffer holds the shard's elements in row-major order of its
	// local shape.
	Buffer buffer.Buffer
	// DimData holds one dimension dictionary per array dimension.
	DimData []map[string]interface{}
}

// Keys returns the top-level keys of the descriptor's mapping form.
func (d *Descriptor) Keys() []string {
	return []string{KeyVersion, KeyBuffer, KeyDimData}
}

// Map returns the mapping form of the descriptor, as exchanged with
// mapping-based producers and consumers. The buffer is rendered as
// its underlying slice and is shared with the descriptor.
func (d *Descriptor) Map() map[string]interface{} {
	return map[string]interface{}{
		KeyVersion: d.Version,
		KeyBuffer:  d.Buffer.Interface(),
		KeyDimData: d.DimData,
	}
}

// FromMap parses the mapping form of a descriptor. The buffer may be
// given as a buffer.Buffer or as a slice; dimension data may be given
// as a slice of maps, or as a []interface{} of maps as produced by
// encoding/json.
func FromMap(m map[string]interface{}) (*Descriptor, error) {
	for _, key := range []string{KeyVersion, KeyBuffer, KeyDimData} {
		if _, ok := m[key]; !ok {
			return nil, arrayerr.Errorf(arrayerr.ProtocolError, "missing key %q", key)
		}
	}
	d := new(Descriptor)
	var ok bool
	if d.Version, ok = m[KeyVersion].(string); !ok {
		return nil, arrayerr.Errorf(arrayerr.ProtocolError, "%s: expected string, got %T", KeyVersion, m[KeyVersion])
	}
	switch buf := m[KeyBuffer].(type) {
	case buffer.Buffer:
		d.Buffer = buf
	case nil:
		return nil, arrayerr.Errorf(arrayerr.ProtocolError, "%s: nil buffer", KeyBuffer)
	default:
		if !isSlice(buf) {
			return nil, arrayerr.Errorf(arrayerr.ProtocolError, "%s: expected slice, got %T", KeyBuffer, buf)
		}
		d.Buffer = buffer.Of(buf)
	}
	switch dims := m[KeyDimData].(type) {
	case []map[string]interface{}:
		d.DimData = dims
	case []interface{}:
		d.DimData = make([]map[string]interface{}, len(dims))
		for i, dim := range dims {
			if d.DimData[i], ok = dim.(map[string]interface{}); !ok {
				return nil, arrayerr.Errorf(arrayerr.ProtocolError, "%s[%d]: expected map, got %T", KeyDimData, i, dim)
			}
		}
	default:
		return nil, arrayerr.Errorf(arrayerr.ProtocolError, "%s: expected list of maps, got %T", KeyDimData, dims)
	}
	return d, nil
}

// Validate checks that the descriptor is well-formed: its version is
// supported, every dimension dictionary is complete and well-typed,
// and the buffer holds as many elements as the described local
// shape.
func (d *Descriptor) Validate() error {
	if err := CheckVersion(d.Version); err != nil {
		return err
	}
	if d.Buffer.IsZero() {
		return arrayerr.E(arrayerr.ProtocolError, "missing buffer")
	}
	dims, err := parseDims(d.DimData)
	if err != nil {
		return err
	}
	_, err = localShape(dims, d.Buffer.Len())
	return err
}

// String returns a short description of the descriptor.
func (d *Descriptor) String() string {
	codes := make([]interface{}, len(d.DimData))
	for i, dim := range d.DimData {
		codes[i] = dim[KeyDistType]
	}
	return fmt.Sprintf("descriptor(v%s; %v; %v)", d.Version, codes, d.Buffer)
}

// CheckVersion checks that version is a parseable protocol version
// of the form major.minor[.patch] within [MinVersion, MaxVersion).
func CheckVersion(version string) error {
	v := "v" + version
	if !semver.IsValid(v) {
		return arrayerr.Errorf(arrayerr.ProtocolError, "invalid protocol version %q", version)
	}
	if semver.Compare(v, "v"+MinVersion) < 0 || semver.Compare(v, "v"+MaxVersion) >= 0 {
		return arrayerr.Errorf(arrayerr.ProtocolError,
			"unsupported protocol version %s; want [%s, %s)", version, MinVersion, MaxVersion)
	}
	return nil
}

// sortedKeys returns the keys of a dimension dictionary, sorted.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// toInt converts a dictionary value to an int. Integers may arrive
// as any Go integer type, or as integral floats or json.Numbers, as
// produced by JSON decoders. Values that do not fit in an int are
// rejected.
func toInt(v interface{}) (int, bool) {
	switch v := v.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return fromInt64(v)
	case uint:
		return fromUint64(uint64(v))
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return fromUint64(uint64(v))
	case uint64:
		return fromUint64(v)
	case float32:
		return fromFloat64(float64(v))
	case float64:
		return fromFloat64(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return fromInt64(n)
		}
	}
	return 0, false
}

func fromInt64(v int64) (int, bool) {
	if v < math.MinInt || v > math.MaxInt {
		return 0, false
	}
	return int(v), true
}

func fromUint64(v uint64) (int, bool) {
	if v > math.MaxInt {
		return 0, false
	}
	return int(v), true
}

func fromFloat64(v float64) (int, bool) {
	// Floats beyond ±2^63 cannot be converted exactly; the bounds
	// are exclusive since float64(math.MaxInt64) rounds up to 2^63.
	if v != math.Trunc(v) || v < -(1<<63) || v >= 1<<63 {
		return 0, false
	}
	return fromInt64(int64(v))
}

func toInts(v interface{}) ([]int, bool) {
	switch v := v.(type) {
	case []int:
		return append([]int(nil), v...), true
	case []int64:
		ints := make([]int, len(v))
		for i := range v {
			var ok bool
			if ints[i], ok = fromInt64(v[i]); !ok {
				return nil, false
			}
		}
		return ints, true
	case []interface{}:
		ints := make([]int, len(v))
		for i := range v {
			var ok bool
			if ints[i], ok = toInt(v[i]); !ok {
				return nil, false
			}
		}
		return ints, true
	}
	return nil, false
}
