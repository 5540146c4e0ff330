// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package distio implements a stream encoding of distributed array
// descriptors. Each descriptor is written as a gob-encoded record,
// consisting of a header (protocol version, element type, and
// dimension data) followed by the element buffer, and terminated by
// a CRC32 checksum of the record. Element types are named through
// the registry in package buffer.
package distio

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"reflect"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/distarray/arrayerr"
	"github.com/grailbio/distarray/buffer"
	"github.com/grailbio/distarray/disttype"
	"github.com/grailbio/distarray/protocol"
)

// header is the first part of each encoded record.
type header struct {
	Version  string
	ElemType string
	Len      int
	Dims     []dimRecord
}

// dimRecord is the encoded form of a resolved dimension.
type dimRecord struct {
	DistType  string
	Size      int
	GridSize  int
	GridRank  int
	BlockSize int
	Explicit  bool
	Start     int
	Stop      int
	Periodic  bool
	Indices   []int
}

func recordOf(d disttype.Dim) dimRecord {
	r := dimRecord{DistType: d.Kind().Tag(), Size: d.GlobalSize()}
	r.GridSize, r.GridRank = disttype.Grid(d)
	switch d := d.(type) {
	case disttype.Block:
		r.BlockSize = d.BlockSize
		r.Explicit = d.Explicit
		r.Start, r.Stop = d.Start, d.Stop
	case disttype.Cyclic:
		r.Periodic = d.Periodic
	case disttype.BlockCyclic:
		r.BlockSize = d.BlockSize
		r.Periodic = d.Periodic
	case disttype.Unstructured:
		r.Indices = d.Indices
	}
	return r
}

func (r dimRecord) dim() (disttype.Dim, error) {
	kind, err := disttype.KindOf(r.DistType)
	if err != nil {
		return nil, err
	}
	switch kind {
	case disttype.KindNone:
		return disttype.None{Size: r.Size}, nil
	case disttype.KindBlock:
		return disttype.Block{
			Size:      r.Size,
			GridSize:  r.GridSize,
			GridRank:  r.GridRank,
			BlockSize: r.BlockSize,
			Explicit:  r.Explicit,
			Start:     r.Start,
			Stop:      r.Stop,
		}, nil
	case disttype.KindCyclic:
		return disttype.Cyclic{Size: r.Size, GridSize: r.GridSize, GridRank: r.GridRank, Periodic: r.Periodic}, nil
	case disttype.KindBlockCyclic:
		return disttype.BlockCyclic{Size: r.Size, GridSize: r.GridSize, GridRank: r.GridRank, BlockSize: r.BlockSize, Periodic: r.Periodic}, nil
	default:
		indices := r.Indices
		if indices == nil {
			indices = []int{}
		}
		return disttype.Unstructured{Size: r.Size, GridSize: r.GridSize, GridRank: r.GridRank, Indices: indices}, nil
	}
}

// An Encoder writes descriptors to an underlying io.Writer. The
// stream can be read by a Decoder.
type Encoder struct {
	enc *gob.Encoder
	crc hash.Hash32
}

// NewEncoder returns a new Encoder that writes descriptors into the
// provided writer.
func NewEncoder(w io.Writer) *Encoder {
	crc := crc32.NewIEEE()
	return &Encoder{
		enc: gob.NewEncoder(io.MultiWriter(w, crc)),
		crc: crc,
	}
}

// Encode validates the provided descriptor and writes it to the
// encoder's writer. The descriptor's element type must be
// registered with buffer.RegisterType.
func (e *Encoder) Encode(desc *protocol.Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	name, ok := buffer.TypeName(desc.Buffer.ElemType())
	if !ok {
		return arrayerr.Errorf(arrayerr.ProtocolError, "element type %v is not registered", desc.Buffer.ElemType())
	}
	dims, err := protocol.Dims(desc)
	if err != nil {
		return err
	}
	h := header{
		Version:  desc.Version,
		ElemType: name,
		Len:      desc.Buffer.Len(),
		Dims:     make([]dimRecord, len(dims)),
	}
	for i, d := range dims {
		h.Dims[i] = recordOf(d)
	}
	e.crc.Reset()
	if err := e.enc.Encode(h); err != nil {
		return err
	}
	if h.Len > 0 {
		if err := e.enc.EncodeValue(desc.Buffer.Value()); err != nil {
			if strings.HasPrefix(err.Error(), "gob: ") {
				err = errors.E(errors.Fatal, err)
			}
			return err
		}
	}
	return e.enc.Encode(e.crc.Sum32())
}

// A Decoder reads descriptors from a stream written by an Encoder.
type Decoder struct {
	dec *gob.Decoder
	crc hash.Hash32
}

// NewDecoder returns a new Decoder that reads descriptors from the
// provided reader.
func NewDecoder(r io.Reader) *Decoder {
	// Checksums are computed over the underlying byte stream. Gob
	// buffers any reader that does not implement io.ByteReader,
	// which would leave the checksum out of sync with the decoder's
	// position. We buffer the stream ourselves and present gob with
	// a reader that claims to implement io.ByteReader.
	crc := crc32.NewIEEE()
	if _, ok := r.(io.ByteReader); !ok {
		r = bufio.NewReader(r)
	}
	r = io.TeeReader(r, crc)
	return &Decoder{dec: gob.NewDecoder(readerByteReader{Reader: r}), crc: crc}
}

// Decode reads the next descriptor from the stream. Decode returns
// io.EOF when the stream is exhausted, and an error of kind
// errors.Integrity if the record's checksum does not match its
// contents.
func (d *Decoder) Decode() (*protocol.Descriptor, error) {
	d.crc.Reset()
	var h header
	if err := d.dec.Decode(&h); err != nil {
		return nil, err
	}
	typ, ok := buffer.TypeOf(h.ElemType)
	if !ok {
		return nil, arrayerr.Errorf(arrayerr.ProtocolError, "unknown element type %q", h.ElemType)
	}
	buf := buffer.Make(typ, 0)
	if h.Len > 0 {
		ptr := reflect.New(reflect.SliceOf(typ))
		if err := d.dec.DecodeValue(ptr); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		buf = buffer.Of(ptr.Elem().Interface())
	}
	sum := d.crc.Sum32()
	var decoded uint32
	if err := d.dec.Decode(&decoded); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if sum != decoded {
		return nil, errors.E(errors.Integrity, fmt.Errorf("computed checksum %x but expected checksum %x", sum, decoded))
	}
	if buf.Len() != h.Len {
		return nil, arrayerr.Errorf(arrayerr.ProtocolError, "decoded %d elements, want %d", buf.Len(), h.Len)
	}
	desc := &protocol.Descriptor{
		Version: h.Version,
		Buffer:  buf,
		DimData: make([]map[string]interface{}, len(h.Dims)),
	}
	for i, r := range h.Dims {
		dim, err := r.dim()
		if err != nil {
			return nil, err
		}
		desc.DimData[i] = protocol.DimData(dim)
	}
	return desc, nil
}

// readerByteReader is used to provide an (invalid) implementation of
// io.ByteReader to gob.Decoder. See comment in NewDecoder for
// details.
type readerByteReader struct {
	io.Reader
	io.ByteReader
}
