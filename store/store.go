// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package store implements per-node buffer storage. Each node holds a
// full-size backing allocation per registered buffer; only regions the
// command graph has made resident on the node carry meaningful bytes.
// Data is linearized row-major with axis 0 varying slowest and axis 2
// contiguous. Storage is mutated only by the owning node's executor and
// transfer manager; it is not safe for concurrent use.
package store

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/grid"
)

// A Store holds one node's buffers.
type Store struct {
	buffers map[biggrid.BufferID]*buffer
}

type buffer struct {
	global   grid.Range
	elemSize int
	data     []byte
}

// New returns an empty store.
func New() *Store {
	return &Store{buffers: make(map[biggrid.BufferID]*buffer)}
}

// Register allocates backing storage for a buffer of the given global
// size and element size.
func (s *Store) Register(bid biggrid.BufferID, global grid.Range, elemSize int) error {
	if _, ok := s.buffers[bid]; ok {
		return errors.E(errors.Exists, fmt.Sprintf("buffer %d already registered", bid))
	}
	if elemSize <= 0 || global.Area() == 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("buffer %d: bad shape", bid))
	}
	s.buffers[bid] = &buffer{
		global:   global,
		elemSize: elemSize,
		data:     make([]byte, global.Area()*uint64(elemSize)),
	}
	return nil
}

// Global returns the buffer's global size.
func (s *Store) Global(bid biggrid.BufferID) (grid.Range, error) {
	b, err := s.get(bid)
	if err != nil {
		return grid.Range{}, err
	}
	return b.global, nil
}

// ElemSize returns the buffer's element size in bytes.
func (s *Store) ElemSize(bid biggrid.BufferID) (int, error) {
	b, err := s.get(bid)
	if err != nil {
		return 0, err
	}
	return b.elemSize, nil
}

// Init overwrites the buffer's entire contents with data, which must be
// exactly the buffer's linearized size. It is used to host-initialize
// buffers on node 0.
func (s *Store) Init(bid biggrid.BufferID, data []byte) error {
	b, err := s.get(bid)
	if err != nil {
		return err
	}
	if len(data) != len(b.data) {
		return errors.E(errors.Invalid, fmt.Sprintf("buffer %d: init size %d, want %d", bid, len(data), len(b.data)))
	}
	copy(b.data, data)
	return nil
}

// Get returns a copy of the box [offset, offset+rng) linearized
// row-major.
func (s *Store) Get(bid biggrid.BufferID, offset grid.Point, rng grid.Range) ([]byte, error) {
	b, err := s.get(bid)
	if err != nil {
		return nil, err
	}
	if err := b.check(bid, offset, rng); err != nil {
		return nil, err
	}
	out := make([]byte, rng.Area()*uint64(b.elemSize))
	b.walk(offset, rng, func(src, dst []byte) { copy(dst, src) }, out)
	return out, nil
}

// Set writes data, linearized row-major, into the box
// [offset, offset+rng).
func (s *Store) Set(bid biggrid.BufferID, data []byte, offset grid.Point, rng grid.Range) error {
	b, err := s.get(bid)
	if err != nil {
		return err
	}
	if err := b.check(bid, offset, rng); err != nil {
		return err
	}
	if want := rng.Area() * uint64(b.elemSize); uint64(len(data)) != want {
		return errors.E(errors.Invalid, fmt.Sprintf("buffer %d: payload size %d, want %d", bid, len(data), want))
	}
	b.walk(offset, rng, func(dst, src []byte) { copy(dst, src) }, data)
	return nil
}

func (s *Store) get(bid biggrid.BufferID) (*buffer, error) {
	b, ok := s.buffers[bid]
	if !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("buffer %d not registered", bid))
	}
	return b, nil
}

func (b *buffer) check(bid biggrid.BufferID, offset grid.Point, rng grid.Range) error {
	for d := 0; d < grid.Dims; d++ {
		if offset[d]+rng[d] > b.global[d] {
			return errors.E(errors.Invalid,
				fmt.Sprintf("buffer %d: box %v+%v out of bounds %v", bid, offset, rng, b.global))
		}
	}
	return nil
}

// walk visits the box row by row, pairing each buffer row with the
// corresponding slice of the linearized external representation.
func (b *buffer) walk(offset grid.Point, rng grid.Range, f func(buf, lin []byte), lin []byte) {
	var (
		es     = uint64(b.elemSize)
		rowLen = rng[2] * es
		li     uint64
	)
	for i0 := uint64(0); i0 < rng[0]; i0++ {
		for i1 := uint64(0); i1 < rng[1]; i1++ {
			idx := ((offset[0]+i0)*b.global[1]+offset[1]+i1)*b.global[2] + offset[2]
			off := idx * es
			f(b.data[off:off+rowLen], lin[li:li+rowLen])
			li += rowLen
		}
	}
}
