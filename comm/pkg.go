// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"encoding/binary"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biggrid"
	"github.com/grailbio/biggrid/exec"
	"github.com/grailbio/biggrid/grid"
)

// PacketSize is the fixed size of a command packet: a 24-byte header
// (task id, command id, kind, padding) followed by a 64-byte variant
// union. All fields are little-endian. Variant coordinates are 32-bit
// on the wire; the 64-byte union cannot hold three full u64 triples.
const PacketSize = 88

const unionOffset = 24

// A command message is the fixed-size packet optionally followed by the
// command's dependency ids (8 bytes each): the receiving node needs the
// dependencies to order job execution, and sending them in the same
// message mirrors the composite command flush of the coordinator.

// EncodeCommand encodes the command and its (non-Nop, same-node)
// dependency ids into a command message. Nop commands are join points
// of graph construction only and cannot be encoded. Coordinates beyond
// 32 bits do not fit the wire format and yield an error.
func EncodeCommand(c *exec.Command, deps []biggrid.CommandID) ([]byte, error) {
	msg := make([]byte, PacketSize+8*len(deps))
	binary.LittleEndian.PutUint64(msg[0:], uint64(c.TID))
	binary.LittleEndian.PutUint64(msg[8:], uint64(c.CID))
	msg[16] = byte(c.Kind)
	u := msg[unionOffset:PacketSize]
	switch c.Kind {
	case exec.ComputeCmd:
		if err := putSubrange32(u[0:], c.SR); err != nil {
			return nil, err
		}
	case exec.PushCmd:
		binary.LittleEndian.PutUint64(u[0:], uint64(c.Buffer))
		binary.LittleEndian.PutUint64(u[8:], uint64(c.Target))
		if err := putBox32(u[16:], c.Box); err != nil {
			return nil, err
		}
	case exec.AwaitPushCmd:
		binary.LittleEndian.PutUint64(u[0:], uint64(c.Buffer))
		binary.LittleEndian.PutUint64(u[8:], uint64(c.SourceCID))
		if err := putBox32(u[16:], c.Box); err != nil {
			return nil, err
		}
	case exec.MasterAccessCmd, exec.ShutdownCmd:
	default:
		return nil, errors.E(errors.Invalid, "cannot encode command kind "+c.Kind.String())
	}
	for i, d := range deps {
		binary.LittleEndian.PutUint64(msg[PacketSize+8*i:], uint64(d))
	}
	return msg, nil
}

// DecodeCommand decodes a command message produced by EncodeCommand.
func DecodeCommand(msg []byte) (*exec.Command, []biggrid.CommandID, error) {
	if len(msg) < PacketSize || (len(msg)-PacketSize)%8 != 0 {
		return nil, nil, errors.E(errors.Invalid, "malformed command message")
	}
	c := &exec.Command{
		TID:  biggrid.TaskID(binary.LittleEndian.Uint64(msg[0:])),
		CID:  biggrid.CommandID(binary.LittleEndian.Uint64(msg[8:])),
		Kind: exec.CommandKind(msg[16]),
	}
	u := msg[unionOffset:PacketSize]
	switch c.Kind {
	case exec.ComputeCmd:
		c.HasTask = true
		c.SR = getSubrange32(u[0:])
	case exec.PushCmd:
		c.HasTask = true
		c.Buffer = biggrid.BufferID(binary.LittleEndian.Uint64(u[0:]))
		c.Target = biggrid.NodeID(binary.LittleEndian.Uint64(u[8:]))
		c.Box = getBox32(u[16:])
	case exec.AwaitPushCmd:
		c.HasTask = true
		c.Buffer = biggrid.BufferID(binary.LittleEndian.Uint64(u[0:]))
		c.SourceCID = biggrid.CommandID(binary.LittleEndian.Uint64(u[8:]))
		c.Box = getBox32(u[16:])
	case exec.MasterAccessCmd:
		c.HasTask = true
	case exec.ShutdownCmd:
	default:
		return nil, nil, errors.E(errors.Invalid, "unknown command kind in packet")
	}
	var deps []biggrid.CommandID
	for off := PacketSize; off < len(msg); off += 8 {
		deps = append(deps, biggrid.CommandID(binary.LittleEndian.Uint64(msg[off:])))
	}
	return c, deps, nil
}

func putSubrange32(b []byte, sr grid.Subrange) error {
	for d := 0; d < grid.Dims; d++ {
		if err := putU32(b[4*d:], sr.Offset[d]); err != nil {
			return err
		}
		if err := putU32(b[12+4*d:], sr.Range[d]); err != nil {
			return err
		}
		if err := putU32(b[24+4*d:], sr.Global[d]); err != nil {
			return err
		}
	}
	return nil
}

func getSubrange32(b []byte) grid.Subrange {
	var sr grid.Subrange
	for d := 0; d < grid.Dims; d++ {
		sr.Offset[d] = uint64(binary.LittleEndian.Uint32(b[4*d:]))
		sr.Range[d] = uint64(binary.LittleEndian.Uint32(b[12+4*d:]))
		sr.Global[d] = uint64(binary.LittleEndian.Uint32(b[24+4*d:]))
	}
	return sr
}

func putBox32(b []byte, box grid.Box) error {
	rng := box.Range()
	for d := 0; d < grid.Dims; d++ {
		if err := putU32(b[4*d:], box.Min[d]); err != nil {
			return err
		}
		if err := putU32(b[12+4*d:], rng[d]); err != nil {
			return err
		}
	}
	return nil
}

func getBox32(b []byte) grid.Box {
	var min grid.Point
	var rng grid.Range
	for d := 0; d < grid.Dims; d++ {
		min[d] = uint64(binary.LittleEndian.Uint32(b[4*d:]))
		rng[d] = uint64(binary.LittleEndian.Uint32(b[12+4*d:]))
	}
	return grid.MakeBox(min, rng)
}

func putU32(b []byte, v uint64) error {
	if v > uint64(^uint32(0)) {
		return errors.E(errors.Invalid, "coordinate overflows wire format")
	}
	binary.LittleEndian.PutUint32(b, uint32(v))
	return nil
}

// DataHeaderSize is the fixed size of a data message header: buffer id,
// full 64-bit subrange (offset, range, global size), and the id of the
// push command the payload answers. The header is followed by
// prod(range) x element-size payload bytes, row-major with axis 0
// varying slowest.
const DataHeaderSize = 88

// A DataHeader describes one buffer data message.
type DataHeader struct {
	Buffer   biggrid.BufferID
	Subrange grid.Subrange
	PushCID  biggrid.CommandID
}

// Encode appends the header's wire representation to b.
func (h DataHeader) Encode(b []byte) []byte {
	var buf [DataHeaderSize]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(h.Buffer))
	for d := 0; d < grid.Dims; d++ {
		binary.LittleEndian.PutUint64(buf[8+8*d:], h.Subrange.Offset[d])
		binary.LittleEndian.PutUint64(buf[32+8*d:], h.Subrange.Range[d])
		binary.LittleEndian.PutUint64(buf[56+8*d:], h.Subrange.Global[d])
	}
	binary.LittleEndian.PutUint64(buf[80:], uint64(h.PushCID))
	return append(b, buf[:]...)
}

// DecodeDataHeader decodes a data message, returning its header and
// payload.
func DecodeDataHeader(msg []byte) (DataHeader, []byte, error) {
	if len(msg) < DataHeaderSize {
		return DataHeader{}, nil, errors.E(errors.Invalid, "malformed data message")
	}
	var h DataHeader
	h.Buffer = biggrid.BufferID(binary.LittleEndian.Uint64(msg[0:]))
	for d := 0; d < grid.Dims; d++ {
		h.Subrange.Offset[d] = binary.LittleEndian.Uint64(msg[8+8*d:])
		h.Subrange.Range[d] = binary.LittleEndian.Uint64(msg[32+8*d:])
		h.Subrange.Global[d] = binary.LittleEndian.Uint64(msg[56+8*d:])
	}
	h.PushCID = biggrid.CommandID(binary.LittleEndian.Uint64(msg[80:]))
	return h, msg[DataHeaderSize:], nil
}
