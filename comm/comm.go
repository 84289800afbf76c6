// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package comm defines biggrid's message-passing substrate: tagged,
// non-blocking sends, receives and probes between nodes, together with
// the bit-exact wire formats for command packets and buffer data
// messages. The substrate is an abstraction over an MPI-like transport;
// package comm ships an in-process mesh implementation used by tests
// and single-process clusters. The transport is assumed reliable and
// ordered per (source, tag) pair; the core treats transport failures as
// fatal.
package comm

import "github.com/grailbio/biggrid"

// A Tag labels a message class. Probes match on tags, so command
// traffic and bulk data traffic do not interfere.
type Tag int

const (
	// TagCmd labels fixed-size command packets.
	TagCmd Tag = iota
	// TagDataTransfer labels buffer payload messages.
	TagDataTransfer
)

// A SendState tracks an in-flight non-blocking send.
type SendState interface {
	// Test polls for completion without blocking. After Test has
	// returned true, the message buffer may be reused.
	Test() bool
}

// An InboundMessage is a probed, unclaimed incoming message. A
// successful probe claims the message: it will not be returned by
// subsequent probes.
type InboundMessage interface {
	// Source returns the sending node.
	Source() biggrid.NodeID
	// Size returns the message size in bytes.
	Size() int
	// Recv starts a non-blocking receive of the message.
	Recv() RecvState
}

// A RecvState tracks an in-flight non-blocking receive.
type RecvState interface {
	// Test polls for completion without blocking.
	Test() bool
	// Source returns the sending node.
	Source() biggrid.NodeID
	// Payload returns the received bytes. It may be called only after
	// Test has returned true.
	Payload() []byte
}

// A Transport connects one node to all others. Implementations must be
// usable from a single goroutine per endpoint; all operations are
// non-blocking.
type Transport interface {
	// Rank returns this node's id.
	Rank() biggrid.NodeID
	// Size returns the world size.
	Size() int
	// Send starts a non-blocking send of msg to the target node under
	// the given tag. The caller must not modify msg until the returned
	// state tests complete.
	Send(target biggrid.NodeID, tag Tag, msg []byte) SendState
	// Probe checks for an incoming message with the given tag from any
	// source, claiming and returning one if present.
	Probe(tag Tag) (InboundMessage, bool)
}
