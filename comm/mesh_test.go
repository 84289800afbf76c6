// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"bytes"
	"testing"

	"github.com/grailbio/biggrid"
)

func TestMeshDelivery(t *testing.T) {
	m := NewMesh(3)
	send := m.Endpoint(1).Send(2, TagCmd, []byte("hello"))
	if !send.Test() {
		t.Fatal("in-process send must complete immediately")
	}
	if _, ok := m.Endpoint(2).Probe(TagDataTransfer); ok {
		t.Fatal("probe matched the wrong tag")
	}
	if _, ok := m.Endpoint(1).Probe(TagCmd); ok {
		t.Fatal("probe matched on the wrong endpoint")
	}
	msg, ok := m.Endpoint(2).Probe(TagCmd)
	if !ok {
		t.Fatal("message not delivered")
	}
	if got, want := msg.Source(), biggrid.NodeID(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := msg.Size(), 5; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	recv := msg.Recv()
	if !recv.Test() {
		t.Fatal("in-process receive must complete immediately")
	}
	if !bytes.Equal(recv.Payload(), []byte("hello")) {
		t.Errorf("got %q", recv.Payload())
	}
	// The probe claimed the message.
	if _, ok := m.Endpoint(2).Probe(TagCmd); ok {
		t.Fatal("message delivered twice")
	}
}

func TestMeshFIFOPerSource(t *testing.T) {
	m := NewMesh(2)
	m.Endpoint(1).Send(0, TagDataTransfer, []byte{1})
	m.Endpoint(1).Send(0, TagDataTransfer, []byte{2})
	m.Endpoint(1).Send(0, TagDataTransfer, []byte{3})
	for want := byte(1); want <= 3; want++ {
		msg, ok := m.Endpoint(0).Probe(TagDataTransfer)
		if !ok {
			t.Fatal("missing message")
		}
		if got := msg.Recv().Payload()[0]; got != want {
			t.Fatalf("got %v, want %v: messages reordered", got, want)
		}
	}
}

func TestMeshDrainOrderBySource(t *testing.T) {
	m := NewMesh(3)
	m.Endpoint(2).Send(0, TagCmd, []byte{22})
	m.Endpoint(1).Send(0, TagCmd, []byte{11})
	// The pending message with the lowest source rank wins.
	msg, ok := m.Endpoint(0).Probe(TagCmd)
	if !ok {
		t.Fatal("missing message")
	}
	if got, want := msg.Source(), biggrid.NodeID(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
